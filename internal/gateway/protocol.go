package gateway

import (
	"encoding/json"
	"fmt"
	"slices"
)

// ProtocolVersion is the RPC protocol spoken on /ws.
const ProtocolVersion = 1

// Frame types.
const (
	FrameTypeRequest  = "req"
	FrameTypeResponse = "res"
	FrameTypeEvent    = "event"
)

// Pushed events. Only the last three can be subscribed to; the challenge
// is sent once before authentication.
const (
	EventConnectChallenge     = "connect.challenge"
	EventEscalationTriggered  = "escalation.triggered"
	EventConversationResolved = "conversation.resolved"
	EventFeedbackProcessed    = "feedback.processed"
)

// PushEvents lists the subscribable events in the order advertised in hello.
var PushEvents = []string{EventEscalationTriggered, EventConversationResolved, EventFeedbackProcessed}

// Error codes shared by REST bodies and RPC error frames.
const (
	CodeProtocolError    = "protocol_error"
	CodeProtocolMismatch = "protocol_mismatch"
	CodeUnauthorized     = "unauthorized"
	CodeInvalidParams    = "invalid_params"
	CodeMethodNotFound   = "method_not_found"
	CodeNotFound         = "not_found"
	CodeForbidden        = "forbidden"
	CodeHandoffDisabled  = "handoff_disabled"
)

// Frame is the single envelope on the socket; Type says which of the
// request, response or event fields are set.
type Frame struct {
	Type string `json:"type"`

	ID     string          `json:"id,omitempty"`
	Method string          `json:"method,omitempty"`
	Params json.RawMessage `json:"params,omitempty"`

	OK      *bool           `json:"ok,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Error   *ErrorShape     `json:"error,omitempty"`

	Event string `json:"event,omitempty"`
	Seq   int64  `json:"seq,omitempty"`
}

// ErrorShape is the error body shared by REST responses and RPC frames.
type ErrorShape struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Details   any    `json:"details,omitempty"`
	Retryable bool   `json:"retryable,omitempty"`
}

// ConnectParams are the params of the first request on a socket.
type ConnectParams struct {
	MinProtocol int          `json:"minProtocol"`
	MaxProtocol int          `json:"maxProtocol"`
	Client      ClientInfo   `json:"client"`
	Auth        *ConnectAuth `json:"auth,omitempty"`
	// Events limits pushed events to the listed names; empty means all.
	Events []string `json:"events,omitempty"`
}

// Accepts reports whether v falls in the client's protocol range. A zero
// MaxProtocol leaves the range open-ended.
func (p ConnectParams) Accepts(v int) bool {
	if p.MinProtocol > v {
		return false
	}
	return p.MaxProtocol == 0 || p.MaxProtocol >= v
}

// checkEvents rejects subscriptions to events the server never pushes.
func (p ConnectParams) checkEvents() error {
	for _, ev := range p.Events {
		if !slices.Contains(PushEvents, ev) {
			return fmt.Errorf("unknown event %q", ev)
		}
	}
	return nil
}

// ClientInfo identifies the connecting client, typically an agent console.
type ClientInfo struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName,omitempty"`
	Version     string `json:"version"`
	Platform    string `json:"platform,omitempty"`
}

// ConnectAuth carries credentials in the connect request.
type ConnectAuth struct {
	Token    string `json:"token,omitempty"`
	Password string `json:"password,omitempty"`
}

// HelloOK answers a successful connect.
type HelloOK struct {
	Protocol int          `json:"protocol"`
	Server   ServerInfo   `json:"server"`
	Features Features     `json:"features"`
	Policy   ServerPolicy `json:"policy"`
}

type ServerInfo struct {
	Version string `json:"version"`
	Commit  string `json:"commit,omitempty"`
	ConnID  string `json:"connId"`
}

type Features struct {
	Methods []string `json:"methods"`
	Events  []string `json:"events"`
}

type ServerPolicy struct {
	MaxPayload int `json:"maxPayload"`
}

func encode(v any) (json.RawMessage, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encoding frame body: %w", err)
	}
	return raw, nil
}

// NewRequest builds a request frame. The server never sends requests; the
// constructor exists for consoles and tests written against this package.
func NewRequest(id, method string, params any) (Frame, error) {
	raw, err := encode(params)
	if err != nil {
		return Frame{}, err
	}
	return Frame{Type: FrameTypeRequest, ID: id, Method: method, Params: raw}, nil
}

func NewResponse(id string, payload any) (Frame, error) {
	raw, err := encode(payload)
	if err != nil {
		return Frame{}, err
	}
	ok := true
	return Frame{Type: FrameTypeResponse, ID: id, OK: &ok, Payload: raw}, nil
}

func NewErrorResponse(id string, e ErrorShape) Frame {
	ok := false
	return Frame{Type: FrameTypeResponse, ID: id, OK: &ok, Error: &e}
}

func NewEvent(event string, payload any, seq int64) (Frame, error) {
	raw, err := encode(payload)
	if err != nil {
		return Frame{}, err
	}
	return Frame{Type: FrameTypeEvent, Event: event, Payload: raw, Seq: seq}, nil
}

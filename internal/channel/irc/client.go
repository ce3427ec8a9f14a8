// Package irc implements the live-chat channel over IRC using the girc library.
package irc

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/lrstanley/girc"

	"github.com/hassanupf24/CustomerCareAI-Ecosystem/internal/config"
	"github.com/hassanupf24/CustomerCareAI-Ecosystem/internal/domain"
	"github.com/hassanupf24/CustomerCareAI-Ecosystem/internal/logging"
)

// maxLineBytes keeps a PRIVMSG under the 512 byte protocol limit once the
// prefix and target are added.
const maxLineBytes = 400

var errNotConnected = errors.New("irc: not connected")

// Channel implements domain.Channel for IRC. Customers reach it by direct
// message or by addressing the bot by nick in a joined channel.
type Channel struct {
	cfg config.IRCConfig
	log *logging.Logger

	mu      sync.RWMutex
	client  *girc.Client
	handler func(msg domain.InboundMessage)
	running bool
	lastErr string
}

// New creates an IRC channel from configuration.
func New(cfg config.IRCConfig, log *logging.Logger) *Channel {
	return &Channel{
		cfg: cfg,
		log: log.Sub("irc"),
	}
}

func (c *Channel) ID() string   { return "irc" }
func (c *Channel) Kind() string { return domain.ChannelChat }

func (c *Channel) OnMessage(handler func(msg domain.InboundMessage)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handler = handler
}

// Status returns the current runtime status.
func (c *Channel) Status() domain.ChannelStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return domain.ChannelStatus{
		ChannelID: c.ID(),
		Kind:      c.Kind(),
		Connected: c.client != nil && c.client.IsConnected(),
		Running:   c.running,
		LastError: c.lastErr,
	}
}

func (c *Channel) port() int {
	switch {
	case c.cfg.Port != 0:
		return c.cfg.Port
	case c.cfg.UseTLS:
		return 6697
	default:
		return 6667
	}
}

func (c *Channel) clientConfig() girc.Config {
	cfg := girc.Config{
		Server:  c.cfg.Server,
		Port:    c.port(),
		Nick:    c.cfg.Nick,
		User:    c.cfg.Nick,
		Name:    "Customer Care",
		SSL:     c.cfg.UseTLS,
		Version: "careai",
	}
	if c.cfg.UseTLS {
		cfg.TLSConfig = &tls.Config{ServerName: c.cfg.Server}
	}
	if c.cfg.SASL && c.cfg.Password != "" {
		cfg.SASL = &girc.SASLPlain{User: c.cfg.Nick, Pass: c.cfg.Password}
	} else if c.cfg.Password != "" {
		cfg.ServerPass = c.cfg.Password
	}
	return cfg
}

// Start connects to the IRC server and blocks until the connection ends or
// ctx is cancelled.
func (c *Channel) Start(ctx context.Context) error {
	client := girc.New(c.clientConfig())
	client.Handlers.Add(girc.CONNECTED, c.onConnected)
	client.Handlers.Add(girc.PRIVMSG, c.onPrivmsg)
	client.Handlers.Add(girc.DISCONNECTED, c.onDisconnected)

	c.mu.Lock()
	c.client = client
	c.running = true
	c.lastErr = ""
	c.mu.Unlock()

	c.log.Info().
		Str("server", c.cfg.Server).
		Int("port", c.port()).
		Str("nick", c.cfg.Nick).
		Strs("channels", c.cfg.Channels).
		Bool("tls", c.cfg.UseTLS).
		Msg("connecting to IRC")

	errCh := make(chan error, 1)
	go func() { errCh <- client.Connect() }()

	select {
	case err := <-errCh:
		c.mu.Lock()
		c.running = false
		if err != nil {
			c.lastErr = err.Error()
		}
		c.mu.Unlock()
		if err != nil {
			return fmt.Errorf("irc connect: %w", err)
		}
		return nil
	case <-ctx.Done():
		client.Close()
		<-errCh
		c.mu.Lock()
		c.running = false
		c.mu.Unlock()
		return ctx.Err()
	}
}

// Stop sends QUIT. Start returns once the server closes the connection.
func (c *Channel) Stop(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client != nil && c.client.IsConnected() {
		c.log.Info().Msg("disconnecting from IRC")
		c.client.Quit("support desk closing")
	}
	c.running = false
	return nil
}

// Send delivers a reply to a user or channel. Multi-line and long replies
// are split into several PRIVMSGs.
func (c *Channel) Send(_ context.Context, msg domain.OutboundMessage) error {
	c.mu.RLock()
	client := c.client
	c.mu.RUnlock()
	if client == nil || !client.IsConnected() {
		return errNotConnected
	}
	if msg.To == "" {
		return errors.New("irc: no target specified")
	}

	lines := splitMessage(msg.Body, maxLineBytes)
	for _, line := range lines {
		client.Cmd.Message(msg.To, line)
	}
	c.log.Debug().Str("to", msg.To).Int("lines", len(lines)).Msg("sent IRC reply")
	return nil
}

func (c *Channel) onConnected(client *girc.Client, _ girc.Event) {
	c.log.Info().Str("nick", client.GetNick()).Msg("connected to IRC")
	for _, ch := range c.cfg.Channels {
		client.Cmd.Join(ch)
		c.log.Info().Str("channel", ch).Msg("joined channel")
	}
}

func (c *Channel) onDisconnected(_ *girc.Client, _ girc.Event) {
	c.log.Warn().Msg("disconnected from IRC")
}

func (c *Channel) onPrivmsg(client *girc.Client, e girc.Event) {
	if e.Source == nil || len(e.Params) == 0 {
		return
	}
	body := e.Last()
	if e.IsAction() {
		body = e.StripAction()
	}
	msg, ok := c.inbound(client.GetNick(), e.Source.Name, e.Params[0], body)
	if !ok {
		return
	}

	c.mu.RLock()
	handler := c.handler
	c.mu.RUnlock()
	if handler != nil {
		handler(msg)
	}
}

// inbound turns a PRIVMSG into an InboundMessage. Direct messages are
// always accepted; channel messages only when they start with "nick:" or
// "nick,", and the address is stripped. Replies to a channel go back to the
// channel, replies to a DM go to the sender.
func (c *Channel) inbound(ownNick, from, target, body string) (domain.InboundMessage, bool) {
	if strings.EqualFold(from, ownNick) {
		return domain.InboundMessage{}, false
	}

	msg := domain.InboundMessage{
		ID:        uuid.NewString(),
		ChannelID: c.ID(),
		From:      from,
		FromName:  from,
		Timestamp: time.Now().UTC(),
	}

	if girc.IsValidChannel(target) {
		text, ok := stripAddress(body, ownNick)
		if !ok {
			return domain.InboundMessage{}, false
		}
		msg.ChatID = target
		msg.ChatType = domain.ChatTypeGroup
		msg.Body = text
	} else {
		msg.ChatID = from
		msg.ChatType = domain.ChatTypeDM
		msg.Body = strings.TrimSpace(body)
	}
	if msg.Body == "" {
		return domain.InboundMessage{}, false
	}
	return msg, true
}

// stripAddress reports whether body is addressed to nick and returns the rest.
func stripAddress(body, nick string) (string, bool) {
	if nick == "" || len(body) <= len(nick) || !strings.EqualFold(body[:len(nick)], nick) {
		return "", false
	}
	rest := body[len(nick):]
	switch rest[0] {
	case ':', ',':
		return strings.TrimSpace(rest[1:]), true
	}
	return "", false
}

// splitMessage breaks text into IRC lines: one per newline, and lines longer
// than maxLen bytes are cut on rune boundaries. Blank lines are dropped.
func splitMessage(text string, maxLen int) []string {
	var chunks []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimRight(line, "\r")
		for len(line) > maxLen {
			cut := maxLen
			for cut > 0 && !utf8.RuneStart(line[cut]) {
				cut--
			}
			if cut == 0 {
				cut = maxLen
			}
			chunks = append(chunks, line[:cut])
			line = line[cut:]
		}
		if strings.TrimSpace(line) != "" {
			chunks = append(chunks, line)
		}
	}
	return chunks
}

package email

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hassanupf24/CustomerCareAI-Ecosystem/internal/domain"
)

var errNoText = errors.New("no text/plain or text/html part")

var wordDecoder = new(mime.WordDecoder)

// parseMessage converts a raw message into an InboundMessage. The sender's
// address is the chat id so each customer mailbox maps to one conversation.
func parseMessage(raw []byte, now func() time.Time) (domain.InboundMessage, error) {
	m, err := mail.ReadMessage(bytes.NewReader(raw))
	if err != nil {
		return domain.InboundMessage{}, fmt.Errorf("failed to read message: %w", err)
	}

	from, err := mail.ParseAddress(m.Header.Get("From"))
	if err != nil {
		return domain.InboundMessage{}, fmt.Errorf("bad From header: %w", err)
	}
	addr := strings.ToLower(from.Address)

	subject := m.Header.Get("Subject")
	if dec, err := wordDecoder.DecodeHeader(subject); err == nil {
		subject = dec
	}

	body, err := textBody(m.Header.Get("Content-Type"), m.Header.Get("Content-Transfer-Encoding"), m.Body)
	if err != nil {
		return domain.InboundMessage{}, err
	}
	body = stripQuoted(body)
	if body == "" {
		return domain.InboundMessage{}, errNoText
	}

	id := strings.TrimSpace(m.Header.Get("Message-Id"))
	if id == "" {
		id = uuid.NewString()
	}
	ts, err := m.Header.Date()
	if err != nil {
		ts = now()
	}

	return domain.InboundMessage{
		ID:        id,
		ChannelID: "email",
		From:      addr,
		FromName:  from.Name,
		ChatID:    addr,
		ChatType:  domain.ChatTypeDM,
		Subject:   subject,
		Body:      body,
		Timestamp: ts.UTC(),
	}, nil
}

// textBody returns the first text part, preferring text/plain over
// text/html within a multipart message. Nested multiparts are searched.
func textBody(contentType, encoding string, r io.Reader) (string, error) {
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = "text/plain"
	}

	if strings.HasPrefix(mediaType, "multipart/") {
		mr := multipart.NewReader(r, params["boundary"])
		var html string
		for {
			p, err := mr.NextPart()
			if err == io.EOF {
				break
			}
			if err != nil {
				return "", fmt.Errorf("bad multipart body: %w", err)
			}
			ct := p.Header.Get("Content-Type")
			text, err := textBody(ct, p.Header.Get("Content-Transfer-Encoding"), p)
			if err != nil {
				continue
			}
			if strings.HasPrefix(ct, "text/html") {
				if html == "" {
					html = text
				}
				continue
			}
			return text, nil
		}
		if html != "" {
			return html, nil
		}
		return "", errNoText
	}

	if !strings.HasPrefix(mediaType, "text/") {
		return "", fmt.Errorf("unsupported content type: %s", mediaType)
	}

	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "quoted-printable":
		r = quotedprintable.NewReader(r)
	case "base64":
		r = base64.NewDecoder(base64.StdEncoding, r)
	}
	body, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("failed to read body: %w", err)
	}
	return string(body), nil
}

// stripQuoted drops quoted reply history: lines starting with '>' and
// everything after an "On ... wrote:" attribution.
func stripQuoted(body string) string {
	var kept []string
	for _, line := range strings.Split(strings.ReplaceAll(body, "\r\n", "\n"), "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "On ") && strings.HasSuffix(trimmed, "wrote:") {
			break
		}
		if strings.HasPrefix(trimmed, ">") {
			continue
		}
		kept = append(kept, line)
	}
	return strings.TrimSpace(strings.Join(kept, "\n"))
}

var headerSafe = strings.NewReplacer("\r", " ", "\n", " ")

// compose renders a plain-text reply threaded to the customer's message.
func (c *Channel) compose(msg domain.OutboundMessage, now time.Time) ([]byte, error) {
	to, err := mail.ParseAddress(msg.To)
	if err != nil {
		return nil, fmt.Errorf("email: bad recipient %q: %w", msg.To, err)
	}
	from := mail.Address{Name: "Customer Care", Address: c.cfg.From}

	subject := headerSafe.Replace(strings.TrimSpace(msg.Subject))
	switch {
	case subject == "":
		subject = "Re: your support request"
	case !strings.HasPrefix(strings.ToLower(subject), "re:"):
		subject = "Re: " + subject
	}

	domainPart := "localhost"
	if at := strings.LastIndex(c.cfg.From, "@"); at >= 0 {
		domainPart = c.cfg.From[at+1:]
	}

	var b bytes.Buffer
	fmt.Fprintf(&b, "From: %s\r\n", from.String())
	fmt.Fprintf(&b, "To: %s\r\n", to.String())
	fmt.Fprintf(&b, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", subject))
	fmt.Fprintf(&b, "Date: %s\r\n", now.Format(time.RFC1123Z))
	fmt.Fprintf(&b, "Message-ID: <%s@%s>\r\n", uuid.NewString(), domainPart)
	if ref := headerSafe.Replace(strings.TrimSpace(msg.ReplyToID)); strings.HasPrefix(ref, "<") {
		fmt.Fprintf(&b, "In-Reply-To: %s\r\n", ref)
		fmt.Fprintf(&b, "References: %s\r\n", ref)
	}
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	b.WriteString("Content-Transfer-Encoding: quoted-printable\r\n\r\n")

	qp := quotedprintable.NewWriter(&b)
	body := strings.ReplaceAll(strings.ReplaceAll(msg.Body, "\r\n", "\n"), "\n", "\r\n")
	if _, err := qp.Write([]byte(body)); err != nil {
		return nil, err
	}
	if err := qp.Close(); err != nil {
		return nil, err
	}
	return b.Bytes(), nil
}

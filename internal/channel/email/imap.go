package email

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"strconv"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"

	"github.com/hassanupf24/CustomerCareAI-Ecosystem/internal/config"
)

// imapMailbox adapts a go-imap client. go-imap v1 has no context support,
// so ctx is unused and commands are bounded by the client timeout instead.
type imapMailbox struct {
	c        *client.Client
	selected string
}

func dialIMAP(_ context.Context, cfg config.EmailConfig) (Mailbox, error) {
	addr := net.JoinHostPort(cfg.Server, strconv.Itoa(cfg.Port))
	c, err := client.DialTLS(addr, &tls.Config{ServerName: cfg.Server})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", addr, err)
	}
	c.Timeout = 30 * time.Second

	if err := c.Login(cfg.Username, cfg.Password); err != nil {
		_ = c.Logout()
		return nil, fmt.Errorf("login failed: %w", err)
	}
	return &imapMailbox{c: c}, nil
}

func (m *imapMailbox) selectMailbox(name string) error {
	if m.selected == name {
		return nil
	}
	if _, err := m.c.Select(name, false); err != nil {
		return fmt.Errorf("failed to select %s: %w", name, err)
	}
	m.selected = name
	return nil
}

func (m *imapMailbox) FetchUnseen(_ context.Context, mailbox string) ([]Fetched, error) {
	if err := m.selectMailbox(mailbox); err != nil {
		return nil, err
	}

	criteria := imap.NewSearchCriteria()
	criteria.WithoutFlags = []string{imap.SeenFlag}
	uids, err := m.c.UidSearch(criteria)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}
	if len(uids) == 0 {
		return nil, nil
	}

	seqset := new(imap.SeqSet)
	seqset.AddNum(uids...)
	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{imap.FetchUid, section.FetchItem()}

	messages := make(chan *imap.Message, 10)
	done := make(chan error, 1)
	go func() {
		done <- m.c.UidFetch(seqset, items, messages)
	}()

	out := make([]Fetched, 0, len(uids))
	for msg := range messages {
		r := msg.GetBody(section)
		if r == nil {
			continue
		}
		raw, err := io.ReadAll(r)
		if err != nil {
			continue
		}
		out = append(out, Fetched{UID: msg.Uid, Raw: raw})
	}
	if err := <-done; err != nil {
		return nil, fmt.Errorf("fetch failed: %w", err)
	}
	return out, nil
}

func (m *imapMailbox) MarkSeen(_ context.Context, mailbox string, uids []uint32) error {
	if len(uids) == 0 {
		return nil
	}
	if err := m.selectMailbox(mailbox); err != nil {
		return err
	}
	seqset := new(imap.SeqSet)
	seqset.AddNum(uids...)
	item := imap.FormatFlagsOp(imap.AddFlags, true)
	if err := m.c.UidStore(seqset, item, []interface{}{imap.SeenFlag}, nil); err != nil {
		return fmt.Errorf("failed to mark seen: %w", err)
	}
	return nil
}

func (m *imapMailbox) Append(_ context.Context, mailbox string, flags []string, date time.Time, msg []byte) error {
	return m.c.Append(mailbox, flags, date, bytes.NewBuffer(msg))
}

func (m *imapMailbox) Close() error {
	return m.c.Logout()
}

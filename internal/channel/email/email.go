// Package email implements the email support channel. Unseen mail is polled
// from an IMAP mailbox and replies are filed as drafts for an agent to send.
package email

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/emersion/go-imap"

	"github.com/hassanupf24/CustomerCareAI-Ecosystem/internal/config"
	"github.com/hassanupf24/CustomerCareAI-Ecosystem/internal/domain"
	"github.com/hassanupf24/CustomerCareAI-Ecosystem/internal/logging"
)

const (
	defaultPort         = 993
	defaultMailbox      = "INBOX"
	defaultDrafts       = "Drafts"
	defaultPollInterval = time.Minute
)

// Fetched is one raw RFC 5322 message and its UID.
type Fetched struct {
	UID uint32
	Raw []byte
}

// Mailbox is the subset of IMAP the channel needs.
type Mailbox interface {
	FetchUnseen(ctx context.Context, mailbox string) ([]Fetched, error)
	MarkSeen(ctx context.Context, mailbox string, uids []uint32) error
	Append(ctx context.Context, mailbox string, flags []string, date time.Time, msg []byte) error
	Close() error
}

// Dialer opens an authenticated mailbox session.
type Dialer func(ctx context.Context, cfg config.EmailConfig) (Mailbox, error)

// Option configures a Channel.
type Option func(*Channel)

// WithDialer replaces the IMAP dialer.
func WithDialer(d Dialer) Option {
	return func(c *Channel) { c.dial = d }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Channel) { c.now = now }
}

// Channel implements domain.Channel for email.
type Channel struct {
	cfg  config.EmailConfig
	dial Dialer
	now  func() time.Time
	log  *logging.Logger

	mu      sync.RWMutex
	handler func(msg domain.InboundMessage)
	running bool
	lastErr string

	// sessMu serializes IMAP commands; sess is nil until the next dial.
	sessMu sync.Mutex
	sess   Mailbox

	stop     chan struct{}
	stopOnce sync.Once
}

// New creates an email channel. Unset fields fall back to port 993, the
// INBOX mailbox, a "Drafts" folder and a one minute poll.
func New(cfg config.EmailConfig, log *logging.Logger, opts ...Option) *Channel {
	if cfg.Port == 0 {
		cfg.Port = defaultPort
	}
	if cfg.Mailbox == "" {
		cfg.Mailbox = defaultMailbox
	}
	if cfg.DraftsFolder == "" {
		cfg.DraftsFolder = defaultDrafts
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.From == "" {
		cfg.From = cfg.Username
	}

	c := &Channel{
		cfg:  cfg,
		dial: dialIMAP,
		now:  time.Now,
		log:  log.Sub("email"),
		stop: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Channel) ID() string   { return "email" }
func (c *Channel) Kind() string { return domain.ChannelEmail }

func (c *Channel) OnMessage(handler func(msg domain.InboundMessage)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handler = handler
}

// Status returns the current runtime status.
func (c *Channel) Status() domain.ChannelStatus {
	c.sessMu.Lock()
	connected := c.sess != nil
	c.sessMu.Unlock()

	c.mu.RLock()
	defer c.mu.RUnlock()
	return domain.ChannelStatus{
		ChannelID: c.ID(),
		Kind:      c.Kind(),
		Connected: connected,
		Running:   c.running,
		LastError: c.lastErr,
	}
}

// Start polls the mailbox until Stop is called or ctx is cancelled.
func (c *Channel) Start(ctx context.Context) error {
	c.setRunning(true)
	defer c.setRunning(false)
	defer c.disconnect()

	c.log.Info().
		Str("server", c.cfg.Server).
		Int("port", c.cfg.Port).
		Str("mailbox", c.cfg.Mailbox).
		Dur("interval", c.cfg.PollInterval).
		Msg("polling mailbox")

	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	for {
		c.poll(ctx)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.stop:
			return nil
		case <-ticker.C:
		}
	}
}

// Stop ends the poll loop.
func (c *Channel) Stop(context.Context) error {
	c.stopOnce.Do(func() { close(c.stop) })
	return nil
}

// Send files the reply as a draft in the drafts folder.
func (c *Channel) Send(ctx context.Context, msg domain.OutboundMessage) error {
	now := c.now()
	raw, err := c.compose(msg, now)
	if err != nil {
		return err
	}

	c.sessMu.Lock()
	defer c.sessMu.Unlock()
	sess, err := c.session(ctx)
	if err != nil {
		return err
	}
	if err := sess.Append(ctx, c.cfg.DraftsFolder, []string{imap.DraftFlag}, now, raw); err != nil {
		c.dropSession(err)
		return fmt.Errorf("email: failed to file draft: %w", err)
	}
	c.log.Debug().Str("to", msg.To).Str("folder", c.cfg.DraftsFolder).Msg("reply filed as draft")
	return nil
}

// poll delivers every unseen message once and marks it seen, including
// messages that fail to parse so they are not retried forever.
func (c *Channel) poll(ctx context.Context) {
	c.sessMu.Lock()
	sess, err := c.session(ctx)
	if err != nil {
		c.sessMu.Unlock()
		return
	}
	fetched, err := sess.FetchUnseen(ctx, c.cfg.Mailbox)
	if err != nil {
		c.dropSession(err)
		c.sessMu.Unlock()
		return
	}
	c.sessMu.Unlock()

	if len(fetched) == 0 {
		return
	}

	c.mu.RLock()
	handler := c.handler
	c.mu.RUnlock()

	seen := make([]uint32, 0, len(fetched))
	for _, f := range fetched {
		seen = append(seen, f.UID)
		msg, err := parseMessage(f.Raw, c.now)
		if err != nil {
			c.log.Warn().Err(err).Uint32("uid", f.UID).Msg("skipping unreadable message")
			continue
		}
		if strings.EqualFold(msg.From, c.cfg.From) {
			continue
		}
		if handler != nil {
			handler(msg)
		}
	}

	c.sessMu.Lock()
	defer c.sessMu.Unlock()
	if c.sess == nil {
		return
	}
	if err := c.sess.MarkSeen(ctx, c.cfg.Mailbox, seen); err != nil {
		c.dropSession(err)
		return
	}
	c.log.Debug().Int("messages", len(seen)).Msg("mailbox polled")
}

// session returns the open session, dialing if needed. Callers hold sessMu.
func (c *Channel) session(ctx context.Context) (Mailbox, error) {
	if c.sess != nil {
		return c.sess, nil
	}
	sess, err := c.dial(ctx, c.cfg)
	if err != nil {
		c.setErr(err)
		c.log.Warn().Err(err).Str("server", c.cfg.Server).Msg("failed to connect to mailbox")
		return nil, fmt.Errorf("email: %w", err)
	}
	c.sess = sess
	c.setErr(nil)
	return sess, nil
}

// dropSession closes a session after a command error; the next use redials.
// Callers hold sessMu.
func (c *Channel) dropSession(cause error) {
	c.setErr(cause)
	c.log.Warn().Err(cause).Msg("mailbox session lost")
	if c.sess != nil {
		_ = c.sess.Close()
		c.sess = nil
	}
}

func (c *Channel) disconnect() {
	c.sessMu.Lock()
	defer c.sessMu.Unlock()
	if c.sess != nil {
		if err := c.sess.Close(); err != nil && !errors.Is(err, context.Canceled) {
			c.log.Debug().Err(err).Msg("logout failed")
		}
		c.sess = nil
	}
}

func (c *Channel) setRunning(v bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.running = v
}

func (c *Channel) setErr(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err == nil {
		c.lastErr = ""
		return
	}
	c.lastErr = err.Error()
}

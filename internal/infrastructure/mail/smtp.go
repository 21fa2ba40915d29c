// Package mail delivers alerts over SMTP.
package mail

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	gomail "github.com/wneessen/go-mail"

	"DisclosureMonitor/internal/domain"
	"DisclosureMonitor/internal/ports"
)

// ErrSend wraps every delivery failure.
var ErrSend = errors.New("smtp send")

// Provider is a well-known SMTP endpoint.
type Provider struct {
	Host string
	Port int
}

var providers = map[string]Provider{
	"gmail":   {Host: "smtp.gmail.com", Port: 587},
	"outlook": {Host: "smtp-mail.outlook.com", Port: 587},
	"yahoo":   {Host: "smtp.mail.yahoo.com", Port: 587},
	"icloud":  {Host: "smtp.mail.me.com", Port: 587},
}

// LookupProvider returns the preset for name (case-insensitive).
func LookupProvider(name string) (Provider, bool) {
	p, ok := providers[strings.ToLower(strings.TrimSpace(name))]
	return p, ok
}

// Config holds SMTP credentials and addressing. Host and Port override the
// provider preset when set.
type Config struct {
	Provider   string
	Host       string
	Port       int
	Username   string
	Password   string
	From       string
	Recipients []string
	Timeout    time.Duration
}

// Sender is an SMTP transport that opens one connection per message.
type Sender struct {
	cfg Config
}

var _ ports.Transport = (*Sender)(nil)

// NewSender resolves the provider preset and checks addressing.
func NewSender(cfg Config) (*Sender, error) {
	if p, ok := LookupProvider(cfg.Provider); ok {
		if cfg.Host == "" {
			cfg.Host = p.Host
		}
		if cfg.Port == 0 {
			cfg.Port = p.Port
		}
	}
	if cfg.Host == "" {
		return nil, fmt.Errorf("unknown email provider %q and no host configured", cfg.Provider)
	}
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	if cfg.From == "" {
		cfg.From = cfg.Username
	}
	if cfg.From == "" || len(cfg.Recipients) == 0 {
		return nil, fmt.Errorf("sender and at least one recipient are required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Sender{cfg: cfg}, nil
}

// Send builds a multipart message and delivers it with STARTTLS.
func (s *Sender) Send(ctx context.Context, msg domain.Message) error {
	m, err := s.build(msg)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSend, err)
	}

	client, err := gomail.NewClient(s.cfg.Host,
		gomail.WithPort(s.cfg.Port),
		gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
		gomail.WithUsername(s.cfg.Username),
		gomail.WithPassword(s.cfg.Password),
		gomail.WithTLSPolicy(gomail.TLSMandatory),
		gomail.WithTimeout(s.cfg.Timeout),
	)
	if err != nil {
		return fmt.Errorf("%w: new client: %v", ErrSend, err)
	}

	if err := client.DialAndSendWithContext(ctx, m); err != nil {
		return fmt.Errorf("%w: %v", ErrSend, err)
	}
	return nil
}

func (s *Sender) build(msg domain.Message) (*gomail.Msg, error) {
	m := gomail.NewMsg()
	if err := m.From(s.cfg.From); err != nil {
		return nil, fmt.Errorf("from: %w", err)
	}
	if err := m.To(s.cfg.Recipients...); err != nil {
		return nil, fmt.Errorf("to: %w", err)
	}
	m.Subject(msg.Subject)
	m.SetDate()

	if msg.TextBody != "" {
		m.SetBodyString(gomail.TypeTextPlain, msg.TextBody)
		m.AddAlternativeString(gomail.TypeTextHTML, msg.HTMLBody)
	} else {
		m.SetBodyString(gomail.TypeTextHTML, msg.HTMLBody)
	}

	for _, a := range msg.Attachments {
		var opts []gomail.FileOption
		if a.ContentType != "" {
			opts = append(opts, gomail.WithFileContentType(gomail.ContentType(a.ContentType)))
		}
		if err := m.AttachReader(a.Name, bytes.NewReader(a.Data), opts...); err != nil {
			return nil, fmt.Errorf("attach %s: %w", a.Name, err)
		}
	}
	return m, nil
}

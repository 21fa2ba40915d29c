package mail

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"DisclosureMonitor/internal/domain"
)

func TestNewSenderResolvesProvider(t *testing.T) {
	t.Parallel()

	s, err := NewSender(Config{Provider: "Gmail", Username: "me@example.com", Recipients: []string{"you@example.com"}})
	require.NoError(t, err)
	assert.Equal(t, "smtp.gmail.com", s.cfg.Host)
	assert.Equal(t, 587, s.cfg.Port)
	assert.Equal(t, "me@example.com", s.cfg.From)
}

func TestNewSenderExplicitHostWins(t *testing.T) {
	t.Parallel()

	s, err := NewSender(Config{Provider: "outlook", Host: "relay.local", Port: 2525, From: "a@b.c", Recipients: []string{"d@e.f"}})
	require.NoError(t, err)
	assert.Equal(t, "relay.local", s.cfg.Host)
	assert.Equal(t, 2525, s.cfg.Port)
}

func TestNewSenderRejectsIncompleteConfig(t *testing.T) {
	t.Parallel()

	_, err := NewSender(Config{Provider: "nope", Username: "a@b.c", Recipients: []string{"d@e.f"}})
	assert.Error(t, err)

	_, err = NewSender(Config{Provider: "gmail", Username: "a@b.c"})
	assert.Error(t, err)
}

func TestBuildMessage(t *testing.T) {
	t.Parallel()

	s, err := NewSender(Config{Provider: "gmail", Username: "me@example.com", Recipients: []string{"you@example.com"}})
	require.NoError(t, err)

	m, err := s.build(domain.Message{
		Subject:  "[Market News] Update: Acme Ltd",
		HTMLBody: "<p>hello</p>",
		TextBody: "hello",
		Attachments: []domain.Attachment{
			{Name: "filing.pdf", ContentType: "application/pdf", Data: []byte("%PDF-1.4")},
		},
	})
	require.NoError(t, err)

	var buf bytes.Buffer
	_, err = m.WriteTo(&buf)
	require.NoError(t, err)

	raw := buf.String()
	assert.Contains(t, raw, "Subject: [Market News] Update: Acme Ltd")
	assert.Contains(t, raw, "you@example.com")
	assert.Contains(t, raw, "text/html")
	assert.Contains(t, raw, "text/plain")
	assert.Contains(t, raw, "filing.pdf")
}

func TestSendFailsWithoutServer(t *testing.T) {
	t.Parallel()

	s, err := NewSender(Config{Host: "127.0.0.1", Port: 1, From: "a@b.c", Recipients: []string{"d@e.f"}, Timeout: time.Second})
	require.NoError(t, err)

	err = s.Send(context.Background(), domain.Message{Subject: "s", HTMLBody: "b"})
	assert.ErrorIs(t, err, ErrSend)
}

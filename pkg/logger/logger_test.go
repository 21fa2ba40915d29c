package logger

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPrintfWritesThroughSlog(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	base := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	p := New(base, "badger")

	p.Infof("opened %d tables\n", 3)
	p.Warningf("slow compaction")

	out := buf.String()
	assert.Contains(t, out, `msg="opened 3 tables"`)
	assert.Contains(t, out, "component=badger")
	assert.Contains(t, out, "level=WARN")
}

func TestPrintfRespectsLevel(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	base := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelError}))
	New(base, "badger").Debugf("noise")

	assert.Empty(t, buf.String())
}

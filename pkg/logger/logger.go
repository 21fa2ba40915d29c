package logger

import (
	"fmt"
	"log/slog"
)

// Printf adapts a slog.Logger to the printf-style logger interface expected
// by embedded libraries such as badger.
type Printf struct {
	logger *slog.Logger
}

// New returns a printf adapter tagged with the component name.
func New(base *slog.Logger, component string) *Printf {
	if base == nil {
		base = slog.Default()
	}
	return &Printf{logger: base.With("component", component)}
}

func (p *Printf) Errorf(format string, args ...any) {
	p.logger.Error(trim(fmt.Sprintf(format, args...)))
}

func (p *Printf) Warningf(format string, args ...any) {
	p.logger.Warn(trim(fmt.Sprintf(format, args...)))
}

func (p *Printf) Infof(format string, args ...any) {
	p.logger.Info(trim(fmt.Sprintf(format, args...)))
}

func (p *Printf) Debugf(format string, args ...any) {
	p.logger.Debug(trim(fmt.Sprintf(format, args...)))
}

func trim(msg string) string {
	for len(msg) > 0 && msg[len(msg)-1] == '\n' {
		msg = msg[:len(msg)-1]
	}
	return msg
}

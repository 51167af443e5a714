package monitoring

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/log"
)

// CharmOptions configures the structured terminal backend.
type CharmOptions struct {
	Output       io.Writer // defaults to os.Stderr
	Level        string    // debug, info, warn, error; empty means info
	Prefix       string
	ReportCaller bool
}

// NewCharmLogger builds a charmbracelet logger from opts.
func NewCharmLogger(opts CharmOptions) (*log.Logger, error) {
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}
	level := log.InfoLevel
	if opts.Level != "" {
		parsed, err := log.ParseLevel(opts.Level)
		if err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", opts.Level, err)
		}
		level = parsed
	}
	return log.NewWithOptions(out, log.Options{
		Level:           level,
		Prefix:          opts.Prefix,
		ReportCaller:    opts.ReportCaller,
		ReportTimestamp: true,
		TimeFormat:      time.TimeOnly,
	}), nil
}

// UseCharm routes Logf through l. Lines that carry a warning or failure
// marker are emitted at warn level so they stand out on the console.
func UseCharm(l *log.Logger) {
	if l == nil {
		SetLogger(nil)
		return
	}
	SetLogger(func(format string, v ...interface{}) {
		msg := strings.TrimRight(fmt.Sprintf(format, v...), "\n")
		if isWarning(msg) {
			l.Warn(msg)
			return
		}
		l.Info(msg)
	})
}

func isWarning(msg string) bool {
	lower := strings.ToLower(msg)
	for _, marker := range []string{"warning", "error", "failed", "hang"} {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

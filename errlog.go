package redirector

import (
	"io"
	"os"
	"strings"

	"github.com/getsentry/sentry-go"
	"github.com/rs/zerolog"
)

type LogOptions struct {
	Tags map[string]string
	Msg  string
}

// ErrLogger reports errors that end a request.
type ErrLogger interface {
	Log(error, LogOptions)
}

// NewLogger returns the root logger at the named level; unknown levels fall
// back to info.
func NewLogger(w io.Writer, level string) zerolog.Logger {
	if w == nil {
		w = os.Stderr
	}
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(w).Level(lvl).With().Timestamp().Logger()
}

type zeroLogger struct {
	l zerolog.Logger
}

func (l *zeroLogger) Log(err error, opts LogOptions) {
	ev := l.l.Error().Err(err)
	for k, v := range opts.Tags {
		ev = ev.Str(k, v)
	}
	ev.Msg(opts.Msg)
}

func NewZeroLogger(l zerolog.Logger) ErrLogger {
	return &zeroLogger{l: l}
}

type sentryLogger struct {
	h *sentry.Hub
}

func (l *sentryLogger) Log(err error, opts LogOptions) {
	scope := l.h.PushScope()
	defer l.h.PopScope()
	for k, v := range opts.Tags {
		scope.SetTag(k, v)
	}
	if opts.Msg != "" {
		scope.SetExtra("msg", opts.Msg)
	}
	l.h.CaptureException(err)
}

// NewSentryLogger reports to the Sentry project behind dsn, tagging every
// event with tags.
func NewSentryLogger(dsn string, tags map[string]string) (ErrLogger, error) {
	c, err := sentry.NewClient(sentry.ClientOptions{Dsn: dsn})
	if err != nil {
		return nil, err
	}
	scope := sentry.NewScope()
	for k, v := range tags {
		scope.SetTag(k, v)
	}
	return &sentryLogger{h: sentry.NewHub(c, scope)}, nil
}

type multiLogger []ErrLogger

func (ml multiLogger) Log(err error, opts LogOptions) {
	for _, l := range ml {
		l.Log(err, opts)
	}
}

func MultiErrLogger(loggers ...ErrLogger) ErrLogger {
	return multiLogger(loggers)
}

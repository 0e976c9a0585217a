package logging

import (
	"context"
	"fmt"

	"github.com/getsentry/sentry-go"
)

// SentryLogger forwards Error calls to Sentry in addition to the wrapped
// logger. The first error value among args becomes the captured exception,
// the remaining pairs become tags.
type SentryLogger struct {
	Logger
	hub  *sentry.Hub
	args []any
}

func NewSentryLogger(next Logger, hub *sentry.Hub) *SentryLogger {
	return &SentryLogger{Logger: next, hub: hub}
}

func (s *SentryLogger) Error(ctx context.Context, msg string, args ...any) {
	s.Logger.Error(ctx, msg, args...)

	all := append(append([]any{}, s.args...), args...)
	var captured error
	s.hub.WithScope(func(scope *sentry.Scope) {
		for i := 0; i+1 < len(all); i += 2 {
			key := fmt.Sprint(all[i])
			if err, ok := all[i+1].(error); ok && captured == nil {
				captured = err
				continue
			}
			scope.SetTag(key, fmt.Sprint(all[i+1]))
		}
		if captured != nil {
			s.hub.CaptureException(fmt.Errorf("%s: %w", msg, captured))
			return
		}
		s.hub.CaptureMessage(msg)
	})
}

func (s *SentryLogger) With(args ...any) Logger {
	return &SentryLogger{
		Logger: s.Logger.With(args...),
		hub:    s.hub,
		args:   append(append([]any{}, s.args...), args...),
	}
}

// Package logging contains helpers shared by the packages that log on behalf
// of the guest.
package logging

import (
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// RateLimitedLogger forwards log entries to a logrus logger no more than once
// per configured interval. Entries exceeding the rate are dropped.
//
// Guests can trigger some log lines in tight loops (e.g. an unsupported socket
// option probed on every connection), the limiter keeps them from flooding the
// host logs.
type RateLimitedLogger struct {
	logger logrus.FieldLogger
	limit  *rate.Limiter
}

// RateLimited returns a logger which emits to logger at most once every
// interval. A nil logger uses the logrus standard logger.
func RateLimited(logger logrus.FieldLogger, every time.Duration) *RateLimitedLogger {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &RateLimitedLogger{
		logger: logger,
		limit:  rate.NewLimiter(rate.Every(every), 1),
	}
}

// Allow reports whether an entry may be emitted now, consuming a token if it
// does.
func (rl *RateLimitedLogger) Allow() bool {
	return rl.limit.Allow()
}

// WithFields returns an entry carrying fields if the rate allows it, nil
// otherwise.
func (rl *RateLimitedLogger) WithFields(fields logrus.Fields) *logrus.Entry {
	if !rl.limit.Allow() {
		return nil
	}
	return rl.logger.WithFields(fields)
}

func (rl *RateLimitedLogger) Debugf(format string, args ...any) {
	if rl.limit.Allow() {
		rl.logger.Debugf(format, args...)
	}
}

func (rl *RateLimitedLogger) Infof(format string, args ...any) {
	if rl.limit.Allow() {
		rl.logger.Infof(format, args...)
	}
}

func (rl *RateLimitedLogger) Warnf(format string, args ...any) {
	if rl.limit.Allow() {
		rl.logger.Warnf(format, args...)
	}
}

// ParseLevel parses a logrus level name, an empty string selects the info
// level.
func ParseLevel(name string) (logrus.Level, error) {
	if name == "" {
		return logrus.InfoLevel, nil
	}
	return logrus.ParseLevel(name)
}

package logging_test

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stealthrocket/linux-go/internal/logging"
)

func TestRateLimitedLogger(t *testing.T) {
	buf := new(bytes.Buffer)
	logger := logrus.New()
	logger.SetOutput(buf)
	logger.SetLevel(logrus.DebugLevel)

	rl := logging.RateLimited(logger, time.Hour)
	for i := 0; i < 10; i++ {
		rl.Warnf("message %d", i)
	}

	if n := strings.Count(buf.String(), "message"); n != 1 {
		t.Fatalf("wrong number of log lines: want=1 got=%d\n%s", n, buf.String())
	}
	if !strings.Contains(buf.String(), "message 0") {
		t.Errorf("first message was not the one emitted:\n%s", buf.String())
	}
	if entry := rl.WithFields(logrus.Fields{"k": "v"}); entry != nil {
		t.Errorf("entry returned while the rate limit was exceeded")
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		name  string
		level logrus.Level
	}{
		{"", logrus.InfoLevel},
		{"debug", logrus.DebugLevel},
		{"warning", logrus.WarnLevel},
		{"error", logrus.ErrorLevel},
	}

	for _, test := range tests {
		level, err := logging.ParseLevel(test.name)
		if err != nil {
			t.Fatal(err)
		}
		if level != test.level {
			t.Errorf("level mismatch for %q: want=%s got=%s", test.name, test.level, level)
		}
	}

	if _, err := logging.ParseLevel("loud"); err == nil {
		t.Error("no error returned for an invalid level name")
	}
}

package common

import (
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
)

// TestLogLevel is the level used by test loggers unless a test asks for
// another one.
const TestLogLevel = logrus.InfoLevel

// This can be used as the destination for a logger and it'll
// map them into calls to testing.T.Log, so that you only see
// the logging for failed tests.
//
// Nodes keep goroutines alive after a test returns (retrying requests), so
// the adapter goes quiet once the test is cleaned up; testing.T panics on
// Log calls made after completion.
type testLoggerAdapter struct {
	sync.Mutex
	t      testing.TB
	prefix string
	done   bool
}

func (a *testLoggerAdapter) Write(d []byte) (int, error) {
	a.Lock()
	defer a.Unlock()

	if a.done || len(d) == 0 {
		return len(d), nil
	}

	n := len(d)
	if d[len(d)-1] == '\n' {
		d = d[:len(d)-1]
	}
	if a.prefix != "" {
		a.t.Log(a.prefix + ": " + string(d))
		return n, nil
	}
	a.t.Log(string(d))
	return n, nil
}

func (a *testLoggerAdapter) stop() {
	a.Lock()
	defer a.Unlock()
	a.done = true
}

// NewTestLogger returns a logger that writes through t.Log at the given level.
func NewTestLogger(t testing.TB, level logrus.Level) *logrus.Logger {
	adapter := &testLoggerAdapter{t: t}
	t.Cleanup(adapter.stop)

	logger := logrus.New()
	logger.Out = adapter
	logger.Level = level
	return logger
}

// NewTestEntry is NewTestLogger wrapped in an Entry.
func NewTestEntry(t testing.TB, level logrus.Level) *logrus.Entry {
	return logrus.NewEntry(NewTestLogger(t, level))
}

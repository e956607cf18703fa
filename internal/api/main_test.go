package api_test

import (
	"testing"

	"go.uber.org/goleak"
)

// TestMain enables goroutine leak detection for all tests in the package.
// Abandoned SSE streams must not leave producer goroutines behind.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		// HTTP connection pool goroutines persist across tests
		goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"),
		goleak.IgnoreTopFunction("net/http.(*http2clientConnReadLoop).run"),
		// genkit.Init installs a signal.NotifyContext watcher and never
		// releases it; one goroutine persists per Init call
		goleak.IgnoreTopFunction("os/signal.NotifyContext.func1"),
	)
}

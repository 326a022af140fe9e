package capture

import (
	"testing"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		// httptest keeps idle keep-alive readers around until the client is collected
		goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"),
	)
}

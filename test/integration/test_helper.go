package integration

import (
	"net/http"
	"os"
	"testing"
	"time"
)

// BaseURL points at a running admin API instance
var BaseURL = "http://localhost:8080"

func TestMain(m *testing.M) {
	if v := os.Getenv("API_BASE_URL"); v != "" {
		BaseURL = v
	}

	// Give the service a moment to come up when launched alongside the tests
	for i := 0; i < 5; i++ {
		if serviceUp() {
			break
		}
		time.Sleep(time.Second)
	}

	os.Exit(m.Run())
}

func serviceUp() bool {
	resp, err := http.Get(BaseURL + "/health")
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// requireService skips the test when no admin API is reachable, so the suite
// can run without the full docker stack.
func requireService(t *testing.T) {
	t.Helper()
	if !serviceUp() {
		t.Skipf("admin API not reachable at %s, skipping", BaseURL)
	}
}

package watcher

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextBackoffDelay(t *testing.T) {
	max := 30 * time.Second

	d := time.Second
	for _, want := range []time.Duration{
		1500 * time.Millisecond,
		2250 * time.Millisecond,
		3375 * time.Millisecond,
		5062500 * time.Microsecond,
		7593750 * time.Microsecond,
	} {
		d = nextBackoffDelay(d, max)
		assert.Equal(t, want, d)
	}

	for i := 0; i < 10; i++ {
		d = nextBackoffDelay(d, max)
		assert.LessOrEqual(t, d, max)
	}
	assert.Equal(t, max, d)
}

// fakeFeed is a minimal logsSubscribe endpoint for exercising the manager
// against a live websocket.
type fakeFeed struct {
	srv      *httptest.Server
	upgrader websocket.Upgrader

	mu         sync.Mutex
	conn       *websocket.Conn
	dials      int
	nextSubID  uint64
	subs       map[uint64]string
	subscribed map[string]bool
	reject     map[string]bool
	normalBye  bool
}

func newFakeFeed() *fakeFeed {
	f := &fakeFeed{
		subs:       make(map[uint64]string),
		subscribed: make(map[string]bool),
		reject:     make(map[string]bool),
	}
	f.srv = httptest.NewServer(http.HandlerFunc(f.handle))
	return f
}

func (f *fakeFeed) wsURL() string {
	return "ws" + strings.TrimPrefix(f.srv.URL, "http")
}

func (f *fakeFeed) handle(w http.ResponseWriter, r *http.Request) {
	conn, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	f.mu.Lock()
	f.conn = conn
	f.dials++
	f.mu.Unlock()

	type rpcReq struct {
		ID     uint64            `json:"id"`
		Method string            `json:"method"`
		Params []json.RawMessage `json:"params"`
	}

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				f.mu.Lock()
				f.normalBye = true
				f.mu.Unlock()
			}
			return
		}
		var req rpcReq
		if err := json.Unmarshal(message, &req); err != nil {
			continue
		}

		switch req.Method {
		case "logsSubscribe":
			var filter struct {
				Mentions []string `json:"mentions"`
			}
			_ = json.Unmarshal(req.Params[0], &filter)
			addr := filter.Mentions[0]

			f.mu.Lock()
			if f.reject[addr] {
				f.mu.Unlock()
				f.write(map[string]interface{}{
					"jsonrpc": "2.0",
					"id":      req.ID,
					"error":   map[string]interface{}{"code": -32602, "message": "rejected"},
				})
				continue
			}
			f.nextSubID++
			subID := f.nextSubID
			f.subs[subID] = addr
			f.subscribed[addr] = true
			f.mu.Unlock()

			f.write(map[string]interface{}{"jsonrpc": "2.0", "id": req.ID, "result": subID})

		case "logsUnsubscribe":
			var subID uint64
			_ = json.Unmarshal(req.Params[0], &subID)

			f.mu.Lock()
			if addr, ok := f.subs[subID]; ok {
				delete(f.subs, subID)
				f.subscribed[addr] = false
			}
			f.mu.Unlock()

			f.write(map[string]interface{}{"jsonrpc": "2.0", "id": req.ID, "result": true})
		}
	}
}

func (f *fakeFeed) write(payload interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.conn != nil {
		_ = f.conn.WriteJSON(payload)
	}
}

func (f *fakeFeed) writeRaw(data string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.conn != nil {
		_ = f.conn.WriteMessage(websocket.TextMessage, []byte(data))
	}
}

func (f *fakeFeed) notify(signature string) {
	f.write(map[string]interface{}{
		"jsonrpc": "2.0",
		"method":  "logsNotification",
		"params": map[string]interface{}{
			"subscription": 1,
			"result": map[string]interface{}{
				"value": map[string]interface{}{
					"signature": signature,
					"err":       nil,
					"logs":      []string{},
				},
			},
		},
	})
}

func (f *fakeFeed) isSubscribed(addr string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.subscribed[addr]
}

func (f *fakeFeed) dialCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dials
}

func (f *fakeFeed) sawNormalClose() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.normalBye
}

func testConfig(endpoint string) SubscriptionConfig {
	return SubscriptionConfig{
		Endpoint:    endpoint,
		BaseDelay:   10 * time.Millisecond,
		MaxDelay:    50 * time.Millisecond,
		MaxAttempts: 5,
	}
}

func TestSubscriptionManagerLifecycle(t *testing.T) {
	feed := newFakeFeed()
	defer feed.srv.Close()

	signatures := make(chan string, 16)
	m := NewSubscriptionManager(testConfig(feed.wsURL()), func(sig string) {
		signatures <- sig
	})

	m.UpdateWalletSet([]string{"walletA", "walletB"})
	m.Start()

	require.Eventually(t, func() bool {
		return feed.isSubscribed("walletA") && feed.isSubscribed("walletB")
	}, 2*time.Second, 10*time.Millisecond, "initial wallet set must be subscribed")

	// Malformed frames are dropped without killing the connection
	feed.writeRaw("{not json")

	feed.notify("sig-one")
	select {
	case got := <-signatures:
		assert.Equal(t, "sig-one", got)
	case <-time.After(2 * time.Second):
		t.Fatal("notification was not delivered")
	}

	// Changing the wallet set reuses the live connection
	m.UpdateWalletSet([]string{"walletA", "walletC"})
	require.Eventually(t, func() bool {
		return feed.isSubscribed("walletC") && !feed.isSubscribed("walletB")
	}, 2*time.Second, 10*time.Millisecond, "diff must unsubscribe B and subscribe C")
	assert.Equal(t, 1, feed.dialCount(), "wallet set changes must not reconnect")

	require.Eventually(t, func() bool {
		h := m.Health()
		return h.State == StateConnected && h.SubscribedCount == 2
	}, 2*time.Second, 10*time.Millisecond)

	m.Stop()
	assert.Eventually(t, feed.sawNormalClose, 2*time.Second, 10*time.Millisecond,
		"shutdown must close with a normal closure code")
	assert.Equal(t, StateDisconnected, m.Health().State)
}

func TestSubscriptionManagerRejectedAddress(t *testing.T) {
	feed := newFakeFeed()
	defer feed.srv.Close()
	feed.mu.Lock()
	feed.reject["walletBad"] = true
	feed.mu.Unlock()

	m := NewSubscriptionManager(testConfig(feed.wsURL()), nil)
	m.UpdateWalletSet([]string{"walletA", "walletBad"})
	m.Start()
	defer m.Stop()

	require.Eventually(t, func() bool {
		return feed.isSubscribed("walletA")
	}, 2*time.Second, 10*time.Millisecond)

	// The rejected address stays wanted but never confirms, and the
	// connection survives
	require.Eventually(t, func() bool {
		h := m.Health()
		return h.State == StateConnected && h.SubscribedCount == 1 && h.ErrorCount > 0
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 2, m.Health().WantedCount)
}

func TestSubscriptionManagerExhaustion(t *testing.T) {
	cfg := SubscriptionConfig{
		Endpoint:    "ws://127.0.0.1:1",
		BaseDelay:   time.Millisecond,
		MaxDelay:    5 * time.Millisecond,
		MaxAttempts: 3,
	}
	m := NewSubscriptionManager(cfg, nil)
	m.Start()

	require.Eventually(t, func() bool {
		return m.Health().State == StateExhausted
	}, 5*time.Second, 10*time.Millisecond, "manager must give up after the attempt budget")
	assert.Equal(t, cfg.MaxAttempts, m.Health().ReconnectCount)
	assert.GreaterOrEqual(t, m.Health().ErrorCount, uint64(3))
}

func TestSubscriptionManagerBackoffAfterDrop(t *testing.T) {
	var mu sync.Mutex
	var dialTimes []time.Time
	upgrader := websocket.Upgrader{}

	// A provider that accepts every connection and drops it immediately
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		mu.Lock()
		dialTimes = append(dialTimes, time.Now())
		mu.Unlock()
		conn.Close()
	}))
	defer srv.Close()

	base := 150 * time.Millisecond
	m := NewSubscriptionManager(SubscriptionConfig{
		Endpoint:    "ws" + strings.TrimPrefix(srv.URL, "http"),
		BaseDelay:   base,
		MaxDelay:    time.Second,
		MaxAttempts: 100,
	}, nil)
	m.Start()
	defer m.Stop()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(dialTimes) >= 3
	}, 5*time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	for i := 1; i < 3; i++ {
		gap := dialTimes[i].Sub(dialTimes[i-1])
		assert.GreaterOrEqual(t, gap, base,
			"redial after a dropped connection must wait out the backoff delay")
	}
}

func TestStopBeforeStart(t *testing.T) {
	m := NewSubscriptionManager(testConfig("ws://127.0.0.1:1"), nil)

	done := make(chan struct{})
	go func() {
		m.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop blocked without a running manager")
	}
	assert.Equal(t, StateDisconnected, m.Health().State)
}

func TestSubscriptionManagerResubscribesAfterDrop(t *testing.T) {
	feed := newFakeFeed()
	defer feed.srv.Close()

	m := NewSubscriptionManager(testConfig(feed.wsURL()), nil)
	m.UpdateWalletSet([]string{"walletA"})
	m.Start()
	defer m.Stop()

	require.Eventually(t, func() bool {
		return feed.isSubscribed("walletA")
	}, 2*time.Second, 10*time.Millisecond)

	// Abnormal drop: the manager must reconnect and resubscribe
	feed.mu.Lock()
	feed.subscribed["walletA"] = false
	feed.conn.Close()
	feed.mu.Unlock()

	require.Eventually(t, func() bool {
		return feed.dialCount() == 2 && feed.isSubscribed("walletA")
	}, 5*time.Second, 10*time.Millisecond, "subscription must come back after a drop")
}

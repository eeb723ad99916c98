package watcher

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
)

// Connection states
const (
	StateDisconnected = "disconnected"
	StateConnecting   = "connecting"
	StateConnected    = "connected"
	StateBackoff      = "backoff"
	StateExhausted    = "exhausted"
)

const backoffMultiplier = 1.5

// SignatureHandler receives every candidate signature observed on the feed.
// Delivery is at-least-once; duplicates are expected and must be tolerated
// downstream. The handler must not block.
type SignatureHandler func(signature string)

// SubscriptionConfig configures the feed connection lifecycle
type SubscriptionConfig struct {
	Endpoint    string
	Commitment  string
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	MaxAttempts int
}

type pendingRequest struct {
	address     string
	unsubscribe bool
}

// SubscriptionManager owns the live feed connection and one logsSubscribe
// per tracked address, each with a unique correlation id. It recovers from
// abnormal closes with multiplicative backoff and gives up into a terminal
// exhausted state after the configured attempt count.
type SubscriptionManager struct {
	cfg         SubscriptionConfig
	onSignature SignatureHandler
	dialer      *websocket.Dialer

	mu      sync.Mutex
	conn    *websocket.Conn
	state   string
	wanted  map[string]struct{}
	subs    map[string]uint64         // address -> confirmed subscription id
	pending map[uint64]pendingRequest // correlation id -> in-flight request
	nextID  uint64

	attempts   int
	started    bool
	errorCount uint64 // atomic

	stopCh   chan struct{}
	stopOnce sync.Once
	doneCh   chan struct{}
}

// Health is a point-in-time view of the connection for the status surface
type Health struct {
	State           string `json:"state"`
	ReconnectCount  int    `json:"reconnect_count"`
	ErrorCount      uint64 `json:"error_count"`
	SubscribedCount int    `json:"subscribed_count"`
	WantedCount     int    `json:"wanted_count"`
}

// NewSubscriptionManager creates a manager; Start must be called to connect
func NewSubscriptionManager(cfg SubscriptionConfig, onSignature SignatureHandler) *SubscriptionManager {
	if cfg.Commitment == "" {
		cfg.Commitment = "confirmed"
	}
	return &SubscriptionManager{
		cfg:         cfg,
		onSignature: onSignature,
		dialer:      websocket.DefaultDialer,
		state:       StateDisconnected,
		wanted:      make(map[string]struct{}),
		subs:        make(map[string]uint64),
		pending:     make(map[uint64]pendingRequest),
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}
}

// Start opens the connection and begins the reconnect loop. Calling it more
// than once is a no-op.
func (m *SubscriptionManager) Start() {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return
	}
	m.started = true
	m.mu.Unlock()
	go m.run()
}

// Stop closes the connection with a normal closure code so no reconnect is
// attempted, then waits for the loop to exit. Safe to call even when Start
// never ran.
func (m *SubscriptionManager) Stop() {
	m.stopOnce.Do(func() {
		close(m.stopCh)
		m.mu.Lock()
		conn := m.conn
		m.mu.Unlock()
		if conn != nil {
			_ = conn.WriteControl(
				websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "shutting down"),
				time.Now().Add(time.Second),
			)
			conn.Close()
		}
	})

	m.mu.Lock()
	started := m.started
	m.mu.Unlock()
	if started {
		<-m.doneCh
	}
}

// UpdateWalletSet diffs the desired address set against the currently
// subscribed one and issues the minimal subscribe/unsubscribe calls without
// tearing down the connection. When disconnected it only records the set;
// the next successful connect subscribes everything.
func (m *SubscriptionManager) UpdateWalletSet(addresses []string) {
	next := make(map[string]struct{}, len(addresses))
	for _, addr := range addresses {
		if addr != "" {
			next[addr] = struct{}{}
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var added, removed []string
	for addr := range next {
		if _, ok := m.wanted[addr]; !ok {
			added = append(added, addr)
		}
	}
	for addr := range m.wanted {
		if _, ok := next[addr]; !ok {
			removed = append(removed, addr)
		}
	}
	m.wanted = next

	if m.state != StateConnected {
		return
	}
	for _, addr := range removed {
		m.sendUnsubscribeLocked(addr)
	}
	for _, addr := range added {
		m.sendSubscribeLocked(addr)
	}
}

// Health returns the current connection state and error counters
func (m *SubscriptionManager) Health() Health {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Health{
		State:           m.state,
		ReconnectCount:  m.attempts,
		ErrorCount:      atomic.LoadUint64(&m.errorCount),
		SubscribedCount: len(m.subs),
		WantedCount:     len(m.wanted),
	}
}

func (m *SubscriptionManager) run() {
	defer close(m.doneCh)

	delay := m.cfg.BaseDelay
	for {
		select {
		case <-m.stopCh:
			m.setState(StateDisconnected)
			return
		default:
		}

		m.setState(StateConnecting)
		conn, _, err := m.dialer.Dial(m.cfg.Endpoint, nil)
		if err != nil {
			m.mu.Lock()
			m.attempts++
			attempts := m.attempts
			m.mu.Unlock()
			atomic.AddUint64(&m.errorCount, 1)

			log.WithFields(log.Fields{
				"endpoint": m.cfg.Endpoint,
				"attempt":  attempts,
				"error":    err.Error(),
			}).Error("Failed to connect to feed")

			if attempts >= m.cfg.MaxAttempts {
				log.WithFields(log.Fields{
					"attempts": attempts,
				}).Error("Reconnect attempts exhausted, giving up")
				m.setState(StateExhausted)
				return
			}

			m.setState(StateBackoff)
			select {
			case <-m.stopCh:
				m.setState(StateDisconnected)
				return
			case <-time.After(delay):
			}
			delay = nextBackoffDelay(delay, m.cfg.MaxDelay)
			continue
		}

		m.mu.Lock()
		m.conn = conn
		m.state = StateConnected
		m.attempts = 0
		m.subs = make(map[string]uint64)
		m.pending = make(map[uint64]pendingRequest)
		for addr := range m.wanted {
			m.sendSubscribeLocked(addr)
		}
		subscribing := len(m.wanted)
		m.mu.Unlock()

		// A successful open resets the backoff schedule
		delay = m.cfg.BaseDelay
		log.WithFields(log.Fields{
			"endpoint":    m.cfg.Endpoint,
			"subscribing": subscribing,
		}).Info("Connected to feed")

		m.readLoop(conn)

		m.mu.Lock()
		m.conn = nil
		m.subs = make(map[string]uint64)
		m.pending = make(map[uint64]pendingRequest)
		m.attempts++
		attempts := m.attempts
		m.mu.Unlock()

		select {
		case <-m.stopCh:
			m.setState(StateDisconnected)
			return
		default:
		}

		// An abnormal close counts as a failed attempt and re-enters the
		// backoff schedule before the next dial
		if attempts >= m.cfg.MaxAttempts {
			log.WithFields(log.Fields{
				"attempts": attempts,
			}).Error("Reconnect attempts exhausted, giving up")
			m.setState(StateExhausted)
			return
		}

		m.setState(StateBackoff)
		select {
		case <-m.stopCh:
			m.setState(StateDisconnected)
			return
		case <-time.After(delay):
		}
		delay = nextBackoffDelay(delay, m.cfg.MaxDelay)
	}
}

func (m *SubscriptionManager) readLoop(conn *websocket.Conn) {
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-m.stopCh:
			default:
				atomic.AddUint64(&m.errorCount, 1)
				log.WithFields(log.Fields{
					"error": err.Error(),
				}).Error("Feed read failed")
			}
			conn.Close()
			return
		}
		m.handleMessage(message)
	}
}

// feedMessage covers both request responses (correlated by id) and
// subscription notifications.
type feedMessage struct {
	ID     *uint64         `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
	Method string `json:"method"`
	Params *struct {
		Subscription uint64 `json:"subscription"`
		Result       struct {
			Value struct {
				Signature string          `json:"signature"`
				Err       json.RawMessage `json:"err"`
				Logs      []string        `json:"logs"`
			} `json:"value"`
		} `json:"result"`
	} `json:"params"`
}

func (m *SubscriptionManager) handleMessage(raw []byte) {
	var msg feedMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		// Malformed frames are dropped, non-fatal
		atomic.AddUint64(&m.errorCount, 1)
		log.WithFields(log.Fields{
			"error": err.Error(),
		}).Warn("Dropping malformed feed frame")
		return
	}

	if msg.ID != nil {
		m.handleResponse(*msg.ID, &msg)
		return
	}

	if msg.Method == "logsNotification" && msg.Params != nil {
		sig := msg.Params.Result.Value.Signature
		if sig == "" {
			return
		}
		if m.onSignature != nil {
			m.onSignature(sig)
		}
	}
}

func (m *SubscriptionManager) handleResponse(id uint64, msg *feedMessage) {
	m.mu.Lock()
	defer m.mu.Unlock()

	req, ok := m.pending[id]
	if !ok {
		return
	}
	delete(m.pending, id)

	if msg.Error != nil {
		// A per-address failure (e.g. rate limited) never tears down the
		// connection; the address stays wanted and is retried on the next
		// full resubscription cycle.
		atomic.AddUint64(&m.errorCount, 1)
		log.WithFields(log.Fields{
			"address":     req.address,
			"unsubscribe": req.unsubscribe,
			"code":        msg.Error.Code,
			"message":     msg.Error.Message,
		}).Warn("Subscription request rejected")
		return
	}

	if req.unsubscribe {
		log.WithFields(log.Fields{
			"address": req.address,
		}).Debug("Unsubscribe confirmed")
		return
	}

	var subID uint64
	if err := json.Unmarshal(msg.Result, &subID); err != nil {
		atomic.AddUint64(&m.errorCount, 1)
		log.WithFields(log.Fields{
			"address": req.address,
		}).Warn("Unexpected subscription confirmation payload")
		return
	}

	m.subs[req.address] = subID
	log.WithFields(log.Fields{
		"address":         req.address,
		"subscription_id": subID,
	}).Info("Subscription confirmed")

	// The wallet may have been removed while the subscribe was in flight
	if _, stillWanted := m.wanted[req.address]; !stillWanted {
		m.sendUnsubscribeLocked(req.address)
	}
}

func (m *SubscriptionManager) sendSubscribeLocked(address string) {
	if m.conn == nil {
		return
	}
	m.nextID++
	id := m.nextID
	req := map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      id,
		"method":  "logsSubscribe",
		"params": []interface{}{
			map[string]interface{}{
				"mentions": []string{address},
			},
			map[string]interface{}{
				"commitment": m.cfg.Commitment,
			},
		},
	}
	if err := m.conn.WriteJSON(req); err != nil {
		atomic.AddUint64(&m.errorCount, 1)
		log.WithFields(log.Fields{
			"address": address,
			"error":   err.Error(),
		}).Error("Failed to send subscribe request")
		return
	}
	m.pending[id] = pendingRequest{address: address}
}

func (m *SubscriptionManager) sendUnsubscribeLocked(address string) {
	subID, ok := m.subs[address]
	if !ok || m.conn == nil {
		delete(m.subs, address)
		return
	}
	delete(m.subs, address)

	m.nextID++
	id := m.nextID
	req := map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      id,
		"method":  "logsUnsubscribe",
		"params":  []interface{}{subID},
	}
	if err := m.conn.WriteJSON(req); err != nil {
		atomic.AddUint64(&m.errorCount, 1)
		log.WithFields(log.Fields{
			"address": address,
			"error":   err.Error(),
		}).Error("Failed to send unsubscribe request")
		return
	}
	m.pending[id] = pendingRequest{address: address, unsubscribe: true}
}

func (m *SubscriptionManager) setState(state string) {
	m.mu.Lock()
	m.state = state
	m.mu.Unlock()
}

// nextBackoffDelay multiplies the delay by 1.5, capped at max
func nextBackoffDelay(current, max time.Duration) time.Duration {
	next := time.Duration(float64(current) * backoffMultiplier)
	if next > max {
		next = max
	}
	return next
}

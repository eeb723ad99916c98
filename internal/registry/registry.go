package registry

import (
	"sort"
	"sync"

	log "github.com/sirupsen/logrus"
)

// ChangeListener receives the full active address set after every mutation.
// The slice is a fresh copy; listeners may retain it.
type ChangeListener func(addresses []string)

// WalletRegistry holds the set of actively tracked wallet addresses. Every
// mutation swaps the whole set atomically, so a reader always observes either
// the entirely-old or entirely-new set, never a partial update.
type WalletRegistry struct {
	mu        sync.RWMutex
	active    map[string]struct{}
	listeners []ChangeListener
}

// New creates an empty registry
func New() *WalletRegistry {
	return &WalletRegistry{
		active: make(map[string]struct{}),
	}
}

// OnChange registers a listener invoked after every set mutation. Listeners
// are called outside the registry lock.
func (r *WalletRegistry) OnChange(fn ChangeListener) {
	r.mu.Lock()
	r.listeners = append(r.listeners, fn)
	r.mu.Unlock()
}

// Replace swaps the entire tracked set
func (r *WalletRegistry) Replace(addresses []string) {
	next := make(map[string]struct{}, len(addresses))
	for _, addr := range addresses {
		if addr != "" {
			next[addr] = struct{}{}
		}
	}

	r.mu.Lock()
	r.active = next
	r.mu.Unlock()

	log.WithFields(log.Fields{
		"wallet_count": len(next),
	}).Info("Tracked wallet set replaced")
	r.notify()
}

// Add starts tracking an address. No-op if already tracked.
func (r *WalletRegistry) Add(address string) {
	r.mu.Lock()
	if _, exists := r.active[address]; exists {
		r.mu.Unlock()
		return
	}
	next := r.copyLocked()
	next[address] = struct{}{}
	r.active = next
	r.mu.Unlock()

	log.WithFields(log.Fields{
		"address": address,
	}).Info("Wallet added to tracking")
	r.notify()
}

// Remove stops tracking an address. No-op if not tracked.
func (r *WalletRegistry) Remove(address string) {
	r.mu.Lock()
	if _, exists := r.active[address]; !exists {
		r.mu.Unlock()
		return
	}
	next := r.copyLocked()
	delete(next, address)
	r.active = next
	r.mu.Unlock()

	log.WithFields(log.Fields{
		"address": address,
	}).Info("Wallet removed from tracking")
	r.notify()
}

// Contains reports whether an address is currently tracked
func (r *WalletRegistry) Contains(address string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.active[address]
	return ok
}

// Snapshot returns a sorted copy of the active address set
func (r *WalletRegistry) Snapshot() []string {
	r.mu.RLock()
	addresses := make([]string, 0, len(r.active))
	for addr := range r.active {
		addresses = append(addresses, addr)
	}
	r.mu.RUnlock()
	sort.Strings(addresses)
	return addresses
}

// Len returns the number of tracked addresses
func (r *WalletRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.active)
}

func (r *WalletRegistry) copyLocked() map[string]struct{} {
	next := make(map[string]struct{}, len(r.active)+1)
	for addr := range r.active {
		next[addr] = struct{}{}
	}
	return next
}

func (r *WalletRegistry) notify() {
	snapshot := r.Snapshot()
	r.mu.RLock()
	listeners := make([]ChangeListener, len(r.listeners))
	copy(listeners, r.listeners)
	r.mu.RUnlock()
	for _, fn := range listeners {
		fn(snapshot)
	}
}

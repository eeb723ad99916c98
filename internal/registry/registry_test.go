package registry

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWalletRegistryMutations(t *testing.T) {
	r := New()
	assert.Equal(t, 0, r.Len())
	assert.Empty(t, r.Snapshot())

	r.Add("walletB")
	r.Add("walletA")
	r.Add("walletA") // duplicate, no-op
	assert.Equal(t, 2, r.Len())
	assert.Equal(t, []string{"walletA", "walletB"}, r.Snapshot())
	assert.True(t, r.Contains("walletA"))
	assert.False(t, r.Contains("walletC"))

	r.Remove("walletA")
	r.Remove("walletA") // already gone, no-op
	assert.Equal(t, []string{"walletB"}, r.Snapshot())

	r.Replace([]string{"walletX", "walletY", ""})
	assert.Equal(t, []string{"walletX", "walletY"}, r.Snapshot())
	assert.False(t, r.Contains("walletB"))
}

func TestWalletRegistryNotifiesListeners(t *testing.T) {
	r := New()

	var mu sync.Mutex
	var updates [][]string
	r.OnChange(func(addresses []string) {
		mu.Lock()
		updates = append(updates, addresses)
		mu.Unlock()
	})

	r.Add("walletA")
	r.Add("walletB")
	r.Remove("walletA")
	r.Add("walletB") // no-op, must not notify
	r.Replace([]string{"walletC"})

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, updates, 4)
	assert.Equal(t, []string{"walletA"}, updates[0])
	assert.Equal(t, []string{"walletA", "walletB"}, updates[1])
	assert.Equal(t, []string{"walletB"}, updates[2])
	assert.Equal(t, []string{"walletC"}, updates[3])
}

func TestWalletRegistryConcurrentAccess(t *testing.T) {
	r := New()
	r.OnChange(func([]string) {})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			r.Add("walletA")
			r.Remove("walletA")
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				r.Contains("walletA")
				r.Snapshot()
			}
		}()
	}
	wg.Wait()

	// A reader must never observe a partially applied set
	snapshot := r.Snapshot()
	assert.LessOrEqual(t, len(snapshot), 1)
}

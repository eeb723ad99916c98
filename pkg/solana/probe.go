package solana

import (
	"context"
	"time"

	"github.com/blocto/solana-go-sdk/client"
)

// NodeProbe checks RPC node reachability for the health surface
type NodeProbe struct {
	client *client.Client
}

// NewNodeProbe creates a probe against the given RPC endpoint
func NewNodeProbe(endpoint string) *NodeProbe {
	return &NodeProbe{client: client.NewClient(endpoint)}
}

// CurrentSlot returns the node's current slot, or an error when the node is
// unreachable.
func (p *NodeProbe) CurrentSlot(ctx context.Context) (uint64, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return p.client.GetSlot(ctx)
}

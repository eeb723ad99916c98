package events

// Downstream topics. Delivery is at-least-once; no ordering is guaranteed
// across topics.
const (
	TopicSignalCreated = "signal.created"
	TopicSignalExpired = "signal.expired"
)

// QueueWalletCommands carries tracked-wallet mutations from the admin API to
// a running watcher.
const QueueWalletCommands = "wallet.commands"

// Wallet command actions
const (
	WalletActionTrack   = "track"
	WalletActionUntrack = "untrack"
)

// WalletCommand asks the watcher to start or stop tracking an address
type WalletCommand struct {
	Action  string `json:"action"`
	Address string `json:"address"`
}

// SignalExpiredEvent is the payload published on TopicSignalExpired
type SignalExpiredEvent struct {
	SignalID     uint   `json:"signal_id"`
	TokenAddress string `json:"token_address"`
}

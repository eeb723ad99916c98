package handlers

import (
	"gorm.io/gorm"

	"whalewatch/internal/events"
	"whalewatch/internal/storage"
	solanapkg "whalewatch/pkg/solana"
)

// Handlers carries the explicit dependencies every endpoint needs. No
// package-level database or queue handles.
type Handlers struct {
	db        *gorm.DB
	store     *storage.Store
	publisher *events.Publisher
	probe     *solanapkg.NodeProbe
}

// New creates the handler set. The publisher may be nil when RabbitMQ is not
// configured; wallet mutations then skip the command queue and only take
// effect for watchers restarted afterwards.
func New(db *gorm.DB, store *storage.Store, publisher *events.Publisher, probe *solanapkg.NodeProbe) *Handlers {
	return &Handlers{db: db, store: store, publisher: publisher, probe: probe}
}

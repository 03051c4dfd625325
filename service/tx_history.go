package service

import (
	"context"
	"errors"
	"sync"

	"github.com/layer-3/memowallet/core"
	"github.com/layer-3/memowallet/internal/clock"
	"github.com/layer-3/memowallet/ports"
	"github.com/oklog/ulid/v2"
)

const (
	txHistoryKey = "tx.history"

	// DefaultTxHistoryLimit caps the remembered transactions
	DefaultTxHistoryLimit = 100
)

// TxHistory remembers recently submitted transactions, newest first
type TxHistory struct {
	store ports.SecureStore
	clock clock.Clock
	limit int

	mu sync.Mutex
}

// NewTxHistory creates a history keeping at most limit records
func NewTxHistory(store ports.SecureStore, c clock.Clock, limit int) *TxHistory {
	if c == nil {
		c = clock.Real()
	}
	if limit <= 0 {
		limit = DefaultTxHistoryLimit
	}
	return &TxHistory{store: store, clock: c, limit: limit}
}

// Append records a transaction, filling in its id and timestamp
func (h *TxHistory) Append(ctx context.Context, rec core.TxRecord) (*core.TxRecord, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	records, err := h.listLocked(ctx)
	if err != nil {
		return nil, err
	}

	now := h.clock.Now()
	rec.Timestamp = now
	rec.ID = ulid.MustNew(ulid.Timestamp(now), ulid.DefaultEntropy()).String()

	records = append([]core.TxRecord{rec}, records...)
	if len(records) > h.limit {
		records = records[:h.limit]
	}
	if err := h.store.SetItem(ctx, txHistoryKey, records, 0); err != nil {
		return nil, err
	}
	return &rec, nil
}

// List returns the remembered transactions, newest first
func (h *TxHistory) List(ctx context.Context) ([]core.TxRecord, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.listLocked(ctx)
}

func (h *TxHistory) listLocked(ctx context.Context) ([]core.TxRecord, error) {
	var records []core.TxRecord
	if err := h.store.GetItem(ctx, txHistoryKey, &records); err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return records, nil
}

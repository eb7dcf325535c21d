package model

import (
	"context"
	"fmt"
	"time"

	"github.com/uptrace/bun"
)

// HistoryStateKey is the fixed key the undo/redo stacks persist under.
const HistoryStateKey = "elastiview:history"

// HistoryState holds one serialized {undo, redo} blob.
type HistoryState struct {
	bun.BaseModel `bun:"table:history_states"`

	Key       string `bun:"key,pk,notnull"`
	Data      []byte `bun:"data"`
	UpdatedAt int64  `bun:"updated_at"`
}

// Upsert writes the blob under its key.
func (h *HistoryState) Upsert(ctx context.Context, db bun.IDB) error {
	if h.Key == "" {
		return fmt.Errorf("HistoryState.Upsert: key is required")
	}
	h.UpdatedAt = time.Now().Unix()
	if _, err := db.NewInsert().
		Model(h).
		On("CONFLICT (key) DO UPDATE").
		Set("data = EXCLUDED.data").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx); err != nil {
		return fmt.Errorf("HistoryState.Upsert: %w", err)
	}
	return nil
}

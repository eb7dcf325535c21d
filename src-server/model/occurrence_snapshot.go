package model

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"elastiview/src-server/occurrence"

	"github.com/uptrace/bun"
)

// OccurrenceSnapshot is one cached occurrence from the remote feed, so
// render passes never wait on the store.
type OccurrenceSnapshot struct {
	bun.BaseModel `bun:"table:occurrence_snapshots"`

	ID           string `bun:"id,pk,notnull"`
	RecurrenceID string `bun:"recurrence_id,notnull"`
	StartUnix    int64  `bun:"start_unix,notnull"`
	EndUnix      int64  `bun:"end_unix,notnull"`
	// the occurrence's full wire form
	Data      []byte `bun:"data,notnull"`
	FetchedAt int64  `bun:"fetched_at,notnull"`
}

// ReplaceSnapshots swaps the whole cache for a fresh feed in one
// transaction.
func ReplaceSnapshots(ctx context.Context, db *bun.DB, occs []*occurrence.Occurrence, resolver *occurrence.Resolver) error {
	fetchedAt := time.Now().Unix()
	if err := db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewDelete().
			Model((*OccurrenceSnapshot)(nil)).
			Where("1 = 1").
			Exec(ctx); err != nil {
			return fmt.Errorf("can't clear old snapshots: %w", err)
		}
		for _, occ := range occs {
			resolved, err := resolver.Resolve(occ)
			if err != nil {
				// unrenderable now, maybe not later; keep it cached
				resolved = nil
			}
			data, err := json.Marshal(occ)
			if err != nil {
				return fmt.Errorf("can't marshal occurrence %s: %w", occ.ID, err)
			}
			snapshot := OccurrenceSnapshot{
				ID:           occ.ID,
				RecurrenceID: occ.RecurrenceID,
				Data:         data,
				FetchedAt:    fetchedAt,
			}
			if resolved != nil {
				snapshot.StartUnix = resolved.Start.Unix()
				snapshot.EndUnix = resolved.EffectiveEnd.Unix()
			}
			if _, err := tx.NewInsert().
				Model(&snapshot).
				Exec(ctx); err != nil {
				return fmt.Errorf("can't insert snapshot %s: %w", occ.ID, err)
			}
		}
		return nil
	}); err != nil {
		return fmt.Errorf("ReplaceSnapshots: %w", err)
	}
	return nil
}

// UpsertSnapshot rewrites one cached occurrence in place, so a
// confirmed or optimistic mutation is visible to renders before the
// next full refresh pass.
func UpsertSnapshot(ctx context.Context, db bun.IDB, occ *occurrence.Occurrence, resolver *occurrence.Resolver) error {
	data, err := json.Marshal(occ)
	if err != nil {
		return fmt.Errorf("UpsertSnapshot: can't marshal occurrence %s: %w", occ.ID, err)
	}
	snapshot := OccurrenceSnapshot{
		ID:           occ.ID,
		RecurrenceID: occ.RecurrenceID,
		Data:         data,
		FetchedAt:    time.Now().Unix(),
	}
	if resolved, err := resolver.Resolve(occ); err == nil {
		snapshot.StartUnix = resolved.Start.Unix()
		snapshot.EndUnix = resolved.EffectiveEnd.Unix()
	}
	if _, err := db.NewInsert().
		Model(&snapshot).
		On("CONFLICT (id) DO UPDATE").
		Set("recurrence_id = EXCLUDED.recurrence_id").
		Set("start_unix = EXCLUDED.start_unix").
		Set("end_unix = EXCLUDED.end_unix").
		Set("data = EXCLUDED.data").
		Set("fetched_at = EXCLUDED.fetched_at").
		Exec(ctx); err != nil {
		return fmt.Errorf("UpsertSnapshot: %w", err)
	}
	return nil
}

// DeleteSnapshot drops one cached occurrence.
func DeleteSnapshot(ctx context.Context, db bun.IDB, id string) error {
	if _, err := db.NewDelete().
		Model((*OccurrenceSnapshot)(nil)).
		Where("id = ?", id).
		Exec(ctx); err != nil {
		return fmt.Errorf("DeleteSnapshot: %w", err)
	}
	return nil
}

// DeleteRecurrenceSnapshots drops every cached occurrence a recurrence
// produced.
func DeleteRecurrenceSnapshots(ctx context.Context, db bun.IDB, recurrenceID string) error {
	if _, err := db.NewDelete().
		Model((*OccurrenceSnapshot)(nil)).
		Where("recurrence_id = ?", recurrenceID).
		Exec(ctx); err != nil {
		return fmt.Errorf("DeleteRecurrenceSnapshots: %w", err)
	}
	return nil
}

// LoadSnapshots decodes every cached occurrence.
func LoadSnapshots(ctx context.Context, db bun.IDB) ([]*occurrence.Occurrence, error) {
	snapshots := make([]OccurrenceSnapshot, 0)
	if err := db.NewSelect().
		Model(&snapshots).
		Order("start_unix ASC").
		Scan(ctx); err != nil {
		return nil, fmt.Errorf("LoadSnapshots: %w", err)
	}
	occs := make([]*occurrence.Occurrence, 0, len(snapshots))
	for _, snapshot := range snapshots {
		occ := new(occurrence.Occurrence)
		if err := json.Unmarshal(snapshot.Data, occ); err != nil {
			return nil, fmt.Errorf("LoadSnapshots: can't decode %s: %w", snapshot.ID, err)
		}
		occs = append(occs, occ)
	}
	return occs, nil
}

// FindSnapshot decodes one cached occurrence by id.
func FindSnapshot(ctx context.Context, db bun.IDB, id string) (*occurrence.Occurrence, error) {
	snapshot := new(OccurrenceSnapshot)
	if err := db.NewSelect().
		Model(snapshot).
		Where("id = ?", id).
		Scan(ctx); err != nil {
		return nil, fmt.Errorf("FindSnapshot: %w", err)
	}
	occ := new(occurrence.Occurrence)
	if err := json.Unmarshal(snapshot.Data, occ); err != nil {
		return nil, fmt.Errorf("FindSnapshot: can't decode %s: %w", id, err)
	}
	return occ, nil
}

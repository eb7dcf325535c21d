package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"elastiview/src-server/model"
	"elastiview/src-server/occurrence"
	"elastiview/src-server/remote"

	"github.com/uptrace/bun"
)

// RecordType discriminates the two invertible mutation kinds.
type RecordType string

const (
	RECORD_TYPE_UPDATE_RECURRENCE = RecordType("update-recurrence")
	RECORD_TYPE_DELETE_RECURRENCE = RecordType("delete-recurrence")
)

// RecordData carries whatever the record type needs to run in either
// direction without re-deriving state.
type RecordData struct {
	RecurrenceID   string                    `json:"recurrenceId,omitempty"`
	RecurrenceType occurrence.RecurrenceType `json:"recurrenceType,omitempty"`
	// update-recurrence
	BeforePayload *occurrence.Payload `json:"beforePayload,omitempty"`
	AfterPayload  *occurrence.Payload `json:"afterPayload,omitempty"`
	// delete-recurrence; RestoredID is filled in when an undo recreates
	// the recurrence under a new id
	Payload    *occurrence.Payload `json:"payload,omitempty"`
	RestoredID string              `json:"restoredId,omitempty"`
}

// Record is one confirmed remote mutation, described well enough to
// invert.
type Record struct {
	Type RecordType `json:"type"`
	Data RecordData `json:"data"`
}

// persistedState is the blob shape under the fixed storage key.
type persistedState struct {
	Undo []*Record `json:"undo"`
	Redo []*Record `json:"redo"`
}

// Log is the transactional undo/redo log. Each undo/redo is an atomic
// sequence: pop, replay against the store, push to the opposite stack,
// persist; a failed replay pushes the record back where it came from,
// so the stacks never lose a record on failure.
type Log struct {
	mu     sync.Mutex
	db     *bun.DB
	remote *remote.Client
	undo   []*Record
	redo   []*Record
}

// NewLog loads the persisted stacks. Corrupt or missing state degrades
// to empty stacks, never an error.
func NewLog(db *bun.DB, remoteClient *remote.Client) *Log {
	l := &Log{db: db, remote: remoteClient}

	state := new(model.HistoryState)
	err := db.NewSelect().
		Model(state).
		Where("key = ?", model.HistoryStateKey).
		Scan(context.Background())
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return l
	case err != nil:
		slog.Warn("history: can't load persisted stacks, starting empty", "error", err)
		return l
	}

	var persisted persistedState
	if err := json.Unmarshal(state.Data, &persisted); err != nil {
		slog.Warn("history: persisted stacks are corrupt, resetting", "error", err)
		return l
	}
	l.undo = persisted.Undo
	l.redo = persisted.Redo
	return l
}

// Push records a new forward action. The redo stack is cleared
// unconditionally: linear history, no redo branches.
func (l *Log) Push(record *Record) {
	if record == nil || record.Type == "" {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.undo = append(l.undo, record)
	l.redo = nil
	l.persist()
}

// Depths reports the stack sizes.
func (l *Log) Depths() (int, int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.undo), len(l.redo)
}

// Undo replays the newest record backwards. Returns false when there
// was nothing to undo.
func (l *Log) Undo(ctx context.Context) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.undo) == 0 {
		return false, nil
	}
	record := l.undo[len(l.undo)-1]
	l.undo = l.undo[:len(l.undo)-1]

	if err := l.runUndo(ctx, record); err != nil {
		l.undo = append(l.undo, record)
		return false, fmt.Errorf("Log.Undo: %w", err)
	}
	l.redo = append(l.redo, record)
	l.persist()
	return true, nil
}

// Redo replays the newest undone record forwards. Returns false when
// there was nothing to redo.
func (l *Log) Redo(ctx context.Context) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.redo) == 0 {
		return false, nil
	}
	record := l.redo[len(l.redo)-1]
	l.redo = l.redo[:len(l.redo)-1]

	if err := l.runRedo(ctx, record); err != nil {
		l.redo = append(l.redo, record)
		return false, fmt.Errorf("Log.Redo: %w", err)
	}
	l.undo = append(l.undo, record)
	l.persist()
	return true, nil
}

func (l *Log) runUndo(ctx context.Context, record *Record) error {
	switch record.Type {
	case RECORD_TYPE_UPDATE_RECURRENCE:
		if record.Data.RecurrenceID == "" || record.Data.BeforePayload == nil {
			return fmt.Errorf("runUndo: update record is missing its before payload")
		}
		return l.remote.UpdateRecurrence(ctx, record.Data.RecurrenceID, record.Data.RecurrenceType, record.Data.BeforePayload)
	case RECORD_TYPE_DELETE_RECURRENCE:
		if record.Data.Payload == nil {
			return fmt.Errorf("runUndo: delete record is missing its payload")
		}
		created, err := l.remote.CreateRecurrence(ctx, record.Data.RecurrenceType, record.Data.Payload)
		if err != nil {
			return err
		}
		// the record mutates in place so a later redo targets the id
		// the store actually assigned
		record.Data.RestoredID = created.ID
		l.persist()
		return nil
	default:
		return fmt.Errorf("runUndo: unknown record type %q", record.Type)
	}
}

func (l *Log) runRedo(ctx context.Context, record *Record) error {
	switch record.Type {
	case RECORD_TYPE_UPDATE_RECURRENCE:
		if record.Data.RecurrenceID == "" || record.Data.AfterPayload == nil {
			return fmt.Errorf("runRedo: update record is missing its after payload")
		}
		return l.remote.UpdateRecurrence(ctx, record.Data.RecurrenceID, record.Data.RecurrenceType, record.Data.AfterPayload)
	case RECORD_TYPE_DELETE_RECURRENCE:
		targetID := record.Data.RecurrenceID
		if record.Data.RestoredID != "" {
			targetID = record.Data.RestoredID
		}
		if targetID == "" {
			return fmt.Errorf("runRedo: delete record has no target id")
		}
		return l.remote.DeleteRecurrence(ctx, targetID)
	default:
		return fmt.Errorf("runRedo: unknown record type %q", record.Type)
	}
}

// persist writes the stacks under the fixed key. Persistence failures
// are logged, not fatal: the in-memory stacks stay authoritative for
// the session.
func (l *Log) persist() {
	data, err := json.Marshal(persistedState{Undo: l.undo, Redo: l.redo})
	if err != nil {
		slog.Warn("history: can't marshal stacks", "error", err)
		return
	}
	state := model.HistoryState{
		Key:  model.HistoryStateKey,
		Data: data,
	}
	if err := state.Upsert(context.Background(), l.db); err != nil {
		slog.Warn("history: can't persist stacks", "error", err)
	}
}

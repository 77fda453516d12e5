package recordstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"fatorch/internal/model"
)

// Tx buffers record writes/deletes until Commit persists them atomically:
// encode ops to a WAL, fsync (commit point), apply file writes, update the
// SQLite index, then truncate the WAL. A crash between steps is repaired
// by the next Open or
// Begin, which replays any committed-but-unapplied WAL.
type Tx struct {
	store  *Store
	ops    map[string]walOp // keyed by "test_tag/channel_id", last op wins
	closed bool
}

// Begin starts a write transaction. The store's internal mutex stands in
// for a flock-based WAL lock (see DESIGN.md) since record persistence has
// a single in-process writer (the save_queued worker and save_direct
// callers share one Store).
func (s *Store) Begin(ctx context.Context) (*Tx, error) {
	if s == nil || s.sql == nil || s.wal == nil {
		return nil, ErrStoreClosed
	}

	s.mu.Lock()

	err := s.recoverWalLocked(ctx)
	if err != nil {
		s.mu.Unlock()

		return nil, fmt.Errorf("begin: %w", err)
	}

	return &Tx{store: s, ops: make(map[string]walOp)}, nil
}

// Put buffers a channel snapshot write, keyed by (channel.TestTag,
// channel.ID). Channels without a TestTag cannot be persisted: every
// record lives under a batch's test_tag.
func (tx *Tx) Put(c *model.Channel, savedAt time.Time) error {
	if tx.closed {
		return errors.New("put: transaction closed")
	}

	if c.TestTag == "" {
		return fmt.Errorf("put: channel %s has no test_tag", c.ID)
	}

	data, err := encodeChannelJSON(c)
	if err != nil {
		return fmt.Errorf("put: %w", err)
	}

	id, err := uuid.NewV7()
	if err != nil {
		return fmt.Errorf("put: generate row id: %w", err)
	}

	key := c.TestTag + "/" + c.ID
	tx.ops[key] = walOp{
		ID:        id.String(),
		Op:        walOpPut,
		TestTag:   c.TestTag,
		ChannelID: c.ID,
		Path:      recordPath(c.TestTag, c.ID),
		SavedAt:   savedAt.Unix(),
		Data:      data,
	}

	return nil
}

// Delete buffers removal of a single channel's record.
func (tx *Tx) Delete(testTag, channelID string) error {
	if tx.closed {
		return errors.New("delete: transaction closed")
	}

	id, err := uuid.NewV7()
	if err != nil {
		return fmt.Errorf("delete: generate row id: %w", err)
	}

	key := testTag + "/" + channelID
	tx.ops[key] = walOp{
		ID:        id.String(),
		Op:        walOpDelete,
		TestTag:   testTag,
		ChannelID: channelID,
		Path:      recordPath(testTag, channelID),
	}

	return nil
}

// Commit persists every buffered op: WAL write+fsync, filesystem apply,
// SQLite index update, WAL truncate. It always releases the store mutex.
func (tx *Tx) Commit(ctx context.Context) error {
	if tx.closed {
		return errors.New("commit: transaction closed")
	}

	tx.closed = true
	defer tx.store.mu.Unlock()

	if len(tx.ops) == 0 {
		return nil
	}

	ops := make([]walOp, 0, len(tx.ops))
	for _, op := range tx.ops {
		ops = append(ops, op)
	}

	err := tx.store.writeWAL(ops)
	if err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	err = tx.store.replayWalOpsToFS(ctx, ops)
	if err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	err = tx.store.updateIndexFromOps(ctx, ops)
	if err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	return truncateWal(tx.store.wal)
}

// Rollback discards buffered ops and releases the store mutex. Safe to call
// more than once.
func (tx *Tx) Rollback() {
	if tx.closed {
		return
	}

	tx.closed = true
	tx.ops = nil
	tx.store.mu.Unlock()
}

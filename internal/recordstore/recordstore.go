package recordstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"fatorch/internal/model"
)

// DefaultDedupWindow matches the documented 5-minute default; callers
// override via config.Config.DedupWindow.
const DefaultDedupWindow = 5 * time.Minute

// saveTask is one unit of queued work.
type saveTask struct {
	channel *model.Channel
	savedAt time.Time
}

// Manager is the C8 Record Store API consumed by internal/scheduler and
// internal/manualtest (through their own narrow Saver seams) and by
// internal/batch/internal/cli for restore/delete/list_batches. It wraps a
// Store with a single-serial-worker queue.
type Manager struct {
	store       *Store
	dedupWindow time.Duration

	mu       sync.Mutex
	queue    chan saveTask
	wg       sync.WaitGroup
	cancel   context.CancelFunc
	closed   bool
}

// queueDepth bounds the save_queued backlog; a full queue means callers
// are producing terminal channels faster than one serial worker can
// persist them, which should surface as backpressure rather than an
// unbounded goroutine pile-up.
const queueDepth = 256

// NewManager opens (or creates) the record store at dir and starts its
// single serial save worker. dedupWindow <= 0 uses DefaultDedupWindow.
func NewManager(ctx context.Context, dir string, dedupWindow time.Duration) (*Manager, error) {
	store, err := Open(ctx, dir)
	if err != nil {
		return nil, fmt.Errorf("recordstore: %w", err)
	}

	if dedupWindow <= 0 {
		dedupWindow = DefaultDedupWindow
	}

	workerCtx, cancel := context.WithCancel(context.Background())

	m := &Manager{
		store:       store,
		dedupWindow: dedupWindow,
		queue:       make(chan saveTask, queueDepth),
		cancel:      cancel,
	}

	m.wg.Add(1)

	go m.worker(workerCtx)

	return m, nil
}

// SaveQueued enqueues a save on the single serial worker. It deduplicates
// per channel.ID within the configured window by comparing the channel's
// current final_time to the last-saved final_time for that
// (test_tag, channel_id): an identical final_time within the window means
// this is a re-delivery of the same terminal state, not a new one, so it's
// dropped rather than re-persisted.
//
// SaveQueued never blocks the caller on disk I/O; if the queue is full the
// task is dropped without any signal to the caller (SaveQueued returns
// nothing) — a later retest or manual confirm will re-attempt the save.
func (m *Manager) SaveQueued(channel *model.Channel) {
	if channel == nil {
		return
	}

	snapshot := channel.Clone()

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return
	}

	select {
	case m.queue <- saveTask{channel: snapshot, savedAt: time.Now()}:
	default:
		// Backlog full: drop. A subsequent terminal transition (retest,
		// re-confirm) will enqueue again.
	}
}

func (m *Manager) worker(ctx context.Context) {
	defer m.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case task, ok := <-m.queue:
			if !ok {
				return
			}

			m.saveDedup(ctx, task)
		}
	}
}

func (m *Manager) saveDedup(ctx context.Context, task saveTask) {
	c := task.channel

	dup, err := m.isDuplicate(ctx, c)
	if err != nil || dup {
		return
	}

	_ = m.writeRecord(ctx, c, task.savedAt)
}

// isDuplicate reports whether c's final_time matches the last-persisted
// final_time for this (test_tag, channel_id) within dedupWindow. The
// comparison is at whole-second granularity, matching the precision
// final_time is actually persisted at (channelToRow stores Unix
// seconds), so a sub-second in-memory final_time still dedupes against
// its own previously-saved row.
func (m *Manager) isDuplicate(ctx context.Context, c *model.Channel) (bool, error) {
	if c.FinalTime == nil {
		return false, nil
	}

	last, found, err := lastFinalTime(ctx, m.store.sql, c.TestTag, c.ID)
	if err != nil {
		return false, err
	}

	if !found || !last.Valid {
		return false, nil
	}

	lastTime := time.Unix(last.Int64, 0)
	if lastTime.Unix() == c.FinalTime.Unix() && time.Since(lastTime) <= m.dedupWindow {
		return true, nil
	}

	return false, nil
}

// SaveDirect persists a channel synchronously, for manual-test completions
// where throughput is low enough that queueing adds no value.
func (m *Manager) SaveDirect(ctx context.Context, channel *model.Channel) error {
	return m.writeRecord(ctx, channel, time.Now())
}

func (m *Manager) writeRecord(ctx context.Context, channel *model.Channel, savedAt time.Time) error {
	tx, err := m.store.Begin(ctx)
	if err != nil {
		return fmt.Errorf("recordstore: save: %w", err)
	}

	err = tx.Put(channel, savedAt)
	if err != nil {
		tx.Rollback()

		return fmt.Errorf("recordstore: save: %w", err)
	}

	err = tx.Commit(ctx)
	if err != nil {
		return fmt.Errorf("recordstore: save: %w", err)
	}

	return nil
}

// Restore returns every channel saved under testTag, replacing the
// orchestrator's in-memory set.
func (m *Manager) Restore(ctx context.Context, testTag string) ([]*model.Channel, error) {
	paths, err := pathsForTag(ctx, m.store.sql, testTag)
	if err != nil {
		return nil, fmt.Errorf("recordstore: restore %s: %w", testTag, err)
	}

	if len(paths) == 0 {
		return nil, fmt.Errorf("recordstore: restore %s: %w", testTag, ErrRecordNotFound)
	}

	channels := make([]*model.Channel, 0, len(paths))

	for _, rel := range paths {
		data, err := os.ReadFile(filepath.Join(m.store.dir, rel))
		if err != nil {
			return nil, fmt.Errorf("recordstore: restore %s: read %s: %w", testTag, rel, err)
		}

		c, err := decodeChannelJSON(data)
		if err != nil {
			return nil, fmt.Errorf("recordstore: restore %s: %w", testTag, err)
		}

		channels = append(channels, c)
	}

	return channels, nil
}

// Delete removes every record under testTag, both from the SQLite index
// and the on-disk JSON tree.
func (m *Manager) Delete(ctx context.Context, testTag string) error {
	ids, err := channelIDsForTag(ctx, m.store.sql, testTag)
	if err != nil {
		return fmt.Errorf("recordstore: delete %s: %w", testTag, err)
	}

	if len(ids) == 0 {
		return nil
	}

	tx, err := m.store.Begin(ctx)
	if err != nil {
		return fmt.Errorf("recordstore: delete %s: %w", testTag, err)
	}

	for _, id := range ids {
		err = tx.Delete(testTag, id)
		if err != nil {
			tx.Rollback()

			return fmt.Errorf("recordstore: delete %s: %w", testTag, err)
		}
	}

	err = tx.Commit(ctx)
	if err != nil {
		return fmt.Errorf("recordstore: delete %s: %w", testTag, err)
	}

	_ = os.Remove(filepath.Join(m.store.dir, sanitizeComponent(testTag)))

	return nil
}

// ListBatches returns every distinct test_tag with at least one saved
// record, most-recently-saved first.
func (m *Manager) ListBatches(ctx context.Context) ([]string, error) {
	tags, err := listDistinctTags(ctx, m.store.sql)
	if err != nil {
		return nil, fmt.Errorf("recordstore: list_batches: %w", err)
	}

	return tags, nil
}

// Reindex rebuilds the SQLite index from the on-disk JSON tree. Operators
// reach for this after restoring a record directory from backup, or if the
// index is suspected stale.
func (m *Manager) Reindex(ctx context.Context) (int, error) {
	return m.store.Reindex(ctx)
}

// Close stops the save worker, draining any in-flight task, then closes
// the underlying Store.
func (m *Manager) Close() error {
	m.mu.Lock()

	if m.closed {
		m.mu.Unlock()

		return nil
	}

	m.closed = true
	close(m.queue)
	m.mu.Unlock()

	m.wg.Wait()
	m.cancel()

	return m.store.Close()
}

package recordstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/calvinalkan/fileproc"
	"github.com/google/uuid"
)

// Reindex rebuilds the SQLite index from the on-disk JSON tree, used when
// the schema version is stale or the index is suspected corrupt. Mirrors
// the shape of a WAL-backed reindex, minus the cross-process lock (see
// DESIGN.md for why that isn't needed here).
func (s *Store) Reindex(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.reindexLocked(ctx)
}

func (s *Store) reindexLocked(ctx context.Context) (int, error) {
	err := s.recoverWalLocked(ctx)
	if err != nil {
		return 0, err
	}

	entries, err := scanRecordFiles(ctx, s.dir)
	if err != nil {
		return 0, err
	}

	return s.rebuildIndex(ctx, entries)
}

type scannedRecord struct {
	path string
	row  indexRow
}

// scanRecordFiles walks the record tree for *.json files using fileproc's
// parallel directory scan and parses each into an index row.
func scanRecordFiles(ctx context.Context, root string) ([]scannedRecord, error) {
	opts := fileproc.Options{
		Recursive: true,
		Suffix:    ".json",
		OnError: func(err error, _, _ int) bool {
			return !errors.Is(err, errSkipIndexDir)
		},
	}

	results, errs := fileproc.ProcessStat(ctx, root, func(path []byte, st fileproc.Stat, f fileproc.LazyFile) (*scannedRecord, error) {
		if hasIndexPrefix(path) {
			return nil, errSkipIndexDir
		}

		data, err := io.ReadAll(f)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}

		channel, err := decodeChannelJSON(data)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}

		rel := string(path)

		id, err := uuid.NewV7()
		if err != nil {
			return nil, fmt.Errorf("generate row id for %s: %w", rel, err)
		}

		return &scannedRecord{
			path: rel,
			row:  channelToRow(id.String(), rel, channel, st.ModTime/int64(1e9)),
		}, nil
	}, opts)

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	out := make([]scannedRecord, 0, len(results))

	for _, r := range results {
		if r.Value != nil {
			out = append(out, *r.Value)
		}
	}

	return out, nil
}

var errSkipIndexDir = errors.New("recordstore: skip index directory")

func hasIndexPrefix(path []byte) bool {
	p := filepath.ToSlash(string(path))

	return strings.HasPrefix(p, ".fatorch-index/")
}

func (s *Store) rebuildIndex(ctx context.Context, entries []scannedRecord) (int, error) {
	tx, err := s.sql.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return 0, fmt.Errorf("begin rebuild txn: %w", err)
	}

	committed := false

	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	err = dropAndRecreateSchema(ctx, tx)
	if err != nil {
		return 0, err
	}

	for _, e := range entries {
		err = upsertRecord(ctx, tx, e.row)
		if err != nil {
			return 0, err
		}
	}

	_, err = tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion))
	if err != nil {
		return 0, fmt.Errorf("set user_version: %w", err)
	}

	err = tx.Commit()
	if err != nil {
		return 0, fmt.Errorf("commit rebuild txn: %w", err)
	}

	committed = true

	return len(entries), nil
}

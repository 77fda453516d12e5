// Package recordstore implements the Record Store (C8): serializes
// terminal channel snapshots keyed by (test_tag, channel.id), with a
// queued async save path (deduplicated within a configurable window) and a
// synchronous path for low-throughput manual-test completions. Follows a
// WAL+SQLite engine shape (tx.go's begin/put/commit/replay sequence,
// wal.go's footer/CRC framing, store.go's Open/Close/Get shape,
// reindex.go's fileproc-driven rebuild), applied here to per-channel JSON
// snapshots — there is no human-edited text format to preserve, so the
// frontmatter/body split a ticket-style store needs is dropped in favor of a
// single JSON blob per record.
package recordstore

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"hash/crc32"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Store wires the on-disk JSON record tree together with its SQLite index
// and WAL.
type Store struct {
	dir string
	sql *sql.DB
	wal *os.File
	mu  sync.Mutex
}

// Open initializes the record store rooted at dir (typically
// config.Config.RecordDirAbs). If the SQLite schema version doesn't match
// or the WAL has pending entries, it recovers/reindexes before returning.
func Open(ctx context.Context, dir string) (*Store, error) {
	if dir == "" {
		return nil, errors.New("open: directory is empty")
	}

	root := filepath.Clean(dir)

	err := os.MkdirAll(root, 0o750)
	if err != nil {
		return nil, fmt.Errorf("open: create record dir: %w", err)
	}

	metaDir := filepath.Join(root, ".fatorch-index")

	err = os.MkdirAll(metaDir, 0o750)
	if err != nil {
		return nil, fmt.Errorf("open: create index dir: %w", err)
	}

	walPath := filepath.Join(metaDir, "wal")

	walFile, err := os.OpenFile(walPath, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open: open wal: %w", err)
	}

	db, err := openSqlite(ctx, filepath.Join(metaDir, "index.sqlite"))
	if err != nil {
		_ = walFile.Close()

		return nil, fmt.Errorf("open: %w", err)
	}

	s := &Store{dir: root, sql: db, wal: walFile}

	version, err := storedSchemaVersion(ctx, db)
	if err != nil {
		_ = s.Close()

		return nil, fmt.Errorf("open: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if version != currentSchemaVersion {
		_, err = s.reindexLocked(ctx)
		if err != nil {
			_ = s.closeLocked()

			return nil, fmt.Errorf("open: %w", err)
		}

		return s, nil
	}

	err = s.recoverWalLocked(ctx)
	if err != nil {
		_ = s.closeLocked()

		return nil, fmt.Errorf("open: %w", err)
	}

	return s, nil
}

// Close releases the SQLite and WAL handles. Idempotent; safe on nil.
func (s *Store) Close() error {
	if s == nil {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.closeLocked()
}

func (s *Store) closeLocked() error {
	var errs []error

	if s.sql != nil {
		if err := s.sql.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close sqlite: %w", err))
		}

		s.sql = nil
	}

	if s.wal != nil {
		if err := s.wal.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close wal: %w", err))
		}

		s.wal = nil
	}

	return errors.Join(errs...)
}

// writeWAL encodes ops to JSONL, appends the CRC footer, and fsyncs — the
// commit point after which replay is idempotent on crash recovery.
func (s *Store) writeWAL(ops []walOp) error {
	var body strings.Builder

	enc := json.NewEncoder(&body)

	for _, op := range ops {
		if err := enc.Encode(op); err != nil {
			return fmt.Errorf("encode wal op: %w", err)
		}
	}

	bodyBytes := []byte(body.String())
	footer := encodeFooter(bodyBytes)

	_, err := s.wal.WriteAt(append(bodyBytes, footer...), 0)
	if err != nil {
		return fmt.Errorf("write wal: %w", err)
	}

	err = s.wal.Truncate(int64(len(bodyBytes) + len(footer)))
	if err != nil {
		return fmt.Errorf("truncate wal to size: %w", err)
	}

	return s.wal.Sync()
}

func encodeFooter(body []byte) []byte {
	footer := make([]byte, walFooterSize)
	copy(footer[:8], walMagic)

	bodyLen := uint64(len(body))
	binary.LittleEndian.PutUint64(footer[8:16], bodyLen)
	binary.LittleEndian.PutUint64(footer[16:24], ^bodyLen)

	crc := crc32.Checksum(body, walCRC32C)
	binary.LittleEndian.PutUint32(footer[24:28], crc)
	binary.LittleEndian.PutUint32(footer[28:32], ^crc)

	return footer
}

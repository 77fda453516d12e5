package recordstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3" // sqlite3 driver
)

// currentSchemaVersion is stored in SQLite's user_version pragma. A
// mismatch (e.g. after a format change) triggers a full reindex from the
// on-disk JSON tree on Open.
const currentSchemaVersion = 1

const sqliteBusyTimeoutMS = 10000

func openSqlite(ctx context.Context, path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	err = db.PingContext(ctx)
	if err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	_, err = db.ExecContext(ctx, fmt.Sprintf(`
		PRAGMA busy_timeout = %d;
		PRAGMA journal_mode = WAL;
		PRAGMA synchronous = FULL;
	`, sqliteBusyTimeoutMS))
	if err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("apply pragmas: %w", err)
	}

	return db, nil
}

func storedSchemaVersion(ctx context.Context, db *sql.DB) (int, error) {
	var version int

	err := db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("read user_version: %w", err)
	}

	return version, nil
}

func dropAndRecreateSchema(ctx context.Context, tx *sql.Tx) error {
	statements := []string{
		"DROP TABLE IF EXISTS records",
		`CREATE TABLE records (
			record_id      TEXT NOT NULL,
			test_tag       TEXT NOT NULL,
			channel_id     TEXT NOT NULL,
			path           TEXT NOT NULL,
			overall_status TEXT NOT NULL,
			final_time     INTEGER,
			saved_at       INTEGER NOT NULL,
			PRIMARY KEY (test_tag, channel_id)
		) WITHOUT ROWID`,
		"CREATE INDEX idx_records_test_tag ON records(test_tag)",
		"CREATE INDEX idx_records_saved_at ON records(saved_at)",
	}

	for i, stmt := range statements {
		_, err := tx.ExecContext(ctx, stmt)
		if err != nil {
			return fmt.Errorf("schema statement %d: %w", i+1, err)
		}
	}

	return nil
}

// indexRow is what the records table stores per channel snapshot. RecordID
// is the WAL op's UUIDv7 (or a freshly minted one, for rows rebuilt by
// Reindex from the on-disk tree) — a stable row identity independent of
// the (test_tag, channel_id) key a retest can reuse.
type indexRow struct {
	RecordID      string
	TestTag       string
	ChannelID     string
	Path          string
	OverallStatus string
	FinalTimeUnix sql.NullInt64
	SavedAtUnix   int64
}

func upsertRecord(ctx context.Context, tx *sql.Tx, row indexRow) error {
	_, err := tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO records
			(record_id, test_tag, channel_id, path, overall_status, final_time, saved_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		row.RecordID, row.TestTag, row.ChannelID, row.Path, row.OverallStatus, row.FinalTimeUnix, row.SavedAtUnix,
	)
	if err != nil {
		return fmt.Errorf("upsert record %s/%s: %w", row.TestTag, row.ChannelID, err)
	}

	return nil
}

func deleteRecord(ctx context.Context, tx *sql.Tx, testTag, channelID string) error {
	_, err := tx.ExecContext(ctx, "DELETE FROM records WHERE test_tag = ? AND channel_id = ?", testTag, channelID)
	if err != nil {
		return fmt.Errorf("delete record %s/%s: %w", testTag, channelID, err)
	}

	return nil
}

// updateIndexFromOps applies WAL ops to the SQLite index in one transaction.
func (s *Store) updateIndexFromOps(ctx context.Context, ops []walOp) error {
	tx, err := s.sql.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin index txn: %w", err)
	}

	committed := false

	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	for _, op := range ops {
		switch op.Op {
		case walOpDelete:
			err = deleteRecord(ctx, tx, op.TestTag, op.ChannelID)
		case walOpPut:
			channel, decodeErr := decodeChannelJSON(op.Data)
			if decodeErr != nil {
				return fmt.Errorf("decode snapshot %s/%s: %w", op.TestTag, op.ChannelID, decodeErr)
			}

			err = upsertRecord(ctx, tx, channelToRow(op.ID, op.Path, channel, op.SavedAt))
		default:
			err = fmt.Errorf("unknown op %q", op.Op)
		}

		if err != nil {
			return err
		}
	}

	err = tx.Commit()
	if err != nil {
		return fmt.Errorf("commit index txn: %w", err)
	}

	committed = true

	return nil
}

// channelIDsForTag returns every channel_id indexed under testTag.
func channelIDsForTag(ctx context.Context, db *sql.DB, testTag string) ([]string, error) {
	rows, err := db.QueryContext(ctx, "SELECT channel_id FROM records WHERE test_tag = ? ORDER BY channel_id", testTag)
	if err != nil {
		return nil, fmt.Errorf("query channel ids: %w", err)
	}

	defer func() { _ = rows.Close() }()

	var ids []string

	for rows.Next() {
		var id string

		err = rows.Scan(&id)
		if err != nil {
			return nil, fmt.Errorf("scan channel id: %w", err)
		}

		ids = append(ids, id)
	}

	return ids, errors.Join(rows.Err())
}

func pathsForTag(ctx context.Context, db *sql.DB, testTag string) ([]string, error) {
	rows, err := db.QueryContext(ctx, "SELECT path FROM records WHERE test_tag = ? ORDER BY channel_id", testTag)
	if err != nil {
		return nil, fmt.Errorf("query paths: %w", err)
	}

	defer func() { _ = rows.Close() }()

	var paths []string

	for rows.Next() {
		var p string

		err = rows.Scan(&p)
		if err != nil {
			return nil, fmt.Errorf("scan path: %w", err)
		}

		paths = append(paths, p)
	}

	return paths, errors.Join(rows.Err())
}

func listDistinctTags(ctx context.Context, db *sql.DB) ([]string, error) {
	rows, err := db.QueryContext(ctx, "SELECT test_tag FROM records GROUP BY test_tag ORDER BY MAX(saved_at) DESC, test_tag")
	if err != nil {
		return nil, fmt.Errorf("query test tags: %w", err)
	}

	defer func() { _ = rows.Close() }()

	var tags []string

	for rows.Next() {
		var tag string

		err = rows.Scan(&tag)
		if err != nil {
			return nil, fmt.Errorf("scan test tag: %w", err)
		}

		tags = append(tags, tag)
	}

	return tags, errors.Join(rows.Err())
}

// lastFinalTime returns the final_time previously saved for a channel, used
// by save_queued's dedup window comparison. Returns (zero, false) if unseen.
func lastFinalTime(ctx context.Context, db *sql.DB, testTag, channelID string) (sql.NullInt64, bool, error) {
	var ft sql.NullInt64

	err := db.QueryRowContext(ctx, "SELECT final_time FROM records WHERE test_tag = ? AND channel_id = ?", testTag, channelID).Scan(&ft)
	if errors.Is(err, sql.ErrNoRows) {
		return sql.NullInt64{}, false, nil
	}

	if err != nil {
		return sql.NullInt64{}, false, fmt.Errorf("query last final_time: %w", err)
	}

	return ft, true, nil
}

package recordstore

import "errors"

// ErrWALCorrupt reports a committed WAL whose checksum no longer matches its
// body. Callers should use errors.Is(err, ErrWALCorrupt).
var ErrWALCorrupt = errors.New("recordstore: wal corrupt")

// ErrWALReplay reports WAL validation or replay failures.
var ErrWALReplay = errors.New("recordstore: wal replay")

// ErrRecordNotFound is returned by Restore/Get when no record matches.
var ErrRecordNotFound = errors.New("recordstore: record not found")

// ErrStoreClosed is returned by any operation on a closed Store.
var ErrStoreClosed = errors.New("recordstore: store is closed")

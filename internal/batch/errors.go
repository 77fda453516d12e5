package batch

import "errors"

var (
	ErrBatchNotFound     = errors.New("batch not found")
	ErrBatchAlreadyExists = errors.New("batch already exists")
	ErrBatchBusy         = errors.New("batch has a test run in progress")
	ErrIllegalTransition = errors.New("illegal batch transition")
)

package manualtest

import "errors"

var (
	ErrSessionInProgress = errors.New("manual test session already in progress")
	ErrNoActiveSession   = errors.New("no manual test session is open")
	ErrCaptureIncomplete = errors.New("all five checkpoints must be captured before confirming show_value")
	ErrWrongModuleType   = errors.New("command not applicable to this channel's module type")
)

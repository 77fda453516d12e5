package cli

import "errors"

// ErrArgRequired is returned by commands invoked without their required
// positional arguments, following the sentinel-per-concern style of
// internal/channelstate/errors.go.
var ErrArgRequired = errors.New("missing required argument")

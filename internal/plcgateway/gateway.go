// Package plcgateway implements the PLC Gateway (C2): an abstract
// synchronous-blocking read/write contract for one analog or digital
// register. The real transport (Modbus/S7/OPC) is out of scope — it is
// "consumed" through this narrow interface. This package follows the
// seam shape of pkg/fs.FS (a narrow interface with a real implementation
// and a fault-injecting one for tests), adapted from file I/O to register
// I/O.
package plcgateway

import (
	"context"
	"errors"
	"fmt"
)

// ErrorKind classifies a Gateway failure.
type ErrorKind string

const (
	KindTransport      ErrorKind = "transport"
	KindTimeout        ErrorKind = "timeout"
	KindProtocol       ErrorKind = "protocol"
	KindValueOutOfRange ErrorKind = "value_out_of_range"
)

// Error wraps a Gateway failure with its kind, so callers can classify it
// without string matching.
type Error struct {
	Kind    ErrorKind
	Addr    string
	Op      string
	Wrapped error
}

func (e *Error) Error() string {
	return fmt.Sprintf("plcgateway: %s %s: %s: %v", e.Op, e.Addr, e.Kind, e.Wrapped)
}

func (e *Error) Unwrap() error { return e.Wrapped }

// Is supports errors.Is(err, plcgateway.ErrTimeout) style checks keyed on
// Kind, mirroring the sentinel-per-concern style of
// internal/ticket/errors.go generalized to a structured error.
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return e.Kind == other.Kind
	}

	return false
}

// Sentinels usable with errors.Is to match on kind only (Addr/Op/Wrapped
// ignored by Error.Is above).
var (
	ErrTransport       = &Error{Kind: KindTransport}
	ErrTimeout         = &Error{Kind: KindTimeout}
	ErrProtocol        = &Error{Kind: KindProtocol}
	ErrValueOutOfRange = &Error{Kind: KindValueOutOfRange}
)

// Gateway is the capability set consumed by the orchestrator core:
// blocking read/write of one analog (float32) or digital (bool)
// register. Retries are not performed inside a Gateway; policy lives in
// callers (internal/hardpoint, internal/manualtest).
type Gateway interface {
	Connect(ctx context.Context) error
	IsConnected() bool
	ReadAnalog(ctx context.Context, addr string) (float32, error)
	WriteAnalog(ctx context.Context, addr string, value float32) error
	ReadDigital(ctx context.Context, addr string) (bool, error)
	WriteDigital(ctx context.Context, addr string, value bool) error
}

// Endpoint names the two bound PLC gateways.
type Endpoint string

const (
	EndpointTestPLC   Endpoint = "test_plc"
	EndpointTargetPLC Endpoint = "target_plc"
)

// Registry binds the two named endpoints to concrete Gateway
// implementations. The core never constructs a Gateway itself.
type Registry struct {
	gateways map[Endpoint]Gateway
}

// NewRegistry binds testPLC and targetPLC by name.
func NewRegistry(testPLC, targetPLC Gateway) *Registry {
	return &Registry{
		gateways: map[Endpoint]Gateway{
			EndpointTestPLC:   testPLC,
			EndpointTargetPLC: targetPLC,
		},
	}
}

// Get resolves a bound endpoint by name.
func (r *Registry) Get(ep Endpoint) (Gateway, error) {
	g, ok := r.gateways[ep]
	if !ok {
		return nil, fmt.Errorf("plcgateway: unbound endpoint: %s", ep)
	}

	return g, nil
}

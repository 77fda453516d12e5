package plcgateway

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
)

// FakeConfig controls fault injection rates for Fake, each a float64 from
// 0.0 (never) to 1.0 (always). The zero value never injects faults.
// Mirrors the shape of pkg/fs.ChaosConfig, adapted from file-I/O faults to
// register-I/O faults.
type FakeConfig struct {
	TimeoutRate   float64
	TransportRate float64
}

// Fake is an in-memory Gateway backed by two maps (analog/digital
// registers), used by internal/hardpoint and internal/manualtest tests in
// place of a real transport driver. It supports fault injection the same
// way pkg/fs.Chaos wraps a real fs.FS.
type Fake struct {
	mu        sync.Mutex
	connected bool
	analog    map[string]float32
	digital   map[string]bool
	cfg       FakeConfig
	rng       *rand.Rand
}

// NewFake creates a connected Fake with no fault injection. Use SetConfig
// to enable it and Seed/SetAnalog/SetDigital to prime register values a
// test expects to read back.
func NewFake() *Fake {
	return &Fake{
		connected: true,
		analog:    make(map[string]float32),
		digital:   make(map[string]bool),
		rng:       rand.New(rand.NewPCG(1, 2)),
	}
}

// SetConfig replaces the fault injection configuration.
func (f *Fake) SetConfig(cfg FakeConfig) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.cfg = cfg
}

// SetAnalog primes the value a subsequent ReadAnalog(addr) returns.
func (f *Fake) SetAnalog(addr string, v float32) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.analog[addr] = v
}

// SetDigital primes the value a subsequent ReadDigital(addr) returns.
func (f *Fake) SetDigital(addr string, v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.digital[addr] = v
}

func (f *Fake) Connect(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.connected = true

	return nil
}

func (f *Fake) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.connected
}

func (f *Fake) injectedErr(op, addr string) error {
	if f.cfg.TimeoutRate > 0 && f.rng.Float64() < f.cfg.TimeoutRate {
		return &Error{Kind: KindTimeout, Addr: addr, Op: op, Wrapped: fmt.Errorf("simulated timeout")}
	}

	if f.cfg.TransportRate > 0 && f.rng.Float64() < f.cfg.TransportRate {
		return &Error{Kind: KindTransport, Addr: addr, Op: op, Wrapped: fmt.Errorf("simulated transport failure")}
	}

	return nil
}

func (f *Fake) ReadAnalog(ctx context.Context, addr string) (float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.injectedErr("read_analog", addr); err != nil {
		return 0, err
	}

	return f.analog[addr], nil
}

func (f *Fake) WriteAnalog(ctx context.Context, addr string, value float32) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.injectedErr("write_analog", addr); err != nil {
		return err
	}

	f.analog[addr] = value

	return nil
}

func (f *Fake) ReadDigital(ctx context.Context, addr string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.injectedErr("read_digital", addr); err != nil {
		return false, err
	}

	return f.digital[addr], nil
}

func (f *Fake) WriteDigital(ctx context.Context, addr string, value bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.injectedErr("write_digital", addr); err != nil {
		return err
	}

	f.digital[addr] = value

	return nil
}

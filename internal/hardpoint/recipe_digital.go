package hardpoint

import (
	"context"

	"fatorch/internal/model"
	"fatorch/internal/plcgateway"
)

// runDI is the DI recipe: write true to the test PLC, settle, read the
// target PLC (applying wire_system negation if the NC policy is
// enabled); then write false, read again. Pass iff both polarities are
// observed correctly.
func (e *Executor) runDI(ctx context.Context, c *model.Channel, susp Suspension) (*Verdict, error) {
	testPLC, err := e.registry.Get(plcgateway.EndpointTestPLC)
	if err != nil {
		return nil, err
	}

	targetPLC, err := e.registry.Get(plcgateway.EndpointTargetPLC)
	if err != nil {
		return nil, err
	}

	log, cancelled := e.sweepDigital(ctx, c, susp, testPLC, c.TestAddress, targetPLC, c.TargetAddress, true)

	resetErr := e.resetDigital(testPLC, c.TestAddress)

	result := model.HardPointPassed
	if !allPassed(log) {
		result = model.HardPointFailed
	}

	return finalizeVerdict(result, detailFromLog(log), log, resetErr, cancelled, e.params.ResetFailureIsFatal), nil
}

// runDO is the DO recipe: symmetric to DI — the target PLC emits, the
// test PLC observes.
func (e *Executor) runDO(ctx context.Context, c *model.Channel, susp Suspension) (*Verdict, error) {
	testPLC, err := e.registry.Get(plcgateway.EndpointTestPLC)
	if err != nil {
		return nil, err
	}

	targetPLC, err := e.registry.Get(plcgateway.EndpointTargetPLC)
	if err != nil {
		return nil, err
	}

	log, cancelled := e.sweepDigital(ctx, c, susp, targetPLC, c.TargetAddress, testPLC, c.TestAddress, false)

	resetErr := e.resetDigital(targetPLC, c.TargetAddress)

	result := model.HardPointPassed
	if !allPassed(log) {
		result = model.HardPointFailed
	}

	return finalizeVerdict(result, detailFromLog(log), log, resetErr, cancelled, e.params.ResetFailureIsFatal), nil
}

// sweepDigital drives both polarities (true then false) and reads each
// back, applying wire_system negation for DI (invertForWiring) when the
// channel is normally_closed and the policy flag is enabled.
func (e *Executor) sweepDigital(ctx context.Context, c *model.Channel, susp Suspension, writeGW plcgateway.Gateway, writeAddr string, readGW plcgateway.Gateway, readAddr string, invertForWiring bool) ([]CheckpointLog, bool) {
	log := make([]CheckpointLog, 0, 2)
	writeErrs, readErrs := 0, 0 // consecutive transport errors per endpoint

	for _, stimulus := range []bool{true, false} {
		label := "false"
		if stimulus {
			label = "true"
		}

		entry := CheckpointLog{Label: label}

		if err := susp.CheckPoint(ctx); err != nil {
			entry.Err = err
			log = append(log, entry)

			return log, true
		}

		if err := writeGW.WriteDigital(ctx, writeAddr, stimulus); err != nil {
			entry.Err = err
			log = append(log, entry)

			if isCancelled(err) {
				return log, true
			}

			writeErrs++
			if writeErrs >= unrecoverableAfter {
				return log, false
			}

			continue
		}

		writeErrs = 0

		if err := susp.CheckPoint(ctx); err != nil {
			entry.Err = err
			log = append(log, entry)

			return log, true
		}

		if err := sleepCancellable(ctx, e.params.Settle); err != nil {
			entry.Err = err
			log = append(log, entry)

			return log, true
		}

		if err := susp.CheckPoint(ctx); err != nil {
			entry.Err = err
			log = append(log, entry)

			return log, true
		}

		observed, err := readGW.ReadDigital(ctx, readAddr)
		if err != nil {
			entry.Err = err
			log = append(log, entry)

			if isCancelled(err) {
				return log, true
			}

			readErrs++
			if readErrs >= unrecoverableAfter {
				return log, false
			}

			continue
		}

		readErrs = 0

		expected := stimulus
		if invertForWiring && c.WireSystem == model.WireNormallyClosed && e.params.InvertNormallyClosed {
			expected = !expected
		}

		entry.Passed = observed == expected

		if observed {
			entry.Observed = 1
		}

		if expected {
			entry.Expected = 1
		}

		log = append(log, entry)
	}

	return log, false
}

func (e *Executor) resetDigital(gw plcgateway.Gateway, addr string) error {
	ctx, cancel := context.WithTimeout(context.Background(), e.params.ResetTimeout)
	defer cancel()

	return gw.WriteDigital(ctx, addr, false)
}

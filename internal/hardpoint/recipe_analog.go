package hardpoint

import (
	"context"
	"fmt"

	"fatorch/internal/convert"
	"fatorch/internal/model"
	"fatorch/internal/plcgateway"
)

// analogCheckpoints are the sweep percentages for AI/AO, per the
// §4.4.
var analogCheckpoints = []float64{0, 25, 50, 75, 100}

// runAI stimulates the test PLC and reads the target PLC, per the
// §4.4's AI recipe.
func (e *Executor) runAI(ctx context.Context, c *model.Channel, susp Suspension) (*Verdict, error) {
	testPLC, err := e.registry.Get(plcgateway.EndpointTestPLC)
	if err != nil {
		return nil, err
	}

	targetPLC, err := e.registry.Get(plcgateway.EndpointTargetPLC)
	if err != nil {
		return nil, err
	}

	tolerance := e.params.ToleranceDefault

	log, cancelled := e.sweepAnalog(ctx, c, susp, testPLC, targetPLC, tolerance, true)

	resetErr := e.resetAnalog(testPLC, c.TestAddress)

	result := model.HardPointPassed
	if !allPassed(log) {
		result = model.HardPointFailed
	}

	return finalizeVerdict(result, detailFromLog(log), log, resetErr, cancelled, e.params.ResetFailureIsFatal), nil
}

// runAO is the AO recipe: symmetric to AI — write engineering (or
// percent, per Params.AOWritePercent) value to target_address, read from
// test_address. Tolerance 2.0%.
func (e *Executor) runAO(ctx context.Context, c *model.Channel, susp Suspension) (*Verdict, error) {
	testPLC, err := e.registry.Get(plcgateway.EndpointTestPLC)
	if err != nil {
		return nil, err
	}

	targetPLC, err := e.registry.Get(plcgateway.EndpointTargetPLC)
	if err != nil {
		return nil, err
	}

	tolerance := e.params.ToleranceAO

	// AO writes to the target and reads from the test PLC: stimulate and
	// observe roles are swapped relative to AI.
	log, cancelled := e.sweepAnalog(ctx, c, susp, targetPLC, testPLC, tolerance, false)

	resetErr := e.resetAnalog(targetPLC, c.TargetAddress)

	result := model.HardPointPassed
	if !allPassed(log) {
		result = model.HardPointFailed
	}

	return finalizeVerdict(result, detailFromLog(log), log, resetErr, cancelled, e.params.ResetFailureIsFatal), nil
}

// sweepAnalog runs the five-checkpoint AI/AO loop. aiDirection selects
// which address each gateway read/write hits: for AI, writeGW is the test
// PLC writing to c.TestAddress and readGW is the target PLC reading
// c.TargetAddress; for AO it's reversed by the caller.
func (e *Executor) sweepAnalog(ctx context.Context, c *model.Channel, susp Suspension, writeGW, readGW plcgateway.Gateway, tolerancePercent float64, aiDirection bool) ([]CheckpointLog, bool) {
	writeAddr, readAddr := c.TestAddress, c.TargetAddress
	if !aiDirection {
		writeAddr, readAddr = c.TargetAddress, c.TestAddress
	}

	log := make([]CheckpointLog, 0, len(analogCheckpoints))
	writeErrs, readErrs := 0, 0 // consecutive transport errors per endpoint

	for _, p := range analogCheckpoints {
		entry := CheckpointLog{Label: fmt.Sprintf("%.0f%%", p)}

		if err := susp.CheckPoint(ctx); err != nil {
			entry.Err = err
			log = append(log, entry)

			return log, true
		}

		writeValue := p
		if !aiDirection && !e.params.AOWritePercent {
			writeValue = convert.PercentToReal(p, c.RangeLow, c.RangeHigh)
		}

		if err := writeGW.WriteAnalog(ctx, writeAddr, float32(writeValue)); err != nil {
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

		observed, err := readGW.ReadAnalog(ctx, readAddr)
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

		expected := convert.PercentToReal(p, c.RangeLow, c.RangeHigh)
		storeCheckpoint(c, p, float64(observed))

		dev := convert.Deviation(float64(observed), expected, convert.DeviationEpsilon)

		entry.Expected = expected
		entry.Observed = float64(observed)
		entry.Deviation = dev
		entry.Passed = dev*100 <= tolerancePercent

		log = append(log, entry)

		if err := sleepCancellable(ctx, e.params.InterCheckpoint); err != nil {
			return log, true
		}
	}

	return log, false
}

func storeCheckpoint(c *model.Channel, p, v float64) {
	switch p {
	case 0:
		c.V0 = v
	case 25:
		c.V25 = v
	case 50:
		c.V50 = v
	case 75:
		c.V75 = v
	case 100:
		c.V100 = v
	}
}

func (e *Executor) resetAnalog(gw plcgateway.Gateway, addr string) error {
	ctx, cancel := context.WithTimeout(context.Background(), e.params.ResetTimeout)
	defer cancel()

	return gw.WriteAnalog(ctx, addr, 0)
}

func allPassed(log []CheckpointLog) bool {
	if len(log) == 0 {
		return false
	}

	for _, entry := range log {
		if entry.Err != nil || !entry.Passed {
			return false
		}
	}

	return true
}

func detailFromLog(log []CheckpointLog) string {
	for _, entry := range log {
		if entry.Err != nil {
			return fmt.Sprintf("%s: %v", entry.Label, entry.Err)
		}

		if !entry.Passed {
			return fmt.Sprintf("%s: deviation %.2f%% exceeds tolerance", entry.Label, entry.Deviation*100)
		}
	}

	return ""
}

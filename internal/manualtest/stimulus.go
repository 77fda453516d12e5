package manualtest

import (
	"context"
	"fmt"
	"strconv"

	"fatorch/internal/convert"
	"fatorch/internal/model"
	"fatorch/internal/plcgateway"
)

// SendDisplayValue stimulates an AI channel with an operator-entered
// engineering-unit value, written to the test PLC's stimulus address as a
// percent per the channel's range. Used for the "send display-value"
// command for manual testing.
func (co *Coordinator) SendDisplayValue(ctx context.Context, c *model.Channel, engineeringValue float64) error {
	if c.ModuleType.Base() != model.ModuleAI {
		return fmt.Errorf("%w: send_display_value is AI-only", ErrWrongModuleType)
	}

	testPLC, err := co.registry.Get(plcgateway.EndpointTestPLC)
	if err != nil {
		return err
	}

	pct := convert.RealToPercent(engineeringValue, c.RangeLow, c.RangeHigh)

	return testPLC.WriteAnalog(ctx, c.TestAddress, float32(pct))
}

// SendAlarm stimulates an AI channel at item's threshold plus the
// AlarmMargin offset, to trip the alarm under test.
func (co *Coordinator) SendAlarm(ctx context.Context, c *model.Channel, item model.SubItem) error {
	if c.ModuleType.Base() != model.ModuleAI {
		return fmt.Errorf("%w: send_alarm is AI-only", ErrWrongModuleType)
	}

	threshold, ok := alarmThreshold(c, item)
	if !ok {
		return fmt.Errorf("%w: %s has no configured threshold", ErrWrongModuleType, item)
	}

	margin := (c.RangeHigh - c.RangeLow) * AlarmMargin
	stimValue := threshold + margin

	if item == model.SubItemLowAlarm || item == model.SubItemLowLowAlarm {
		stimValue = threshold - margin
	}

	testPLC, err := co.registry.Get(plcgateway.EndpointTestPLC)
	if err != nil {
		return err
	}

	pct := convert.RealToPercent(stimValue, c.RangeLow, c.RangeHigh)

	return testPLC.WriteAnalog(ctx, c.TestAddress, float32(pct))
}

func alarmThreshold(c *model.Channel, item model.SubItem) (float64, bool) {
	switch item {
	case model.SubItemLowAlarm:
		if c.LL != nil {
			return *c.LL, true
		}
	case model.SubItemLowLowAlarm:
		if c.LLL != nil {
			return *c.LLL, true
		}
	case model.SubItemHighAlarm:
		if c.H != nil {
			return *c.H, true
		}
	case model.SubItemHighHighAlarm:
		if c.HH != nil {
			return *c.HH, true
		}
	}

	return 0, false
}

// ResetToDisplayValue restores the stimulus to the last operator-entered
// display value, completing the AI alarm-reset command.
func (co *Coordinator) ResetToDisplayValue(ctx context.Context, c *model.Channel, engineeringValue float64) error {
	return co.SendDisplayValue(ctx, c, engineeringValue)
}

// CaptureCheckpoint records one of the AO 5-point manual captures: it
// reads the monitored current_output value already tracked on s (set by
// StartMonitoring) and computes its deviation against the expected
// engineering value for percent. show_value
// cannot be confirmed until all five checkpoints are captured.
func (co *Coordinator) CaptureCheckpoint(c *model.Channel, s *Session, percent float64) (value, deviation float64, err error) {
	if c.ModuleType.Base() != model.ModuleAO {
		return 0, 0, fmt.Errorf("%w: capture_checkpoint is AO-only", ErrWrongModuleType)
	}

	raw, ok := s.CurrentValues()["current_output"]
	if !ok {
		return 0, 0, fmt.Errorf("manualtest: no current_output reading yet; start monitoring first")
	}

	observed, parseErr := strconv.ParseFloat(raw, 64)
	if parseErr != nil {
		return 0, 0, fmt.Errorf("manualtest: current_output %q is not numeric: %w", raw, parseErr)
	}

	expected := convert.PercentToReal(percent, c.RangeLow, c.RangeHigh)
	dev := convert.Deviation(observed, expected, convert.DeviationEpsilon)

	s.captureCheckpoint(percent, observed)

	return observed, dev, nil
}

// AllCheckpointsCaptured reports whether all five AO checkpoints have
// been captured on s, gating the show_value confirmation.
func (s *Session) AllCheckpointsCaptured() bool { return s.allCaptured() }

// PulseDigital drives a DI channel's test stimulus true then (on a second
// call) false, per the "pulse true / reset false" command.
func (co *Coordinator) PulseDigital(ctx context.Context, c *model.Channel, value bool) error {
	if c.ModuleType.Base() != model.ModuleDI {
		return fmt.Errorf("%w: pulse_digital is DI-only", ErrWrongModuleType)
	}

	testPLC, err := co.registry.Get(plcgateway.EndpointTestPLC)
	if err != nil {
		return err
	}

	return testPLC.WriteDigital(ctx, c.TestAddress, value)
}

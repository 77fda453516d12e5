package channelstate

import "fatorch/internal/model"

// applicableSetpoint returns the address configured for item, or "" if the
// item has no setpoint concept (e.g. show_value).
func applicableSetpoint(c *model.Channel, item model.SubItem) string {
	switch item {
	case model.SubItemLowAlarm:
		return c.SLSetpointAddr
	case model.SubItemLowLowAlarm:
		return c.SLLSetpointAddr
	case model.SubItemHighAlarm:
		return c.SHSetpointAddr
	case model.SubItemHighHighAlarm:
		return c.SHHSetpointAddr
	default:
		return ""
	}
}

// isAlarmItem reports whether item is one of the four alarm sub-items,
// which require a configured setpoint per invariant 6.
func isAlarmItem(item model.SubItem) bool {
	switch item {
	case model.SubItemLowAlarm, model.SubItemLowLowAlarm, model.SubItemHighAlarm, model.SubItemHighHighAlarm:
		return true
	default:
		return false
	}
}

// seedSubItems builds the initial sub-item map for a freshly imported
// channel: applicable items start not_tested, everything else is absent.
// Items whose required address is missing are immediately skipped per
// invariant 5; alarm items without a setpoint are skipped per invariant 6.
func seedSubItems(c *model.Channel) map[model.SubItem]model.SubItemStatus {
	applicable := model.ApplicableSubItems(c.ModuleType)
	out := make(map[model.SubItem]model.SubItemStatus, len(applicable))

	if c.SubItemNotes == nil {
		c.SubItemNotes = make(map[model.SubItem]string)
	}

	for _, item := range applicable {
		if isAlarmItem(item) && applicableSetpoint(c, item) == "" {
			out[item] = model.SubItemSkipped
			c.SubItemNotes[item] = "auto-skipped: no setpoint address configured"

			continue
		}

		if item == model.SubItemMaintenance && c.MaintenanceAddr == "" {
			out[item] = model.SubItemSkipped
			c.SubItemNotes[item] = "auto-skipped: no maintenance address configured"

			continue
		}

		out[item] = model.SubItemNotTested
	}

	return out
}

// allSubItemsDone reports whether every applicable sub-item is in a
// terminal state (passed or skipped) — the condition that lets the
// overall status become non-in_progress once the hard-point test has
// passed, and the edge the Manual Test Coordinator watches for
// TestCompleted.
func allSubItemsDone(subItems map[model.SubItem]model.SubItemStatus) bool {
	for _, status := range subItems {
		if status != model.SubItemPassed && status != model.SubItemSkipped {
			return false
		}
	}

	return true
}

// anySubItemFailed reports whether any sub-item is currently failed.
func anySubItemFailed(subItems map[model.SubItem]model.SubItemStatus) bool {
	for _, status := range subItems {
		if status == model.SubItemFailed {
			return true
		}
	}

	return false
}

// recomputeOverallStatus is the sole place overall_status is derived, per
// invariant 1: it is a pure function of hard_point_result, the applicable
// manual sub-items, and whether the channel was bulk-skipped. Never call
// this for a bulk-skip outcome; mark_as_skipped sets overall_status
// directly to "skipped" and bypasses this function entirely.
func recomputeOverallStatus(c *model.Channel) model.OverallStatus {
	switch c.HardPointResult {
	case model.HardPointNotTested, model.HardPointWaiting:
		return model.OverallNotTested
	case model.HardPointInProgress:
		return model.OverallInProgress
	case model.HardPointFailed:
		return model.OverallFailed
	case model.HardPointPassed:
		if anySubItemFailed(c.SubItems) {
			return model.OverallFailed
		}

		if allSubItemsDone(c.SubItems) {
			return model.OverallPassed
		}

		return model.OverallInProgress
	default:
		return model.OverallNotTested
	}
}

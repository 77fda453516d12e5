package model

import "time"

// Batch groups channels tested together under one wiring confirmation.
type Batch struct {
	Name         string
	ChannelIDs   []string
	Status       BatchStatus
	StationNames []string
	CreatedAt    time.Time
}

// Counts summarizes a batch's channel outcomes for the UI aggregate view.
type Counts struct {
	Passed  int
	Failed  int
	Waiting int
	Total   int
}

// DeriveCounts computes Counts from the current channel set belonging to b.
func DeriveCounts(channels []*Channel) Counts {
	var c Counts

	c.Total = len(channels)

	for _, ch := range channels {
		switch ch.OverallStatus {
		case OverallPassed:
			c.Passed++
		case OverallFailed:
			c.Failed++
		}

		if ch.HardPointResult == HardPointWaiting {
			c.Waiting++
		}
	}

	return c
}

// TestRecord is an immutable snapshot of a channel at its terminal moment,
// keyed by (TestTag, ChannelID).
type TestRecord struct {
	TestTag   string
	ChannelID string
	Channel   *Channel
	SavedAt   time.Time
}

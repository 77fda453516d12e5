package recordstore

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"fatorch/internal/model"
)

// encodeChannelJSON serializes a terminal channel snapshot for WAL/disk
// storage. model.Channel's fields are all JSON-marshalable directly (its
// enum types are named strings), so no intermediate DTO is needed — there
// is no separate human-edited file format to round-trip here.
func encodeChannelJSON(c *model.Channel) (json.RawMessage, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("encode channel %s: %w", c.ID, err)
	}

	return data, nil
}

func decodeChannelJSON(data json.RawMessage) (*model.Channel, error) {
	var c model.Channel

	err := json.Unmarshal(data, &c)
	if err != nil {
		return nil, fmt.Errorf("decode channel: %w", err)
	}

	return &c, nil
}

func channelToRow(recordID, path string, c *model.Channel, savedAtUnix int64) indexRow {
	row := indexRow{
		RecordID:      recordID,
		TestTag:       c.TestTag,
		ChannelID:     c.ID,
		Path:          path,
		OverallStatus: string(c.OverallStatus),
		SavedAtUnix:   savedAtUnix,
	}

	if c.FinalTime != nil {
		row.FinalTimeUnix = sql.NullInt64{Int64: c.FinalTime.Unix(), Valid: true}
	}

	return row
}

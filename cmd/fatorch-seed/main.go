// Package main provides fatorch-seed, a tool that generates synthetic
// point-list JSON files for fatorch's import command, for manual load
// testing. The files go under the temp directory's fatorch-bench folder,
// but fatorch-bench itself does not read them. Adapted from
// cmd/tk-seed's synthetic-ticket generator, generalized from markdown
// ticket files to JSON channel records.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

type seedRecord struct {
	ID          string `json:"id"`
	TestID      int    `json:"test_id"`
	Tag         string `json:"tag"`
	Description string `json:"description"`

	ModuleType string `json:"module_type"`
	WireSystem string `json:"wire_system"`

	TargetAddress string `json:"target_address"`
	TestAddress   string `json:"test_address"`

	RangeLow  float64 `json:"range_low"`
	RangeHigh float64 `json:"range_high"`

	BatchID string `json:"batch_id"`
	TestTag string `json:"test_tag"`
}

var moduleCycle = []string{"AI", "AO", "DI", "DO"}

func seedChannels(path string, count int) error {
	records := make([]seedRecord, 0, count)
	testTag := "seed-" + time.Now().UTC().Format("20060102")

	for i := 0; i < count; i++ {
		moduleType := moduleCycle[i%len(moduleCycle)]

		r := seedRecord{
			ID:            "ch-" + strconv.Itoa(i),
			TestID:        i,
			Tag:           fmt.Sprintf("%s-%04d", moduleType, i),
			Description:   "synthetic seed channel",
			ModuleType:    moduleType,
			WireSystem:    "normally_open",
			TargetAddress: fmt.Sprintf("target.%d", i),
			TestAddress:   fmt.Sprintf("test.%d", i),
			BatchID:       "batch-0",
			TestTag:       testTag,
		}

		if moduleType == "AI" || moduleType == "AO" {
			r.RangeLow = 0
			r.RangeHigh = 100
		}

		records = append(records, r)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0o644)
}

func main() {
	counts := []int{10, 1000, 10000}
	baseDir := filepath.Join(os.TempDir(), "fatorch-bench")

	for _, count := range counts {
		path := filepath.Join(baseDir, strconv.Itoa(count), "points.json")

		start := time.Now()

		if err := seedChannels(path, count); err != nil {
			fmt.Fprintf(os.Stderr, "error seeding %d: %v\n", count, err)
			os.Exit(1)
		}

		fmt.Printf("Generated %d channels in %s -> %s\n", count, time.Since(start), path)
	}
}

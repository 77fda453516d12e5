// Package config loads the orchestrator's configuration: station paths,
// PLC timeouts, and the Open Question policy flags a real deployment needs
// to tune. It layers JSONC config files (defaults → global → project → CLI
// override) the same way across every source, rather than reading a single
// fixed location.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/tailscale/hujson"
)

// AOWriteMode selects whether AO hard-point writes send percent-scaled or
// engineering-unit values to the target, per Open Question 3.
type AOWriteMode string

const (
	AOWritePercent     AOWriteMode = "percent"
	AOWriteEngineering AOWriteMode = "engineering"
)

// Config holds every tunable the orchestrator reads at startup.
type Config struct {
	// Station
	RecordDir    string   `json:"record_dir"`
	StationNames []string `json:"station_names,omitempty"`

	// Scheduler (C6)
	MaxParallel int `json:"max_parallel"`

	// Hard-point timing (C4)
	Settle          Duration `json:"settle"`
	InterCheckpoint Duration `json:"inter_checkpoint"`
	PLCConnectTimeout Duration `json:"plc_connect_timeout"`
	PLCIOTimeout      Duration `json:"plc_io_timeout"`
	ResetTimeout      Duration `json:"reset_timeout"`

	// Tolerances, percent deviation allowed.
	ToleranceDefault float64 `json:"tolerance_default"`
	ToleranceAO      float64 `json:"tolerance_ao"`

	// Open Question policy flags
	ResetFailureIsFatal  bool        `json:"reset_failure_is_fatal"`
	InvertNormallyClosed bool        `json:"invert_normally_closed"`
	AOWriteMode          AOWriteMode `json:"ao_write_mode"`
	DedupWindow          Duration    `json:"dedup_window"`

	// Resolved paths (computed, not serialized)
	EffectiveCwd string `json:"-"`
	RecordDirAbs string `json:"-"`

	// Sources tracks which config files were loaded, for diagnostics.
	Sources ConfigSources `json:"-"`
}

// ConfigSources tracks which config files were loaded.
type ConfigSources struct {
	Global  string
	Project string
}

// Duration wraps time.Duration with JSON marshaling as a Go duration
// string ("5m", "500ms"), matching how the station's JSONC config files
// are hand-edited by operators.
type Duration time.Duration

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// AsDuration converts back to a plain time.Duration for callers that
// don't need the JSON marshaling behavior.
func (d Duration) AsDuration() time.Duration { return time.Duration(d) }

func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string

	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}

	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}

	*d = Duration(parsed)

	return nil
}

// ConfigFileName is the default project config file name.
const ConfigFileName = ".fatorch.json"

// DefaultConfig returns the orchestrator's defaults, matching the
// timeouts and tolerances the orchestrator needs, and the Open Question
// defaults decided for this implementation.
func DefaultConfig() Config {
	return Config{
		RecordDir:            ".fatorch-records",
		MaxParallel:          4,
		Settle:               Duration(3 * time.Second),
		InterCheckpoint:      Duration(1 * time.Second),
		PLCConnectTimeout:    Duration(2 * time.Second),
		PLCIOTimeout:         Duration(2 * time.Second),
		ResetTimeout:         Duration(2 * time.Second),
		ToleranceDefault:     1.0,
		ToleranceAO:          2.0,
		ResetFailureIsFatal:  false,
		InvertNormallyClosed: false,
		AOWriteMode:          AOWriteEngineering,
		DedupWindow:          Duration(5 * time.Minute),
	}
}

func getGlobalConfigPath(env map[string]string) string {
	if xdgConfig := env["XDG_CONFIG_HOME"]; xdgConfig != "" {
		return filepath.Join(xdgConfig, "fatorch", "config.json")
	}

	if home := env["HOME"]; home != "" {
		return filepath.Join(home, ".config", "fatorch", "config.json")
	}

	return ""
}

// LoadConfigInput holds the inputs for LoadConfig.
type LoadConfigInput struct {
	WorkDirOverride  string
	ConfigPath       string
	RecordDirOverride string
	Env              map[string]string
}

// LoadConfig loads configuration with precedence (highest wins):
// defaults → global user config → project config (or explicit -c file) →
// CLI overrides. All paths in the returned Config are absolute.
func LoadConfig(input LoadConfigInput) (Config, error) {
	workDir := input.WorkDirOverride
	if workDir == "" {
		var err error

		workDir, err = os.Getwd()
		if err != nil {
			return Config{}, fmt.Errorf("cannot get working directory: %w", err)
		}
	}

	cfg := DefaultConfig()

	globalCfg, globalPath, err := loadGlobalConfig(input.Env)
	if err != nil {
		return Config{}, err
	}

	cfg.Sources.Global = globalPath
	cfg = mergeConfig(cfg, globalCfg)

	projectCfg, projectPath, err := loadProjectConfig(workDir, input.ConfigPath)
	if err != nil {
		return Config{}, err
	}

	cfg.Sources.Project = projectPath
	cfg = mergeConfig(cfg, projectCfg)

	if input.RecordDirOverride != "" {
		cfg.RecordDir = input.RecordDirOverride
	}

	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}

	cfg.EffectiveCwd = workDir

	if filepath.IsAbs(cfg.RecordDir) {
		cfg.RecordDirAbs = cfg.RecordDir
	} else {
		cfg.RecordDirAbs = filepath.Join(workDir, cfg.RecordDir)
	}

	return cfg, nil
}

func loadGlobalConfig(env map[string]string) (Config, string, error) {
	path := getGlobalConfigPath(env)
	if path == "" {
		return Config{}, "", nil
	}

	cfg, loaded, err := loadConfigFile(path, false)
	if err != nil {
		return Config{}, "", err
	}

	if !loaded {
		return Config{}, "", nil
	}

	return cfg, path, nil
}

func loadProjectConfig(workDir, configPath string) (Config, string, error) {
	var cfgFile string

	var mustExist bool

	if configPath != "" {
		cfgFile = configPath
		if !filepath.IsAbs(cfgFile) {
			cfgFile = filepath.Join(workDir, cfgFile)
		}

		mustExist = true

		if _, err := os.Stat(cfgFile); err != nil {
			return Config{}, "", fmt.Errorf("%w: %s", ErrConfigFileNotFound, configPath)
		}
	} else {
		cfgFile = filepath.Join(workDir, ConfigFileName)
		mustExist = false
	}

	cfg, loaded, err := loadConfigFile(cfgFile, mustExist)
	if err != nil {
		return Config{}, "", err
	}

	if !loaded {
		return Config{}, "", nil
	}

	return cfg, cfgFile, nil
}

func loadConfigFile(path string, mustExist bool) (Config, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && !mustExist {
			return Config{}, false, nil
		}

		if mustExist {
			return Config{}, false, fmt.Errorf("%w: %s", ErrConfigFileRead, path)
		}

		return Config{}, false, nil
	}

	cfg, parseErr := parseConfig(data)
	if parseErr != nil {
		return Config{}, false, fmt.Errorf("%w %s: %w", ErrConfigInvalid, path, parseErr)
	}

	return cfg, true, nil
}

func parseConfig(data []byte) (Config, error) {
	standardized, err := hujson.Standardize(data)
	if err != nil {
		return Config{}, fmt.Errorf("invalid JSONC: %w", err)
	}

	var cfg Config

	if err := json.Unmarshal(standardized, &cfg); err != nil {
		return Config{}, fmt.Errorf("invalid JSON: %w", err)
	}

	return cfg, nil
}

// mergeConfig overlays non-zero fields of overlay onto base. Zero values
// mean "not set" for every field here; there is no field in this config
// where zero is a meaningful explicit override.
func mergeConfig(base, overlay Config) Config {
	if overlay.RecordDir != "" {
		base.RecordDir = overlay.RecordDir
	}

	if len(overlay.StationNames) > 0 {
		base.StationNames = overlay.StationNames
	}

	if overlay.MaxParallel != 0 {
		base.MaxParallel = overlay.MaxParallel
	}

	if overlay.Settle != 0 {
		base.Settle = overlay.Settle
	}

	if overlay.InterCheckpoint != 0 {
		base.InterCheckpoint = overlay.InterCheckpoint
	}

	if overlay.PLCConnectTimeout != 0 {
		base.PLCConnectTimeout = overlay.PLCConnectTimeout
	}

	if overlay.PLCIOTimeout != 0 {
		base.PLCIOTimeout = overlay.PLCIOTimeout
	}

	if overlay.ResetTimeout != 0 {
		base.ResetTimeout = overlay.ResetTimeout
	}

	if overlay.ToleranceDefault != 0 {
		base.ToleranceDefault = overlay.ToleranceDefault
	}

	if overlay.ToleranceAO != 0 {
		base.ToleranceAO = overlay.ToleranceAO
	}

	if overlay.AOWriteMode != "" {
		base.AOWriteMode = overlay.AOWriteMode
	}

	if overlay.DedupWindow != 0 {
		base.DedupWindow = overlay.DedupWindow
	}

	// Booleans: an overlay always takes effect if the file set them, but
	// since we can't distinguish "false" from "unset" without raw-map
	// tracking, we only honor an explicit true. Operators who need to flip
	// a flag back to false at a narrower scope set it at that scope's file.
	if overlay.ResetFailureIsFatal {
		base.ResetFailureIsFatal = true
	}

	if overlay.InvertNormallyClosed {
		base.InvertNormallyClosed = true
	}

	return base
}

func validateConfig(cfg Config) error {
	if cfg.RecordDir == "" {
		return ErrRecordDirEmpty
	}

	if cfg.MaxParallel <= 0 {
		return ErrInvalidMaxParallel
	}

	if cfg.AOWriteMode != AOWritePercent && cfg.AOWriteMode != AOWriteEngineering {
		return ErrInvalidAOWriteMode
	}

	return nil
}

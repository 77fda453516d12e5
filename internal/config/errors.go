package config

import "errors"

var (
	ErrRecordDirEmpty      = errors.New("record_dir must not be empty")
	ErrConfigFileNotFound  = errors.New("config file not found")
	ErrConfigFileRead      = errors.New("failed to read config file")
	ErrConfigInvalid       = errors.New("invalid config")
	ErrInvalidMaxParallel  = errors.New("max_parallel must be positive")
	ErrInvalidAOWriteMode  = errors.New("ao_write_mode must be \"percent\" or \"engineering\"")
)

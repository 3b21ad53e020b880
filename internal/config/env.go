package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Environment variable names.
const (
	EnvLogLevel      = "THERMAL_DOTS_LOG_LEVEL"
	EnvSettings      = "THERMAL_DOTS_SETTINGS"
	EnvResultsDB     = "THERMAL_DOTS_RESULTS_DB"
	EnvWorkers       = "THERMAL_DOTS_WORKERS"
	EnvRecordingsDir = "THERMAL_DOTS_RECORDINGS_DIR"
	EnvDetector      = "THERMAL_DOTS_DETECTOR"
)

// DefaultSettingsPath is used when THERMAL_DOTS_SETTINGS is unset.
const DefaultSettingsPath = "settings.json"

// Env is the process configuration taken from the environment.
type Env struct {
	LogLevel      string
	SettingsPath  string
	ResultsDB     string // empty disables run persistence
	Workers       int    // 0 means one per CPU
	RecordingsDir string // relative recording paths resolve against it
	Detector      string // "pure" (default) or "opencv"
}

// LoadEnv reads a .env file from the working directory when present, then the
// process environment. Variables already set in the environment win over the
// file.
func LoadEnv() Env {
	_ = godotenv.Load()
	return EnvFrom(os.Getenv)
}

// EnvFrom builds an Env from a lookup function.
func EnvFrom(getenv func(string) string) Env {
	e := Env{
		LogLevel:      strings.TrimSpace(getenv(EnvLogLevel)),
		SettingsPath:  strings.TrimSpace(getenv(EnvSettings)),
		ResultsDB:     strings.TrimSpace(getenv(EnvResultsDB)),
		RecordingsDir: strings.TrimSpace(getenv(EnvRecordingsDir)),
		Detector:      strings.ToLower(strings.TrimSpace(getenv(EnvDetector))),
	}
	if e.SettingsPath == "" {
		e.SettingsPath = DefaultSettingsPath
	}
	if n, err := strconv.Atoi(strings.TrimSpace(getenv(EnvWorkers))); err == nil && n > 0 {
		e.Workers = n
	}
	return e
}

// Package config loads the control plane's single configuration object from
// YAML. The schema is closed: unknown fields are rejected rather than
// silently ignored, since a typo'd key (e.g. "killOnViolaton") should fail
// loudly rather than silently fall back to a default.
package config

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the complete recognized configuration surface.
type Config struct {
	Profiler  ProfilerConfig  `yaml:"profiler"`
	Enforcer  EnforcerConfig  `yaml:"enforcer"`
	Analyzer  AnalyzerConfig  `yaml:"analyzer"`
	Forecaster ForecasterConfig `yaml:"forecaster"`
	Optimizer OptimizerConfig `yaml:"optimizer"`
	Policy    PolicyConfig    `yaml:"policy"`
}

type ProfilerConfig struct {
	SystemIntervalMs    int64 `yaml:"systemIntervalMs"`
	ContainerIntervalMs int64 `yaml:"containerIntervalMs"`
	SnapshotIntervalMs  int64 `yaml:"snapshotIntervalMs"`
	RetentionMs         int64 `yaml:"retentionMs"`
}

// DimensionProfile holds the per-dimension limits the Enforcer applies to
// containers that declare the matching profile name.
type DimensionProfile struct {
	CPUCores    float64 `yaml:"cpuCores"`
	MemoryBytes int64   `yaml:"memoryBytes"`
	DiskBytes   int64   `yaml:"diskBytes"`
	NetworkMbps float64 `yaml:"networkMbps"`
}

type EnforcerConfig struct {
	DefaultProfile      string                      `yaml:"defaultProfile"`
	Profiles            map[string]DimensionProfile `yaml:"profiles"`
	ViolationThreshold  int                         `yaml:"violationThreshold"`
	GracePeriodMs       int64                       `yaml:"gracePeriodMs"`
	KillOnViolation     bool                        `yaml:"killOnViolation"`
	EnforcementCheckMs  int64                       `yaml:"enforcementCheckMs"`
}

// Thresholds are the warning/critical/severe cut points for one resource
// dimension, consumed by the Analyzer's severity classification.
type Thresholds struct {
	Warning  float64 `yaml:"warning"`
	Critical float64 `yaml:"critical"`
	Severe   float64 `yaml:"severe"`
}

type AnalyzerConfig struct {
	Thresholds          map[string]Thresholds `yaml:"thresholds"`
	AnalysisIntervalMs  int64                 `yaml:"analysisIntervalMs"`
	DeepIntervalMs      int64                 `yaml:"deepIntervalMs"`
	CorrelationThreshold float64              `yaml:"correlationThreshold"`
	AnomalySigma        float64               `yaml:"anomalySigma"`
}

type ForecasterConfig struct {
	LookbackHours  int64   `yaml:"lookbackHours"`
	HorizonHours   int64   `yaml:"horizonHours"`
	MinSamples     int64   `yaml:"minSamples"`
	ModelUpdateMs  int64   `yaml:"modelUpdateMs"`
	MinConfidence  float64 `yaml:"minConfidence"`
}

type OptimizerConfig struct {
	CycleMs                  int64   `yaml:"cycleMs"`
	CPUEfficiencyThreshold   float64 `yaml:"cpuEfficiencyThreshold"`
	MemoryEfficiencyThreshold float64 `yaml:"memoryEfficiencyThreshold"`
	CostBudgetHourly         float64 `yaml:"costBudgetHourly"`
	Placement                string  `yaml:"placement"`
}

// EnforcementMode governs how aggressively the Enforcer acts on violations.
type EnforcementMode string

const (
	ModeSoft     EnforcementMode = "soft"
	ModeHard     EnforcementMode = "hard"
	ModeAdaptive EnforcementMode = "adaptive"
)

type PolicyConfig struct {
	EnforcementMode EnforcementMode `yaml:"enforcementMode"`
	AutoRecovery    bool            `yaml:"autoRecovery"`
}

// Default returns the configuration with every default named in the
// recognized configuration surface.
func Default() Config {
	return Config{
		Profiler: ProfilerConfig{
			SystemIntervalMs:    5000,
			ContainerIntervalMs: 10000,
			SnapshotIntervalMs:  30000,
			RetentionMs:         3600000,
		},
		Enforcer: EnforcerConfig{
			DefaultProfile:     "medium",
			Profiles:           map[string]DimensionProfile{},
			ViolationThreshold: 3,
			GracePeriodMs:      60000,
			KillOnViolation:    true,
			EnforcementCheckMs: 30000,
		},
		Analyzer: AnalyzerConfig{
			Thresholds:           map[string]Thresholds{},
			AnalysisIntervalMs:   60000,
			DeepIntervalMs:       300000,
			CorrelationThreshold: 0.6,
			AnomalySigma:         3.0,
		},
		Forecaster: ForecasterConfig{
			LookbackHours: 168,
			HorizonHours:  24,
			MinSamples:    10,
			ModelUpdateMs: 3600000,
			MinConfidence: 0.85,
		},
		Optimizer: OptimizerConfig{
			CycleMs:                   300000,
			CPUEfficiencyThreshold:    0.7,
			MemoryEfficiencyThreshold: 0.75,
			CostBudgetHourly:          10,
			Placement:                 "balanced",
		},
		Policy: PolicyConfig{
			EnforcementMode: ModeAdaptive,
			AutoRecovery:    true,
		},
	}
}

// Load reads a YAML configuration from r, starting from Default() and
// overlaying any fields present in the document. Unknown fields are
// rejected.
func Load(r io.Reader) (Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		if err == io.EOF {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	return cfg, nil
}

// LoadFile reads a YAML configuration from path.
func LoadFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}
	return Load(bytes.NewReader(data))
}

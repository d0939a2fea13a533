package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
// This is the single source of truth for all default tuning values.
const DefaultConfigPath = "config/tuning.defaults.json"

// Medium names accepted by the tuning config. The medium selects the default
// speed-of-sound factor and echo validity window; water's lower attenuation
// and higher propagation speed make its plausible echo window much tighter.
const (
	MediumAir   = "air"
	MediumWater = "water"
)

// TuningConfig represents the root configuration for the sonar pipeline.
// All fields are optional pointers so partial config files are safe: any
// field omitted from the JSON keeps the default provided by its Get* method.
// None of these values are runtime-mutable; they are fixed per deployment.
type TuningConfig struct {
	// Acquisition params
	Medium            *string `json:"medium,omitempty"`             // "air" or "water"
	SamplePeriod      *string `json:"sample_period,omitempty"`      // duration string like "200ms"
	SubsampleCount    *int    `json:"subsample_count,omitempty"`    // pulses per cycle
	InterSampleDelay  *string `json:"inter_sample_delay,omitempty"` // duration string like "10ms"
	EchoTimeout       *string `json:"echo_timeout,omitempty"`       // max wait for an echo edge
	TriggerPulseWidth *int    `json:"trigger_pulse_width_us,omitempty"`
	EchoMinMicros     *int64  `json:"echo_min_us,omitempty"` // validity window override
	EchoMaxMicros     *int64  `json:"echo_max_us,omitempty"`

	// Conversion params
	SpeedFactor   *float64 `json:"speed_factor,omitempty"` // one-way cm per microsecond
	MinDistanceCM *float64 `json:"min_distance_cm,omitempty"`
	MaxDistanceCM *float64 `json:"max_distance_cm,omitempty"`

	// Stability filter params
	SmoothingAlpha     *float64 `json:"smoothing_alpha,omitempty"`
	DropRejectFraction *float64 `json:"drop_reject_fraction,omitempty"`
	StrikeThreshold    *int     `json:"strike_threshold,omitempty"`

	// Baseline calibration params
	BaselineSamples *int `json:"baseline_samples,omitempty"`

	// Danger classifier params
	DangerMarginCM *float64 `json:"danger_margin_cm,omitempty"`
	HysteresisCM   *float64 `json:"hysteresis_cm,omitempty"`
	ConfirmWindow  *int     `json:"confirm_window,omitempty"`
	EnterQuorum    *int     `json:"enter_quorum,omitempty"`
	ExitQuorum     *int     `json:"exit_quorum,omitempty"`
	SlopeWidthCM   *float64 `json:"slope_width_cm,omitempty"`

	// FixedEnterCM pins the danger entry threshold to an absolute distance
	// and disables baseline learning (pool-stable installations). Leave
	// unset for the baseline-relative mode.
	FixedEnterCM *float64 `json:"fixed_enter_cm,omitempty"`
}

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
// Use LoadTuningConfig to load actual values from the defaults file.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// LoadTuningConfig loads a TuningConfig from a JSON file.
// The file is validated to ensure it has a .json extension and is under the
// max file size. Fields omitted from the JSON file retain their default
// values, so partial configs are safe.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	// Check file size for safety (max 1MB)
	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that the configuration values are valid.
func (c *TuningConfig) Validate() error {
	if c.Medium != nil && *c.Medium != MediumAir && *c.Medium != MediumWater {
		return fmt.Errorf("medium must be %q or %q, got %q", MediumAir, MediumWater, *c.Medium)
	}

	for name, v := range map[string]*string{
		"sample_period":      c.SamplePeriod,
		"inter_sample_delay": c.InterSampleDelay,
		"echo_timeout":       c.EchoTimeout,
	} {
		if v != nil && *v != "" {
			if _, err := time.ParseDuration(*v); err != nil {
				return fmt.Errorf("invalid %s '%s': %w", name, *v, err)
			}
		}
	}

	if c.SubsampleCount != nil && *c.SubsampleCount < 1 {
		return fmt.Errorf("subsample_count must be >= 1, got %d", *c.SubsampleCount)
	}
	if c.SmoothingAlpha != nil {
		if *c.SmoothingAlpha <= 0 || *c.SmoothingAlpha > 1 {
			return fmt.Errorf("smoothing_alpha must be in (0, 1], got %f", *c.SmoothingAlpha)
		}
	}
	if c.DropRejectFraction != nil {
		if *c.DropRejectFraction < 0 || *c.DropRejectFraction >= 1 {
			return fmt.Errorf("drop_reject_fraction must be in [0, 1), got %f", *c.DropRejectFraction)
		}
	}
	if c.StrikeThreshold != nil && *c.StrikeThreshold < 1 {
		return fmt.Errorf("strike_threshold must be >= 1, got %d", *c.StrikeThreshold)
	}
	if c.BaselineSamples != nil && *c.BaselineSamples < 1 {
		return fmt.Errorf("baseline_samples must be >= 1, got %d", *c.BaselineSamples)
	}
	if c.HysteresisCM != nil && *c.HysteresisCM <= 0 {
		return fmt.Errorf("hysteresis_cm must be > 0, got %f", *c.HysteresisCM)
	}
	if c.ConfirmWindow != nil && *c.ConfirmWindow < 1 {
		return fmt.Errorf("confirm_window must be >= 1, got %d", *c.ConfirmWindow)
	}
	window := c.GetConfirmWindow()
	if c.EnterQuorum != nil && (*c.EnterQuorum < 1 || *c.EnterQuorum > window) {
		return fmt.Errorf("enter_quorum must be in [1, %d], got %d", window, *c.EnterQuorum)
	}
	if c.ExitQuorum != nil && (*c.ExitQuorum < 1 || *c.ExitQuorum > window) {
		return fmt.Errorf("exit_quorum must be in [1, %d], got %d", window, *c.ExitQuorum)
	}
	if c.EchoMinMicros != nil && c.EchoMaxMicros != nil && *c.EchoMaxMicros <= *c.EchoMinMicros {
		return fmt.Errorf("echo validity window [%d, %d] is empty", *c.EchoMinMicros, *c.EchoMaxMicros)
	}

	return nil
}

// GetMedium returns the medium name or the default.
func (c *TuningConfig) GetMedium() string {
	if c.Medium == nil {
		return MediumWater // this sensor family targets underwater deployments
	}
	return *c.Medium
}

// GetSamplePeriod parses and returns the SamplePeriod as a time.Duration.
func (c *TuningConfig) GetSamplePeriod() time.Duration {
	return c.duration(c.SamplePeriod, 200*time.Millisecond)
}

// GetInterSampleDelay parses and returns the InterSampleDelay.
func (c *TuningConfig) GetInterSampleDelay() time.Duration {
	return c.duration(c.InterSampleDelay, 10*time.Millisecond)
}

// GetEchoTimeout parses and returns the EchoTimeout.
func (c *TuningConfig) GetEchoTimeout() time.Duration {
	return c.duration(c.EchoTimeout, 30*time.Millisecond)
}

func (c *TuningConfig) duration(v *string, def time.Duration) time.Duration {
	if v == nil || *v == "" {
		return def
	}
	d, err := time.ParseDuration(*v)
	if err != nil {
		return def
	}
	return d
}

// GetSubsampleCount returns the subsample_count value or the default.
func (c *TuningConfig) GetSubsampleCount() int {
	if c.SubsampleCount == nil {
		return 7
	}
	return *c.SubsampleCount
}

// GetTriggerPulseWidth returns the trigger pulse width in microseconds.
func (c *TuningConfig) GetTriggerPulseWidth() int {
	if c.TriggerPulseWidth == nil {
		return 10
	}
	return *c.TriggerPulseWidth
}

// GetEchoMinMicros returns the lower bound of the echo validity window.
// Without an explicit override the bound follows the medium.
func (c *TuningConfig) GetEchoMinMicros() int64 {
	if c.EchoMinMicros != nil {
		return *c.EchoMinMicros
	}
	if c.GetMedium() == MediumWater {
		return 50
	}
	return 100
}

// GetEchoMaxMicros returns the upper bound of the echo validity window.
func (c *TuningConfig) GetEchoMaxMicros() int64 {
	if c.EchoMaxMicros != nil {
		return *c.EchoMaxMicros
	}
	if c.GetMedium() == MediumWater {
		return 5500
	}
	return 25000
}

// GetSpeedFactor returns the one-way speed-of-sound factor in cm/us.
func (c *TuningConfig) GetSpeedFactor() float64 {
	if c.SpeedFactor != nil {
		return *c.SpeedFactor
	}
	if c.GetMedium() == MediumWater {
		return 0.1482
	}
	return 0.0343
}

// GetMinDistanceCM returns the min_distance_cm value or the default.
func (c *TuningConfig) GetMinDistanceCM() float64 {
	if c.MinDistanceCM == nil {
		return 2.0
	}
	return *c.MinDistanceCM
}

// GetMaxDistanceCM returns the max_distance_cm value or the default.
func (c *TuningConfig) GetMaxDistanceCM() float64 {
	if c.MaxDistanceCM == nil {
		return 400.0
	}
	return *c.MaxDistanceCM
}

// GetSmoothingAlpha returns the smoothing_alpha value or the default.
func (c *TuningConfig) GetSmoothingAlpha() float64 {
	if c.SmoothingAlpha == nil {
		return 0.25
	}
	return *c.SmoothingAlpha
}

// GetDropRejectFraction returns the drop_reject_fraction value or the default.
func (c *TuningConfig) GetDropRejectFraction() float64 {
	if c.DropRejectFraction == nil {
		return 0.5
	}
	return *c.DropRejectFraction
}

// GetStrikeThreshold returns the strike_threshold value or the default.
func (c *TuningConfig) GetStrikeThreshold() int {
	if c.StrikeThreshold == nil {
		return 2
	}
	return *c.StrikeThreshold
}

// GetBaselineSamples returns the baseline_samples value or the default.
func (c *TuningConfig) GetBaselineSamples() int {
	if c.BaselineSamples == nil {
		return 25
	}
	return *c.BaselineSamples
}

// GetDangerMarginCM returns the danger_margin_cm value or the default.
func (c *TuningConfig) GetDangerMarginCM() float64 {
	if c.DangerMarginCM == nil {
		return 60.0
	}
	return *c.DangerMarginCM
}

// GetHysteresisCM returns the hysteresis_cm value or the default.
func (c *TuningConfig) GetHysteresisCM() float64 {
	if c.HysteresisCM == nil {
		return 20.0
	}
	return *c.HysteresisCM
}

// GetConfirmWindow returns the confirm_window value or the default.
func (c *TuningConfig) GetConfirmWindow() int {
	if c.ConfirmWindow == nil {
		return 3
	}
	return *c.ConfirmWindow
}

// GetEnterQuorum returns the enter_quorum value or the default.
func (c *TuningConfig) GetEnterQuorum() int {
	if c.EnterQuorum == nil {
		return 2
	}
	return *c.EnterQuorum
}

// GetExitQuorum returns the exit_quorum value or the default. Exiting danger
// demands full agreement by default; entering is deliberately easier.
func (c *TuningConfig) GetExitQuorum() int {
	if c.ExitQuorum == nil {
		return c.GetConfirmWindow()
	}
	return *c.ExitQuorum
}

// GetSlopeWidthCM returns the slope_width_cm value or the default.
func (c *TuningConfig) GetSlopeWidthCM() float64 {
	if c.SlopeWidthCM == nil {
		return 120.0
	}
	return *c.SlopeWidthCM
}

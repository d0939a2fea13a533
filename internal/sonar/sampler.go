package sonar

import (
	"context"
	"fmt"
	"sort"
	"time"
)

// SamplerConfig holds configuration for the ranging sampler.
type SamplerConfig struct {
	Subsamples       int           // Pulse measurements per cycle
	InterSampleDelay time.Duration // Pause between pulses to avoid cross-talk
	EchoMin          EchoDuration  // Shortest plausible echo for the medium
	EchoMax          EchoDuration  // Longest plausible echo for the medium
}

// Validate checks that the sampler configuration is usable.
func (c SamplerConfig) Validate() error {
	if c.Subsamples < 1 {
		return fmt.Errorf("subsamples must be >= 1, got %d", c.Subsamples)
	}
	if c.EchoMin < 0 || c.EchoMax <= c.EchoMin {
		return fmt.Errorf("invalid echo validity window [%d, %d]", c.EchoMin, c.EchoMax)
	}
	return nil
}

// RangingResult is one cycle's reduced echo measurement.
type RangingResult struct {
	// Echo is the median of the validated sub-samples, or NoEcho when the
	// cycle produced no usable measurement.
	Echo EchoDuration
	// Valid is false when every sub-sample was rejected or timed out.
	Valid bool
	// Accepted counts sub-samples inside the validity window.
	Accepted int
	// NoEchoCount counts sub-samples where the pulse source timed out.
	NoEchoCount int
}

// Sampler reduces several pulse measurements to a single robust echo duration
// per cycle. Echoes outside the validity window are discarded (multipath and
// cross-talk produce wildly short or long round trips) and the survivors are
// reduced by median selection, which tolerates up to floor((N-1)/2) outliers
// where a mean would be distorted by a single one.
type Sampler struct {
	src PulseSource
	cfg SamplerConfig
}

// NewSampler creates a Sampler reading from the given pulse source.
func NewSampler(src PulseSource, cfg SamplerConfig) (*Sampler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Sampler{src: src, cfg: cfg}, nil
}

// Sample performs one full ranging cycle: exactly Subsamples trigger/measure
// rounds separated by InterSampleDelay, validity filtering, then median
// selection. A cycle where zero sub-samples validate returns Valid=false with
// Echo=NoEcho. The only error paths are device failure and context
// cancellation.
func (s *Sampler) Sample(ctx context.Context) (RangingResult, error) {
	var res RangingResult
	res.Echo = NoEcho

	accepted := make([]EchoDuration, 0, s.cfg.Subsamples)
	for i := 0; i < s.cfg.Subsamples; i++ {
		if i > 0 && s.cfg.InterSampleDelay > 0 {
			if err := sleepCtx(ctx, s.cfg.InterSampleDelay); err != nil {
				return res, err
			}
		}

		d, err := s.src.Measure(ctx)
		if err != nil {
			return res, fmt.Errorf("pulse measurement %d/%d: %w", i+1, s.cfg.Subsamples, err)
		}
		if !d.Valid() {
			res.NoEchoCount++
			continue
		}
		if d < s.cfg.EchoMin || d > s.cfg.EchoMax {
			continue
		}
		accepted = append(accepted, d)
	}

	res.Accepted = len(accepted)
	if len(accepted) == 0 {
		return res, nil
	}

	res.Echo = medianDuration(accepted)
	res.Valid = true
	return res, nil
}

// medianDuration returns the lower median of the given durations. The lower
// middle element is used for even counts so the result is always an observed
// sample and reproducible across runs.
func medianDuration(ds []EchoDuration) EchoDuration {
	sort.Slice(ds, func(i, j int) bool { return ds[i] < ds[j] })
	return ds[(len(ds)-1)/2]
}

// sleepCtx sleeps for d or returns early with the context's error.
func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

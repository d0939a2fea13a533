package sonar

import (
	"context"
	"time"

	"github.com/reef-data/sonar.report/internal/monitoring"
)

// PipelineConfig assembles the per-component configuration for one pipeline.
type PipelineConfig struct {
	Sampler    SamplerConfig
	Converter  Converter
	Filter     FilterConfig
	Classifier ClassifierConfig

	// BaselineSamples is the learning-phase buffer size.
	BaselineSamples int
	// DangerMarginCM is subtracted from the learned baseline to derive the
	// entry threshold.
	DangerMarginCM float64
	// FixedEnterCM, when non-nil, bypasses baseline learning entirely and
	// pins the entry threshold to an absolute distance (pool-stable mode).
	FixedEnterCM *float64
}

// Pipeline owns all mutable pipeline state: the filter estimate and strike
// counter, the baseline learning buffer, the confirmation history, and the
// danger state. It is constructed once at startup and driven by a single
// cycle-execution actor; none of its state is safe for concurrent mutation,
// and cycles must not be reordered.
type Pipeline struct {
	sampler    *Sampler
	converter  Converter
	filter     *StabilityFilter
	calibrator *BaselineCalibrator // nil in fixed-threshold mode
	classifier *DangerClassifier

	start time.Time
}

// NewPipeline wires the full acquisition-filter-calibrate-classify pipeline
// around the given pulse source.
func NewPipeline(src PulseSource, cfg PipelineConfig) (*Pipeline, error) {
	sampler, err := NewSampler(src, cfg.Sampler)
	if err != nil {
		return nil, err
	}
	filter, err := NewStabilityFilter(cfg.Filter)
	if err != nil {
		return nil, err
	}

	var calibrator *BaselineCalibrator
	var src2 ThresholdSource
	if cfg.FixedEnterCM != nil {
		src2 = FixedThreshold(*cfg.FixedEnterCM)
	} else {
		calibrator, err = NewBaselineCalibrator(cfg.BaselineSamples)
		if err != nil {
			return nil, err
		}
		src2 = BaselineThreshold{Calibrator: calibrator, MarginCM: cfg.DangerMarginCM}
	}

	classifier, err := NewDangerClassifier(src2, cfg.Classifier)
	if err != nil {
		return nil, err
	}

	return &Pipeline{
		sampler:    sampler,
		converter:  cfg.Converter,
		filter:     filter,
		calibrator: calibrator,
		classifier: classifier,
		start:      time.Now(),
	}, nil
}

// RunCycle executes one full pass: sample, convert, filter, calibrate while
// learning, classify, and report. An invalid cycle (no usable echo) leaves
// the filter, calibrator and classifier untouched and reports the frozen
// state with valid=0; it is never interpreted as safe or danger by omission.
// The returned error is non-nil only on device failure or context
// cancellation.
func (p *Pipeline) RunCycle(ctx context.Context) (CycleRecord, error) {
	rec := CycleRecord{
		TimeMs:     time.Since(p.start).Milliseconds(),
		EchoMicros: int64(NoEcho),
	}

	res, err := p.sampler.Sample(ctx)
	if err != nil {
		return rec, err
	}
	rec.EchoMicros = int64(res.Echo)
	rec.Valid = res.Valid
	rec.NoEchoSubsamples = res.NoEchoCount

	if !res.Valid {
		p.fillFrozenState(&rec)
		return rec, nil
	}

	rec.RawCM = p.converter.ToDistance(res.Echo)
	filtered := p.filter.Update(rec.RawCM)
	rec.FilteredCM = filtered

	if p.calibrator != nil && !p.calibrator.IsReady() {
		p.calibrator.Observe(filtered)
		if p.calibrator.IsReady() {
			// Danger state accrued on borderline readings during learning
			// must not leak past calibration.
			p.classifier.Reset()
			rec.CalibrationCompleted = true
			monitoring.Logf("baseline calibration complete: %.1f cm safe reference", p.calibrator.Baseline())
		}
	}

	a := p.classifier.Observe(filtered)
	rec.InDanger = a.InDanger
	rec.Event = a.Event
	rec.Intensity = a.Intensity
	if a.Ready {
		rec.EnterCM = a.EnterCM
		rec.ExitCM = a.ExitCM
		if p.calibrator != nil {
			rec.BaselineCM = p.calibrator.Baseline()
		}
	}
	return rec, nil
}

// fillFrozenState reports the prior pipeline state on a cycle that produced
// no valid distance.
func (p *Pipeline) fillFrozenState(rec *CycleRecord) {
	if v, ok := p.filter.Value(); ok {
		rec.FilteredCM = v
	}
	rec.InDanger, rec.Intensity = p.classifier.State()
	if enter, ok := p.classifier.src.EnterThreshold(); ok {
		rec.EnterCM = enter
		rec.ExitCM = enter + p.classifier.cfg.HysteresisCM
		if p.calibrator != nil {
			rec.BaselineCM = p.calibrator.Baseline()
		}
	}
}

// Calibrating reports whether the pipeline is still in its baseline learning
// phase. Always false in fixed-threshold mode.
func (p *Pipeline) Calibrating() bool {
	return p.calibrator != nil && !p.calibrator.IsReady()
}

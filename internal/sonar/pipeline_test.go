package sonar

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

// testPipelineConfig wires a pipeline where echo microseconds map 1:1 to
// centimeters (speed factor 2.0) and the filter passes readings through
// (alpha 1, drop rejection practically disabled), so cycle outcomes are
// driven entirely by the baseline and classifier stages.
func testPipelineConfig() PipelineConfig {
	return PipelineConfig{
		Sampler: SamplerConfig{
			Subsamples: 1,
			EchoMin:    1,
			EchoMax:    10000,
		},
		Converter: Converter{SpeedFactor: 2.0, MinDistCM: 1, MaxDistCM: 1000},
		Filter: FilterConfig{
			Alpha:              1.0,
			DropRejectFraction: 0.9,
			StrikeThreshold:    2,
		},
		Classifier: ClassifierConfig{
			HysteresisCM: 20,
			SlopeWidthCM: 120,
			Window:       3,
			EnterQuorum:  2,
			ExitQuorum:   3,
		},
		BaselineSamples: 5,
		DangerMarginCM:  60,
	}
}

func TestPipelineCalibrateApproachRecede(t *testing.T) {
	ctx := context.Background()
	src := &stubSource{seq: []EchoDuration{
		100, 100, 100, 100, 100, // learning -> baseline 100 cm
		100, 100, // fill the confirmation window post-calibration
		35, 38, // approach: entry confirmed on the second low cycle
		NoEcho, // dropout mid-danger
		36,     // still close
		65, 70, 75, // recede: exit confirmed once the window clears 60 cm
	}}
	p, err := NewPipeline(src, testPipelineConfig())
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}

	if !p.Calibrating() {
		t.Error("pipeline should start in the learning phase")
	}

	var recs []CycleRecord
	for i := 0; i < 15; i++ {
		rec, err := p.RunCycle(ctx)
		if err != nil {
			t.Fatalf("cycle %d: %v", i, err)
		}
		recs = append(recs, rec)
	}

	// Learning phase: no thresholds, no danger, regardless of readings.
	for i := 0; i < 4; i++ {
		r := recs[i]
		if r.EnterCM != 0 || r.ExitCM != 0 || r.BaselineCM != 0 || r.InDanger || r.Intensity != 0 {
			t.Errorf("cycle %d during learning leaked classifier state: %+v", i, r)
		}
		if r.CalibrationCompleted {
			t.Errorf("cycle %d flagged calibration complete early", i)
		}
	}

	r := recs[4]
	if !r.CalibrationCompleted {
		t.Fatal("fifth cycle should complete calibration")
	}
	if r.BaselineCM != 100 || r.EnterCM != 40 || r.ExitCM != 60 {
		t.Errorf("thresholds after calibration = %v/%v/%v, want 100/40/60",
			r.BaselineCM, r.EnterCM, r.ExitCM)
	}
	if p.Calibrating() {
		t.Error("pipeline still reports learning after calibration")
	}

	if r = recs[7]; r.InDanger || r.Event != EventNone {
		t.Errorf("single 35 cm reading flipped state: %+v", r)
	}
	if r = recs[8]; !r.InDanger || r.Event != EventEntered || r.Intensity != 1 {
		t.Errorf("second low reading should confirm entry with full intensity: %+v", r)
	}

	// The dropout cycle reports the frozen state with the -1 sentinel.
	want := CycleRecord{
		EchoMicros:       int64(NoEcho),
		Valid:            false,
		FilteredCM:       38,
		BaselineCM:       100,
		EnterCM:          40,
		ExitCM:           60,
		Intensity:        1,
		InDanger:         true,
		NoEchoSubsamples: 1,
	}
	if diff := cmp.Diff(want, recs[9], cmpopts.IgnoreFields(CycleRecord{}, "TimeMs")); diff != "" {
		t.Errorf("dropout cycle record mismatch (-want +got):\n%s", diff)
	}

	for i := 10; i < 13; i++ {
		if r = recs[i]; !r.InDanger || r.Event != EventNone {
			t.Errorf("cycle %d cleared danger before the recede quorum: %+v", i, r)
		}
	}
	if r = recs[13]; r.InDanger || r.Event != EventExited || r.Intensity != 0 {
		t.Errorf("third recede cycle should confirm exit: %+v", r)
	}
}

func TestPipelineFixedThresholdSkipsCalibration(t *testing.T) {
	ctx := context.Background()
	cfg := testPipelineConfig()
	enter := 40.0
	cfg.FixedEnterCM = &enter

	src := &stubSource{seq: []EchoDuration{100, 100, 100, 35, 38}}
	p, err := NewPipeline(src, cfg)
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}

	if p.Calibrating() {
		t.Error("fixed-threshold mode must not report a learning phase")
	}

	rec, err := p.RunCycle(ctx)
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if rec.EnterCM != 40 || rec.ExitCM != 60 {
		t.Errorf("thresholds on first cycle = %v/%v, want 40/60", rec.EnterCM, rec.ExitCM)
	}
	if rec.BaselineCM != 0 {
		t.Errorf("fixed mode has no baseline, got %v", rec.BaselineCM)
	}

	for i := 0; i < 4; i++ {
		if rec, err = p.RunCycle(ctx); err != nil {
			t.Fatalf("cycle %d: %v", i, err)
		}
	}
	if !rec.InDanger || rec.Event != EventEntered {
		t.Errorf("entry should confirm without any calibration: %+v", rec)
	}
}

func TestPipelineInvalidFirstCycle(t *testing.T) {
	src := &stubSource{seq: []EchoDuration{NoEcho}}
	p, err := NewPipeline(src, testPipelineConfig())
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}

	rec, err := p.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if rec.Valid || rec.EchoMicros != int64(NoEcho) {
		t.Errorf("expected invalid cycle with echo sentinel, got %+v", rec)
	}
	if rec.FilteredCM != 0 || rec.EnterCM != 0 || rec.InDanger {
		t.Errorf("frozen state before any valid cycle should be zeroed: %+v", rec)
	}
}

func TestPipelinePropagatesDeviceError(t *testing.T) {
	devErr := errors.New("transducer unplugged")
	p, err := NewPipeline(&stubSource{err: devErr}, testPipelineConfig())
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}

	if _, err := p.RunCycle(context.Background()); !errors.Is(err, devErr) {
		t.Errorf("RunCycle error = %v, want wrapped %v", err, devErr)
	}
}

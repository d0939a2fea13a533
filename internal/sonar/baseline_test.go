package sonar

import "testing"

func TestBaselineReadyAfterExactSampleCount(t *testing.T) {
	b, err := NewBaselineCalibrator(5)
	if err != nil {
		t.Fatalf("NewBaselineCalibrator: %v", err)
	}

	samples := []float64{98, 102, 100, 97, 103}
	for i, s := range samples {
		if b.IsReady() {
			t.Fatalf("calibrator ready after %d of %d samples", i, len(samples))
		}
		b.Observe(s)
	}

	if !b.IsReady() {
		t.Fatal("calibrator should be ready after the final sample")
	}
	if got := b.Baseline(); got != 100 {
		t.Errorf("baseline should be the median: got %v, want 100", got)
	}
}

func TestBaselineLowerMedianOnEvenCount(t *testing.T) {
	b, err := NewBaselineCalibrator(4)
	if err != nil {
		t.Fatalf("NewBaselineCalibrator: %v", err)
	}
	for _, s := range []float64{400, 100, 300, 200} {
		b.Observe(s)
	}
	if got := b.Baseline(); got != 200 {
		t.Errorf("expected lower median 200 for even count, got %v", got)
	}
}

func TestBaselineRobustToOutlier(t *testing.T) {
	b, err := NewBaselineCalibrator(5)
	if err != nil {
		t.Fatalf("NewBaselineCalibrator: %v", err)
	}
	for _, s := range []float64{100, 101, 99, 100, 390} {
		b.Observe(s)
	}
	if got := b.Baseline(); got != 100 {
		t.Errorf("one outlier must not move the median baseline: got %v", got)
	}
}

func TestBaselineImmutableAfterReady(t *testing.T) {
	b, err := NewBaselineCalibrator(3)
	if err != nil {
		t.Fatalf("NewBaselineCalibrator: %v", err)
	}
	for _, s := range []float64{100, 100, 100} {
		b.Observe(s)
	}
	if !b.IsReady() {
		t.Fatal("calibrator should be ready")
	}

	// The buffer is single-use; later observations are no-ops.
	b.Observe(5)
	b.Observe(5)
	if got := b.Baseline(); got != 100 {
		t.Errorf("baseline mutated after readiness: got %v", got)
	}
}

func TestBaselineProgress(t *testing.T) {
	b, err := NewBaselineCalibrator(10)
	if err != nil {
		t.Fatalf("NewBaselineCalibrator: %v", err)
	}
	b.Observe(100)
	b.Observe(100)

	collected, target := b.Progress()
	if collected != 2 || target != 10 {
		t.Errorf("Progress() = %d, %d; want 2, 10", collected, target)
	}
}

func TestBaselineRejectsBadSampleCount(t *testing.T) {
	if _, err := NewBaselineCalibrator(0); err == nil {
		t.Error("expected error for zero sample count")
	}
}

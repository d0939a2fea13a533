package sonar

import (
	"context"
	"errors"
	"testing"
)

// stubSource replays a fixed echo sequence, one value per Measure call.
type stubSource struct {
	seq []EchoDuration
	idx int
	err error
}

func (s *stubSource) Measure(ctx context.Context) (EchoDuration, error) {
	if s.err != nil {
		return NoEcho, s.err
	}
	if s.idx >= len(s.seq) {
		return NoEcho, nil
	}
	d := s.seq[s.idx]
	s.idx++
	return d, nil
}

func testSamplerConfig(n int) SamplerConfig {
	return SamplerConfig{
		Subsamples: n,
		EchoMin:    100,
		EchoMax:    25000,
	}
}

func TestSamplerRejectsOutOfWindow(t *testing.T) {
	src := &stubSource{seq: []EchoDuration{50, 30000, 1200, NoEcho, 1100}}
	s, err := NewSampler(src, testSamplerConfig(5))
	if err != nil {
		t.Fatalf("NewSampler: %v", err)
	}

	res, err := s.Sample(context.Background())
	if err != nil {
		t.Fatalf("Sample: %v", err)
	}
	if !res.Valid {
		t.Fatal("expected valid result")
	}
	if res.Accepted != 2 {
		t.Errorf("expected 2 accepted sub-samples, got %d", res.Accepted)
	}
	if res.NoEchoCount != 1 {
		t.Errorf("expected 1 no-echo sub-sample, got %d", res.NoEchoCount)
	}
	// Survivors {1200, 1100}: lower median of an even count.
	if res.Echo != 1100 {
		t.Errorf("expected median 1100, got %d", res.Echo)
	}
}

func TestSamplerAllSubsamplesInvalid(t *testing.T) {
	src := &stubSource{seq: []EchoDuration{10, 99, NoEcho, 26000, NoEcho}}
	s, err := NewSampler(src, testSamplerConfig(5))
	if err != nil {
		t.Fatalf("NewSampler: %v", err)
	}

	res, err := s.Sample(context.Background())
	if err != nil {
		t.Fatalf("Sample: %v", err)
	}
	if res.Valid {
		t.Error("expected invalid result when zero sub-samples validate")
	}
	if res.Echo != NoEcho {
		t.Errorf("expected NoEcho sentinel, got %d", res.Echo)
	}
	if res.NoEchoCount != 2 {
		t.Errorf("expected 2 no-echo sub-samples, got %d", res.NoEchoCount)
	}
}

func TestSamplerMedianOrderIndependent(t *testing.T) {
	permutations := [][]EchoDuration{
		{900, 1100, 1000, 1300, 1200},
		{1300, 1200, 1100, 1000, 900},
		{1000, 900, 1300, 1100, 1200},
		{1200, 1300, 900, 1200, 1100}, // duplicate value, same median
	}
	want := []EchoDuration{1100, 1100, 1100, 1200}

	for i, perm := range permutations {
		src := &stubSource{seq: perm}
		s, err := NewSampler(src, testSamplerConfig(len(perm)))
		if err != nil {
			t.Fatalf("NewSampler: %v", err)
		}
		res, err := s.Sample(context.Background())
		if err != nil {
			t.Fatalf("Sample: %v", err)
		}
		if res.Echo != want[i] {
			t.Errorf("permutation %d: expected median %d, got %d", i, want[i], res.Echo)
		}
	}
}

func TestMedianDurationLowerTieBreak(t *testing.T) {
	got := medianDuration([]EchoDuration{400, 100, 300, 200})
	if got != 200 {
		t.Errorf("expected lower median 200 for even count, got %d", got)
	}
}

func TestSamplerPropagatesSourceError(t *testing.T) {
	sourceErr := errors.New("port gone")
	src := &stubSource{err: sourceErr}
	s, err := NewSampler(src, testSamplerConfig(3))
	if err != nil {
		t.Fatalf("NewSampler: %v", err)
	}

	_, err = s.Sample(context.Background())
	if !errors.Is(err, sourceErr) {
		t.Errorf("expected wrapped source error, got %v", err)
	}
}

func TestSamplerConfigValidate(t *testing.T) {
	cases := []struct {
		name    string
		cfg     SamplerConfig
		wantErr bool
	}{
		{"valid", SamplerConfig{Subsamples: 7, EchoMin: 50, EchoMax: 5500}, false},
		{"zero subsamples", SamplerConfig{Subsamples: 0, EchoMin: 50, EchoMax: 5500}, true},
		{"empty window", SamplerConfig{Subsamples: 7, EchoMin: 5500, EchoMax: 50}, true},
		{"negative min", SamplerConfig{Subsamples: 7, EchoMin: -1, EchoMax: 100}, true},
	}
	for _, tc := range cases {
		err := tc.cfg.Validate()
		if tc.wantErr && err == nil {
			t.Errorf("%s: expected error", tc.name)
		}
		if !tc.wantErr && err != nil {
			t.Errorf("%s: unexpected error %v", tc.name, err)
		}
	}
}

package sonar

// One-way propagation speeds in cm per microsecond. These are fixed
// deployment constants, not runtime measurements; pick the one matching the
// medium the transducer operates in.
const (
	SpeedFactorAir   = 0.0343
	SpeedFactorWater = 0.1482
)

// Converter maps echo durations to physical distances for a given medium and
// clamps them to the transducer's rated operating range.
type Converter struct {
	SpeedFactor float64 // One-way cm per microsecond
	MinDistCM   float64 // Rated minimum distance
	MaxDistCM   float64 // Rated maximum distance
}

// ToDistance converts a round-trip echo duration to a one-way distance in cm,
// clamped to [MinDistCM, MaxDistCM]. Pure: out-of-range input yields the
// clamped boundary value rather than an error.
func (c Converter) ToDistance(d EchoDuration) float64 {
	dist := float64(d) * c.SpeedFactor / 2
	if dist < c.MinDistCM {
		return c.MinDistCM
	}
	if dist > c.MaxDistCM {
		return c.MaxDistCM
	}
	return dist
}

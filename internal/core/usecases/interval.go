package usecases

// Speed category cutoffs in miles per hour. A sample below the stopped
// cutoff cannot meaningfully approach a boundary, and its GPS heading is
// mostly noise.
const (
	SpeedStoppedMaxMPH = 3.0
	SpeedSlowMaxMPH    = 25.0
	SpeedNormalMaxMPH  = 65.0
)

// Default clamp bounds for the re-check interval, in seconds.
const (
	DefaultMinIntervalSeconds = 30
	DefaultMaxIntervalSeconds = 3600
)

// IntervalPolicy decides how long to wait before the next evaluation given
// the distance to the nearest boundary and the current speed. Both inputs
// are nullable: nil distance means no boundary within the search radius,
// nil speed means the source did not report one.
type IntervalPolicy interface {
	Interval(distanceMiles, speedMPH *float64) int
	Clamp(seconds int) int
}

// intervalTable maps distance rows to speed columns, in seconds. Rows are
// the distance buckets below; columns are stopped, slow, normal, fast.
// Values grow with distance and shrink with speed in both directions, which
// keeps the policy monotonic.
var intervalTable = [5][4]int{
	{90, 30, 30, 30},         // under 2 miles
	{3600, 240, 240, 90},     // 2 to 6 miles
	{3600, 600, 600, 600},    // 6 to 20 miles
	{3600, 1200, 1200, 1200}, // 20 to 50 miles
	{3600, 1800, 1800, 1800}, // beyond 50 miles, or no boundary in range
}

const (
	colStopped = iota
	colSlow
	colNormal
	colFast
)

// CategoricalInterval is the default IntervalPolicy: a bucketed
// distance-by-speed table, damped by the estimated time to reach the
// boundary at the current speed, clamped to configured bounds.
type CategoricalInterval struct {
	MinSeconds int
	MaxSeconds int
}

// NewCategoricalInterval builds the default policy. Non-positive or
// inverted bounds fall back to the defaults.
func NewCategoricalInterval(minSeconds, maxSeconds int) *CategoricalInterval {
	if minSeconds <= 0 {
		minSeconds = DefaultMinIntervalSeconds
	}
	if maxSeconds <= 0 || maxSeconds < minSeconds {
		maxSeconds = DefaultMaxIntervalSeconds
	}
	return &CategoricalInterval{MinSeconds: minSeconds, MaxSeconds: maxSeconds}
}

// Interval returns the next re-check delay in seconds.
func (p *CategoricalInterval) Interval(distanceMiles, speedMPH *float64) int {
	secs := intervalTable[distanceRow(distanceMiles)][speedColumn(speedMPH)]

	// When both distance and speed are known and the sample is moving,
	// never wait longer than a quarter of the time it would take to reach
	// the boundary. The table alone is too coarse for a fast approach from
	// a far bucket.
	if distanceMiles != nil && speedMPH != nil && *speedMPH > SpeedStoppedMaxMPH {
		damped := int(*distanceMiles / *speedMPH * 3600 / 4)
		if damped < p.MinSeconds {
			damped = p.MinSeconds
		}
		if damped < secs {
			secs = damped
		}
	}

	return p.Clamp(secs)
}

// Clamp bounds an interval to the configured min/max.
func (p *CategoricalInterval) Clamp(seconds int) int {
	if seconds < p.MinSeconds {
		return p.MinSeconds
	}
	if seconds > p.MaxSeconds {
		return p.MaxSeconds
	}
	return seconds
}

func distanceRow(d *float64) int {
	if d == nil {
		return 4
	}
	switch {
	case *d < 2:
		return 0
	case *d < 6:
		return 1
	case *d < 20:
		return 2
	case *d < 50:
		return 3
	default:
		return 4
	}
}

func speedColumn(s *float64) int {
	if s == nil || *s < 0 {
		return colNormal
	}
	switch {
	case *s < SpeedStoppedMaxMPH:
		return colStopped
	case *s <= SpeedSlowMaxMPH:
		return colSlow
	case *s <= SpeedNormalMaxMPH:
		return colNormal
	default:
		return colFast
	}
}

// DistanceLabel names the distance bucket used in evaluation results.
func DistanceLabel(distanceMiles *float64) string {
	if distanceMiles == nil {
		return "unknown"
	}
	switch distanceRow(distanceMiles) {
	case 0:
		return "under_2mi"
	case 1:
		return "2_to_6mi"
	case 2:
		return "6_to_20mi"
	case 3:
		return "20_to_50mi"
	default:
		return "over_50mi"
	}
}

// SpeedLabel names the speed bucket used in evaluation results.
func SpeedLabel(speedMPH *float64) string {
	if speedMPH == nil || *speedMPH < 0 {
		return "unknown"
	}
	switch speedColumn(speedMPH) {
	case colStopped:
		return "stopped"
	case colSlow:
		return "slow"
	case colNormal:
		return "normal"
	default:
		return "fast"
	}
}

package bench

import "math"

// Stats accumulates request outcomes online. Elapsed statistics are computed
// over successful outcomes only, via Welford's algorithm, so no per-request
// samples are retained.
type Stats struct {
	total     int
	successes int

	mean float64
	m2   float64

	min float64
	max float64

	sumTokens int
	sumRate   float64
}

// NewStats creates an empty accumulator with min seeded at +Inf and max at 0.
func NewStats() *Stats {
	return &Stats{min: math.Inf(1)}
}

// Add records one outcome. Failed outcomes only increment the total count.
func (s *Stats) Add(o Outcome) {
	s.total++
	if !o.Success {
		return
	}

	s.successes++
	delta := o.Elapsed - s.mean
	s.mean += delta / float64(s.successes)
	s.m2 += delta * (o.Elapsed - s.mean)

	if o.Elapsed < s.min {
		s.min = o.Elapsed
	}
	if o.Elapsed > s.max {
		s.max = o.Elapsed
	}

	s.sumTokens += o.Tokens
	s.sumRate += o.TokensPerSecond
}

// Total returns the number of outcomes recorded.
func (s *Stats) Total() int { return s.total }

// Successes returns the number of successful outcomes recorded.
func (s *Stats) Successes() int { return s.successes }

// AvgElapsed is the mean elapsed time over successes; 0 when there are none.
func (s *Stats) AvgElapsed() float64 { return s.mean }

// MinElapsed is the smallest successful elapsed time; 0 (not +Inf) when
// there are no successes.
func (s *Stats) MinElapsed() float64 {
	if s.successes == 0 {
		return 0
	}
	return s.min
}

// MaxElapsed is the largest successful elapsed time.
func (s *Stats) MaxElapsed() float64 { return s.max }

// AvgTokens is the integer-truncating mean of generated tokens over
// successes.
func (s *Stats) AvgTokens() int {
	if s.successes == 0 {
		return 0
	}
	return s.sumTokens / s.successes
}

// AvgRate is the mean of per-request tokens-per-second values. Each request's
// rate is an equally weighted sample; this is not throughput recomputed from
// aggregate time.
func (s *Stats) AvgRate() float64 {
	if s.successes == 0 {
		return 0
	}
	return s.sumRate / float64(s.successes)
}

// StdDevElapsed is the population standard deviation of successful elapsed
// times; 0 with fewer than two successes.
func (s *Stats) StdDevElapsed() float64 {
	if s.successes == 0 {
		return 0
	}
	return math.Sqrt(s.m2 / float64(s.successes))
}

// Result renders the accumulated statistics as one batch result for c.
func (s *Stats) Result(c Case) BatchResult {
	return BatchResult{
		Engine:             c.Engine,
		PromptType:         c.PromptType,
		MaxTokens:          c.MaxTokens,
		Successful:         s.successes,
		Total:              s.total,
		AvgElapsed:         s.AvgElapsed(),
		MinElapsed:         s.MinElapsed(),
		MaxElapsed:         s.MaxElapsed(),
		AvgTokens:          s.AvgTokens(),
		AvgTokensPerSecond: s.AvgRate(),
		StdDevElapsed:      s.StdDevElapsed(),
	}
}

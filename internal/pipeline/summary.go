package pipeline

import "time"

// Summary counts the outcome of a run so far.
type Summary struct {
	RunID   string        `json:"run_id" yaml:"run_id"`
	Pages   int           `json:"pages" yaml:"pages"`
	Tiles   int           `json:"tiles" yaml:"tiles"`
	OK      int           `json:"ok" yaml:"ok"`
	Failed  int           `json:"failed" yaml:"failed"`
	Skipped int           `json:"skipped" yaml:"skipped"`
	Tokens  int           `json:"tokens" yaml:"tokens"`
	Started time.Time     `json:"started" yaml:"started"`
	Elapsed time.Duration `json:"elapsed_ns" yaml:"elapsed"`
}

// Summary returns a snapshot of the run's counters.
func (s *Scheduler) Summary() Summary {
	s.mu.Lock()
	defer s.mu.Unlock()
	sum := s.summary
	if !sum.Started.IsZero() {
		sum.Elapsed = s.clock.Now().Sub(sum.Started)
	}
	return sum
}

func (s *Scheduler) tally(res TileResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.summary.Started.IsZero() {
		s.summary.Started = s.clock.Now()
	}
	s.summary.Tiles++
	s.summary.Tokens += res.Tokens
	switch {
	case res.Skipped:
		s.summary.Skipped++
	case res.OK():
		s.summary.OK++
	default:
		s.summary.Failed++
	}
}

func (s *Scheduler) pageDone() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.summary.Pages++
}

package listing

import "sync/atomic"

// Sequencer hands out monotonically increasing request numbers so a view can
// tell whether a response still belongs to the newest request it issued.
type Sequencer struct {
	last atomic.Uint64
}

// Next reserves the next sequence number.
func (s *Sequencer) Next() uint64 {
	return s.last.Add(1)
}

// IsLatest reports whether seq is the most recently issued number.
func (s *Sequencer) IsLatest(seq uint64) bool {
	return s.last.Load() == seq
}

// Current returns the last issued number, 0 before the first request.
func (s *Sequencer) Current() uint64 {
	return s.last.Load()
}

package sse

// LineSource yields raw stream lines in network order.
type LineSource interface {
	Next() bool
	Text() string
	Err() error
}

// Scanner pulls lines from a LineSource and yields only decoded events. It stops
// for good after the first Completed or Failed event.
type Scanner struct {
	src   LineSource
	event *Event
	done  bool
}

// NewScanner wraps src.
func NewScanner(src LineSource) *Scanner {
	return &Scanner{src: src}
}

// Next advances to the next event. It returns false at the end of the source,
// after a terminal event has been returned, or when the source fails.
func (s *Scanner) Next() bool {
	if s.done {
		return false
	}
	for s.src.Next() {
		ev := Decode(s.src.Text())
		if ev == nil {
			continue
		}
		s.event = ev
		if ev.Kind != Delta {
			s.done = true
		}
		return true
	}
	s.done = true
	s.event = nil
	return false
}

// Event returns the event produced by the last call to Next.
func (s *Scanner) Event() *Event {
	return s.event
}

// Err returns the source's error, if any.
func (s *Scanner) Err() error {
	return s.src.Err()
}

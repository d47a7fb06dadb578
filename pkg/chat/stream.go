package chat

import (
	"context"
	"iter"
	"strings"

	"github.com/papercomputeco/parley/pkg/sse"
	"github.com/papercomputeco/parley/pkg/transport"
)

// Stream is the live sequence of text fragments of one exchange. It is finite and
// can be consumed once, either with Next/Text/Err or with Fragments.
//
// Fragments are handed over unbuffered: the background reader is never more than
// one decoded fragment ahead of the consumer. Completion travels over the same
// channel, so the turn is only committed once the consumer pulls past the last
// fragment, and Next reports the end after the commit. A failed or closed stream
// commits nothing.
type Stream struct {
	ctx    context.Context
	cancel context.CancelFunc

	fragments chan frame
	current   string
	err       error
}

// frame is one handoff from the producer; end marks a completed stream.
type frame struct {
	text string
	end  bool
}

func newStream(ctx context.Context, cancel context.CancelFunc) *Stream {
	return &Stream{
		ctx:       ctx,
		cancel:    cancel,
		fragments: make(chan frame),
	}
}

// produce runs on its own goroutine. finish is called with the terminal error (nil
// on success) just before the fragment channel is closed.
func (s *Stream) produce(lines *transport.Lines, commit func(reply string), finish func(err error)) {
	defer close(s.fragments)
	defer s.cancel()
	defer func() { finish(s.err) }()
	defer lines.Close()

	var reply strings.Builder
	events := sse.NewScanner(lines)
	for events.Next() {
		ev := events.Event()
		switch ev.Kind {
		case sse.Delta:
			if !s.send(frame{text: ev.Text}) {
				return
			}
			reply.WriteString(ev.Text)
		case sse.Failed:
			s.err = ev.Err
			return
		case sse.Completed:
			s.complete(reply.String(), commit)
			return
		}
	}

	if err := s.ctx.Err(); err != nil {
		s.err = err
		return
	}
	if err := events.Err(); err != nil {
		s.err = err
		return
	}
	// The body ended without the sentinel; a clean EOF still completes the turn.
	s.complete(reply.String(), commit)
}

// send hands f to the consumer, giving up when the stream is cancelled.
func (s *Stream) send(f frame) bool {
	select {
	case s.fragments <- f:
		return true
	case <-s.ctx.Done():
		s.err = s.ctx.Err()
		return false
	}
}

// complete waits for the consumer to pull the end marker before committing. Close
// cancels before it drains, so a marker taken by Close is seen as cancelled here.
func (s *Stream) complete(reply string, commit func(string)) {
	if !s.send(frame{end: true}) {
		return
	}
	if err := s.ctx.Err(); err != nil {
		s.err = err
		return
	}
	commit(reply)
}

// Next blocks until the next fragment is available. It returns false once the
// stream has ended; Err then reports why.
func (s *Stream) Next() bool {
	f, ok := <-s.fragments
	if !ok || f.end {
		// Wait for the producer to commit and exit.
		for range s.fragments {
		}
		s.current = ""
		return false
	}
	s.current = f.text
	return true
}

// Text returns the fragment read by the last call to Next.
func (s *Stream) Text() string {
	return s.current
}

// Err returns the error that ended the stream, or nil if it completed. It is only
// meaningful after Next has returned false.
func (s *Stream) Err() error {
	return s.err
}

// Close abandons the stream, tearing down the request and waiting for the
// background reader to exit. It must not be called concurrently with Next.
func (s *Stream) Close() error {
	s.cancel()
	for range s.fragments {
	}
	return nil
}

// Fragments adapts the stream to a range-over-func iterator. A failure is yielded
// once as the final element. Breaking out of the loop closes the stream.
func (s *Stream) Fragments() iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		defer s.Close()
		for s.Next() {
			if !yield(s.Text(), nil) {
				return
			}
		}
		if err := s.Err(); err != nil {
			yield("", err)
		}
	}
}

// Collect drains the stream and returns the concatenated reply.
func (s *Stream) Collect() (string, error) {
	var sb strings.Builder
	for text, err := range s.Fragments() {
		if err != nil {
			return sb.String(), err
		}
		sb.WriteString(text)
	}
	return sb.String(), nil
}

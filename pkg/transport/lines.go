package transport

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/papercomputeco/parley/pkg/llm"
)

// Lines is a lazy, finite sequence of raw response lines pulled from the network
// as they arrive. Nothing is read ahead beyond the current line. Close may be
// called from any goroutine; it cancels the request and releases the connection.
type Lines struct {
	body    io.ReadCloser
	scanner *bufio.Scanner
	cancel  context.CancelFunc

	closeOnce sync.Once
	closed    atomic.Bool
	err       error
}

func newLines(body io.ReadCloser, cancel context.CancelFunc) *Lines {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), MaxLineSize)
	return &Lines{body: body, scanner: scanner, cancel: cancel}
}

// Next advances to the next line. It returns false at the end of the body, after
// Close, or on a read failure reported by Err.
func (l *Lines) Next() bool {
	if l.closed.Load() || l.err != nil {
		return false
	}
	if l.scanner.Scan() {
		return true
	}
	if err := l.scanner.Err(); err != nil && !l.closed.Load() {
		l.err = fmt.Errorf("%w: read stream: %w", llm.ErrTransport, err)
	}
	return false
}

// Text returns the line produced by the last call to Next.
func (l *Lines) Text() string {
	return l.scanner.Text()
}

// Err returns the read failure that ended the sequence, if any. A sequence ended by
// Close reports no error.
func (l *Lines) Err() error {
	return l.err
}

// Close cancels the request and closes the body. It is safe to call more than once.
func (l *Lines) Close() error {
	var err error
	l.closeOnce.Do(func() {
		l.closed.Store(true)
		l.cancel()
		err = l.body.Close()
	})
	return err
}

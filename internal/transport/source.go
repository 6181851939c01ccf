package transport

import (
	"bufio"
	"io"
	"os"
)

// Source abstracts a blocking line-oriented input. ReadLine blocks until a
// line is available and returns io.EOF (or the underlying error) at end of
// stream.
type Source interface {
	ReadLine() ([]byte, error)
	Close() error
}

// LineSource reads newline-delimited input from an io.Reader.
type LineSource struct {
	scanner *bufio.Scanner
	closer  io.Closer
}

// NewLineSource wraps r. If r is also an io.Closer, Close is forwarded.
func NewLineSource(r io.Reader) *LineSource {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 64*1024), 1<<20)
	ls := &LineSource{scanner: s}
	if c, ok := r.(io.Closer); ok {
		ls.closer = c
	}
	return ls
}

// NewStdinSource returns the production stdin source.
func NewStdinSource() *LineSource {
	return NewLineSource(os.Stdin)
}

func (l *LineSource) ReadLine() ([]byte, error) {
	if !l.scanner.Scan() {
		if err := l.scanner.Err(); err != nil {
			return nil, err
		}
		return nil, io.EOF
	}
	// The scanner reuses its buffer between calls.
	line := make([]byte, len(l.scanner.Bytes()))
	copy(line, l.scanner.Bytes())
	return line, nil
}

func (l *LineSource) Close() error {
	if l.closer != nil {
		return l.closer.Close()
	}
	return nil
}

/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package stream

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/telekom/mailgun-notifier/pkg/signal"
)

// ErrMalformedSignal marks input that could not be decoded into signals. The
// Runner skips such input instead of stopping.
var ErrMalformedSignal = errors.New("malformed signal")

// Source yields batches of signals. Read returns io.EOF once the source is
// exhausted.
type Source interface {
	Name() string
	Read(ctx context.Context) ([]signal.Signal, error)
	Close() error
}

// Sink receives result signals. Implementations must be safe for concurrent use.
type Sink interface {
	Name() string
	Write(ctx context.Context, sigs []signal.Signal) error
	Close() error
}

// Processor turns one signal into one result signal.
type Processor interface {
	ProcessSignal(ctx context.Context, sig signal.Signal) signal.Signal
}

// maxLineSize bounds a single JSON line.
const maxLineSize = 4 * 1024 * 1024

// JSONSource reads newline-delimited JSON. Each line holds a signal object or
// an array of signal objects. Blank lines are skipped. A line longer than the
// size limit is discarded and reported as ErrMalformedSignal.
type JSONSource struct {
	name    string
	reader  *bufio.Reader
	maxLine int
}

// NewJSONSource reads from r. The reader is owned by the caller.
func NewJSONSource(name string, r io.Reader) *JSONSource {
	return &JSONSource{
		name:    name,
		reader:  bufio.NewReaderSize(r, 64*1024),
		maxLine: maxLineSize,
	}
}

func (s *JSONSource) Name() string { return s.name }

func (s *JSONSource) Read(ctx context.Context) ([]signal.Signal, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		line, tooLong, err := s.readLine()
		if tooLong {
			return nil, fmt.Errorf("%w: line exceeds %d bytes", ErrMalformedSignal, s.maxLine)
		}
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read from %s: %w", s.name, err)
		}

		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		sigs, err := signal.Decode(line)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedSignal, err)
		}
		return sigs, nil
	}
}

// readLine returns the next line. An oversized line is consumed up to its
// terminator and reported through tooLong. A final unterminated line is
// returned with a nil error; io.EOF follows on the next call.
func (s *JSONSource) readLine() (line []byte, tooLong bool, err error) {
	for {
		chunk, err := s.reader.ReadSlice('\n')
		if !tooLong {
			if len(line)+len(chunk) > s.maxLine {
				tooLong, line = true, nil
			} else {
				line = append(line, chunk...)
			}
		}

		switch {
		case errors.Is(err, bufio.ErrBufferFull):
			continue
		case err == nil:
			return line, tooLong, nil
		case errors.Is(err, io.EOF):
			if tooLong || len(line) > 0 {
				return line, tooLong, nil
			}
			return nil, false, io.EOF
		default:
			return nil, false, err
		}
	}
}

func (s *JSONSource) Close() error { return nil }

// JSONSink writes one JSON object per line. The writer is owned by the caller.
type JSONSink struct {
	name string
	mu   sync.Mutex
	enc  *json.Encoder
}

func NewJSONSink(name string, w io.Writer) *JSONSink {
	return &JSONSink{name: name, enc: json.NewEncoder(w)}
}

func (s *JSONSink) Name() string { return s.name }

func (s *JSONSink) Write(ctx context.Context, sigs []signal.Signal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sig := range sigs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.enc.Encode(sig); err != nil {
			return fmt.Errorf("failed to write result to %s: %w", s.name, err)
		}
	}
	return nil
}

func (s *JSONSink) Close() error { return nil }

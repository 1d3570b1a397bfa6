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

package signal

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Signal is a single structured event. Fields are opaque to the notifier and
// are only used as template context.
type Signal map[string]any

// Clone returns a shallow copy of the signal. A nil signal clones to an empty one.
func (s Signal) Clone() Signal {
	out := make(Signal, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// Result is the outcome of processing one signal.
type Result struct {
	// Error is 0 on success and 1 on failure.
	Error int `json:"error"`
	// Message is a human readable description of the outcome.
	Message string `json:"message"`
}

// Failed reports whether the result describes a failure.
func (r Result) Failed() bool {
	return r.Error != 0
}

// Signal converts the result into an outbound signal.
func (r Result) Signal() Signal {
	return Signal{
		"error":   r.Error,
		"message": r.Message,
	}
}

// IsFailure reports whether s carries a non-zero top-level "error" flag, as
// produced by Result.Signal or decoded from JSON.
func IsFailure(s Signal) bool {
	switch v := s["error"].(type) {
	case int:
		return v != 0
	case float64:
		return v != 0
	default:
		return false
	}
}

// Success builds a successful result.
func Success(message string) Result {
	return Result{Error: 0, Message: message}
}

// Failure builds a failed result from err. A nil error still yields a failure
// with a generic message so callers always get a well-formed event.
func Failure(err error) Result {
	if err == nil {
		return Result{Error: 1, Message: "unknown error"}
	}
	return Result{Error: 1, Message: err.Error()}
}

// Decode parses a JSON document holding either one signal object or an array
// of signal objects.
func Decode(data []byte) ([]Signal, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("empty signal document")
	}

	switch trimmed[0] {
	case '[':
		var signals []Signal
		if err := json.Unmarshal(trimmed, &signals); err != nil {
			return nil, fmt.Errorf("failed to decode signal list: %w", err)
		}
		for i, s := range signals {
			if s == nil {
				signals[i] = Signal{}
			}
		}
		return signals, nil
	case '{':
		var s Signal
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return nil, fmt.Errorf("failed to decode signal: %w", err)
		}
		return []Signal{s}, nil
	default:
		return nil, fmt.Errorf("signal document must be a JSON object or array")
	}
}

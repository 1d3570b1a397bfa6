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
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResult_Signal(t *testing.T) {
	assert.Equal(t, Signal{"error": 0, "message": "ok"}, Success("ok").Signal())
	assert.Equal(t, Signal{"error": 1, "message": "auth failed"}, Failure(errors.New("auth failed")).Signal())
	assert.True(t, Failure(nil).Failed())
	assert.False(t, Success("ok").Failed())
}

func TestIsFailure(t *testing.T) {
	assert.False(t, IsFailure(Success("ok").Signal()))
	assert.True(t, IsFailure(Failure(errors.New("x")).Signal()))
	assert.True(t, IsFailure(Signal{"error": float64(1)}))
	assert.False(t, IsFailure(Signal{"error": float64(0)}))
	assert.False(t, IsFailure(Signal{"error": "1"}))
	assert.False(t, IsFailure(Signal{}))
}

func TestClone_DoesNotShareMap(t *testing.T) {
	orig := Signal{"a": 1}
	cp := orig.Clone()
	cp["b"] = 2

	assert.NotContains(t, orig, "b")
	assert.Equal(t, Signal{}, Signal(nil).Clone())
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    []Signal
		wantErr bool
	}{
		{
			name:  "single object",
			input: `{"email": "a@x.com"}`,
			want:  []Signal{{"email": "a@x.com"}},
		},
		{
			name:  "array of objects",
			input: ` [{"a": "1"}, {"b": "2"}] `,
			want:  []Signal{{"a": "1"}, {"b": "2"}},
		},
		{
			name:  "null entries become empty signals",
			input: `[null]`,
			want:  []Signal{{}},
		},
		{name: "empty document", input: "   ", wantErr: true},
		{name: "scalar", input: `42`, wantErr: true},
		{name: "broken json", input: `{"a":`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode([]byte(tt.input))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

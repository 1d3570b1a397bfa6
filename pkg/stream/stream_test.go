package stream

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telekom/mailgun-notifier/pkg/signal"
)

func TestJSONSource_Read(t *testing.T) {
	input := strings.Join([]string{
		`{"email":"a@example.com"}`,
		``,
		`   `,
		`[{"email":"b@example.com"},{"email":"c@example.com"}]`,
		`not json`,
		`{"email":"d@example.com"}`,
	}, "\n")
	src := NewJSONSource("stdin", strings.NewReader(input))
	ctx := context.Background()

	sigs, err := src.Read(ctx)
	require.NoError(t, err)
	require.Len(t, sigs, 1)
	assert.Equal(t, "a@example.com", sigs[0]["email"])

	sigs, err = src.Read(ctx)
	require.NoError(t, err)
	require.Len(t, sigs, 2)
	assert.Equal(t, "c@example.com", sigs[1]["email"])

	_, err = src.Read(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMalformedSignal))

	sigs, err = src.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, "d@example.com", sigs[0]["email"])

	_, err = src.Read(ctx)
	assert.ErrorIs(t, err, io.EOF)
	assert.NoError(t, src.Close())
	assert.Equal(t, "stdin", src.Name())
}

func TestJSONSource_OversizedLineIsSkipped(t *testing.T) {
	input := strings.Join([]string{
		`{"id":1}`,
		`{"id":"` + strings.Repeat("x", 200) + `"}`,
		`{"id":3}`,
		`{"id":"` + strings.Repeat("y", 200) + `"}`,
	}, "\n")
	src := NewJSONSource("stdin", strings.NewReader(input))
	src.maxLine = 64
	ctx := context.Background()

	sigs, err := src.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, float64(1), sigs[0]["id"])

	_, err = src.Read(ctx)
	require.ErrorIs(t, err, ErrMalformedSignal)
	assert.Contains(t, err.Error(), "line exceeds 64 bytes")

	sigs, err = src.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, float64(3), sigs[0]["id"])

	// unterminated oversized last line
	_, err = src.Read(ctx)
	require.ErrorIs(t, err, ErrMalformedSignal)

	_, err = src.Read(ctx)
	assert.ErrorIs(t, err, io.EOF)
}

func TestJSONSource_LineLongerThanReadBuffer(t *testing.T) {
	long := `{"id":"` + strings.Repeat("z", 100*1024) + `"}`
	src := NewJSONSource("stdin", strings.NewReader(long+"\n"+`{"id":2}`+"\n"))

	sigs, err := src.Read(context.Background())
	require.NoError(t, err)
	assert.Len(t, sigs[0]["id"], 100*1024)

	sigs, err = src.Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, float64(2), sigs[0]["id"])
}

func TestJSONSource_CancelledContext(t *testing.T) {
	src := NewJSONSource("stdin", strings.NewReader(`{"a":1}`))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := src.Read(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestJSONSink_Write(t *testing.T) {
	var buf bytes.Buffer
	sink := NewJSONSink("stdout", &buf)

	err := sink.Write(context.Background(), []signal.Signal{
		signal.Success("sent").Signal(),
		signal.Failure(errors.New("boom")).Signal(),
	})
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.JSONEq(t, `{"error":0,"message":"sent"}`, lines[0])
	assert.JSONEq(t, `{"error":1,"message":"boom"}`, lines[1])
	assert.NoError(t, sink.Close())
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestJSONSink_WriteError(t *testing.T) {
	sink := NewJSONSink("out", failingWriter{})
	err := sink.Write(context.Background(), []signal.Signal{{"a": 1}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
}

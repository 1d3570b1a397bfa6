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

package mailgun

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/telekom/mailgun-notifier/pkg/mail"
)

type recordedRequest struct {
	Method    string
	Path      string
	User      string
	Password  string
	UserAgent string
	Form      url.Values
}

// fakeMailgun records requests and answers with a fixed status and body.
type fakeMailgun struct {
	mu       sync.Mutex
	requests []recordedRequest
	status   int
	body     string
	ctype    string
}

func (f *fakeMailgun) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	user, pass, _ := r.BasicAuth()
	_ = r.ParseForm()
	f.mu.Lock()
	f.requests = append(f.requests, recordedRequest{
		Method:    r.Method,
		Path:      r.URL.Path,
		User:      user,
		Password:  pass,
		UserAgent: r.Header.Get("User-Agent"),
		Form:      r.PostForm,
	})
	f.mu.Unlock()

	ctype := f.ctype
	if ctype == "" {
		ctype = "application/json"
	}
	w.Header().Set("Content-Type", ctype)
	w.WriteHeader(f.status)
	_, _ = w.Write([]byte(f.body))
}

func newFakeMailgun(t *testing.T, status int, body string) (*fakeMailgun, *httptest.Server) {
	t.Helper()
	f := &fakeMailgun{status: status, body: body}
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	return f, srv
}

func newTestBackend(t *testing.T, srv *httptest.Server) *Backend {
	t.Helper()
	b, err := NewBackend(Config{BaseURL: srv.URL + "/v3", UserAgent: "test-agent"}, zaptest.NewLogger(t).Sugar())
	require.NoError(t, err)
	return b
}

var testCreds = mail.Credentials{Domain: "mg.example.com", APIKey: "key-123"}

func TestConn_SendPostsForm(t *testing.T) {
	fake, srv := newFakeMailgun(t, http.StatusOK, `{"id":"<20260101.1@mg.example.com>","message":"Queued. Thank you."}`)
	b := newTestBackend(t, srv)

	s, err := b.Open(context.Background(), testCreds)
	require.NoError(t, err)
	defer s.Close()

	msg := mail.NewMessage("<no-reply@mydomain.com>",
		[]string{"a@x.com", "b@x.com"}, nil, nil,
		mail.Content{Subject: "Subject", Text: "Message text", HTML: "<b>Message HTML</b>"})

	resp, err := s.(*Conn).SendMessage(context.Background(), msg)
	require.NoError(t, err)
	assert.Equal(t, "<20260101.1@mg.example.com>", resp.ID)
	assert.Equal(t, "Queued. Thank you.", resp.Message)

	require.Len(t, fake.requests, 1)
	req := fake.requests[0]
	assert.Equal(t, http.MethodPost, req.Method)
	assert.Equal(t, "/v3/mg.example.com/messages", req.Path)
	assert.Equal(t, "api", req.User)
	assert.Equal(t, "key-123", req.Password)
	assert.Equal(t, "test-agent", req.UserAgent)
	assert.Equal(t, []string{"a@x.com", "b@x.com"}, req.Form["to"])
	assert.Equal(t, "<no-reply@mydomain.com>", req.Form.Get("from"))
	assert.Equal(t, "Subject", req.Form.Get("subject"))
	assert.Equal(t, "Message text", req.Form.Get("text"))
	assert.Equal(t, "<b>Message HTML</b>", req.Form.Get("html"))
	_, hasCC := req.Form["cc"]
	_, hasBCC := req.Form["bcc"]
	assert.False(t, hasCC)
	assert.False(t, hasBCC)
}

func TestConn_SendAPIErrors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		ctype   string
		wantMsg string
	}{
		{name: "json message", status: http.StatusUnauthorized, body: `{"message":"Invalid private key"}`, wantMsg: "Invalid private key"},
		{name: "plain body", status: http.StatusBadRequest, body: "'to' parameter is missing", ctype: "text/plain", wantMsg: "'to' parameter is missing"},
		{name: "empty body", status: http.StatusBadGateway, body: "", wantMsg: "502 Bad Gateway"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake, srv := newFakeMailgun(t, tt.status, tt.body)
			fake.ctype = tt.ctype
			b := newTestBackend(t, srv)

			s, err := b.Open(context.Background(), testCreds)
			require.NoError(t, err)
			defer s.Close()

			err = s.Send(context.Background(), mail.NewMessage("f@x.com", []string{"t@x.com"}, nil, nil, mail.Content{Subject: "s"}))
			require.Error(t, err)

			var apiErr *APIError
			require.True(t, errors.As(err, &apiErr))
			assert.Equal(t, tt.status, apiErr.StatusCode)
			assert.Equal(t, tt.wantMsg, apiErr.Message)
		})
	}
}

func TestConn_SendAfterClose(t *testing.T) {
	fake, srv := newFakeMailgun(t, http.StatusOK, `{}`)
	b := newTestBackend(t, srv)

	s, err := b.Open(context.Background(), testCreds)
	require.NoError(t, err)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	err = s.Send(context.Background(), mail.NewMessage("f@x.com", nil, nil, nil, mail.Content{}))
	assert.ErrorIs(t, err, mail.ErrSessionClosed)
	assert.Empty(t, fake.requests)
}

func TestConn_SendHonoursContext(t *testing.T) {
	_, srv := newFakeMailgun(t, http.StatusOK, `{}`)
	b := newTestBackend(t, srv)

	s, err := b.Open(context.Background(), testCreds)
	require.NoError(t, err)
	defer s.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = s.Send(ctx, mail.NewMessage("f@x.com", []string{"t@x.com"}, nil, nil, mail.Content{}))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBackend_Open(t *testing.T) {
	_, srv := newFakeMailgun(t, http.StatusOK, `{}`)
	b := newTestBackend(t, srv)

	_, err := b.Open(context.Background(), mail.Credentials{APIKey: "k"})
	assert.EqualError(t, err, "mail domain is required")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = b.Open(ctx, testCreds)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewBackend(t *testing.T) {
	b, err := NewBackend(Config{}, nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultBaseURL, b.BaseURL())
	assert.Equal(t, "api.mailgun.net", b.Name())
	assert.Equal(t, DefaultTimeout, b.timeout)
	assert.Contains(t, b.userAgent, "mailgun-notifier/")

	b, err = NewBackend(Config{BaseURL: EUBaseURL + "/", Timeout: time.Second}, nil)
	require.NoError(t, err)
	assert.Equal(t, EUBaseURL, b.BaseURL())
	assert.Equal(t, "api.eu.mailgun.net", b.Name())
	assert.Equal(t, time.Second, b.timeout)

	_, err = NewBackend(Config{BaseURL: "not a url"}, nil)
	assert.Error(t, err)
}

func TestDeliverThroughAPI(t *testing.T) {
	fake, srv := newFakeMailgun(t, http.StatusOK, `{"id":"1","message":"Queued"}`)
	b := newTestBackend(t, srv)

	msg := mail.NewMessage("f@x.com", []string{"t@x.com"}, []string{"c@x.com"}, []string{"h@x.com"}, mail.Content{Subject: "s", Text: "t"})
	require.NoError(t, mail.Deliver(context.Background(), b, testCreds, msg, zaptest.NewLogger(t).Sugar()))

	require.Len(t, fake.requests, 1)
	assert.Equal(t, []string{"c@x.com"}, fake.requests[0].Form["cc"])
	assert.Equal(t, []string{"h@x.com"}, fake.requests[0].Form["bcc"])
	_, hasHTML := fake.requests[0].Form["html"]
	assert.False(t, hasHTML)
}

func TestAPIError_Error(t *testing.T) {
	err := &APIError{StatusCode: 401, Message: "Forbidden"}
	assert.Equal(t, "mailgun API error (401): Forbidden", err.Error())
}

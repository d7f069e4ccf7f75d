package inference

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"chat-relay/internal/domain"
	"chat-relay/internal/testutil"
)

const testModel = "us.amazon.nova-lite-v1:0"

// ---------------------------------------------------------------------------
// NewClient
// ---------------------------------------------------------------------------

func TestNewClient_Validation(t *testing.T) {
	cases := []struct {
		name     string
		endpoint string
		want     string
	}{
		{"empty", "  ", "must not be empty"},
		{"no scheme", "example.com/generate", "http or https"},
		{"wrong scheme", "ftp://example.com/generate", "http or https"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewClient(tc.endpoint)
			require.Error(t, err)
			require.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestNewClient_Defaults(t *testing.T) {
	c, err := NewClient(" https://inference.example.test/generate ")
	require.NoError(t, err)
	require.Equal(t, "https://inference.example.test/generate", c.url)
	require.Zero(t, c.httpClient.Timeout, "deadline comes from the caller's context")
}

// ---------------------------------------------------------------------------
// Client.Generate
// ---------------------------------------------------------------------------

func newTestClient(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()
	c, err := NewClient(srv.URL+"/generate", WithHTTPClient(&http.Client{Timeout: 2 * time.Second}))
	require.NoError(t, err)
	return c
}

func TestClient_Generate_HappyPath(t *testing.T) {
	history := domain.Conversation{json.RawMessage(`{"role":"user","content":"hi"}`), json.RawMessage(`{"role":"assistant","content":"hello"}`)}
	msgs := history.Append(domain.Turn{Role: domain.RoleUser, Content: "how are you?"})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/generate", r.URL.Path)
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.JSONEq(t, `{
			"model_id": "us.amazon.nova-lite-v1:0",
			"messages": [
				{"role":"user","content":"hi"},
				{"role":"assistant","content":"hello"},
				{"role":"user","content":"how are you?"}
			]
		}`, string(body))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success":true,"response":"fine, thanks"}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	out, err := c.Generate(context.Background(), testModel, msgs)
	require.NoError(t, err)
	require.Equal(t, "fine, thanks", out)
}

func TestClient_Generate_EmptyModel(t *testing.T) {
	c, err := NewClient("https://inference.example.test/generate")
	require.NoError(t, err)
	_, err = c.Generate(context.Background(), "", nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "model id")
}

func TestClient_Generate_NoValidResponse(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"success false", `{"success":false}`},
		{"success missing", `{"response":"orphan"}`},
		{"response missing", `{"success":true}`},
		{"response empty", `{"success":true,"response":""}`},
		{"null body", `null`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			_, err := newTestClient(t, srv).Generate(context.Background(), testModel, nil)
			require.ErrorIs(t, err, domain.ErrNoValidResponse)
		})
	}
}

func TestClient_Generate_InvalidJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`not-a-json`))
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv).Generate(context.Background(), testModel, nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "decode response")
}

func TestClient_Generate_Non2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`ngrok tunnel offline`))
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv).Generate(context.Background(), testModel, nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "unexpected status 502")
	require.Contains(t, err.Error(), "ngrok tunnel offline")

	var statusErr *HTTPStatusError
	require.True(t, errors.As(err, &statusErr))
	require.Equal(t, http.StatusBadGateway, statusErr.HTTPStatusCode())
}

func TestClient_Generate_NetworkError(t *testing.T) {
	c, err := NewClient("http://127.0.0.1:1/generate", WithHTTPClient(&http.Client{Timeout: 100 * time.Millisecond}))
	require.NoError(t, err)

	_, err = c.Generate(context.Background(), testModel, nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "request failed")
}

func TestClient_Generate_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		_, _ = w.Write([]byte(`{"success":true,"response":"late"}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	c.httpClient = &http.Client{Timeout: 50 * time.Millisecond}
	_, err := c.Generate(context.Background(), testModel, nil)
	require.Error(t, err)
}

func TestClient_Generate_ContextDeadline(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		_, _ = w.Write([]byte(`{"success":true,"response":"late"}`))
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := newTestClient(t, srv).Generate(ctx, testModel, nil)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

// ---------------------------------------------------------------------------
// Recorded interactions
// ---------------------------------------------------------------------------

func newRecordedClient(t *testing.T, cassette string) *Client {
	t.Helper()
	r := testutil.NewVCRRecorder(t, cassette)
	c, err := NewClient("https://inference.example.test/generate", WithHTTPClient(testutil.VCRHTTPClient(r)))
	require.NoError(t, err)
	return c
}

func TestClient_Generate_Recorded(t *testing.T) {
	c := newRecordedClient(t, "generate_success")
	msgs := domain.Conversation(nil).Append(domain.Turn{Role: domain.RoleUser, Content: "What is the capital of Japan?"})

	out, err := c.Generate(context.Background(), testModel, msgs)
	require.NoError(t, err)
	require.Equal(t, "The capital of Japan is Tokyo.", out)
}

func TestClient_Generate_RecordedUnsuccessful(t *testing.T) {
	c := newRecordedClient(t, "generate_unsuccessful")
	msgs := domain.Conversation(nil).Append(domain.Turn{Role: domain.RoleUser, Content: "hello"})

	_, err := c.Generate(context.Background(), testModel, msgs)
	require.ErrorIs(t, err, domain.ErrNoValidResponse)
}

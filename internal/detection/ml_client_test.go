package detection

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func classifierStub(t *testing.T, result string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/predict", r.URL.Path)
		assert.NotEmpty(t, r.URL.Query().Get("feature"))
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"result": result})
	}))
}

func TestMLClient_PhishingVerdict(t *testing.T) {
	srv := classifierStub(t, "Phishing Site Detected")
	defer srv.Close()

	cli := NewMLClient(srv.URL, 0)
	require.True(t, cli.Enabled())

	verdict, err := cli.Classify(context.Background(), "http://evil.example/login")
	require.NoError(t, err)

	assert.True(t, verdict.IsPhishing)
	assert.Equal(t, 80, verdict.Score)
	assert.Equal(t, ModelML, verdict.Model)
	assert.Contains(t, verdict.Reasons, "ML model verdict: Phishing Site Detected")
	assert.Contains(t, verdict.Reasons, "ML endpoint: "+srv.URL)
}

func TestMLClient_BenignVerdict(t *testing.T) {
	srv := classifierStub(t, "Legitimate")
	defer srv.Close()

	verdict, err := NewMLClient(srv.URL, 0).Classify(context.Background(), "https://example.com")
	require.NoError(t, err)

	assert.False(t, verdict.IsPhishing)
	assert.Equal(t, 10, verdict.Score)
}

func TestMLClient_EmptyResultReportedAsUnknown(t *testing.T) {
	srv := classifierStub(t, "")
	defer srv.Close()

	verdict, err := NewMLClient(srv.URL, 0).Classify(context.Background(), "https://example.com")
	require.NoError(t, err)

	assert.False(t, verdict.IsPhishing)
	assert.Contains(t, verdict.Reasons, "ML model verdict: Unknown")
}

func TestMLClient_NonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := NewMLClient(srv.URL, 0).Classify(context.Background(), "https://example.com")
	assert.Error(t, err)
}

func TestMLClient_MalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json"))
	}))
	defer srv.Close()

	_, err := NewMLClient(srv.URL, 0).Classify(context.Background(), "https://example.com")
	assert.Error(t, err)
}

func TestMLClient_ServerDown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	_, err := NewMLClient(srv.URL, 0).Classify(context.Background(), "https://example.com")
	assert.Error(t, err)
}

func TestMLClient_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	_, err := NewMLClient(srv.URL, 20*time.Millisecond).Classify(context.Background(), "https://example.com")
	assert.Error(t, err)
}

func TestMLClient_NilIsDisabled(t *testing.T) {
	var cli *MLClient
	assert.False(t, cli.Enabled())
	assert.False(t, NewMLClient("", 0).Enabled())
}

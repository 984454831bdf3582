package main

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBodiesEqualIgnoresVolatileKeys(t *testing.T) {
	a := []byte(`{"progress":50,"updatedAt":"2024-01-01","lessons":[{"id":"x"}]}`)
	b := []byte(`{"progress":50.0,"updatedAt":"2025-02-02","lessons":[{"id":"x"}]}`)

	assert.False(t, bodiesEqual(a, b, nil))
	assert.True(t, bodiesEqual(a, b, []string{"updatedAt"}))
	assert.False(t, bodiesEqual(a, []byte("not json"), nil))
}

func TestUnwrapData(t *testing.T) {
	assert.JSONEq(t, `{"id":"e-1"}`, string(unwrapData([]byte(`{"data":{"id":"e-1"},"meta":{"x":1}}`))))
	assert.Equal(t, `[1,2]`, string(unwrapData([]byte(`[1,2]`))))
}

func TestCompareReplaysBodyAndTokens(t *testing.T) {
	var goAuth, legacyAuth string
	var goBody []byte
	goSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		goAuth = r.Header.Get("Authorization")
		goBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"data":{"enrollment":{"progress":100}},"meta":{"processing_time_ms":3}}`))
	}))
	defer goSrv.Close()
	legacySrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		legacyAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"enrollment":{"progress":100.0}}`))
	}))
	defer legacySrv.Close()

	cmp := &comparer{
		client: goSrv.Client(),
		goSide: endpoint{base: goSrv.URL, token: "go-token"},
		legacy: endpoint{base: legacySrv.URL, token: "legacy-token"},
	}
	res := cmp.compare(target{
		Method: "post",
		Path:   "get-enrollment",
		Body:   json.RawMessage(`{"enrollmentId":"e-1"}`),
		Unwrap: true,
	})

	require.NoError(t, res.Error)
	assert.True(t, res.StatusMatch)
	assert.True(t, res.BodyMatch)
	assert.Equal(t, "Bearer go-token", goAuth)
	assert.Equal(t, "Bearer legacy-token", legacyAuth)
	assert.JSONEq(t, `{"enrollmentId":"e-1"}`, string(goBody))

	var out bytes.Buffer
	printReport(&out, []comparison{res})
	assert.Contains(t, out.String(), "[OK] post get-enrollment")
}

func TestCompareReportsUnreachableSide(t *testing.T) {
	cmp := &comparer{
		client: http.DefaultClient,
		goSide: endpoint{base: "http://127.0.0.1:1"},
		legacy: endpoint{base: "http://127.0.0.1:1"},
	}
	res := cmp.compare(target{Method: "GET", Path: "/courses"})
	assert.Error(t, res.Error)
}

func TestLoadTargets(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "targets.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"targets":[]}`), 0o600))
	_, err := loadTargets(path)
	assert.Error(t, err)

	require.NoError(t, os.WriteFile(path, []byte(`{"targets":[{"method":"POST","path":"/enroll","critical":true}]}`), 0o600))
	targets, err := loadTargets(path)
	require.NoError(t, err)
	assert.True(t, targets[0].Critical)
}

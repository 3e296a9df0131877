package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sseServer(t *testing.T, parts ...string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		for _, p := range parts {
			b, _ := json.Marshal(map[string]any{
				"choices": []any{map[string]any{"delta": map[string]string{"content": p}}},
			})
			fmt.Fprintf(w, "data: %s\n\n", b)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	t.Cleanup(srv.Close)
	return srv
}

func useBackend(t *testing.T, url string) []string {
	t.Helper()
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envFile, nil, 0o600))
	t.Setenv("OPENAI_API_KEY", "sk-test-0123456789")
	t.Setenv("OPENAI_BASE_URL", url)
	return []string{"--env-file", envFile, "--api-key-path", filepath.Join(dir, "missing")}
}

func TestExplainStdin(t *testing.T) {
	srv := sseServer(t, "A **qubit** ", "is a quantum bit.")
	args := append([]string{"luxselect-explain"}, useBackend(t, srv.URL)...)

	var out bytes.Buffer
	err := runWithArgs(args, strings.NewReader("  qubit \n"), &out)
	require.NoError(t, err)
	assert.Equal(t, "A **qubit** is a quantum bit.\n", out.String())
}

func TestExplainJSON(t *testing.T) {
	srv := sseServer(t, "Entropy ", "measures disorder.")
	dir := t.TempDir()
	input := filepath.Join(dir, "input.txt")
	require.NoError(t, os.WriteFile(input, []byte("entropy"), 0o600))
	args := append([]string{"luxselect-explain", "--file", input, "--json"}, useBackend(t, srv.URL)...)

	var out bytes.Buffer
	require.NoError(t, runWithArgs(args, strings.NewReader(""), &out))

	var res Result
	require.NoError(t, json.Unmarshal(out.Bytes(), &res))
	assert.Equal(t, "entropy", res.Input)
	assert.Equal(t, "Entropy measures disorder.", res.Explanation)
	assert.Equal(t, len([]rune(res.Explanation)), res.CharCount)
	assert.False(t, res.Cached)
}

func TestExplainBlocksSecrets(t *testing.T) {
	srv := sseServer(t, "never sent")
	args := append([]string{"luxselect-explain"}, useBackend(t, srv.URL)...)

	var out bytes.Buffer
	err := runWithArgs(args, strings.NewReader("key sk-abcdefghijklmnopqrstuvwx"), &out)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "api key")
	assert.Empty(t, out.String())
}

func TestExplainEmptyInput(t *testing.T) {
	srv := sseServer(t)
	args := append([]string{"luxselect-explain"}, useBackend(t, srv.URL)...)

	err := runWithArgs(args, strings.NewReader(" \n\t"), &bytes.Buffer{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty")
}

func TestExplainRejectedKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"error":{"message":"bad key"}}`)
	}))
	defer srv.Close()
	args := append([]string{"luxselect-explain"}, useBackend(t, srv.URL)...)

	err := runWithArgs(args, strings.NewReader("hello world"), &bytes.Buffer{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "request_rejected")
}

func TestNormalizeLegacyArgs(t *testing.T) {
	got := normalizeLegacyArgs([]string{"luxselect-explain", "-file", "x.txt", "-json=true", "-v", "--verbose"})
	assert.Equal(t, []string{"luxselect-explain", "--file", "x.txt", "--json=true", "-v", "--verbose"}, got)
}

package runtimeinit

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"luxselect/src/config"
)

func setup(t *testing.T, baseURL string) Options {
	t.Helper()
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envFile, nil, 0o600))
	t.Setenv("OPENAI_API_KEY", "sk-test-0123456789")
	t.Setenv("OPENAI_BASE_URL", baseURL)
	return Options{
		LoadOptions: config.LoadOptions{
			EnvFileOverride:    envFile,
			APIKeyPathOverride: filepath.Join(dir, "missing-key"),
		},
		PingTimeout:   2 * time.Second,
		InitClipboard: func() error { return nil },
	}
}

func models(status int) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		_, _ = w.Write([]byte(`{"data":[]}`))
	}))
}

func TestBootstrap(t *testing.T) {
	srv := models(http.StatusOK)
	defer srv.Close()

	rt, err := Bootstrap(context.Background(), setup(t, srv.URL))
	require.NoError(t, err)
	defer rt.Close()

	assert.Equal(t, srv.URL, rt.Config.BaseURL)
	assert.NotNil(t, rt.LLM)
}

func TestBootstrapRejectedKeyIsFatal(t *testing.T) {
	srv := models(http.StatusUnauthorized)
	defer srv.Close()

	_, err := Bootstrap(context.Background(), setup(t, srv.URL))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "startup check failed")
}

func TestBootstrapUnreachableBackendOnlyWarns(t *testing.T) {
	srv := models(http.StatusServiceUnavailable)
	defer srv.Close()

	opts := setup(t, srv.URL)
	rt, err := Bootstrap(context.Background(), opts)
	require.NoError(t, err)
	rt.Close()
}

func TestBootstrapInvalidConfig(t *testing.T) {
	opts := setup(t, "not a url")
	opts.SkipPing = true

	_, err := Bootstrap(context.Background(), opts)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "OPENAI_BASE_URL")
}

func TestBootstrapClipboardFailure(t *testing.T) {
	opts := setup(t, "http://127.0.0.1:1")
	opts.SkipPing = true
	opts.InitClipboard = func() error { return errors.New("no display") }

	_, err := Bootstrap(context.Background(), opts)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no display")
}

func TestClientOptionsDisablesCache(t *testing.T) {
	cfg := &config.Config{EnableCache: false, CacheMaxSize: 50, CacheTTL: time.Minute}
	assert.Zero(t, ClientOptions(cfg).CacheSize)

	cfg.EnableCache = true
	o := ClientOptions(cfg)
	assert.Equal(t, 50, o.CacheSize)
	assert.Equal(t, time.Minute, o.CacheTTL)
}

// Package runtimeinit performs the startup sequence shared by every entry point:
// configuration, logging, the AI backend check and clipboard access.
package runtimeinit

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"luxselect/src/clipboard"
	"luxselect/src/config"
	"luxselect/src/failure"
	"luxselect/src/llm"
	"luxselect/src/logutil"
)

type Options struct {
	LoadOptions config.LoadOptions
	// SkipPing skips the startup request to the AI backend.
	SkipPing    bool
	PingTimeout time.Duration
	// InitClipboard defaults to clipboard.Init.
	InitClipboard func() error
}

// Runtime is what Bootstrap hands to the entry point.
type Runtime struct {
	Config *config.Config
	LLM    *llm.Client

	flushLogs func()
}

// Close flushes the logger and restores the previous globals.
func (r *Runtime) Close() {
	if r.flushLogs != nil {
		r.flushLogs()
	}
}

func Bootstrap(ctx context.Context, opts Options) (*Runtime, error) {
	cfg, err := config.LoadWithOptions(opts.LoadOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	_, flush := logutil.Setup(logutil.Options{
		Debug:             cfg.Debug,
		EnableFileLogging: cfg.EnableFileLogging,
		File:              cfg.LogFile,
		MaxSizeMB:         cfg.LogMaxSizeMB,
		MaxBackups:        cfg.LogBackupCount,
	})
	rt := &Runtime{Config: cfg, flushLogs: flush}

	if err := cfg.Validate(); err != nil {
		if cfg.APIKey == "" {
			err = fmt.Errorf("%w. Set %s or put the key in %s", err, config.APIKeyEnvVar, cfg.APIKeyPath)
		}
		rt.Close()
		return nil, err
	}
	zap.S().Infow("configuration loaded",
		"envFile", cfg.EnvFile,
		"configFile", cfg.ConfigFile,
		"baseURL", cfg.BaseURL,
		"model", cfg.Model,
		"apiKey", logutil.RedactKey(cfg.APIKey),
		"privacyFilter", cfg.EnablePrivacyFilter,
		"cache", cfg.EnableCache,
		"followUps", cfg.EnableFollowUps)

	rt.LLM = llm.New(ClientOptions(cfg))

	if !opts.SkipPing {
		timeout := opts.PingTimeout
		if timeout <= 0 {
			timeout = cfg.Timeout
		}
		pingCtx, cancel := context.WithTimeout(ctx, timeout)
		err := rt.LLM.Ping(pingCtx)
		cancel()
		switch {
		case err == nil:
			zap.S().Info("AI backend reachable")
		case failure.KindOf(err) == failure.RequestRejected:
			rt.Close()
			return nil, fmt.Errorf("startup check failed, verify the API key and model: %w", err)
		default:
			zap.S().Warnw("AI backend not reachable yet, continuing", "error", err)
		}
	}

	initClipboard := opts.InitClipboard
	if initClipboard == nil {
		initClipboard = clipboard.Init
	}
	if err := initClipboard(); err != nil {
		rt.Close()
		return nil, fmt.Errorf("failed to initialize clipboard: %w", err)
	}

	return rt, nil
}

// ClientOptions maps configuration onto the AI client.
func ClientOptions(cfg *config.Config) llm.Options {
	o := llm.Options{
		BaseURL:        cfg.BaseURL,
		APIKey:         cfg.APIKey,
		Model:          cfg.Model,
		SystemPrompt:   cfg.SystemPrompt,
		MaxTokens:      cfg.MaxTokens,
		Temperature:    cfg.Temperature,
		Timeout:        cfg.Timeout,
		ChunkTimeout:   cfg.ChunkTimeout,
		MaxRetries:     cfg.MaxRetries,
		RetryBackoff:   cfg.RetryBackoff,
		MaxPromptChars: cfg.MaxPromptChars,
	}
	if cfg.EnableCache {
		o.CacheSize = cfg.CacheMaxSize
		o.CacheTTL = cfg.CacheTTL
	}
	return o
}

// Package config loads RepoPal's process-level configuration: provider
// webhook secrets/tokens, the LLM backend, the container runtime socket,
// and the HTTP listen address. Everything the core pipeline needs beyond
// this is passed in explicitly by the caller (cmd/repopald) rather than
// read from global state.
package config

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/rakunlabs/chu/loader/external/loaderconsul"
	_ "github.com/rakunlabs/chu/loader/external/loadervault"
	"github.com/rakunlabs/chu/loader/loaderenv"
	"github.com/rakunlabs/logi"

	"github.com/rakunlabs/chu"
)

var Service = ""

// Config is the top-level process configuration for the repopald demo
// entrypoint.
type Config struct {
	LogLevel string `cfg:"log_level,no_prefix" default:"info"`

	Server Server `cfg:"server"`

	// Providers holds one entry per supported webhook provider
	// ("github", "slack", "linear"), keyed by the same name used in the
	// POST /api/webhooks/{provider} path segment.
	Providers map[string]ProviderConfig `cfg:"providers"`

	// LLM selects and configures the single completion backend used by
	// the planner.
	LLM LLMConfig `cfg:"llm"`

	// Sandbox configures the container runtime backend used by C4.
	Sandbox SandboxConfig `cfg:"sandbox"`
}

type Server struct {
	Port string `cfg:"port" default:"8080"`
	Host string `cfg:"host"`
}

// ProviderConfig holds the per-provider webhook secret and the VCS/API
// token used for outbound calls (comment posting, PR creation). Both are
// secret-bearing and excluded from structured logging via `log:"-"`.
type ProviderConfig struct {
	// WebhookSecret is the shared secret used to verify the inbound
	// signature header (HMAC-SHA256 for code-host/tracker providers,
	// the "v0=" scheme for chat providers).
	WebhookSecret string `cfg:"webhook_secret" log:"-"`

	// Token authenticates outbound API calls (comment/PR creation for
	// code-host and tracker providers, chat.postMessage for chat
	// providers).
	Token string `cfg:"token" log:"-"`

	// BaseURL overrides the provider's default API base, for GitHub
	// Enterprise or self-hosted Linear/Slack-compatible deployments.
	BaseURL string `cfg:"base_url"`
}

// LLMConfig describes the single LLM backend used by the planner (C3).
type LLMConfig struct {
	APIKey  string `cfg:"api_key" log:"-"`
	Model   string `cfg:"model" default:"claude-haiku-4-5"`
	BaseURL string `cfg:"base_url"`
	Proxy   string `cfg:"proxy"`

	InsecureSkipVerify bool `cfg:"insecure_skip_verify"`

	// Timeout is loaded from configuration but is not applied anywhere:
	// completion calls are bounded only by the context the caller passes.
	Timeout time.Duration `cfg:"timeout" default:"60s"`
}

// SandboxConfig configures the containerd-backed executor (C4).
type SandboxConfig struct {
	ContainerdSocket string `cfg:"containerd_socket" default:"/run/containerd/containerd.sock"`
	Namespace        string `cfg:"namespace" default:"repopal"`
	WorkdirRoot      string `cfg:"workdir_root" default:"/tmp/repopal-sandbox"`
}

func Load(ctx context.Context, path string) (*Config, error) {
	var cfg Config
	if err := chu.Load(ctx, path, &cfg, chu.WithLoaderOption(loaderenv.New(loaderenv.WithPrefix("REPOPAL_")))); err != nil {
		return nil, err
	}

	if err := logi.SetLogLevel(cfg.LogLevel); err != nil {
		return nil, fmt.Errorf("set log level %s: %w", cfg.LogLevel, err)
	}

	slog.Info("loaded configuration", "config", chu.MarshalMap(cfg))

	return &cfg, nil
}

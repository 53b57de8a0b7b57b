package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/rakunlabs/into"
	"github.com/rakunlabs/logi"

	"github.com/repopal/repopal/internal/command"
	// Registers the builtin commands (find_replace, add_file, run_tests)
	// against the process-wide command registry via their init() funcs.
	_ "github.com/repopal/repopal/internal/command/builtins"
	"github.com/repopal/repopal/internal/config"
	"github.com/repopal/repopal/internal/event"
	"github.com/repopal/repopal/internal/pipeline"
	"github.com/repopal/repopal/internal/planner"
	"github.com/repopal/repopal/internal/provider"
	"github.com/repopal/repopal/internal/publisher"
	"github.com/repopal/repopal/internal/sandbox"
	"github.com/repopal/repopal/internal/server"
)

var (
	name    = "repopald"
	version = "v0.0.0"
)

func main() {
	config.Service = name + "/" + version

	into.Init(run,
		into.WithLogger(logi.InitializeLog(logi.WithCaller(false))),
		into.WithMsgf("%s [%s]", name, version),
	)
}

func run(ctx context.Context) error {
	cfg, err := config.Load(ctx, name)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	providers, err := buildProviderRegistry(cfg)
	if err != nil {
		return fmt.Errorf("failed to build provider registry: %w", err)
	}

	completion, err := planner.NewAnthropicCompletion(
		cfg.LLM.APIKey, cfg.LLM.Model, cfg.LLM.BaseURL, cfg.LLM.Proxy, cfg.LLM.InsecureSkipVerify,
	)
	if err != nil {
		return fmt.Errorf("failed to create LLM completion backend: %w", err)
	}

	runtime, err := sandbox.NewRuntime(cfg.Sandbox.ContainerdSocket, cfg.Sandbox.Namespace)
	if err != nil {
		return fmt.Errorf("failed to connect to containerd: %w", err)
	}
	defer func() {
		if err := runtime.Close(); err != nil {
			slog.Error("failed to close containerd client", "error", err)
		}
	}()

	pub, err := publisherForDefaultProvider(cfg)
	if err != nil {
		return fmt.Errorf("failed to create publisher: %w", err)
	}

	executor := pipeline.NewSandboxExecutor(runtime, pub, cfg.Sandbox.WorkdirRoot)

	orchestrator := &pipeline.Orchestrator{
		Providers: providers,
		Commands:  command.NewRegistry(),
		Planner:   planner.New(completion),
		Executor:  executor,
		ResolveEnvironment: func(ev event.Event) (pipeline.Environment, error) {
			return resolveEnvironment(cfg, ev)
		},
	}

	srv := server.New(cfg.Server, providers, orchestrator)

	slog.Info("starting repopald", "host", cfg.Server.Host, "port", cfg.Server.Port)
	return srv.Start(ctx)
}

// buildProviderRegistry constructs one Adapter per configured provider
// entry. Only entries present in cfg.Providers are registered, so an
// unconfigured provider's webhook path simply 400s at Lookup.
func buildProviderRegistry(cfg *config.Config) (*provider.Registry, error) {
	registry := provider.NewRegistry()

	if gh, ok := cfg.Providers[string(event.ProviderGitHub)]; ok {
		adapter, err := provider.NewGitHub(http.DefaultClient, gh.WebhookSecret, gh.Token, gh.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("github: %w", err)
		}
		registry.Register(event.ProviderGitHub, adapter)
	}

	if sl, ok := cfg.Providers[string(event.ProviderSlack)]; ok {
		adapter, err := provider.NewSlack(sl.WebhookSecret, sl.Token, sl.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("slack: %w", err)
		}
		registry.Register(event.ProviderSlack, adapter)
	}

	if li, ok := cfg.Providers[string(event.ProviderLinear)]; ok {
		adapter, err := provider.NewLinear(li.WebhookSecret, li.Token, li.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("linear: %w", err)
		}
		registry.Register(event.ProviderLinear, adapter)
	}

	return registry, nil
}

// publisherForDefaultProvider builds the C6 publisher against the
// configured GitHub token, since pull requests are only ever opened
// against a code-host provider regardless of which provider delivered
// the triggering event.
func publisherForDefaultProvider(cfg *config.Config) (*publisher.Publisher, error) {
	gh, ok := cfg.Providers[string(event.ProviderGitHub)]
	if !ok {
		return nil, fmt.Errorf("a %q provider entry is required to publish pull requests", event.ProviderGitHub)
	}
	return publisher.New(http.DefaultClient, gh.Token, gh.BaseURL)
}

// resolveEnvironment derives the clone URL and credentials for the
// repository named by ev.Payload.Repository, using the API token of the
// configured GitHub provider entry.
func resolveEnvironment(cfg *config.Config, ev event.Event) (pipeline.Environment, error) {
	gh, ok := cfg.Providers[string(event.ProviderGitHub)]
	if !ok {
		return pipeline.Environment{}, fmt.Errorf("no %q provider configured", event.ProviderGitHub)
	}

	repoFullName := ev.Payload.Repository
	if repoFullName == "" {
		return pipeline.Environment{}, fmt.Errorf("event does not name a repository")
	}

	return pipeline.Environment{
		CloneURL:     fmt.Sprintf("https://github.com/%s.git", repoFullName),
		RepoFullName: repoFullName,
		Token:        gh.Token,
	}, nil
}

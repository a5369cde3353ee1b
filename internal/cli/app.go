package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/dshills/diffchat/internal/cache"
	"github.com/dshills/diffchat/internal/config"
	"github.com/dshills/diffchat/internal/providers"
	"github.com/dshills/diffchat/internal/redact"
	"github.com/dshills/diffchat/internal/session"
	"github.com/dshills/diffchat/internal/state"
	"github.com/dshills/diffchat/internal/tokens"
	"github.com/dshills/diffchat/internal/transcript"
)

// newClient builds the OpenAI collaborator. Tests replace it with a fake.
var newClient = func(cfg config.Config) (providers.Client, error) {
	return providers.NewOpenAI(providers.OpenAIConfig{
		APIKey:       cfg.APIKey,
		BaseURL:      cfg.BaseURL,
		PollInterval: time.Duration(cfg.PollIntervalMs) * time.Millisecond,
	})
}

// app holds everything one command invocation needs.
type app struct {
	cfg     config.Config
	store   *state.Store
	client  providers.Client
	history *transcript.Store
	manager *session.Manager
}

// loadConfig resolves the config file and merges env and flag overrides.
func loadConfig() (config.Config, string, error) {
	path, err := config.ConfigPath(flagConfig)
	if err != nil {
		return config.Config{}, "", &config.Error{Reason: err.Error()}
	}
	cfg, err := config.Load(path, buildOverrides())
	if err != nil {
		return config.Config{}, path, err
	}
	return cfg, path, nil
}

func buildOverrides() map[string]string {
	m := make(map[string]string)
	if flagState != "" {
		m["state_path"] = flagState
	}
	if flagModel != "" {
		m["model"] = flagModel
	}
	if flagFormat != "" {
		m["format"] = flagFormat
	}
	return m
}

// newApp validates cfg and wires the store, client, transcript and manager.
func newApp(cfg config.Config) (*app, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	store, err := state.Open(cfg.StatePath)
	if err != nil {
		return nil, err
	}
	client, err := newClient(cfg)
	if err != nil {
		return nil, &config.Error{Field: "openai_api_key", Reason: err.Error()}
	}
	uploads, err := cache.New(cfg.UploadCache.Enabled, cfg.UploadCache.Dir, cfg.UploadCache.TTLSeconds)
	if err != nil {
		return nil, errors.Wrap(err, "opening upload cache")
	}
	counter, err := tokens.NewCounter(cfg.Model)
	if err != nil {
		return nil, errors.Wrap(err, "loading tokenizer")
	}

	a := &app{cfg: cfg, store: store, client: client}
	opts := session.Options{
		Roles:          cfg.Roles,
		Model:          cfg.Model,
		CollectionName: cfg.VectorStoreName,
		Store:          store,
		Index:          client,
		Conversation:   client,
		Redact: redact.Policy{
			Secrets: cfg.Privacy.RedactSecrets,
			Paths:   cfg.Privacy.RedactPaths,
		},
		Guard: tokens.Guard{
			MaxBytes:  cfg.MaxDiffBytes,
			MaxTokens: cfg.MaxDiffTokens,
			Counter:   counter,
		},
		Uploads: uploads,
	}
	if cfg.Transcript.Enabled {
		h, err := transcript.Open(cfg.TranscriptPath())
		if err != nil {
			return nil, err
		}
		a.history = h
		opts.Recorder = h
	}
	m, err := session.New(opts)
	if err != nil {
		a.close()
		return nil, err
	}
	a.manager = m

	log.Debug().
		Str("state", cfg.StatePath).
		Str("model", cfg.Model).
		Str("vector_store", cfg.VectorStoreName).
		Bool("transcript", a.history != nil).
		Msg("App ready")
	return a, nil
}

func (a *app) close() {
	if a.history != nil {
		_ = a.history.Close()
	}
}

// commandContext applies --timeout to the command's context.
func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if flagTimeout > 0 {
		return context.WithTimeout(ctx, flagTimeout)
	}
	return context.WithCancel(ctx)
}

// exitFor maps an error to the process exit code.
func exitFor(err error) int {
	var collab *session.CollaboratorError
	switch {
	case err == nil:
		return ExitSuccess
	case config.IsConfigError(err):
		return ExitConfigError
	case state.IsCorrupt(err):
		return ExitStateError
	case session.IsUnknownRole(err), session.IsUnknownHandle(err):
		return ExitUsageError
	case errors.As(err, &collab) && collab.IsAuth():
		return ExitAuthError
	case providers.IsAuthError(err):
		return ExitAuthError
	default:
		return ExitRuntimeError
	}
}

// fail reports err on stderr and records its exit code. It returns nil so
// cobra does not print usage for runtime failures.
func fail(cmd *cobra.Command, err error) error {
	fmt.Fprintf(cmd.ErrOrStderr(), "Error: %v\n", err)
	exitCode = exitFor(err)
	log.Debug().Err(err).Int("exit_code", exitCode).Str("command", cmd.CommandPath()).Msg("Command failed")
	return nil
}

func splitComma(s string) []string {
	parts := strings.Split(s, ",")
	var result []string
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}

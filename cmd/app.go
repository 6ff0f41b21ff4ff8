package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/iksnae/chat-session/internal"
	"github.com/iksnae/chat-session/internal/config"
	"github.com/iksnae/chat-session/internal/engine"
	"github.com/iksnae/chat-session/internal/request"
	"github.com/iksnae/chat-session/internal/store"
	"github.com/iksnae/chat-session/internal/transport"
)

// app bundles what every command needs: resolved paths, config and the session store
type app struct {
	paths   internal.DataPaths
	cfgPath string
	cfg     *config.Config
	store   *store.FileStore
}

func loadApp() (*app, error) {
	paths, err := internal.GetDataPaths(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to get data paths: %w", err)
	}

	cfgPath := configPath
	if cfgPath == "" {
		cfgPath = paths.ConfigPath()
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}

	// --verbose wins over the configured level
	if !verbose && cfg.LogLevel != "" {
		if level, err := internal.ParseLogLevel(cfg.LogLevel); err == nil {
			internal.SetLogLevel(level)
		}
	}

	return &app{
		paths:   paths,
		cfgPath: cfgPath,
		cfg:     cfg,
		store:   store.NewFileStore(paths.SessionsPath()),
	}, nil
}

// apiKey resolves the key from the environment first, then the secret store.
// A missing key is not an error here; the request builder reports it.
func (a *app) apiKey() (string, error) {
	if a.cfg.APIKey != "" {
		return a.cfg.APIKey, nil
	}

	secrets, err := internal.OpenSecretStore(a.paths.SecretsPath())
	if err != nil {
		return "", err
	}
	defer secrets.Close()

	key, err := secrets.Get(internal.SecretService, internal.SecretAccount)
	if errors.Is(err, internal.ErrSecretNotFound) {
		return "", nil
	}
	return key, err
}

func (a *app) settings(ctx context.Context) (internal.ProviderSettings, error) {
	key, err := a.apiKey()
	if err != nil {
		return internal.ProviderSettings{}, fmt.Errorf("failed to read API key: %w", err)
	}
	return a.cfg.Settings(key), nil
}

func (a *app) newClient() *transport.Client {
	opts := []transport.Option{
		transport.WithEndpoint(a.cfg.Endpoint),
		transport.WithIdleTimeout(a.cfg.StreamIdleTimeout),
	}
	if a.cfg.RequestTimeout > 0 {
		opts = append(opts, transport.WithResponseHeaderTimeout(a.cfg.RequestTimeout))
	}
	return transport.NewClient(opts...)
}

// newEngine wires the builder, transport and store into an engine and
// restores the saved session list
func (a *app) newEngine() (*engine.Engine, error) {
	eng, err := engine.New(engine.Options{
		Builder:  request.NewBuilder(),
		Streamer: engine.TransportStreamer{Client: a.newClient()},
		Store:    a.store,
		Settings: a.settings,
	})
	if err != nil {
		return nil, err
	}
	n := eng.Restore()
	internal.LogDebug("Restored %d session(s) from %s", n, a.store.Path())
	return eng, nil
}

// findSession looks up a session by full ID or unique ID prefix
func findSession(sessions []*internal.Session, id string) (*internal.Session, error) {
	for _, s := range sessions {
		if s.ID == id {
			return s, nil
		}
	}

	var match *internal.Session
	if len(id) >= 4 {
		for _, s := range sessions {
			if strings.HasPrefix(s.ID, id) {
				if match != nil {
					return nil, fmt.Errorf("session ID prefix %q is ambiguous", id)
				}
				match = s
			}
		}
	}
	if match == nil {
		return nil, fmt.Errorf("%w: %s", internal.ErrSessionNotFound, id)
	}
	return match, nil
}

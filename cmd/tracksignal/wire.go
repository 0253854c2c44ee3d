package main

import (
	"fmt"
	"log/slog"

	"github.com/sydlexius/tracksignal/internal/config"
	"github.com/sydlexius/tracksignal/internal/matcher"
	"github.com/sydlexius/tracksignal/internal/parser"
	"github.com/sydlexius/tracksignal/internal/pipeline"
	"github.com/sydlexius/tracksignal/internal/version"
	"github.com/sydlexius/tracksignal/internal/watcher"
)

// remoteConfig maps the remote section onto watcher settings. The user agent
// falls back to the build's product token.
func remoteConfig(cfg *config.Config) watcher.RemoteConfig {
	ua := cfg.Remote.UserAgent
	if ua == "" {
		ua = version.UserAgent()
	}
	return watcher.RemoteConfig{
		URLTemplate:  cfg.Remote.URLTemplate,
		Interval:     cfg.Remote.Interval,
		FetchTimeout: cfg.Remote.FetchTimeout,
		UserAgent:    ua,
		MaxBodyBytes: cfg.Remote.MaxBodyBytes,
	}
}

// managerOptions builds pipeline options from configuration. Requests and
// Events are left for the caller to fill in.
func managerOptions(cfg *config.Config, logger *slog.Logger) (pipeline.Options, error) {
	scorer, ok := matcher.ScorerByName(cfg.Matching.Scorer)
	if !ok {
		return pipeline.Options{}, fmt.Errorf("unknown scorer %q", cfg.Matching.Scorer)
	}
	m := matcher.New(matcher.Config{
		Threshold:        cfg.Matching.Threshold,
		PriorityOrdering: cfg.Matching.PriorityOrdering,
	}, scorer)

	return pipeline.Options{
		Parser:  parser.Default(),
		Matcher: m,
		File: watcher.FileConfig{
			Debounce:     cfg.Detection.Debounce,
			PollInterval: cfg.Detection.FilePoll,
			MaxBytes:     cfg.Detection.MaxFileBytes,
			ForcePoll:    cfg.Detection.ForcePoll,
			Probe:        watcher.NewProbeCache(),
		},
		Remote:         remoteConfig(cfg),
		Limiter:        watcher.NewHostLimiter(cfg.Remote.RPS, cfg.Remote.Burst),
		FileWindow:     cfg.Detection.FileWindow,
		RemoteWindow:   cfg.Detection.RemoteWindow,
		SearchPatterns: cfg.Files.SearchPatterns,
		MaxFileAge:     cfg.Files.MaxAge,
		Logger:         logger,
	}, nil
}

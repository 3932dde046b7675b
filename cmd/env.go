package main

import (
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/extract-cli/internal/cookies"
	"github.com/sells-group/extract-cli/internal/extract"
	"github.com/sells-group/extract-cli/internal/resilience"
	"github.com/sells-group/extract-cli/internal/source"
	"github.com/sells-group/extract-cli/pkg/bridge"
	"github.com/sells-group/extract-cli/pkg/reader"
)

// extractEnv holds the initialized clients and the orchestrator shared by the
// fetch/batch/serve/cookies commands.
type extractEnv struct {
	Orchestrator *extract.Orchestrator
	Breaker      *resilience.CircuitBreaker
	Cookies      *cookies.Store
	Bridge       bridge.Client // nil when no bridge is configured
}

// initExtractor validates the config for the given mode and wires the tiered
// pipeline: router, source registry, breaker, rendering service client,
// optional bridge client, direct fetcher, and cookie store.
func initExtractor(mode string) (*extractEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	registry := source.NewRegistry()
	if cfg.Sources.File != "" {
		if err := registry.LoadOverrides(cfg.Sources.File); err != nil {
			return nil, err
		}
		zap.L().Info("source profile overrides loaded", zap.String("file", cfg.Sources.File))
	}

	breakerCfg := resilience.FromCircuitConfig(cfg.Breaker.FailureThreshold, cfg.Breaker.CooldownSecs)
	breakerCfg.OnStateChange = func(from, to resilience.CircuitState) {
		zap.L().Warn("rendering service circuit state changed",
			zap.Stringer("from", from),
			zap.Stringer("to", to),
		)
	}
	breaker := resilience.NewCircuitBreaker(breakerCfg)

	readerClient := reader.NewClient(cfg.Reader.Key, reader.WithBaseURL(cfg.Reader.BaseURL))

	var bridgeClient bridge.Client
	if cfg.Bridge.BaseURL != "" {
		bridgeClient = bridge.NewClient(bridge.WithBaseURL(cfg.Bridge.BaseURL))
		zap.L().Info("browser bridge enabled", zap.String("base_url", cfg.Bridge.BaseURL))
	} else {
		zap.L().Debug("EXTRACT_BRIDGE_BASE_URL not set, bridge tier disabled")
	}

	cookieOpts := []cookies.Option{
		cookies.WithStaleAfter(time.Duration(cfg.Cookies.StaleAfterHours) * time.Hour),
		cookies.WithScopes(cfg.Cookies.Scopes),
	}
	if bridgeClient != nil {
		cookieOpts = append(cookieOpts, cookies.WithRefresher(bridgeClient))
	}
	cookieStore := cookies.NewStore(cfg.Cookies.Dir, cookieOpts...)

	direct := extract.NewDirectClient(
		extract.WithTimeout(time.Duration(cfg.Fetch.TimeoutSecs)*time.Second),
		extract.WithUserAgent(cfg.Fetch.UserAgent),
		extract.WithRateLimit(cfg.Fetch.RatePerSec),
	)

	orch := extract.NewOrchestrator(extract.Deps{
		Router:       source.NewRuleRouter(),
		Sources:      registry,
		Breaker:      breaker,
		Reader:       readerClient,
		Bridge:       bridgeClient,
		Direct:       direct,
		Cookies:      cookieStore,
		ProbeTimeout: time.Duration(cfg.Bridge.ProbeTimeoutSecs) * time.Second,
	})

	return &extractEnv{
		Orchestrator: orch,
		Breaker:      breaker,
		Cookies:      cookieStore,
		Bridge:       bridgeClient,
	}, nil
}

package game

import (
	"fmt"

	"dungeonmaster/pkg/agent"
	"dungeonmaster/pkg/agent/llm"
	"dungeonmaster/pkg/agent/middleware/metrics"
	"dungeonmaster/pkg/agent/middleware/resilience/retry"
	"dungeonmaster/pkg/combat"
	"dungeonmaster/pkg/config"
	"dungeonmaster/pkg/contextmgr"
	"dungeonmaster/pkg/eventlog"
	"dungeonmaster/pkg/prompts"
	"dungeonmaster/pkg/router"
	"dungeonmaster/pkg/tokenbudget"
)

// consumerTemperature is the default sampling temperature per consumer.
var consumerTemperature = map[string]float32{
	string(router.IntentQARules):     llm.TemperatureDeterministic,
	string(router.IntentQASituation): llm.TemperatureDeterministic,
	config.ConsumerSessionSummary:    llm.TemperatureDeterministic,
}

func temperatureFor(consumer string) float32 {
	if t, ok := consumerTemperature[consumer]; ok {
		return t
	}
	return llm.TemperatureDefault
}

// Deps are the shared collaborators Build wires into a Service.
type Deps struct {
	Store   Store
	Events  *eventlog.Recorder
	Metrics metrics.Recorder
	// Factory overrides client construction; nil builds one from the config.
	Factory *agent.LLMClientFactory
}

// Build assembles the orchestrator and service from configuration: one client
// per consumer, prompts from the library, budgets and retry bounds from config.
func Build(cfg *config.Config, deps Deps) (*Service, error) {
	lib, err := prompts.Load(cfg.Prompts.Dir)
	if err != nil {
		return nil, fmt.Errorf("load prompts: %w", err)
	}

	factory := deps.Factory
	if factory == nil {
		factory = agent.NewLLMClientFactory(cfg, deps.Metrics)
	}

	responder := func(consumer string, extra ...llm.Middleware) (router.Responder, error) {
		client, err := factory.CreateClient(consumer, extra...)
		if err != nil {
			return nil, err //nolint:wrapcheck // factory errors name the consumer
		}
		system, ok := lib.Get(consumer)
		if !ok {
			return nil, fmt.Errorf("no prompt for %s", consumer)
		}
		maxTokens, temp := factory.Settings(consumer, temperatureFor(consumer))
		return router.NewLLMResponder(client, system, maxTokens, temp), nil
	}

	responders := make(map[router.Intent]router.Responder, len(router.Intents))
	for _, intent := range router.Intents {
		r, err := responder(string(intent))
		if err != nil {
			return nil, err
		}
		responders[intent] = r
	}

	routerClient, err := factory.CreateClient(config.ConsumerRouter)
	if err != nil {
		return nil, err //nolint:wrapcheck // factory errors name the consumer
	}
	classifier := router.NewLLMClassifier(routerClient, lib.MustGet(config.ConsumerRouter))

	// The orchestrator retries turn calls itself; the planner and summarizer
	// clients carry the retry middleware instead.
	runner := retry.NewRunner(cfg.Retry)
	planner, err := responder(config.ConsumerSessionPlanner, retry.Middleware(runner))
	if err != nil {
		return nil, err
	}
	summarizer, err := responder(config.ConsumerSessionSummary, retry.Middleware(runner))
	if err != nil {
		return nil, err
	}

	budgets := tokenbudget.NewEnforcer(nil, 0, cfg.TokenBudgets)
	opts := []router.Option{
		router.WithBuilder(contextmgr.NewBuilder(budgets)),
		router.WithRetry(runner),
		router.WithCombatPolicy(combat.Policy{DepartureRatio: cfg.Combat.DepartureRatio}),
	}
	if deps.Events.CapturesEnabled() {
		opts = append(opts, router.WithPromptRecorder(deps.Events))
	}
	orch := router.New(classifier, responders, opts...)

	var events EventSink
	if deps.Events != nil {
		events = deps.Events
	}
	return NewService(deps.Store, orch, Options{
		Planner:    planner,
		Summarizer: summarizer,
		RecapTurns: cfg.Recap.MaxTurns,
		RecapWords: cfg.Recap.MaxWords,
		Events:     events,
		Metrics:    deps.Metrics,
	}), nil
}

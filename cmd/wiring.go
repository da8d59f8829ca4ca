package main

import (
	"context"
	"errors"

	"github.com/okian/ttlink/internal/adapters/ai"
	"github.com/okian/ttlink/internal/adapters/timetracker"
	service "github.com/okian/ttlink/internal/app"
	"github.com/okian/ttlink/internal/config"
	"github.com/okian/ttlink/internal/domain/history"
	"github.com/okian/ttlink/pkg/logger"
)

var errNoTracker = errors.New("timetracker_base_url is not configured")

// newTracker returns the TimeTracker client, or nil when no endpoint is
// configured.
func newTracker(c *config.Config) (*timetracker.Client, error) {
	if c.TimeTrackerBaseURL == "" {
		return nil, nil
	}
	rounding, err := timetracker.ParseRoundingMethod(c.RoundingMethod)
	if err != nil {
		return nil, err
	}
	return timetracker.New(c.TimeTrackerBaseURL, c.TimeTrackerUser, c.TimeTrackerPassword, c.TimeTrackerProjectID,
		timetracker.WithRounding(rounding),
		timetracker.WithLogger(logger.Named("timetracker")),
	)
}

// startService builds and starts the linking service. The suggester is only
// created when use_ai is set; it reads its hints from the service history.
func startService(ctx context.Context, c *config.Config, tracker *timetracker.Client) (*service.Service, error) {
	opts := []service.Option{
		service.WithConfig(c),
		service.WithLogger(logger.Named("service")),
	}
	if tracker != nil {
		opts = append(opts, service.WithRegistrar(tracker))
	}

	var svc *service.Service
	if c.UseAI {
		sg, err := ai.New(c.AnthropicAPIKey,
			ai.WithModel(c.AIModel),
			ai.WithMaxConcurrent(c.AIMaxConcurrent),
			ai.WithHistory(ai.HistoryFunc(func() []history.Entry { return svc.History() })),
			ai.WithLogger(logger.Named("ai")),
		)
		if err != nil {
			return nil, err
		}
		opts = append(opts, service.WithSuggester(sg))
	}

	svc = service.New(opts...)
	if err := svc.Start(ctx); err != nil {
		return nil, err
	}
	return svc, nil
}

// Package main provides the FableFlow API server implementation.
package main

import (
	"context"
	"os"

	cli "github.com/urfave/cli/v3"

	"github.com/fableworks/fableflow/pkg/cmd"
	"github.com/fableworks/fableflow/pkg/eventbus"
	"github.com/fableworks/fableflow/pkg/log"
	"github.com/fableworks/fableflow/pkg/models"
	"github.com/fableworks/fableflow/pkg/orchestrator"
	"github.com/fableworks/fableflow/pkg/retention"
	"github.com/fableworks/fableflow/pkg/stages"
	"github.com/fableworks/fableflow/pkg/web"
)

const defaultPort = 9080

func main() {
	logger := log.WithModule("fableflow")

	command := &cli.Command{
		Name:                  "fableflow",
		Usage:                 "Run the story generation workflow service",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to run the API server on",
				Value:   defaultPort,
				Sources: cli.EnvVars("PORT"),
			},
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "State store URL (redis://host:port/db or a file path)",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "External event bus provider (kafka, memory, none)",
				Value:   "none",
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:    "kafka-brokers",
				Usage:   "Comma-separated Kafka broker list",
				Sources: cli.EnvVars("KAFKA_BROKERS"),
			},
			&cli.DurationFlag{
				Name:    "stage-timeout",
				Usage:   "Maximum duration of a single stage handler call",
				Value:   orchestrator.DefaultStageTimeout,
				Sources: cli.EnvVars("STAGE_TIMEOUT"),
			},
			&cli.DurationFlag{
				Name:    "retention",
				Usage:   "How long workflow state survives after its last update",
				Value:   retention.DefaultRetention,
				Sources: cli.EnvVars("STATE_RETENTION"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			logger.InfoContext(ctx, "Initializing FableFlow")

			store, err := cmd.NewStateStore(ctx, command.String("database-url"), logger)
			if err != nil {
				return err
			}

			defer func() {
				if err := store.Close(ctx); err != nil {
					logger.ErrorContext(ctx, "Failed to close state store", "error", err)
				}
			}()

			externalSink, err := cmd.NewEventSink(
				command.String("event-bus"), command.String("kafka-brokers"), logger)
			if err != nil {
				return err
			}

			broker := eventbus.NewBroker()
			sink := eventbus.MultiSink{broker, externalSink}

			orch := orchestrator.New(store, sink, logger, orchestrator.Options{
				StageTimeout: command.Duration("stage-timeout"),
			})
			registerHandlers(orch)

			sweeper := retention.NewSweeper(store, logger, command.Duration("retention"))
			if err := sweeper.Start(ctx, retention.DefaultSchedule); err != nil {
				return err
			}
			defer sweeper.Stop()

			api := web.NewAPI(logger, orch, broker, store)

			if err := api.Start(command.Int("port")); err != nil {
				logger.ErrorContext(ctx, "Failed to start API server", "error", err)
			}

			return nil
		},
	}

	err := command.Run(context.Background(), os.Args)
	if err != nil {
		panic(err)
	}
}

// registerHandlers binds the built-in handlers plus scripted stand-ins for
// the generation stages. LLM-backed deployments replace the scripted ones.
func registerHandlers(orch *orchestrator.Orchestrator) {
	orch.Register(models.StageInputValidation, stages.NewInputValidation(nil))
	orch.Register(models.StageTextPreprocessing, stages.NewTextPreprocessing())
	orch.Register(models.StageResultFormatting, stages.NewResultFormatting())

	for _, stage := range []models.Stage{
		models.StageStoryOutline,
		models.StageCharacterProfiles,
		models.StageMajorPlotPoints,
		models.StageDetailedPlotPoints,
		models.StageMindMap,
	} {
		orch.Register(stage, stages.NewScripted(stage))
	}
}

package main

import (
	"context"

	"github.com/urfave/cli/v3"

	"github.com/allisson/propflow/cmd/app/commands"
	"github.com/allisson/propflow/internal/app"
	"github.com/allisson/propflow/internal/config"
)

func getSystemCommands(version string) []*cli.Command {
	return []*cli.Command{
		{
			Name:  "server",
			Usage: "Start the HTTP server and the event system",
			Action: func(ctx context.Context, cmd *cli.Command) error {
				return commands.RunServer(ctx, version)
			},
		},
		{
			Name:  "migrate",
			Usage: "Run database migrations",
			Action: func(ctx context.Context, cmd *cli.Command) error {
				cfg := config.Load()
				container := app.NewContainer(cfg)
				defer commands.CloseContainer(container, container.Logger())

				return commands.RunMigrations(container.Logger(), cfg.DBDriver, cfg.DBConnectionString)
			},
		},
		{
			Name:  "process-jobs",
			Usage: "Run one batch of due background jobs",
			Flags: []cli.Flag{formatFlag()},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				container := app.NewContainer(config.Load())
				defer commands.CloseContainer(container, container.Logger())

				queue, err := container.JobQueue()
				if err != nil {
					return err
				}
				dispatcher, err := container.WebhookDispatcher()
				if err != nil {
					return err
				}

				return commands.RunProcessJobs(
					ctx,
					queue,
					dispatcher,
					container.Logger(),
					commands.DefaultIO().Writer,
					cmd.String("format"),
				)
			},
		},
		{
			Name:  "process-webhooks",
			Usage: "Run one batch of due webhook deliveries",
			Flags: []cli.Flag{formatFlag()},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				container := app.NewContainer(config.Load())
				defer commands.CloseContainer(container, container.Logger())

				dispatcher, err := container.WebhookDispatcher()
				if err != nil {
					return err
				}

				return commands.RunProcessWebhooks(
					ctx,
					dispatcher,
					container.Logger(),
					commands.DefaultIO().Writer,
					cmd.String("format"),
				)
			},
		},
		{
			Name:  "replay-backlog",
			Usage: "Dispatch every event not yet marked processed",
			Flags: []cli.Flag{formatFlag()},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				container := app.NewContainer(config.Load())
				defer commands.CloseContainer(container, container.Logger())

				bus, err := container.EventBus()
				if err != nil {
					return err
				}
				handlers, err := container.EventHandlers()
				if err != nil {
					return err
				}

				return commands.RunReplayBacklog(
					ctx,
					bus,
					handlers,
					container.Logger(),
					commands.DefaultIO().Writer,
					cmd.String("format"),
				)
			},
		},
	}
}

package main

import (
	"context"

	"github.com/urfave/cli/v3"

	"github.com/allisson/propflow/cmd/app/commands"
	"github.com/allisson/propflow/internal/app"
	authService "github.com/allisson/propflow/internal/auth/service"
	"github.com/allisson/propflow/internal/config"
)

func getAdminCommands() []*cli.Command {
	return []*cli.Command{
		{
			Name:  "list-dead-letters",
			Usage: "List jobs and deliveries that exhausted their retries",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:    "source",
					Aliases: []string{"s"},
					Usage:   "Filter by source: 'job', 'webhook_delivery' or 'event'",
				},
				&cli.IntFlag{
					Name:  "offset",
					Value: 0,
					Usage: "Number of dead letters to skip",
				},
				&cli.IntFlag{
					Name:    "limit",
					Aliases: []string{"l"},
					Value:   50,
					Usage:   "Maximum number of dead letters to list (1-1000)",
				},
				formatFlag(),
			},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				container := app.NewContainer(config.Load())
				defer commands.CloseContainer(container, container.Logger())

				useCase, err := container.DeadLetterUseCase()
				if err != nil {
					return err
				}

				return commands.RunListDeadLetters(
					ctx,
					useCase,
					container.Logger(),
					commands.DefaultIO().Writer,
					cmd.String("source"),
					int(cmd.Int("offset")),
					int(cmd.Int("limit")),
					cmd.String("format"),
				)
			},
		},
		{
			Name:  "requeue-dead-letter",
			Usage: "Send a dead letter back to its job queue or delivery pipeline",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:     "id",
					Aliases:  []string{"i"},
					Required: true,
					Usage:    "Dead letter ID (UUID)",
				},
				formatFlag(),
			},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				container := app.NewContainer(config.Load())
				defer commands.CloseContainer(container, container.Logger())

				useCase, err := container.DeadLetterUseCase()
				if err != nil {
					return err
				}

				return commands.RunRequeueDeadLetter(
					ctx,
					useCase,
					container.Logger(),
					commands.DefaultIO().Writer,
					cmd.String("id"),
					cmd.String("format"),
				)
			},
		},
		{
			Name:  "create-webhook-endpoint",
			Usage: "Register a webhook endpoint for a tenant",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:     "tenant",
					Aliases:  []string{"t"},
					Required: true,
					Usage:    "Tenant (organization) ID",
				},
				&cli.StringFlag{
					Name:     "url",
					Aliases:  []string{"u"},
					Required: true,
					Usage:    "HTTPS URL receiving the deliveries",
				},
				&cli.StringFlag{
					Name:     "events",
					Aliases:  []string{"e"},
					Required: true,
					Usage:    "Comma separated event types, e.g. 'payment.completed,lease.signed'",
				},
				formatFlag(),
			},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				container := app.NewContainer(config.Load())
				defer commands.CloseContainer(container, container.Logger())

				useCase, err := container.EndpointUseCase()
				if err != nil {
					return err
				}

				return commands.RunCreateWebhookEndpoint(
					ctx,
					useCase,
					container.Logger(),
					commands.DefaultIO().Writer,
					cmd.String("tenant"),
					cmd.String("url"),
					cmd.String("events"),
					cmd.String("format"),
				)
			},
		},
		{
			Name:  "hash-admin-token",
			Usage: "Generate an admin API token and the hash for ADMIN_TOKEN_HASH",
			Flags: []cli.Flag{formatFlag()},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				container := app.NewContainer(config.Load())
				defer commands.CloseContainer(container, container.Logger())

				generator, err := authService.NewAdminTokenService("")
				if err != nil {
					return err
				}

				return commands.RunHashAdminToken(
					generator,
					container.Logger(),
					commands.DefaultIO().Writer,
					cmd.String("format"),
				)
			},
		},
	}
}

package main

import (
	"context"

	"github.com/urfave/cli/v3"

	"github.com/allisson/tokenvault/cmd/app/commands"
	"github.com/allisson/tokenvault/internal/app"
	"github.com/allisson/tokenvault/internal/config"
)

func formatFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "format",
		Aliases: []string{"f"},
		Value:   "text",
		Usage:   "Output format: 'text' or 'json'",
	}
}

func getTokenCommands() []*cli.Command {
	return []*cli.Command{
		{
			Name:  "clean-tokens",
			Usage: "Delete expired tokens and tokens revoked longer than REVOKED_RETENTION_DAYS",
			Flags: []cli.Flag{
				&cli.BoolFlag{
					Name:    "dry-run",
					Aliases: []string{"n"},
					Value:   false,
					Usage:   "Show how many tokens would be deleted without deleting",
				},
				formatFlag(),
			},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				cfg := config.Load()
				container := app.NewContainer(cfg)
				defer func() { _ = container.Shutdown(ctx) }()

				tokenUseCase, err := container.TokenUseCase()
				if err != nil {
					return err
				}

				return commands.RunCleanTokens(
					ctx,
					tokenUseCase,
					container.Logger(),
					commands.DefaultIO().Writer,
					cmd.Bool("dry-run"),
					cmd.String("format"),
				)
			},
		},
		{
			Name:  "revoke-token",
			Usage: "Revoke one token, or every live token of a user with --all",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:    "token-id",
					Aliases: []string{"t"},
					Usage:   "Token ID to revoke",
				},
				&cli.StringFlag{
					Name:     "user-id",
					Aliases:  []string{"u"},
					Required: true,
					Usage:    "Owner of the token(s)",
				},
				&cli.StringFlag{
					Name:    "reason",
					Aliases: []string{"r"},
					Usage:   "Reason recorded with the revocation",
				},
				&cli.BoolFlag{
					Name:  "all",
					Usage: "Revoke every live token owned by the user",
				},
				formatFlag(),
			},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				cfg := config.Load()
				container := app.NewContainer(cfg)
				defer func() { _ = container.Shutdown(ctx) }()

				tokenUseCase, err := container.TokenUseCase()
				if err != nil {
					return err
				}

				writer := commands.DefaultIO().Writer
				if cmd.Bool("all") {
					return commands.RunRevokeUserTokens(
						ctx,
						tokenUseCase,
						container.Logger(),
						writer,
						cmd.String("user-id"),
						cmd.String("reason"),
						cmd.String("format"),
					)
				}

				return commands.RunRevokeToken(
					ctx,
					tokenUseCase,
					container.Logger(),
					writer,
					cmd.String("token-id"),
					cmd.String("user-id"),
					cmd.String("reason"),
					cmd.String("format"),
				)
			},
		},
		{
			Name:      "inspect-envelope",
			Usage:     "Print the header of an encrypted token envelope without decrypting it",
			ArgsUsage: "[envelope|-]",
			Flags:     []cli.Flag{formatFlag()},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				io := commands.DefaultIO()
				return commands.RunInspectEnvelope(io.Reader, io.Writer, cmd.Args().First(), cmd.String("format"))
			},
		},
	}
}

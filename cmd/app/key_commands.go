package main

import (
	"context"

	"github.com/urfave/cli/v3"

	"github.com/allisson/tokenvault/cmd/app/commands"
	"github.com/allisson/tokenvault/internal/app"
	"github.com/allisson/tokenvault/internal/config"
)

func kmsFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "kms-provider",
			Value: "",
			Usage: "KMS provider (localsecrets, gcpkms, awskms, azurekeyvault, hashivault); omit for a plaintext development key",
		},
		&cli.StringFlag{
			Name:  "kms-key-uri",
			Value: "",
			Usage: "KMS key URI (e.g., base64key://, gcpkms://projects/.../cryptoKeys/...)",
		},
	}
}

func getKeyCommands() []*cli.Command {
	return []*cli.Command{
		{
			Name:  "create-master-key",
			Usage: "Generate the first master key version for token envelopes",
			Flags: append([]cli.Flag{
				&cli.IntFlag{
					Name:    "version",
					Aliases: []string{"v"},
					Value:   1,
					Usage:   "Master key version number",
				},
			}, kmsFlags()...),
			Action: func(ctx context.Context, cmd *cli.Command) error {
				cfg := config.Load()
				container := app.NewContainer(cfg)
				defer func() { _ = container.Shutdown(ctx) }()

				return commands.RunCreateMasterKey(
					ctx,
					container.KMSService(),
					container.Logger(),
					commands.DefaultIO().Writer,
					int(cmd.Int("version")),
					cmd.String("kms-provider"),
					cmd.String("kms-key-uri"),
				)
			},
		},
		{
			Name:  "rotate-master-key",
			Usage: "Generate the next master key version and append it to MASTER_KEYS",
			Flags: kmsFlags(),
			Action: func(ctx context.Context, cmd *cli.Command) error {
				cfg := config.Load()
				container := app.NewContainer(cfg)
				defer func() { _ = container.Shutdown(ctx) }()

				return commands.RunRotateMasterKey(
					ctx,
					container.KMSService(),
					container.Logger(),
					commands.DefaultIO().Writer,
					cmd.String("kms-provider"),
					cmd.String("kms-key-uri"),
					cfg.MasterKeys,
				)
			},
		},
	}
}

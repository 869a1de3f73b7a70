package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v3"
)

func main() {
	// A missing .env is fine; explicit config still wins.
	_ = godotenv.Load()

	cmd := &cli.Command{
		Name:    "igclient",
		Usage:   "Instagram private API client",
		Version: "0.1.0",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "YAML config file (account defaults, proxy)",
			},
			&cli.BoolFlag{
				Name:    "debug",
				Aliases: []string{"d"},
				Usage:   "Enable debug output",
			},
		},
		Action: func(context.Context, *cli.Command) error {
			fmt.Println("igclient - use 'igclient help' for available commands")
			return nil
		},
		Commands: []*cli.Command{
			loginCommand,
			whoamiCommand,
			settingsCommand,
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}

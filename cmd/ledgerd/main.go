package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"
)

var _FlagEnvFile = &cli.StringFlag{
	Name:  "env-file",
	Usage: "loads environment variables from `FILE` if it exists",
	Value: ".env",
}

func main() {
	if err := newApp().Run(os.Args); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "[Error] %s\n", err.Error())
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "ledgerd",
		Usage: "ICRC-1 token ledger",
		Flags: []cli.Flag{_FlagEnvFile},
		Before: func(c *cli.Context) error {
			path := c.String("env-file")
			if _, err := os.Stat(path); err != nil {
				return nil // .env is optional
			}
			if err := godotenv.Load(path); err != nil {
				return fmt.Errorf("load %s: %w", path, err)
			}
			return nil
		},
		Commands: []*cli.Command{
			ServeCommand,
			ArchivesCommand,
			TokenCommand,
		},
	}
}

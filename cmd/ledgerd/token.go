package main

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/congo-pay/icrc_ledger/internal/account"
	"github.com/congo-pay/icrc_ledger/internal/auth"
	"github.com/congo-pay/icrc_ledger/internal/config"
)

var _FlagPrincipal = &cli.StringFlag{
	Name:     "principal",
	Usage:    "principal text the token authenticates",
	Required: true,
}

var TokenCommand = &cli.Command{
	Name:  "token",
	Usage: "issues a bearer token for a principal",
	Flags: []cli.Flag{_FlagPrincipal},
	Action: func(c *cli.Context) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		caller, err := account.ParsePrincipal(c.String("principal"))
		if err != nil {
			return err
		}
		secret := cfg.JWTSecret
		if secret == "" {
			secret = devJWTSecret
		}
		svc, err := auth.NewService(secret, cfg.TokenTTL)
		if err != nil {
			return err
		}
		token, exp, err := svc.Issue(caller)
		if err != nil {
			return err
		}
		fmt.Fprintf(c.App.Writer, "%s\n# expires %s\n", token, exp.UTC().Format("2006-01-02T15:04:05Z"))
		return nil
	},
}

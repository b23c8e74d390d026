package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/carlmjohnson/versioninfo"
	"github.com/dovidio/colino-backend/client"
	"github.com/dovidio/colino-backend/sessions"
	_ "github.com/joho/godotenv/autoload"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"
)

func main() {
	if err := run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(-1)
	}
}

var serviceFlags = []cli.Flag{
	&cli.StringFlag{
		Name:    "service-url",
		Usage:   "base URL of the Colino auth service",
		Value:   "http://localhost:8080",
		EnvVars: []string{"COLINO_AUTH_URL"},
	},
}

func run(args []string) error {
	app := cli.App{
		Name:    "colino-login",
		Usage:   "authorize Colino against Google through the auth service",
		Version: versioninfo.Short(),
	}
	app.Before = func(cctx *cli.Context) error {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
		return nil
	}
	app.Commands = []*cli.Command{
		cmdLogin,
		cmdRefresh,
	}
	return app.Run(args)
}

var cmdLogin = &cli.Command{
	Name:  "login",
	Usage: "run the browser consent flow and print the resulting tokens",
	Flags: append([]cli.Flag{
		&cli.DurationFlag{
			Name:    "timeout",
			Usage:   "how long to wait for the browser flow to finish",
			Value:   5 * time.Minute,
			EnvVars: []string{"COLINO_LOGIN_TIMEOUT"},
		},
		&cli.DurationFlag{
			Name:  "poll-interval",
			Usage: "delay between status checks",
			Value: 2 * time.Second,
		},
	}, serviceFlags...),
	Action: runLogin,
}

func runLogin(cctx *cli.Context) error {
	c := client.New(cctx.String("service-url"),
		client.WithPollInterval(cctx.Duration("poll-interval")),
	)

	ctx, cancel := context.WithTimeout(cctx.Context, cctx.Duration("timeout"))
	defer cancel()

	start, err := c.Initiate(ctx)
	if err != nil {
		return err
	}

	fmt.Println("Open this URL in your browser to continue:")
	fmt.Println()
	fmt.Println("  " + start.AuthorizationURL)
	fmt.Println()
	log.Info().Str("session_id", start.SessionID).Msg("waiting for the flow to complete")

	bundle, err := c.Await(ctx, start.SessionID)
	if err != nil {
		return err
	}

	log.Info().Msg("authorization complete")
	return printTokens(bundle)
}

var cmdRefresh = &cli.Command{
	Name:  "refresh",
	Usage: "redeem a refresh token for a fresh access token",
	Flags: append([]cli.Flag{
		&cli.StringFlag{
			Name:     "refresh-token",
			Usage:    "refresh token from a previous login",
			Required: true,
			EnvVars:  []string{"COLINO_REFRESH_TOKEN"},
		},
	}, serviceFlags...),
	Action: runRefresh,
}

func runRefresh(cctx *cli.Context) error {
	c := client.New(cctx.String("service-url"))

	bundle, err := c.Refresh(cctx.Context, cctx.String("refresh-token"))
	if err != nil {
		return err
	}
	return printTokens(bundle)
}

func printTokens(bundle *sessions.TokenBundle) error {
	out, err := json.MarshalIndent(bundle, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

package main

import (
	"fmt"
	"os"
	"time"

	"github.com/urfave/cli/v2"
)

func main() {
	app := cli.NewApp()
	app.Name = "Moloch"
	app.Usage = "Membership treasury governance engine"
	app.Compiled = time.Now()

	cli.VersionPrinter = func(c *cli.Context) {
		printVersion()
	}

	// global flags
	app.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:  "repo",
			Usage: "Moloch storage repo path",
		},
	}

	app.Commands = []*cli.Command{
		configCMD,
		{
			Name:   "summon",
			Usage:  "Summon the guild configured in the repo",
			Action: summon,
		},
		{
			Name:   "status",
			Usage:  "Show the guild state",
			Action: status,
		},
		{
			Name:  "events",
			Usage: "List the guild events",
			Flags: []cli.Flag{
				&cli.Uint64Flag{
					Name:  "from",
					Usage: "First event batch to list",
				},
			},
			Action: listEvents,
		},
		{
			Name:   "start",
			Usage:  "Start a long-running process following the guild events",
			Action: start,
		},
		{
			Name:    "version",
			Aliases: []string{"v"},
			Usage:   "Moloch version",
			Action: func(ctx *cli.Context) error {
				printVersion()
				return nil
			},
		},
	}

	err := app.Run(os.Args)
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

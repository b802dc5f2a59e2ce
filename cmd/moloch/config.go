package main

import (
	"fmt"
	"os"

	"github.com/axiomesh/moloch/repo"
	"github.com/urfave/cli/v2"
)

var configCMD = &cli.Command{
	Name:  "config",
	Usage: "The config manage commands",
	Subcommands: []*cli.Command{
		{
			Name:  "generate",
			Usage: "Generate default config",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:  "backend",
					Usage: "Storage backend, leveldb or sqlite",
					Value: repo.StorageLevelDB,
				},
				&cli.StringFlag{
					Name:  "summoner",
					Usage: "Founding member address",
				},
			},
			Action: generate,
		},
		{
			Name:   "show",
			Usage:  "Show the complete config processed by the environment variable",
			Action: show,
		},
		{
			Name:   "check",
			Usage:  "Check if the config file is valid and the guild parameters are sound",
			Action: check,
		},
		{
			Name:   "rewrite-with-env",
			Usage:  "Rewrite config with env",
			Action: rewriteWithEnv,
		},
	},
}

func generate(ctx *cli.Context) error {
	p, err := getRootPath(ctx)
	if err != nil {
		return err
	}
	if repo.Exist(p) {
		fmt.Println("moloch repo already exists")
		return nil
	}

	if err := os.MkdirAll(p, 0755); err != nil {
		return err
	}

	cfg := repo.DefaultConfig(p)
	cfg.Storage.Backend = ctx.String("backend")
	if s := ctx.String("summoner"); s != "" {
		cfg.Guild.Summoner = s
	}
	if _, err := repo.Create(cfg); err != nil {
		return err
	}

	fmt.Printf("initializing moloch at %s\n", p)
	return nil
}

func loadExisting(ctx *cli.Context) (*repo.Repo, error) {
	p, err := getRootPath(ctx)
	if err != nil {
		return nil, err
	}
	if !repo.Exist(p) {
		return nil, fmt.Errorf("moloch repo %s not exist, run `moloch config generate` first", p)
	}
	return repo.Load(p)
}

func show(ctx *cli.Context) error {
	r, err := loadExisting(ctx)
	if err != nil {
		return err
	}
	str, err := repo.MarshalConfig(r.Config)
	if err != nil {
		return err
	}
	fmt.Println(str)
	return nil
}

func check(ctx *cli.Context) error {
	r, err := loadExisting(ctx)
	if err != nil {
		fmt.Println("config error, please check:", err)
		os.Exit(1)
		return nil
	}

	fmt.Printf("summoner:     %s\n", r.Summoner.Hex())
	fmt.Printf("guild params: period %ds, voting %d, grace %d, abort %d, dilution %d\n",
		r.Params.PeriodDuration, r.Params.VotingPeriodLength, r.Params.GracePeriodLength, r.Params.AbortWindow, r.Params.DilutionBound)
	fmt.Println("config is valid")
	return nil
}

func rewriteWithEnv(ctx *cli.Context) error {
	r, err := loadExisting(ctx)
	if err != nil {
		return err
	}
	return r.Flush()
}

func getRootPath(ctx *cli.Context) (string, error) {
	return repo.LoadRepoRootFromEnv(ctx.String("repo"))
}

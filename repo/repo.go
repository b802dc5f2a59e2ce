package repo

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/axiomesh/moloch/core"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/mitchellh/go-homedir"
	"github.com/pelletier/go-toml/v2"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

const (
	rootPathEnvVar = "MOLOCH_PATH"

	envPrefix = "MOLOCH"

	cfgFileName = "moloch.toml"

	defaultRepoRoot = "~/.moloch"

	LogsDirName = "logs"
)

// Repo is a guild's working directory: its config file, logs and store.
// The guild and watch sections are resolved when the repo is opened.
type Repo struct {
	Config *Config

	Summoner common.Address
	Params   core.Params
	Filter   ethereum.FilterQuery
}

// Exist check if the file with the given path exits.
func Exist(path string) bool {
	fi, err := os.Lstat(path)
	if fi != nil || (err != nil && !os.IsNotExist(err)) {
		return true
	}

	return false
}

// Load opens the repo at repoRoot, writing a default config on first use.
// Environment variables override file values in both cases.
func Load(repoRoot string) (*Repo, error) {
	rootPath, err := LoadRepoRootFromEnv(repoRoot)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig(rootPath)
	cfgPath := configPath(rootPath)

	if Exist(cfgPath) {
		if err := CheckWritable(rootPath); err != nil {
			return nil, err
		}
		if err := readConfigFromFile(cfgPath, cfg); err != nil {
			return nil, errors.Wrapf(err, "read config %s", cfgPath)
		}
		return open(cfg)
	}

	if err := os.MkdirAll(rootPath, 0755); err != nil {
		return nil, errors.Wrap(err, "failed to build default config")
	}
	if err := writeConfig(cfgPath, cfg); err != nil {
		return nil, errors.Wrap(err, "failed to build default config")
	}
	if err := readConfigFromFile(cfgPath, cfg); err != nil {
		return nil, errors.Wrap(err, "failed to build default config")
	}
	r, err := open(cfg)
	if err != nil {
		return nil, err
	}
	return r, r.Flush()
}

// Create validates cfg and writes it as a new repo's config.
func Create(cfg *Config) (*Repo, error) {
	r, err := open(cfg)
	if err != nil {
		return nil, err
	}
	return r, r.Flush()
}

func open(cfg *Config) (*Repo, error) {
	cfgPath := configPath(cfg.RepoRoot)
	if err := cfg.check(); err != nil {
		return nil, errors.Wrapf(err, "invalid config %s", cfgPath)
	}

	r := &Repo{Config: cfg}
	var err error
	if r.Summoner, err = cfg.Guild.SummonerAddress(); err != nil {
		return nil, errors.Wrapf(err, "invalid guild section in %s", cfgPath)
	}
	if r.Params, err = cfg.Guild.Params(); err != nil {
		return nil, errors.Wrapf(err, "invalid guild section in %s", cfgPath)
	}
	if r.Filter, err = cfg.Watch.FilterQuery(); err != nil {
		return nil, errors.Wrapf(err, "invalid watch section in %s", cfgPath)
	}

	if err := os.MkdirAll(r.LogsPath(), 0755); err != nil {
		return nil, errors.Wrap(err, "failed to create logs dir")
	}
	return r, nil
}

func configPath(root string) string {
	return filepath.Join(root, cfgFileName)
}

func (r *Repo) ConfigPath() string {
	return configPath(r.Config.RepoRoot)
}

// LogsPath is where the binary writes rotated log files.
func (r *Repo) LogsPath() string {
	return filepath.Join(r.Config.RepoRoot, LogsDirName)
}

// Flush writes the config back to disk with environment overrides applied,
// so the file shows the values the guild actually runs with.
func (r *Repo) Flush() error {
	cfgPath := r.ConfigPath()
	if err := writeConfig(cfgPath, r.Config); err != nil {
		return errors.Wrap(err, "failed to write config")
	}
	// TODO: drop the round trip once viper can unmarshal env-only keys
	if err := readConfigFromFile(cfgPath, r.Config); err != nil {
		return errors.Wrap(err, "failed to read cfg from environment")
	}
	if err := writeConfig(cfgPath, r.Config); err != nil {
		return errors.Wrap(err, "failed to write config")
	}
	return nil
}

func writeConfig(cfgPath string, config any) error {
	raw, err := MarshalConfig(config)
	if err != nil {
		return err
	}
	return os.WriteFile(cfgPath, []byte(raw), 0644)
}

func MarshalConfig(config any) (string, error) {
	buf := bytes.NewBuffer([]byte{})
	e := toml.NewEncoder(buf)
	e.SetIndentTables(true)
	e.SetArraysMultiline(true)
	if err := e.Encode(config); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// LoadRepoRootFromEnv picks repoRoot, then $MOLOCH_PATH, then ~/.moloch.
func LoadRepoRootFromEnv(repoRoot string) (string, error) {
	if repoRoot != "" {
		return repoRoot, nil
	}
	if p := os.Getenv(rootPathEnvVar); p != "" {
		return p, nil
	}
	return homedir.Expand(defaultRepoRoot)
}

func readConfigFromFile(cfgFilePath string, config any) error {
	vp := viper.New()
	vp.SetConfigFile(cfgFilePath)
	vp.SetConfigType("toml")
	vp.AutomaticEnv()
	vp.SetEnvPrefix(envPrefix)
	vp.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := vp.ReadInConfig(); err != nil {
		return err
	}
	return vp.Unmarshal(config)
}

// CheckWritable creates dir if missing, otherwise writes and removes a scratch file.
func CheckWritable(dir string) error {
	_, err := os.Stat(dir)
	switch {
	case err == nil:
		scratch := filepath.Join(dir, ".moloch-write-check")
		f, err := os.Create(scratch)
		if err != nil {
			if os.IsPermission(err) {
				return fmt.Errorf("%s is not writeable by the current user", dir)
			}
			return fmt.Errorf("unexpected error while checking writeablility of repo root: %s", err)
		}
		_ = f.Close()
		return os.Remove(scratch)
	case os.IsNotExist(err):
		return os.Mkdir(dir, 0775)
	case os.IsPermission(err):
		return fmt.Errorf("cannot write to %s, incorrect permissions", dir)
	default:
		return err
	}
}

package repo

import (
	"math/big"
	"time"

	"github.com/axiomesh/moloch/core"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/pkg/errors"
)

const (
	StorageLevelDB = "leveldb"
	StorageSQLite  = "sqlite"
)

type Config struct {
	RepoRoot string  `mapstructure:"-" toml:"-"`
	Log      Log     `mapstructure:"log" toml:"log"`
	Storage  Storage `mapstructure:"storage" toml:"storage"`
	Guild    Guild   `mapstructure:"guild" toml:"guild"`
	Watch    Watch   `mapstructure:"watch" toml:"watch"`
	Metrics  Metrics `mapstructure:"metrics" toml:"metrics"`
}

type Log struct {
	Level        string        `mapstructure:"level" toml:"level"`
	Filename     string        `mapstructure:"filename" toml:"filename"`
	ReportCaller bool          `mapstructure:"report_caller" toml:"report_caller"`
	MaxAge       time.Duration `mapstructure:"max_age" toml:"max_age"`
	RotationTime time.Duration `mapstructure:"rotation_time" toml:"rotation_time"`
}

type Storage struct {
	// leveldb or sqlite
	Backend string `mapstructure:"backend" toml:"backend"`
	// relative paths are resolved against the repo root
	Path string `mapstructure:"path" toml:"path"`
}

// Guild holds the summoning parameters. Token amounts are decimal strings.
type Guild struct {
	Summoner           string `mapstructure:"summoner" toml:"summoner"`
	ApprovedToken      string `mapstructure:"approved_token" toml:"approved_token"`
	PeriodDuration     uint64 `mapstructure:"period_duration" toml:"period_duration"`
	VotingPeriodLength uint64 `mapstructure:"voting_period_length" toml:"voting_period_length"`
	GracePeriodLength  uint64 `mapstructure:"grace_period_length" toml:"grace_period_length"`
	AbortWindow        uint64 `mapstructure:"abort_window" toml:"abort_window"`
	ProposalDeposit    string `mapstructure:"proposal_deposit" toml:"proposal_deposit"`
	DilutionBound      uint64 `mapstructure:"dilution_bound" toml:"dilution_bound"`
	ProcessingReward   string `mapstructure:"processing_reward" toml:"processing_reward"`
}

type Watch struct {
	// beginning of the queried range in event batches, 0 means the first batch
	FromBlock uint64 `mapstructure:"from_block" toml:"from_block"`
	// end of the range, 0 means latest batch
	ToBlock   uint64   `mapstructure:"to_block" toml:"to_block"`
	Addresses []string `mapstructure:"addresses" toml:"addresses"`
	// Examples:
	// {} or nil          matches any topic list
	// {{A}}              matches topic A in first position
	// {{}, {B}}          matches any topic in first position AND B in second position
	// {{A, B}, {C, D}}   matches topic (A OR B) in first position AND (C OR D) in second position
	Topics [][]string `mapstructure:"topics" toml:"topics"`
}

type Metrics struct {
	Enable bool   `mapstructure:"enable" toml:"enable"`
	Listen string `mapstructure:"listen" toml:"listen"`
}

func DefaultConfig(repoRoot string) *Config {
	return &Config{
		RepoRoot: repoRoot,
		Log: Log{
			Level:        "info",
			Filename:     "moloch.log",
			ReportCaller: false,
			MaxAge:       30 * 24 * time.Hour,
			RotationTime: 24 * time.Hour,
		},
		Storage: Storage{
			Backend: StorageLevelDB,
			Path:    "storage",
		},
		Guild: Guild{
			Summoner:           "0x110000000000000000000000000000000000ffff",
			ApprovedToken:      "0x0000000000000000000000000000000000001001",
			PeriodDuration:     17280,
			VotingPeriodLength: 35,
			GracePeriodLength:  35,
			AbortWindow:        5,
			ProposalDeposit:    "10000000000000000000",
			DilutionBound:      3,
			ProcessingReward:   "100000000000000000",
		},
		Watch: Watch{
			FromBlock: 0,
			ToBlock:   0,
		},
		Metrics: Metrics{
			Enable: true,
			Listen: "localhost:9191",
		},
	}
}

func (c *Config) check() error {
	switch c.Storage.Backend {
	case StorageLevelDB, StorageSQLite:
	default:
		return errors.Errorf("unsupported storage backend %q", c.Storage.Backend)
	}
	if c.Storage.Path == "" {
		return errors.New("storage path is empty")
	}
	if c.Metrics.Enable && c.Metrics.Listen == "" {
		return errors.New("metrics listen address is empty")
	}
	return nil
}

func parseAddress(name, s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, errors.Errorf("%s: invalid address %q", name, s)
	}
	return common.HexToAddress(s), nil
}

func parseAmount(name, s string) (*uint256.Int, error) {
	if s == "" {
		return new(uint256.Int), nil
	}
	b, ok := new(big.Int).SetString(s, 10)
	if !ok || b.Sign() < 0 {
		return nil, errors.Errorf("%s: invalid amount %q", name, s)
	}
	v, overflow := uint256.FromBig(b)
	if overflow {
		return nil, errors.Errorf("%s: amount %q overflows", name, s)
	}
	return v, nil
}

func (g Guild) SummonerAddress() (common.Address, error) {
	return parseAddress("summoner", g.Summoner)
}

// Params converts the section into validated guild parameters.
func (g Guild) Params() (core.Params, error) {
	token, err := parseAddress("approved_token", g.ApprovedToken)
	if err != nil {
		return core.Params{}, errors.Wrap(err, "guild config")
	}
	deposit, err := parseAmount("proposal_deposit", g.ProposalDeposit)
	if err != nil {
		return core.Params{}, errors.Wrap(err, "guild config")
	}
	reward, err := parseAmount("processing_reward", g.ProcessingReward)
	if err != nil {
		return core.Params{}, errors.Wrap(err, "guild config")
	}

	p := core.Params{
		ApprovedToken:      token,
		PeriodDuration:     g.PeriodDuration,
		VotingPeriodLength: g.VotingPeriodLength,
		GracePeriodLength:  g.GracePeriodLength,
		AbortWindow:        g.AbortWindow,
		ProposalDeposit:    deposit,
		DilutionBound:      g.DilutionBound,
		ProcessingReward:   reward,
	}
	if err := p.Validate(); err != nil {
		return core.Params{}, errors.Wrap(err, "guild config")
	}
	return p, nil
}

// FilterQuery converts the section into a log filter.
func (w Watch) FilterQuery() (ethereum.FilterQuery, error) {
	var q ethereum.FilterQuery
	if w.FromBlock != 0 {
		q.FromBlock = new(big.Int).SetUint64(w.FromBlock)
	}
	if w.ToBlock != 0 {
		q.ToBlock = new(big.Int).SetUint64(w.ToBlock)
	}

	for _, addr := range w.Addresses {
		a, err := parseAddress("watch address", addr)
		if err != nil {
			return ethereum.FilterQuery{}, err
		}
		q.Addresses = append(q.Addresses, a)
	}
	for _, topic := range w.Topics {
		var dstTopic []common.Hash
		for _, s := range topic {
			dstTopic = append(dstTopic, common.HexToHash(s))
		}
		q.Topics = append(q.Topics, dstTopic)
	}
	return q, nil
}

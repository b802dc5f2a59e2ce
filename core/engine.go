package core

import (
	"sync"
	"time"

	"github.com/axiomesh/moloch/bank"
	"github.com/axiomesh/moloch/eventlog"
	"github.com/axiomesh/moloch/metrics"
	"github.com/axiomesh/moloch/safemath"
	"github.com/axiomesh/moloch/state"
	"github.com/axiomesh/moloch/token"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	opSummon            = "moloch::constructor"
	opSubmitProposal    = "moloch::submitProposal"
	opSubmitVote        = "moloch::submitVote"
	opProcessProposal   = "moloch::processProposal"
	opRagequit          = "moloch::ragequit"
	opAbort             = "moloch::abort"
	opUpdateDelegateKey = "moloch::updateDelegateKey"
	opCanRagequit       = "moloch::canRagequit"
	opMemberVote        = "moloch::getMemberProposalVote"
)

// Backend bundles the collaborators of an Engine. Events must be a log over
// Store so that an operation's state and events commit together.
type Backend struct {
	Store  state.Store
	Token  token.Token
	Events *eventlog.Log
	Logger logrus.FieldLogger
}

// Engine is the guild. Every operation holds the engine lock from start to
// finish, including calls into the token and the bank, and stages its state
// writes and events until it succeeds.
type Engine struct {
	mu sync.Mutex

	store   state.Store
	journal *state.Journal
	batch   eventlog.Batch
	events  *eventlog.Log
	token   token.Token
	bank    *bank.GuildBank
	logger  logrus.FieldLogger

	address       common.Address
	params        Params
	summoningTime int64
}

func (p Params) Validate() error {
	switch {
	case p.ApprovedToken == (common.Address{}):
		return errors.Wrap(ErrInvalidParams, "approved token cannot be 0")
	case p.PeriodDuration == 0:
		return errors.Wrap(ErrInvalidParams, "period duration cannot be 0")
	case p.VotingPeriodLength == 0:
		return errors.Wrap(ErrInvalidParams, "voting period length cannot be 0")
	case p.VotingPeriodLength > MaxVotingPeriodLength:
		return errors.Wrap(ErrInvalidParams, "voting period length exceeds limit")
	case p.GracePeriodLength > MaxGracePeriodLength:
		return errors.Wrap(ErrInvalidParams, "grace period length exceeds limit")
	case p.AbortWindow == 0:
		return errors.Wrap(ErrInvalidParams, "abort window cannot be 0")
	case p.AbortWindow > p.VotingPeriodLength:
		return errors.Wrap(ErrInvalidParams, "abort window must be smaller than or equal to voting period length")
	case p.DilutionBound == 0:
		return errors.Wrap(ErrInvalidParams, "dilution bound cannot be 0")
	case p.DilutionBound > MaxDilutionBound:
		return errors.Wrap(ErrInvalidParams, "dilution bound exceeds limit")
	case orZero(p.ProposalDeposit).Lt(orZero(p.ProcessingReward)):
		return errors.Wrap(ErrInvalidParams, "proposal deposit cannot be smaller than processing reward")
	}
	return nil
}

func newEngine(b Backend) *Engine {
	logger := b.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Engine{
		store:   b.Store,
		journal: state.NewJournal(b.Store),
		events:  b.Events,
		token:   b.Token,
		logger:  logger,
	}
}

// Summon creates a new guild in the store with summoner as its only member
// holding one share. The engine's token account is derived from the
// summoner like a contract address, and the guild bank's from the engine.
func Summon(b Backend, params Params, summoner common.Address, now time.Time) (*Engine, error) {
	if summoner == (common.Address{}) {
		return nil, errors.Wrap(ErrInvalidAddress, opSummon+": summoner")
	}
	if err := params.Validate(); err != nil {
		return nil, errors.Wrap(err, opSummon)
	}
	if state.GetBool(b.Store, summonedKey) {
		return nil, errors.Wrap(ErrAlreadySummoned, opSummon)
	}

	e := newEngine(b)
	e.address = crypto.CreateAddress(summoner, 0)
	e.params = Params{
		ApprovedToken:      params.ApprovedToken,
		PeriodDuration:     params.PeriodDuration,
		VotingPeriodLength: params.VotingPeriodLength,
		GracePeriodLength:  params.GracePeriodLength,
		AbortWindow:        params.AbortWindow,
		ProposalDeposit:    orZero(params.ProposalDeposit).Clone(),
		DilutionBound:      params.DilutionBound,
		ProcessingReward:   orZero(params.ProcessingReward).Clone(),
	}
	e.summoningTime = now.Unix()

	bankAddress := crypto.CreateAddress(e.address, 0)
	gb, err := bank.New(e.journal, bankAddress, e.address, params.ApprovedToken, e.token, &e.batch)
	if err != nil {
		e.rollback()
		return nil, errors.Wrap(err, opSummon)
	}
	e.bank = gb

	s := e.journal
	state.PutBool(s, summonedKey, true)
	state.PutAddress(s, addressKey, e.address)
	state.PutAddress(s, bankAddressKey, bankAddress)
	state.PutInt64(s, summoningTimeKey, e.summoningTime)
	saveParams(s, e.params)

	shares := uint256.NewInt(1)
	saveMember(s, summoner, &Member{
		DelegateKey: summoner,
		Shares:      shares,
		Exists:      true,
	})
	setMemberByDelegateKey(s, summoner, summoner)
	state.PutUint256(s, totalSharesKey, shares)
	state.PutUint256(s, totalSharesRequestedKey, new(uint256.Int))
	state.PutUint64(s, queueLengthKey, 0)

	_ = e.batch.Emit(eventlog.NewSummonComplete(e.address, summoner, shares))
	if err := e.commit(); err != nil {
		return nil, errors.Wrap(err, opSummon)
	}

	e.logger.WithFields(logrus.Fields{
		"summoner":  summoner.Hex(),
		"guild":     e.address.Hex(),
		"guildbank": bankAddress.Hex(),
	}).Info("guild summoned")
	metrics.RecordShares(shares, new(uint256.Int))
	return e, nil
}

// Open reloads a guild summoned earlier into the same store.
func Open(b Backend) (*Engine, error) {
	if !state.GetBool(b.Store, summonedKey) {
		return nil, ErrNotSummoned
	}
	e := newEngine(b)
	e.address = state.GetAddress(b.Store, addressKey)
	e.params = loadParams(b.Store)
	e.summoningTime = state.GetInt64(b.Store, summoningTimeKey)
	e.bank = bank.Load(e.journal, state.GetAddress(b.Store, bankAddressKey), e.token, &e.batch)
	return e, nil
}

// commit writes staged state and events to the store in one batch.
func (e *Engine) commit() error {
	evs := e.batch.Events()
	e.batch.Reset()
	if e.events == nil {
		e.journal.Commit()
		return nil
	}
	if _, err := e.events.Commit(e.journal, evs...); err != nil {
		e.journal.Discard()
		return err
	}
	return nil
}

func (e *Engine) rollback() {
	e.journal.Discard()
	e.batch.Reset()
}

// reject discards staged effects of a failed operation.
func (e *Engine) reject(op string, msg Message, err error) {
	e.rollback()
	kind := KindOf(err)
	e.logger.WithFields(logrus.Fields{
		"op":     op,
		"sender": msg.Sender.Hex(),
		"kind":   kind.String(),
	}).Debugf("rejected: %s", err)
	metrics.RecordRejection(op, kind.String())
}

func (e *Engine) recordShares() {
	metrics.RecordShares(e.totalShares(), e.totalSharesRequested())
}

func (e *Engine) currentPeriod(now time.Time) (uint64, error) {
	ts := now.Unix()
	if ts < e.summoningTime {
		return 0, safemath.ErrUnderflow
	}
	elapsed, err := safemath.Sub64(uint64(ts), uint64(e.summoningTime))
	if err != nil {
		return 0, err
	}
	return safemath.Div64(elapsed, e.params.PeriodDuration)
}

func (e *Engine) totalShares() *uint256.Int {
	return state.GetUint256(e.journal, totalSharesKey)
}

func (e *Engine) totalSharesRequested() *uint256.Int {
	return state.GetUint256(e.journal, totalSharesRequestedKey)
}

func (e *Engine) queueLength() uint64 {
	return state.GetUint64(e.journal, queueLengthKey)
}

// requireDelegate resolves the member a delegate key acts for.
func (e *Engine) requireDelegate(sender common.Address) (common.Address, *Member, error) {
	addr := memberByDelegateKey(e.journal, sender)
	m := loadMember(e.journal, addr)
	if m.Shares.IsZero() {
		return common.Address{}, nil, ErrNotDelegate
	}
	return addr, m, nil
}

func (e *Engine) requireMember(sender common.Address) (*Member, error) {
	m := loadMember(e.journal, sender)
	if m.Shares.IsZero() {
		return nil, ErrNotMember
	}
	return m, nil
}

func (e *Engine) hasVotingPeriodExpired(startingPeriod uint64, now time.Time) (bool, error) {
	period, err := e.currentPeriod(now)
	if err != nil {
		return false, err
	}
	end, err := safemath.Add64(startingPeriod, e.params.VotingPeriodLength)
	if err != nil {
		return false, err
	}
	return period >= end, nil
}

func (e *Engine) canRagequit(highestIndexYesVote uint64) (bool, error) {
	length := e.queueLength()
	if length == 0 {
		return true, nil
	}
	if highestIndexYesVote >= length {
		return false, ErrProposalNotFound
	}
	return proposalProcessed(e.journal, highestIndexYesVote), nil
}

// Address is the guild's token account holding escrowed deposits and tributes.
func (e *Engine) Address() common.Address {
	return e.address
}

// BankOwner returns the account allowed to withdraw from the guild bank,
// which is the engine itself for a live guild.
func (e *Engine) BankOwner() common.Address {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.bank.Owner()
}

func (e *Engine) BankApprovedToken() common.Address {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.bank.ApprovedToken()
}

func (e *Engine) BankAddress() common.Address {
	return e.bank.Address()
}

func (e *Engine) BankBalance() *uint256.Int {
	return e.bank.Balance()
}

func (e *Engine) Params() Params {
	p := e.params
	p.ProposalDeposit = p.ProposalDeposit.Clone()
	p.ProcessingReward = p.ProcessingReward.Clone()
	return p
}

func (e *Engine) SummoningTime() time.Time {
	return time.Unix(e.summoningTime, 0)
}

func (e *Engine) CurrentPeriod(now time.Time) (uint64, error) {
	return e.currentPeriod(now)
}

func (e *Engine) HasVotingPeriodExpired(startingPeriod uint64, now time.Time) (bool, error) {
	return e.hasVotingPeriodExpired(startingPeriod, now)
}

func (e *Engine) TotalShares() *uint256.Int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.totalShares()
}

func (e *Engine) TotalSharesRequested() *uint256.Int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.totalSharesRequested()
}

func (e *Engine) ProposalQueueLength() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.queueLength()
}

func (e *Engine) Proposal(index uint64) (*Proposal, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if index >= e.queueLength() {
		return nil, ErrProposalNotFound
	}
	return loadProposal(e.journal, index), nil
}

// Member returns the record stored for addr; Exists is false for strangers.
func (e *Engine) Member(addr common.Address) *Member {
	e.mu.Lock()
	defer e.mu.Unlock()
	return loadMember(e.journal, addr)
}

func (e *Engine) MemberAddressByDelegateKey(key common.Address) common.Address {
	e.mu.Lock()
	defer e.mu.Unlock()
	return memberByDelegateKey(e.journal, key)
}

func (e *Engine) MemberProposalVote(member common.Address, index uint64) (Vote, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !loadMember(e.journal, member).Exists {
		return Null, errors.Wrap(ErrNotMember, opMemberVote)
	}
	if index >= e.queueLength() {
		return Null, errors.Wrap(ErrProposalNotFound, opMemberVote)
	}
	return loadVote(e.journal, index, member), nil
}

// CanRagequit reports whether the proposal at highestIndexYesVote is processed.
func (e *Engine) CanRagequit(highestIndexYesVote uint64) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	ok, err := e.canRagequit(highestIndexYesVote)
	if err != nil {
		return false, errors.Wrap(err, opCanRagequit)
	}
	return ok, nil
}

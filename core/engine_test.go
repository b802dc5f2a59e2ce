package core

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/axiomesh/axiom-kit/log"
	"github.com/axiomesh/axiom-kit/storage"
	"github.com/axiomesh/axiom-kit/storage/leveldb"
	"github.com/axiomesh/moloch/eventlog"
	"github.com/axiomesh/moloch/ownable"
	"github.com/axiomesh/moloch/safemath"
	"github.com/axiomesh/moloch/token"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	founder       = common.HexToAddress("0x110000000000000000000000000000000000ffff")
	applicant     = common.HexToAddress("0x220000000000000000000000000000000000ffff")
	newcomer      = common.HexToAddress("0x330000000000000000000000000000000000ffff")
	processor     = common.HexToAddress("0x440000000000000000000000000000000000ffff")
	delegate      = common.HexToAddress("0x550000000000000000000000000000000000ffff")
	approvedToken = common.HexToAddress("0x0000000000000000000000000000000000001001")

	summoningTime = time.Unix(1_700_000_000, 0)
)

const periodDuration = 100

func testParams() Params {
	return Params{
		ApprovedToken:      approvedToken,
		PeriodDuration:     periodDuration,
		VotingPeriodLength: 2,
		GracePeriodLength:  1,
		AbortWindow:        1,
		ProposalDeposit:    uint256.NewInt(10),
		DilutionBound:      3,
		ProcessingReward:   uint256.NewInt(1),
	}
}

// flakyToken rejects transfers touching failTo.
type flakyToken struct {
	*token.Ledger
	failTo common.Address
}

func (f *flakyToken) Transfer(from, to common.Address, amount *uint256.Int) bool {
	if f.failTo != (common.Address{}) && to == f.failTo {
		return false
	}
	return f.Ledger.Transfer(from, to, amount)
}

type harness struct {
	t      *testing.T
	db     storage.Storage
	ledger *token.Ledger
	token  *flakyToken
	events *eventlog.Log
	engine *Engine
}

func newHarness(t *testing.T) *harness {
	db, err := leveldb.New(filepath.Join(t.TempDir(), "leveldb"))
	require.Nil(t, err)
	t.Cleanup(func() { _ = db.Close() })

	events, err := eventlog.New(db)
	require.Nil(t, err)

	h := &harness{
		t:      t,
		db:     db,
		ledger: token.NewLedger(),
		events: events,
	}
	h.token = &flakyToken{Ledger: h.ledger}

	h.engine, err = Summon(h.backend(), testParams(), founder, summoningTime)
	require.Nil(t, err)

	for _, addr := range []common.Address{founder, applicant, newcomer, delegate} {
		require.True(t, h.ledger.Mint(addr, uint256.NewInt(1000)))
		require.True(t, h.ledger.Approve(addr, h.engine.Address(), uint256.NewInt(1000)))
	}
	return h
}

func (h *harness) backend() Backend {
	logger := log.New()
	logger.SetLevel(log.ParseLevel("debug"))
	return Backend{
		Store:  h.db,
		Token:  h.token,
		Events: h.events,
		Logger: logger,
	}
}

// at builds a message sent one second into the given period.
func at(sender common.Address, period uint64) Message {
	return Message{
		Sender: sender,
		Time:   summoningTime.Add(time.Duration(period*periodDuration+1) * time.Second),
	}
}

func (h *harness) balance(addr common.Address) uint64 {
	return h.ledger.BalanceOf(addr).Uint64()
}

func (h *harness) eventNames() []string {
	logs, err := h.events.FilterLogs(context.Background(), ethereum.FilterQuery{})
	require.Nil(h.t, err)
	var names []string
	for _, lg := range logs {
		ev, err := h.events.Decode(lg)
		require.Nil(h.t, err)
		names = append(names, ev.Name)
	}
	return names
}

// submit queues the standard proposal: applicant asks 5 shares for 50 tokens.
func (h *harness) submit(period uint64) uint64 {
	index, err := h.engine.SubmitProposal(at(founder, period), applicant, uint256.NewInt(50), uint256.NewInt(5), "ipfs://proposal")
	require.Nil(h.t, err)
	return index
}

func (h *harness) sharesSum(addrs ...common.Address) uint64 {
	var sum uint64
	for _, addr := range append([]common.Address{founder}, addrs...) {
		sum += h.engine.Member(addr).Shares.Uint64()
	}
	return sum
}

func TestSummon(t *testing.T) {
	h := newHarness(t)
	e := h.engine

	assert.Equal(t, uint64(1), e.TotalShares().Uint64())
	assert.True(t, e.TotalSharesRequested().IsZero())
	assert.Equal(t, uint64(0), e.ProposalQueueLength())
	assert.Equal(t, summoningTime.Unix(), e.SummoningTime().Unix())

	m := e.Member(founder)
	assert.True(t, m.Exists)
	assert.Equal(t, uint64(1), m.Shares.Uint64())
	assert.Equal(t, founder, m.DelegateKey)
	assert.Equal(t, founder, e.MemberAddressByDelegateKey(founder))
	assert.False(t, e.Member(applicant).Exists)

	assert.NotEqual(t, common.Address{}, e.Address())
	assert.NotEqual(t, e.Address(), e.BankAddress())
	assert.Equal(t, e.Address(), e.BankOwner())
	assert.Equal(t, approvedToken, e.BankApprovedToken())
	assert.True(t, e.BankBalance().IsZero())

	assert.Equal(t, []string{eventlog.OwnershipTransferred, eventlog.SummonComplete}, h.eventNames())

	period, err := e.CurrentPeriod(at(founder, 7).Time)
	require.Nil(t, err)
	assert.Equal(t, uint64(7), period)
	_, err = e.CurrentPeriod(summoningTime.Add(-time.Second))
	assert.True(t, errors.Is(err, safemath.ErrUnderflow))

	_, err = Summon(h.backend(), testParams(), founder, summoningTime)
	assert.True(t, errors.Is(err, ErrAlreadySummoned))
}

func TestOpen(t *testing.T) {
	h := newHarness(t)
	h.submit(0)

	reopened, err := Open(h.backend())
	require.Nil(t, err)
	assert.Equal(t, h.engine.Address(), reopened.Address())
	assert.Equal(t, h.engine.BankAddress(), reopened.BankAddress())
	assert.Equal(t, testParams(), reopened.Params())
	assert.Equal(t, uint64(1), reopened.ProposalQueueLength())
	assert.Equal(t, uint64(5), reopened.TotalSharesRequested().Uint64())
	assert.Equal(t, h.engine.Address(), reopened.BankOwner())

	db, err := leveldb.New(filepath.Join(t.TempDir(), "empty"))
	require.Nil(t, err)
	defer db.Close()
	_, err = Open(Backend{Store: db, Token: h.token})
	assert.True(t, errors.Is(err, ErrNotSummoned))
}

func TestSummonInvalidParams(t *testing.T) {
	tests := []struct {
		name   string
		modify func(p *Params)
	}{
		{"zero token", func(p *Params) { p.ApprovedToken = common.Address{} }},
		{"zero period duration", func(p *Params) { p.PeriodDuration = 0 }},
		{"zero voting period", func(p *Params) { p.VotingPeriodLength = 0 }},
		{"voting period too long", func(p *Params) { p.VotingPeriodLength = MaxVotingPeriodLength + 1 }},
		{"grace period too long", func(p *Params) { p.GracePeriodLength = MaxGracePeriodLength + 1 }},
		{"zero abort window", func(p *Params) { p.AbortWindow = 0 }},
		{"abort window exceeds voting", func(p *Params) { p.AbortWindow = p.VotingPeriodLength + 1 }},
		{"zero dilution bound", func(p *Params) { p.DilutionBound = 0 }},
		{"dilution bound too big", func(p *Params) { p.DilutionBound = MaxDilutionBound + 1 }},
		{"reward exceeds deposit", func(p *Params) { p.ProcessingReward = uint256.NewInt(11) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, err := leveldb.New(filepath.Join(t.TempDir(), "leveldb"))
			require.Nil(t, err)
			defer db.Close()

			p := testParams()
			tt.modify(&p)
			_, err = Summon(Backend{Store: db, Token: token.NewLedger()}, p, founder, summoningTime)
			assert.True(t, errors.Is(err, ErrInvalidParams))
			assert.Equal(t, KindValidation, KindOf(err))
			assert.False(t, errors.Is(err, ErrAlreadySummoned))

			_, err = Open(Backend{Store: db})
			assert.True(t, errors.Is(err, ErrNotSummoned))
		})
	}

	db, err := leveldb.New(filepath.Join(t.TempDir(), "leveldb"))
	require.Nil(t, err)
	defer db.Close()
	_, err = Summon(Backend{Store: db, Token: token.NewLedger()}, testParams(), common.Address{}, summoningTime)
	assert.True(t, errors.Is(err, ErrInvalidAddress))
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindUnknown, KindOf(nil))
	assert.Equal(t, KindUnknown, KindOf(errors.New("boom")))
	assert.Equal(t, KindAuthorization, KindOf(errors.Wrap(ErrNotDelegate, opSubmitVote)))
	assert.Equal(t, KindState, KindOf(errors.Wrap(ErrAlreadyVoted, opSubmitVote)))
	assert.Equal(t, KindCapacity, KindOf(ErrShareCapExceeded))
	assert.Equal(t, KindExternalCall, KindOf(errors.Wrap(ErrWithdrawalFailed, opRagequit)))
	assert.Equal(t, KindArithmetic, KindOf(errors.Wrap(safemath.ErrOverflow, "add")))
	assert.Equal(t, KindAuthorization, KindOf(ownable.ErrNotOwner))
	assert.Equal(t, KindValidation, KindOf(ownable.ErrInvalidAddress))
	assert.Equal(t, "external_call", KindExternalCall.String())

	err := errors.Wrap(ErrAlreadyVoted, opSubmitVote)
	assert.Equal(t, "moloch::submitVote: member has already voted on this proposal", err.Error())
}

func TestReadSide(t *testing.T) {
	h := newHarness(t)
	e := h.engine

	_, err := e.Proposal(0)
	assert.True(t, errors.Is(err, ErrProposalNotFound))
	ok, err := e.CanRagequit(0)
	require.Nil(t, err)
	assert.True(t, ok)

	h.submit(0)
	require.Nil(t, e.SubmitVote(at(founder, 1), 0, Yes))

	vote, err := e.MemberProposalVote(founder, 0)
	require.Nil(t, err)
	assert.Equal(t, Yes, vote)
	_, err = e.MemberProposalVote(applicant, 0)
	assert.True(t, errors.Is(err, ErrNotMember))
	_, err = e.MemberProposalVote(founder, 1)
	assert.True(t, errors.Is(err, ErrProposalNotFound))

	ok, err = e.CanRagequit(0)
	require.Nil(t, err)
	assert.False(t, ok)
	_, err = e.CanRagequit(1)
	assert.True(t, errors.Is(err, ErrProposalNotFound))

	expired, err := e.HasVotingPeriodExpired(1, at(founder, 2).Time)
	require.Nil(t, err)
	assert.False(t, expired)
	expired, err = e.HasVotingPeriodExpired(1, at(founder, 3).Time)
	require.Nil(t, err)
	assert.True(t, expired)

	p, err := e.Proposal(0)
	require.Nil(t, err)
	assert.Equal(t, "ipfs://proposal", p.Details)
	assert.Equal(t, founder, p.Proposer)
}

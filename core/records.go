package core

import (
	"strconv"

	"github.com/axiomesh/moloch/state"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

const (
	guildPrefix    = "moloch"
	memberPrefix   = "member"
	delegatePrefix = "memberAddressByDelegateKey"
	proposalPrefix = "proposal"
)

var (
	summonedKey             = state.Key(guildPrefix, "summoned")
	addressKey              = state.Key(guildPrefix, "address")
	bankAddressKey          = state.Key(guildPrefix, "guildBank")
	summoningTimeKey        = state.Key(guildPrefix, "summoningTime")
	totalSharesKey          = state.Key(guildPrefix, "totalShares")
	totalSharesRequestedKey = state.Key(guildPrefix, "totalSharesRequested")
	queueLengthKey          = state.Key(guildPrefix, "proposalQueue", "length")
)

func paramKey(name string) []byte {
	return state.Key(guildPrefix, "params", name)
}

func memberKey(addr common.Address, field string) []byte {
	return state.Key(memberPrefix, addr.Hex(), field)
}

func delegateKey(key common.Address) []byte {
	return state.Key(delegatePrefix, key.Hex())
}

func proposalKey(index uint64, field string) []byte {
	return state.Key(proposalPrefix, strconv.FormatUint(index, 10), field)
}

func voteKey(index uint64, member common.Address) []byte {
	return state.Key(proposalPrefix, strconv.FormatUint(index, 10), "vote", member.Hex())
}

func saveParams(s state.Store, p Params) {
	state.PutAddress(s, paramKey("approvedToken"), p.ApprovedToken)
	state.PutUint64(s, paramKey("periodDuration"), p.PeriodDuration)
	state.PutUint64(s, paramKey("votingPeriodLength"), p.VotingPeriodLength)
	state.PutUint64(s, paramKey("gracePeriodLength"), p.GracePeriodLength)
	state.PutUint64(s, paramKey("abortWindow"), p.AbortWindow)
	state.PutUint256(s, paramKey("proposalDeposit"), p.ProposalDeposit)
	state.PutUint64(s, paramKey("dilutionBound"), p.DilutionBound)
	state.PutUint256(s, paramKey("processingReward"), p.ProcessingReward)
}

func loadParams(s state.Store) Params {
	return Params{
		ApprovedToken:      state.GetAddress(s, paramKey("approvedToken")),
		PeriodDuration:     state.GetUint64(s, paramKey("periodDuration")),
		VotingPeriodLength: state.GetUint64(s, paramKey("votingPeriodLength")),
		GracePeriodLength:  state.GetUint64(s, paramKey("gracePeriodLength")),
		AbortWindow:        state.GetUint64(s, paramKey("abortWindow")),
		ProposalDeposit:    state.GetUint256(s, paramKey("proposalDeposit")),
		DilutionBound:      state.GetUint64(s, paramKey("dilutionBound")),
		ProcessingReward:   state.GetUint256(s, paramKey("processingReward")),
	}
}

func loadMember(s state.Store, addr common.Address) *Member {
	return &Member{
		DelegateKey:         state.GetAddress(s, memberKey(addr, "delegateKey")),
		Shares:              state.GetUint256(s, memberKey(addr, "shares")),
		Exists:              state.GetBool(s, memberKey(addr, "exists")),
		HighestIndexYesVote: state.GetUint64(s, memberKey(addr, "highestIndexYesVote")),
	}
}

func saveMember(s state.Store, addr common.Address, m *Member) {
	state.PutAddress(s, memberKey(addr, "delegateKey"), m.DelegateKey)
	state.PutUint256(s, memberKey(addr, "shares"), m.Shares)
	state.PutBool(s, memberKey(addr, "exists"), m.Exists)
	state.PutUint64(s, memberKey(addr, "highestIndexYesVote"), m.HighestIndexYesVote)
}

func memberByDelegateKey(s state.Store, key common.Address) common.Address {
	return state.GetAddress(s, delegateKey(key))
}

func setMemberByDelegateKey(s state.Store, key, member common.Address) {
	state.PutAddress(s, delegateKey(key), member)
}

func loadProposal(s state.Store, index uint64) *Proposal {
	return &Proposal{
		Index:                   index,
		Proposer:                state.GetAddress(s, proposalKey(index, "proposer")),
		Applicant:               state.GetAddress(s, proposalKey(index, "applicant")),
		SharesRequested:         state.GetUint256(s, proposalKey(index, "sharesRequested")),
		StartingPeriod:          state.GetUint64(s, proposalKey(index, "startingPeriod")),
		YesVotes:                state.GetUint256(s, proposalKey(index, "yesVotes")),
		NoVotes:                 state.GetUint256(s, proposalKey(index, "noVotes")),
		Processed:               state.GetBool(s, proposalKey(index, "processed")),
		DidPass:                 state.GetBool(s, proposalKey(index, "didPass")),
		Aborted:                 state.GetBool(s, proposalKey(index, "aborted")),
		TokenTribute:            state.GetUint256(s, proposalKey(index, "tokenTribute")),
		AbortedTribute:          state.GetUint256(s, proposalKey(index, "abortedTribute")),
		Details:                 state.GetString(s, proposalKey(index, "details")),
		MaxTotalSharesAtYesVote: state.GetUint256(s, proposalKey(index, "maxTotalSharesAtYesVote")),
	}
}

func saveProposal(s state.Store, p *Proposal) {
	i := p.Index
	state.PutAddress(s, proposalKey(i, "proposer"), p.Proposer)
	state.PutAddress(s, proposalKey(i, "applicant"), p.Applicant)
	state.PutUint256(s, proposalKey(i, "sharesRequested"), p.SharesRequested)
	state.PutUint64(s, proposalKey(i, "startingPeriod"), p.StartingPeriod)
	state.PutUint256(s, proposalKey(i, "yesVotes"), p.YesVotes)
	state.PutUint256(s, proposalKey(i, "noVotes"), p.NoVotes)
	state.PutBool(s, proposalKey(i, "processed"), p.Processed)
	state.PutBool(s, proposalKey(i, "didPass"), p.DidPass)
	state.PutBool(s, proposalKey(i, "aborted"), p.Aborted)
	state.PutUint256(s, proposalKey(i, "tokenTribute"), p.TokenTribute)
	state.PutUint256(s, proposalKey(i, "abortedTribute"), p.AbortedTribute)
	state.PutString(s, proposalKey(i, "details"), p.Details)
	state.PutUint256(s, proposalKey(i, "maxTotalSharesAtYesVote"), p.MaxTotalSharesAtYesVote)
}

func proposalProcessed(s state.Store, index uint64) bool {
	return state.GetBool(s, proposalKey(index, "processed"))
}

// votes are write-once: a stored vote is never overwritten or removed
func loadVote(s state.Store, index uint64, member common.Address) Vote {
	return Vote(state.GetUint64(s, voteKey(index, member)))
}

func saveVote(s state.Store, index uint64, member common.Address, v Vote) {
	state.PutUint64(s, voteKey(index, member), uint64(v))
}

func putTotalShares(s state.Store, v *uint256.Int) {
	state.PutUint256(s, totalSharesKey, v)
}

func putTotalSharesRequested(s state.Store, v *uint256.Int) {
	state.PutUint256(s, totalSharesRequestedKey, v)
}

func putQueueLength(s state.Store, n uint64) {
	state.PutUint64(s, queueLengthKey, n)
}

func dec(v *uint256.Int) string {
	return orZero(v).ToBig().String()
}

func orZero(v *uint256.Int) *uint256.Int {
	if v == nil {
		return new(uint256.Int)
	}
	return v
}

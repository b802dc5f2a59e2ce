package core

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Hard limits. They are small enough to avoid overflows when doing
// calculations with periods or shares, yet big enough to not limit
// reasonable use cases.
const (
	MaxVotingPeriodLength uint64 = 1e18
	MaxGracePeriodLength  uint64 = 1e18
	MaxDilutionBound      uint64 = 1e18
)

// MaxNumberOfShares bounds the share supply including reserved shares.
var MaxNumberOfShares = uint256.NewInt(1e18)

type Vote uint8

const (
	// Null is the unset value and never a valid ballot
	Null Vote = iota
	Yes
	No
)

func (v Vote) String() string {
	switch v {
	case Null:
		return "null"
	case Yes:
		return "yes"
	case No:
		return "no"
	default:
		return "invalid"
	}
}

type Member struct {
	// DelegateKey submits proposals and votes for the member, defaults to the member address
	DelegateKey common.Address
	Shares      *uint256.Int
	// Exists is true once the member record has been created, even after all shares are burned
	Exists bool
	// HighestIndexYesVote must be processed before the member can ragequit
	HighestIndexYesVote uint64
}

type Proposal struct {
	Index     uint64
	Proposer  common.Address
	Applicant common.Address

	SharesRequested *uint256.Int
	// StartingPeriod is the first period in which voting is open
	StartingPeriod uint64

	// YesVotes and NoVotes sum the shares of voters, not the number of votes
	YesVotes *uint256.Int
	NoVotes  *uint256.Int

	Processed bool
	DidPass   bool
	Aborted   bool

	TokenTribute *uint256.Int
	// AbortedTribute holds the tribute escrowed by an aborted proposal until it is refunded at processing
	AbortedTribute *uint256.Int

	// Details could be an IPFS hash, plaintext, or JSON
	Details string

	// MaxTotalSharesAtYesVote is the largest share supply seen at a yes vote, used to bound dilution
	MaxTotalSharesAtYesVote *uint256.Int
}

// Params are fixed at summoning.
type Params struct {
	ApprovedToken common.Address

	// PeriodDuration in seconds
	PeriodDuration uint64
	// VotingPeriodLength, GracePeriodLength and AbortWindow are counted in periods
	VotingPeriodLength uint64
	GracePeriodLength  uint64
	AbortWindow        uint64

	ProposalDeposit *uint256.Int
	// DilutionBound is the maximum multiplier a yes voter will be obligated to pay in case of mass ragequit
	DilutionBound    uint64
	ProcessingReward *uint256.Int
}

// Message carries the identity of the caller and the host's current time.
type Message struct {
	Sender common.Address
	Time   time.Time
}

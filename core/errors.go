package core

import (
	"github.com/axiomesh/moloch/ownable"
	"github.com/axiomesh/moloch/safemath"
	"github.com/pkg/errors"
)

type Kind uint8

const (
	KindUnknown Kind = iota
	KindValidation
	KindAuthorization
	KindState
	KindCapacity
	KindArithmetic
	KindExternalCall
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuthorization:
		return "authorization"
	case KindState:
		return "state"
	case KindCapacity:
		return "capacity"
	case KindArithmetic:
		return "arithmetic"
	case KindExternalCall:
		return "external_call"
	default:
		return "unknown"
	}
}

// Error is a rejection of a guild operation. Operations wrap it with their
// name, so messages read like "moloch::submitVote: member has already voted".
type Error struct {
	Kind Kind
	Code string
	Msg  string
}

func (e *Error) Error() string {
	return e.Msg
}

func newError(kind Kind, code, msg string) *Error {
	return &Error{Kind: kind, Code: code, Msg: msg}
}

var (
	ErrInvalidParams    = newError(KindValidation, "InvalidParams", "invalid guild parameters")
	ErrInvalidAddress   = newError(KindValidation, "InvalidAddress", "address cannot be 0")
	ErrInvalidVote      = newError(KindValidation, "InvalidVote", "vote must be either Yes or No")
	ErrProposalNotFound = newError(KindValidation, "ProposalNotFound", "proposal does not exist")

	ErrNotDelegate  = newError(KindAuthorization, "NotDelegate", "not a delegate")
	ErrNotMember    = newError(KindAuthorization, "NotMember", "not a member")
	ErrNotApplicant = newError(KindAuthorization, "NotApplicant", "caller must be applicant")

	ErrAlreadySummoned      = newError(KindState, "AlreadySummoned", "guild already summoned")
	ErrNotSummoned          = newError(KindState, "NotSummoned", "guild not summoned")
	ErrVotingNotStarted     = newError(KindState, "VotingNotStarted", "voting period has not started")
	ErrVotingExpired        = newError(KindState, "VotingExpired", "proposal voting period has expired")
	ErrAlreadyVoted         = newError(KindState, "AlreadyVoted", "member has already voted on this proposal")
	ErrProposalAborted      = newError(KindState, "ProposalAborted", "proposal has been aborted")
	ErrProposalNotReady     = newError(KindState, "ProposalNotReady", "proposal is not ready to be processed")
	ErrAlreadyProcessed     = newError(KindState, "AlreadyProcessed", "proposal has already been processed")
	ErrOutOfOrderProcessing = newError(KindState, "OutOfOrderProcessing", "previous proposal must be processed")
	ErrInsufficientShares   = newError(KindState, "InsufficientShares", "insufficient shares")
	ErrPendingYesVote       = newError(KindState, "PendingYesVote", "cant ragequit until highest index proposal member voted YES on is processed")
	ErrAbortWindowClosed    = newError(KindState, "AbortWindowClosed", "abort window must not have passed")
	ErrAlreadyAborted       = newError(KindState, "AlreadyAborted", "proposal must not have already been aborted")
	ErrKeyCollision         = newError(KindState, "KeyCollision", "cant overwrite existing members or delegate keys")

	ErrShareCapExceeded = newError(KindCapacity, "ShareCapExceeded", "too many shares requested")

	ErrDepositTransferFailed = newError(KindExternalCall, "DepositTransferFailed", "proposal deposit token transfer failed")
	ErrTributeTransferFailed = newError(KindExternalCall, "TributeTransferFailed", "tribute token transfer failed")
	ErrTransferFailed        = newError(KindExternalCall, "TransferFailed", "token transfer failed")
	ErrWithdrawalFailed      = newError(KindExternalCall, "WithdrawalFailed", "withdrawal of tokens from guild bank failed")
)

// KindOf classifies an error returned by the engine, including the
// arithmetic and ownership errors of its collaborators.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	switch {
	case errors.Is(err, safemath.ErrOverflow),
		errors.Is(err, safemath.ErrUnderflow),
		errors.Is(err, safemath.ErrDivisionByZero):
		return KindArithmetic
	case errors.Is(err, ownable.ErrNotOwner):
		return KindAuthorization
	case errors.Is(err, ownable.ErrInvalidAddress):
		return KindValidation
	}
	return KindUnknown
}

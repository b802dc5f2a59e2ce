package core

import (
	"github.com/axiomesh/moloch/eventlog"
	"github.com/axiomesh/moloch/metrics"
	"github.com/axiomesh/moloch/safemath"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// SubmitProposal queues a proposal to admit applicant with sharesRequested
// in exchange for tokenTribute. The proposal deposit is pulled from the
// sender and the tribute from the applicant, both into the guild account.
func (e *Engine) SubmitProposal(msg Message, applicant common.Address, tokenTribute, sharesRequested *uint256.Int, details string) (uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	tokenTribute, sharesRequested = orZero(tokenTribute), orZero(sharesRequested)
	index, err := e.submitProposal(msg, applicant, tokenTribute, sharesRequested, details)
	if err != nil {
		e.reject(opSubmitProposal, msg, err)
		return 0, errors.Wrap(err, opSubmitProposal)
	}
	if err := e.commit(); err != nil {
		return 0, errors.Wrap(err, opSubmitProposal)
	}

	e.logger.WithFields(logrus.Fields{
		"proposal_index":   index,
		"delegate":         msg.Sender.Hex(),
		"applicant":        applicant.Hex(),
		"tribute":          dec(tokenTribute),
		"shares_requested": dec(sharesRequested),
	}).Info("proposal submitted")
	metrics.RecordProposalSubmitted()
	e.recordShares()
	return index, nil
}

func (e *Engine) submitProposal(msg Message, applicant common.Address, tribute, shares *uint256.Int, details string) (uint64, error) {
	memberAddress, _, err := e.requireDelegate(msg.Sender)
	if err != nil {
		return 0, err
	}
	if applicant == (common.Address{}) {
		return 0, errors.Wrap(ErrInvalidAddress, "applicant")
	}

	reserved, err := safemath.Add(e.totalSharesRequested(), shares)
	if err != nil {
		return 0, ErrShareCapExceeded
	}
	total, err := safemath.Add(e.totalShares(), reserved)
	if err != nil || total.Gt(MaxNumberOfShares) {
		return 0, ErrShareCapExceeded
	}

	period, err := e.currentPeriod(msg.Time)
	if err != nil {
		return 0, err
	}
	length := e.queueLength()
	startingPeriod := period
	if length > 0 {
		last := loadProposal(e.journal, length-1)
		startingPeriod = safemath.Max64(period, last.StartingPeriod)
	}
	startingPeriod, err = safemath.Add64(startingPeriod, 1)
	if err != nil {
		return 0, err
	}

	deposit := e.params.ProposalDeposit
	if !e.token.TransferFrom(e.address, msg.Sender, e.address, deposit) {
		return 0, ErrDepositTransferFailed
	}
	if !e.token.TransferFrom(e.address, applicant, e.address, tribute) {
		// hand the deposit back, nothing else has left the journal yet
		if !e.token.Transfer(e.address, msg.Sender, deposit) {
			e.logger.WithField("delegate", msg.Sender.Hex()).Error("failed to return proposal deposit")
		}
		return 0, ErrTributeTransferFailed
	}

	putTotalSharesRequested(e.journal, reserved)
	saveProposal(e.journal, &Proposal{
		Index:                   length,
		Proposer:                memberAddress,
		Applicant:               applicant,
		SharesRequested:         shares.Clone(),
		StartingPeriod:          startingPeriod,
		YesVotes:                new(uint256.Int),
		NoVotes:                 new(uint256.Int),
		TokenTribute:            tribute.Clone(),
		AbortedTribute:          new(uint256.Int),
		Details:                 details,
		MaxTotalSharesAtYesVote: new(uint256.Int),
	})
	putQueueLength(e.journal, length+1)

	_ = e.batch.Emit(eventlog.NewSubmitProposal(e.address, length, msg.Sender, memberAddress, applicant, tribute, shares))
	return length, nil
}

// SubmitVote records the ballot of the member behind the sender's delegate key.
func (e *Engine) SubmitVote(msg Message, index uint64, vote Vote) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	memberAddress, err := e.submitVote(msg, index, vote)
	if err != nil {
		e.reject(opSubmitVote, msg, err)
		return errors.Wrap(err, opSubmitVote)
	}
	if err := e.commit(); err != nil {
		return errors.Wrap(err, opSubmitVote)
	}

	e.logger.WithFields(logrus.Fields{
		"proposal_index": index,
		"member":         memberAddress.Hex(),
		"vote":           vote.String(),
	}).Info("vote submitted")
	metrics.RecordVote(vote.String())
	return nil
}

func (e *Engine) submitVote(msg Message, index uint64, vote Vote) (common.Address, error) {
	memberAddress, member, err := e.requireDelegate(msg.Sender)
	if err != nil {
		return common.Address{}, err
	}
	if index >= e.queueLength() {
		return common.Address{}, ErrProposalNotFound
	}
	proposal := loadProposal(e.journal, index)

	period, err := e.currentPeriod(msg.Time)
	if err != nil {
		return common.Address{}, err
	}
	if period < proposal.StartingPeriod {
		return common.Address{}, ErrVotingNotStarted
	}
	expired, err := e.hasVotingPeriodExpired(proposal.StartingPeriod, msg.Time)
	if err != nil {
		return common.Address{}, err
	}
	if expired {
		return common.Address{}, ErrVotingExpired
	}
	if loadVote(e.journal, index, memberAddress) != Null {
		return common.Address{}, ErrAlreadyVoted
	}
	if vote != Yes && vote != No {
		return common.Address{}, ErrInvalidVote
	}
	if proposal.Aborted {
		return common.Address{}, ErrProposalAborted
	}

	saveVote(e.journal, index, memberAddress, vote)

	switch vote {
	case Yes:
		if proposal.YesVotes, err = safemath.Add(proposal.YesVotes, member.Shares); err != nil {
			return common.Address{}, err
		}
		if index > member.HighestIndexYesVote {
			member.HighestIndexYesVote = index
			saveMember(e.journal, memberAddress, member)
		}
		if total := e.totalShares(); total.Gt(proposal.MaxTotalSharesAtYesVote) {
			proposal.MaxTotalSharesAtYesVote = total
		}
	case No:
		if proposal.NoVotes, err = safemath.Add(proposal.NoVotes, member.Shares); err != nil {
			return common.Address{}, err
		}
	}
	saveProposal(e.journal, proposal)

	_ = e.batch.Emit(eventlog.NewSubmitVote(e.address, index, msg.Sender, memberAddress, uint8(vote)))
	return memberAddress, nil
}

type payout struct {
	to     common.Address
	amount *uint256.Int
}

// ProcessProposal settles the proposal at index once its grace period has
// ended. The outcome is committed before any tokens move; a payout failure
// returns ErrTransferFailed and leaves the proposal processed.
func (e *Engine) ProcessProposal(msg Message, index uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	proposal, payouts, err := e.processProposal(msg, index)
	if err != nil {
		e.reject(opProcessProposal, msg, err)
		return errors.Wrap(err, opProcessProposal)
	}
	if err := e.commit(); err != nil {
		return errors.Wrap(err, opProcessProposal)
	}

	fields := logrus.Fields{
		"proposal_index": index,
		"applicant":      proposal.Applicant.Hex(),
		"did_pass":       proposal.DidPass,
		"aborted":        proposal.Aborted,
	}
	metrics.RecordProposalProcessed(proposal.DidPass, proposal.Aborted)
	e.recordShares()

	for _, p := range payouts {
		if p.amount.IsZero() {
			continue
		}
		if !e.token.Transfer(e.address, p.to, p.amount) {
			e.logger.WithFields(fields).WithFields(logrus.Fields{
				"receiver": p.to.Hex(),
				"amount":   dec(p.amount),
			}).Error("proposal payout failed")
			metrics.RecordRejection(opProcessProposal, KindExternalCall.String())
			return errors.Wrapf(ErrTransferFailed, "%s: pay %s to %s", opProcessProposal, dec(p.amount), p.to.Hex())
		}
	}

	e.logger.WithFields(fields).Info("proposal processed")
	return nil
}

func (e *Engine) processProposal(msg Message, index uint64) (*Proposal, []payout, error) {
	if index >= e.queueLength() {
		return nil, nil, ErrProposalNotFound
	}
	proposal := loadProposal(e.journal, index)

	period, err := e.currentPeriod(msg.Time)
	if err != nil {
		return nil, nil, err
	}
	readyAt, err := safemath.Add64(proposal.StartingPeriod, e.params.VotingPeriodLength)
	if err != nil {
		return nil, nil, err
	}
	if readyAt, err = safemath.Add64(readyAt, e.params.GracePeriodLength); err != nil {
		return nil, nil, err
	}
	if period < readyAt {
		return nil, nil, ErrProposalNotReady
	}
	if proposal.Processed {
		return nil, nil, ErrAlreadyProcessed
	}
	if index > 0 && !proposalProcessed(e.journal, index-1) {
		return nil, nil, ErrOutOfOrderProcessing
	}

	proposal.Processed = true
	requested, err := safemath.Sub(e.totalSharesRequested(), proposal.SharesRequested)
	if err != nil {
		return nil, nil, err
	}
	putTotalSharesRequested(e.journal, requested)

	total := e.totalShares()
	bound, err := safemath.Mul(total, uint256.NewInt(e.params.DilutionBound))
	if err != nil {
		return nil, nil, err
	}
	didPass := proposal.YesVotes.Gt(proposal.NoVotes) &&
		!bound.Lt(proposal.MaxTotalSharesAtYesVote) &&
		!proposal.Aborted

	var payouts []payout
	if didPass {
		proposal.DidPass = true
		if err := e.admit(proposal.Applicant, proposal.SharesRequested); err != nil {
			return nil, nil, err
		}
		minted, err := safemath.Add(total, proposal.SharesRequested)
		if err != nil {
			return nil, nil, err
		}
		putTotalShares(e.journal, minted)
		payouts = append(payouts, payout{to: e.bank.Address(), amount: proposal.TokenTribute})
	} else {
		refund, err := safemath.Add(proposal.TokenTribute, proposal.AbortedTribute)
		if err != nil {
			return nil, nil, err
		}
		payouts = append(payouts, payout{to: proposal.Applicant, amount: refund})
	}

	reward := e.params.ProcessingReward
	remainder, err := safemath.Sub(e.params.ProposalDeposit, reward)
	if err != nil {
		return nil, nil, err
	}
	payouts = append(payouts,
		payout{to: msg.Sender, amount: reward},
		payout{to: proposal.Proposer, amount: remainder},
	)

	saveProposal(e.journal, proposal)
	_ = e.batch.Emit(eventlog.NewProcessProposal(e.address, index, proposal.Applicant, proposal.Proposer, proposal.TokenTribute, proposal.SharesRequested, didPass))
	return proposal, payouts, nil
}

// admit credits shares to applicant, creating its member record if needed.
// A new member takes its own address as delegate key, so a member currently
// delegating to that address falls back to delegating to itself.
func (e *Engine) admit(applicant common.Address, shares *uint256.Int) error {
	member := loadMember(e.journal, applicant)
	if member.Exists {
		credited, err := safemath.Add(member.Shares, shares)
		if err != nil {
			return err
		}
		member.Shares = credited
		saveMember(e.journal, applicant, member)
		return nil
	}

	if holder := memberByDelegateKey(e.journal, applicant); holder != (common.Address{}) {
		overridden := loadMember(e.journal, holder)
		overridden.DelegateKey = holder
		saveMember(e.journal, holder, overridden)
		setMemberByDelegateKey(e.journal, holder, holder)
	}

	saveMember(e.journal, applicant, &Member{
		DelegateKey: applicant,
		Shares:      shares.Clone(),
		Exists:      true,
	})
	setMemberByDelegateKey(e.journal, applicant, applicant)
	return nil
}

// Abort lets the applicant withdraw a proposal during its abort window.
// The escrowed tribute stays with the guild until processing refunds it.
func (e *Engine) Abort(msg Message, index uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.abort(msg, index); err != nil {
		e.reject(opAbort, msg, err)
		return errors.Wrap(err, opAbort)
	}
	if err := e.commit(); err != nil {
		return errors.Wrap(err, opAbort)
	}

	e.logger.WithFields(logrus.Fields{
		"proposal_index": index,
		"applicant":      msg.Sender.Hex(),
	}).Info("proposal aborted")
	metrics.RecordAbort()
	return nil
}

func (e *Engine) abort(msg Message, index uint64) error {
	if index >= e.queueLength() {
		return ErrProposalNotFound
	}
	proposal := loadProposal(e.journal, index)
	if msg.Sender != proposal.Applicant {
		return ErrNotApplicant
	}

	period, err := e.currentPeriod(msg.Time)
	if err != nil {
		return err
	}
	closesAt, err := safemath.Add64(proposal.StartingPeriod, e.params.AbortWindow)
	if err != nil {
		return err
	}
	if period >= closesAt {
		return ErrAbortWindowClosed
	}
	if proposal.Aborted {
		return ErrAlreadyAborted
	}

	proposal.AbortedTribute = proposal.TokenTribute
	proposal.TokenTribute = new(uint256.Int)
	proposal.Aborted = true
	saveProposal(e.journal, proposal)

	_ = e.batch.Emit(eventlog.NewAbort(e.address, index, msg.Sender))
	return nil
}

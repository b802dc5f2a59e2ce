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

// Ragequit burns sharesToBurn of the sender and pays out the matching
// fraction of the guild bank. A failed payout leaves the shares intact.
func (e *Engine) Ragequit(msg Message, sharesToBurn *uint256.Int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	sharesToBurn = orZero(sharesToBurn)
	if err := e.ragequit(msg, sharesToBurn); err != nil {
		e.reject(opRagequit, msg, err)
		return errors.Wrap(err, opRagequit)
	}
	if err := e.commit(); err != nil {
		return errors.Wrap(err, opRagequit)
	}

	e.logger.WithFields(logrus.Fields{
		"member": msg.Sender.Hex(),
		"shares": dec(sharesToBurn),
	}).Info("member ragequit")
	metrics.RecordRagequit(sharesToBurn)
	e.recordShares()
	return nil
}

func (e *Engine) ragequit(msg Message, sharesToBurn *uint256.Int) error {
	member, err := e.requireMember(msg.Sender)
	if err != nil {
		return err
	}
	if member.Shares.Lt(sharesToBurn) {
		return ErrInsufficientShares
	}
	ok, err := e.canRagequit(member.HighestIndexYesVote)
	if err != nil {
		return err
	}
	if !ok {
		return ErrPendingYesVote
	}

	// payout is computed against the supply before the burn
	initialTotalShares := e.totalShares()

	if member.Shares, err = safemath.Sub(member.Shares, sharesToBurn); err != nil {
		return err
	}
	saveMember(e.journal, msg.Sender, member)
	burned, err := safemath.Sub(initialTotalShares, sharesToBurn)
	if err != nil {
		return err
	}
	putTotalShares(e.journal, burned)

	paid, err := e.bank.Withdraw(e.address, msg.Sender, sharesToBurn, initialTotalShares)
	if err != nil {
		return err
	}
	if !paid {
		return ErrWithdrawalFailed
	}

	_ = e.batch.Emit(eventlog.NewRagequit(e.address, msg.Sender, sharesToBurn))
	return nil
}

// UpdateDelegateKey moves the sender's voting and proposing rights to newKey.
func (e *Engine) UpdateDelegateKey(msg Message, newKey common.Address) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.updateDelegateKey(msg, newKey); err != nil {
		e.reject(opUpdateDelegateKey, msg, err)
		return errors.Wrap(err, opUpdateDelegateKey)
	}
	if err := e.commit(); err != nil {
		return errors.Wrap(err, opUpdateDelegateKey)
	}

	e.logger.WithFields(logrus.Fields{
		"member":       msg.Sender.Hex(),
		"delegate_key": newKey.Hex(),
	}).Info("delegate key updated")
	metrics.RecordDelegateKeyUpdate()
	return nil
}

func (e *Engine) updateDelegateKey(msg Message, newKey common.Address) error {
	member, err := e.requireMember(msg.Sender)
	if err != nil {
		return err
	}
	if newKey == (common.Address{}) {
		return errors.Wrap(ErrInvalidAddress, "new delegate key")
	}

	// a member may always take back its own address
	if newKey != msg.Sender {
		if loadMember(e.journal, newKey).Exists {
			return ErrKeyCollision
		}
		if holder := memberByDelegateKey(e.journal, newKey); loadMember(e.journal, holder).Exists {
			return ErrKeyCollision
		}
	}

	setMemberByDelegateKey(e.journal, member.DelegateKey, common.Address{})
	setMemberByDelegateKey(e.journal, newKey, msg.Sender)
	member.DelegateKey = newKey
	saveMember(e.journal, msg.Sender, member)

	_ = e.batch.Emit(eventlog.NewUpdateDelegateKey(e.address, msg.Sender, newKey))
	return nil
}

// Package bank holds the guild's approved-token treasury. Only its owner, the
// governance engine, may withdraw, and payouts are proportional to the live
// token balance of the bank.
package bank

import (
	"github.com/axiomesh/moloch/eventlog"
	"github.com/axiomesh/moloch/ownable"
	"github.com/axiomesh/moloch/safemath"
	"github.com/axiomesh/moloch/state"
	"github.com/axiomesh/moloch/token"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/pkg/errors"
)

const keyPrefix = "guildbank"

type GuildBank struct {
	address common.Address
	token   token.Token
	owner   *ownable.Ownable
	emitter eventlog.Emitter
	store   state.Store
}

// New creates a bank at address owned by owner and records the approved token.
func New(store state.Store, address, owner, approvedToken common.Address, tok token.Token, emitter eventlog.Emitter) (*GuildBank, error) {
	o, err := ownable.New(store, keyPrefix, address, owner, emitter)
	if err != nil {
		return nil, errors.Wrap(err, "guild bank owner")
	}
	state.PutAddress(store, state.Key(keyPrefix, "approvedToken"), approvedToken)
	return &GuildBank{
		address: address,
		token:   tok,
		owner:   o,
		emitter: emitter,
		store:   store,
	}, nil
}

// Load reopens a bank previously created with New.
func Load(store state.Store, address common.Address, tok token.Token, emitter eventlog.Emitter) *GuildBank {
	return &GuildBank{
		address: address,
		token:   tok,
		owner:   ownable.Load(store, keyPrefix, address, emitter),
		emitter: emitter,
		store:   store,
	}
}

func (b *GuildBank) Address() common.Address {
	return b.address
}

func (b *GuildBank) ApprovedToken() common.Address {
	return state.GetAddress(b.store, state.Key(keyPrefix, "approvedToken"))
}

func (b *GuildBank) Owner() common.Address {
	return b.owner.Owner()
}

func (b *GuildBank) Balance() *uint256.Int {
	return b.token.BalanceOf(b.address)
}

// Withdraw pays receiver balance*shares/totalShares. totalShares must be the
// share supply before the caller burned shares.
func (b *GuildBank) Withdraw(caller, receiver common.Address, shares, totalShares *uint256.Int) (bool, error) {
	if !b.owner.IsOwner(caller) {
		return false, ownable.ErrNotOwner
	}

	balance := b.token.BalanceOf(b.address)
	weighted, err := safemath.Mul(balance, shares)
	if err != nil {
		return false, errors.Wrap(err, "guild bank withdraw")
	}
	amount, err := safemath.Div(weighted, totalShares)
	if err != nil {
		return false, errors.Wrap(err, "guild bank withdraw")
	}

	if err := b.emitter.Emit(eventlog.NewWithdrawal(b.address, receiver, amount)); err != nil {
		return false, err
	}
	return b.token.Transfer(b.address, receiver, amount), nil
}

func (b *GuildBank) TransferOwnership(caller, newOwner common.Address) error {
	return b.owner.TransferOwnership(caller, newOwner)
}

func (b *GuildBank) RenounceOwnership(caller common.Address) error {
	return b.owner.RenounceOwnership(caller)
}

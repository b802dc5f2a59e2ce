// Package ownable is a single-owner access-control value object. Components
// embed it by composition and persist the owner under their own key prefix.
package ownable

import (
	"github.com/axiomesh/moloch/eventlog"
	"github.com/axiomesh/moloch/state"
	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
)

var (
	ErrNotOwner       = errors.New("ownable: caller is not the owner")
	ErrInvalidAddress = errors.New("ownable: new owner is the zero address")
)

type Ownable struct {
	store   state.Store
	key     []byte
	source  common.Address
	emitter eventlog.Emitter
}

// New installs owner directly, which is how a trusted creator hands
// ownership to another component at construction time.
func New(store state.Store, prefix string, source, owner common.Address, emitter eventlog.Emitter) (*Ownable, error) {
	if owner == (common.Address{}) {
		return nil, ErrInvalidAddress
	}
	o := Load(store, prefix, source, emitter)
	if err := o.emitter.Emit(eventlog.NewOwnershipTransferred(source, common.Address{}, owner)); err != nil {
		return nil, err
	}
	state.PutAddress(o.store, o.key, owner)
	return o, nil
}

// Load reopens an ownable persisted under prefix.
func Load(store state.Store, prefix string, source common.Address, emitter eventlog.Emitter) *Ownable {
	return &Ownable{
		store:   store,
		key:     state.Key(prefix, "owner"),
		source:  source,
		emitter: emitter,
	}
}

// Owner returns the zero address once ownership is renounced.
func (o *Ownable) Owner() common.Address {
	return state.GetAddress(o.store, o.key)
}

func (o *Ownable) IsOwner(caller common.Address) bool {
	owner := o.Owner()
	return owner != (common.Address{}) && caller == owner
}

func (o *Ownable) TransferOwnership(caller, newOwner common.Address) error {
	if !o.IsOwner(caller) {
		return ErrNotOwner
	}
	if newOwner == (common.Address{}) {
		return ErrInvalidAddress
	}
	if err := o.emitter.Emit(eventlog.NewOwnershipTransferred(o.source, o.Owner(), newOwner)); err != nil {
		return err
	}
	state.PutAddress(o.store, o.key, newOwner)
	return nil
}

func (o *Ownable) RenounceOwnership(caller common.Address) error {
	if !o.IsOwner(caller) {
		return ErrNotOwner
	}
	if err := o.emitter.Emit(eventlog.NewOwnershipTransferred(o.source, o.Owner(), common.Address{})); err != nil {
		return err
	}
	state.PutAddress(o.store, o.key, common.Address{})
	return nil
}

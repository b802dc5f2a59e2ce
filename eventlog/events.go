package eventlog

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// ABI describes every event the guild emits. Argument names are the keys of
// Event.Args.
const ABI = `[
{"anonymous":false,"type":"event","name":"SummonComplete","inputs":[
	{"indexed":true,"name":"summoner","type":"address"},
	{"indexed":false,"name":"shares","type":"uint256"}]},
{"anonymous":false,"type":"event","name":"SubmitProposal","inputs":[
	{"indexed":false,"name":"proposalIndex","type":"uint256"},
	{"indexed":true,"name":"delegateKey","type":"address"},
	{"indexed":true,"name":"memberAddress","type":"address"},
	{"indexed":true,"name":"applicant","type":"address"},
	{"indexed":false,"name":"tokenTribute","type":"uint256"},
	{"indexed":false,"name":"sharesRequested","type":"uint256"}]},
{"anonymous":false,"type":"event","name":"SubmitVote","inputs":[
	{"indexed":true,"name":"proposalIndex","type":"uint256"},
	{"indexed":true,"name":"delegateKey","type":"address"},
	{"indexed":true,"name":"memberAddress","type":"address"},
	{"indexed":false,"name":"uintVote","type":"uint8"}]},
{"anonymous":false,"type":"event","name":"ProcessProposal","inputs":[
	{"indexed":true,"name":"proposalIndex","type":"uint256"},
	{"indexed":true,"name":"applicant","type":"address"},
	{"indexed":true,"name":"memberAddress","type":"address"},
	{"indexed":false,"name":"tokenTribute","type":"uint256"},
	{"indexed":false,"name":"sharesRequested","type":"uint256"},
	{"indexed":false,"name":"didPass","type":"bool"}]},
{"anonymous":false,"type":"event","name":"Ragequit","inputs":[
	{"indexed":true,"name":"memberAddress","type":"address"},
	{"indexed":false,"name":"sharesToBurn","type":"uint256"}]},
{"anonymous":false,"type":"event","name":"Abort","inputs":[
	{"indexed":true,"name":"proposalIndex","type":"uint256"},
	{"indexed":false,"name":"applicantAddress","type":"address"}]},
{"anonymous":false,"type":"event","name":"UpdateDelegateKey","inputs":[
	{"indexed":true,"name":"memberAddress","type":"address"},
	{"indexed":false,"name":"newDelegateKey","type":"address"}]},
{"anonymous":false,"type":"event","name":"OwnershipTransferred","inputs":[
	{"indexed":true,"name":"previousOwner","type":"address"},
	{"indexed":true,"name":"newOwner","type":"address"}]},
{"anonymous":false,"type":"event","name":"Withdrawal","inputs":[
	{"indexed":true,"name":"receiver","type":"address"},
	{"indexed":false,"name":"amount","type":"uint256"}]}
]`

const (
	SummonComplete       = "SummonComplete"
	SubmitProposal       = "SubmitProposal"
	SubmitVote           = "SubmitVote"
	ProcessProposal      = "ProcessProposal"
	Ragequit             = "Ragequit"
	Abort                = "Abort"
	UpdateDelegateKey    = "UpdateDelegateKey"
	OwnershipTransferred = "OwnershipTransferred"
	Withdrawal           = "Withdrawal"
)

// Event is a structured event before encoding. Source is the address of the
// emitting component (engine or bank).
type Event struct {
	Source common.Address
	Name   string
	Args   map[string]interface{}
}

// Emitter receives events. The engine buffers them per operation; the Log
// persists them.
type Emitter interface {
	Emit(ev Event) error
}

func u256(v *uint256.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v.ToBig()
}

func NewSummonComplete(source, summoner common.Address, shares *uint256.Int) Event {
	return Event{Source: source, Name: SummonComplete, Args: map[string]interface{}{
		"summoner": summoner,
		"shares":   u256(shares),
	}}
}

func NewSubmitProposal(source common.Address, index uint64, delegateKey, member, applicant common.Address, tribute, shares *uint256.Int) Event {
	return Event{Source: source, Name: SubmitProposal, Args: map[string]interface{}{
		"proposalIndex":   new(big.Int).SetUint64(index),
		"delegateKey":     delegateKey,
		"memberAddress":   member,
		"applicant":       applicant,
		"tokenTribute":    u256(tribute),
		"sharesRequested": u256(shares),
	}}
}

func NewSubmitVote(source common.Address, index uint64, delegateKey, member common.Address, vote uint8) Event {
	return Event{Source: source, Name: SubmitVote, Args: map[string]interface{}{
		"proposalIndex": new(big.Int).SetUint64(index),
		"delegateKey":   delegateKey,
		"memberAddress": member,
		"uintVote":      vote,
	}}
}

func NewProcessProposal(source common.Address, index uint64, applicant, member common.Address, tribute, shares *uint256.Int, didPass bool) Event {
	return Event{Source: source, Name: ProcessProposal, Args: map[string]interface{}{
		"proposalIndex":   new(big.Int).SetUint64(index),
		"applicant":       applicant,
		"memberAddress":   member,
		"tokenTribute":    u256(tribute),
		"sharesRequested": u256(shares),
		"didPass":         didPass,
	}}
}

func NewRagequit(source, member common.Address, sharesToBurn *uint256.Int) Event {
	return Event{Source: source, Name: Ragequit, Args: map[string]interface{}{
		"memberAddress": member,
		"sharesToBurn":  u256(sharesToBurn),
	}}
}

func NewAbort(source common.Address, index uint64, applicant common.Address) Event {
	return Event{Source: source, Name: Abort, Args: map[string]interface{}{
		"proposalIndex":    new(big.Int).SetUint64(index),
		"applicantAddress": applicant,
	}}
}

func NewUpdateDelegateKey(source, member, newKey common.Address) Event {
	return Event{Source: source, Name: UpdateDelegateKey, Args: map[string]interface{}{
		"memberAddress":  member,
		"newDelegateKey": newKey,
	}}
}

func NewOwnershipTransferred(source, previous, next common.Address) Event {
	return Event{Source: source, Name: OwnershipTransferred, Args: map[string]interface{}{
		"previousOwner": previous,
		"newOwner":      next,
	}}
}

func NewWithdrawal(source, receiver common.Address, amount *uint256.Int) Event {
	return Event{Source: source, Name: Withdrawal, Args: map[string]interface{}{
		"receiver": receiver,
		"amount":   u256(amount),
	}}
}

// Batch collects the events of one operation until it commits.
type Batch struct {
	events []Event
}

func (b *Batch) Emit(ev Event) error {
	b.events = append(b.events, ev)
	return nil
}

func (b *Batch) Events() []Event {
	return b.events
}

func (b *Batch) Reset() {
	b.events = nil
}

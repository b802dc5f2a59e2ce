// Package token defines the fungible-token capability the guild depends on
// and an in-process ERC20-style ledger implementing it.
package token

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Token is the external token contract as seen by the engine and the bank.
// from in Transfer and spender in TransferFrom stand for the calling
// account. A false return means the token rejected the call.
type Token interface {
	BalanceOf(owner common.Address) *uint256.Int
	Transfer(from, to common.Address, amount *uint256.Int) bool
	TransferFrom(spender, from, to common.Address, amount *uint256.Int) bool
}

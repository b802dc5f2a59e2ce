package token

import (
	"sync"

	"github.com/axiomesh/moloch/safemath"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

var _ Token = (*Ledger)(nil)

// Ledger is a minimal in-memory token with balances and allowances.
type Ledger struct {
	mu         sync.Mutex
	balances   map[common.Address]*uint256.Int
	allowances map[common.Address]map[common.Address]*uint256.Int
	supply     *uint256.Int
}

func NewLedger() *Ledger {
	return &Ledger{
		balances:   make(map[common.Address]*uint256.Int),
		allowances: make(map[common.Address]map[common.Address]*uint256.Int),
		supply:     new(uint256.Int),
	}
}

func (l *Ledger) balance(owner common.Address) *uint256.Int {
	if b, ok := l.balances[owner]; ok {
		return b
	}
	return new(uint256.Int)
}

func (l *Ledger) BalanceOf(owner common.Address) *uint256.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balance(owner).Clone()
}

func (l *Ledger) TotalSupply() *uint256.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.supply.Clone()
}

// Mint credits amount to owner.
func (l *Ledger) Mint(owner common.Address, amount *uint256.Int) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	supply, err := safemath.Add(l.supply, amount)
	if err != nil {
		return false
	}
	bal, err := safemath.Add(l.balance(owner), amount)
	if err != nil {
		return false
	}
	l.supply = supply
	l.balances[owner] = bal
	return true
}

func (l *Ledger) Approve(owner, spender common.Address, amount *uint256.Int) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.allowances[owner]; !ok {
		l.allowances[owner] = make(map[common.Address]*uint256.Int)
	}
	l.allowances[owner][spender] = amount.Clone()
	return true
}

func (l *Ledger) Allowance(owner, spender common.Address) *uint256.Int {
	l.mu.Lock()
	defer l.mu.Unlock()

	if a, ok := l.allowances[owner][spender]; ok {
		return a.Clone()
	}
	return new(uint256.Int)
}

func (l *Ledger) Transfer(from, to common.Address, amount *uint256.Int) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.move(from, to, amount)
}

func (l *Ledger) TransferFrom(spender, from, to common.Address, amount *uint256.Int) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	allowed := new(uint256.Int)
	if a, ok := l.allowances[from][spender]; ok {
		allowed = a
	}
	left, err := safemath.Sub(allowed, amount)
	if err != nil {
		return false
	}
	if !l.move(from, to, amount) {
		return false
	}
	if _, ok := l.allowances[from]; !ok {
		l.allowances[from] = make(map[common.Address]*uint256.Int)
	}
	l.allowances[from][spender] = left
	return true
}

func (l *Ledger) move(from, to common.Address, amount *uint256.Int) bool {
	if to == (common.Address{}) {
		return false
	}
	fromBal, err := safemath.Sub(l.balance(from), amount)
	if err != nil {
		return false
	}
	l.balances[from] = fromBal
	toBal, err := safemath.Add(l.balance(to), amount)
	if err != nil {
		l.balances[from] = new(uint256.Int).Add(fromBal, amount)
		return false
	}
	l.balances[to] = toBal
	return true
}

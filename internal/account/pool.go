package account

import "math/rand/v2"

// Pool aggregates initialized accounts and fixes the dispatch order.
type Pool struct {
	accounts []*Account
}

// NewPool creates a pool over the initializer's result set.
func NewPool(accounts []*Account) *Pool {
	return &Pool{accounts: accounts}
}

// Shuffle applies a uniform random permutation to the dispatch order.
func (p *Pool) Shuffle() {
	rand.Shuffle(len(p.accounts), func(i, j int) {
		p.accounts[i], p.accounts[j] = p.accounts[j], p.accounts[i]
	})
}

// Accounts returns the accounts in dispatch order.
func (p *Pool) Accounts() []*Account {
	return p.accounts
}

// Len returns the number of accounts in the pool.
func (p *Pool) Len() int {
	return len(p.accounts)
}

// Package custody tracks the asset units the vault holds and what it has
// paid out. The engine never moves units itself: collateral is received
// here before an increase, and decrease and liquidation payouts are sent
// from here after the engine commits.
package custody

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/atmx/vault-engine/internal/fixed"
	"github.com/atmx/vault-engine/internal/model"
)

// ErrInsufficientBalance is returned by Send when the vault does not hold
// enough units.
var ErrInsufficientBalance = errors.New("custody: insufficient balance")

type paidKey struct {
	receiver string
	asset    string
}

// Ledger is an in-memory custodian. It is safe for concurrent use.
type Ledger struct {
	mu       sync.RWMutex
	balances map[string]fixed.Uint
	paid     map[paidKey]fixed.Uint
}

func NewLedger() *Ledger {
	return &Ledger{
		balances: make(map[string]fixed.Uint),
		paid:     make(map[paidKey]fixed.Uint),
	}
}

// Seed sets the held balance of asset.
func (l *Ledger) Seed(asset string, amount fixed.Uint) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances[asset] = amount
}

// Receive credits units transferred into the vault.
func (l *Ledger) Receive(asset string, amount fixed.Uint) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	next, err := l.balances[asset].Add(amount)
	if err != nil {
		return fmt.Errorf("receive %s: %w", asset, err)
	}
	l.balances[asset] = next
	return nil
}

// Send pays units out to receiver.
func (l *Ledger) Send(asset, receiver string, amount fixed.Uint) error {
	if amount.IsZero() {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	next, err := l.balances[asset].Sub(amount)
	if err != nil {
		return fmt.Errorf("send %s %s to %s: %w", amount, asset, receiver, ErrInsufficientBalance)
	}
	k := paidKey{receiver: receiver, asset: asset}
	total, err := l.paid[k].Add(amount)
	if err != nil {
		return fmt.Errorf("send %s: %w", asset, err)
	}
	l.balances[asset] = next
	l.paid[k] = total
	return nil
}

// Refund returns units received for an operation that was rejected. It
// does not count as a payout.
func (l *Ledger) Refund(asset string, amount fixed.Uint) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	next, err := l.balances[asset].Sub(amount)
	if err != nil {
		return fmt.Errorf("refund %s: %w", asset, ErrInsufficientBalance)
	}
	l.balances[asset] = next
	return nil
}

func (l *Ledger) BalanceOf(asset string) fixed.Uint {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.balances[asset]
}

// Paid returns the total units of asset sent to receiver.
func (l *Ledger) Paid(receiver, asset string) fixed.Uint {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.paid[paidKey{receiver: receiver, asset: asset}]
}

// Balances returns a snapshot of held units per asset.
func (l *Ledger) Balances() map[string]fixed.Uint {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make(map[string]fixed.Uint, len(l.balances))
	for a, b := range l.balances {
		out[a] = b
	}
	return out
}

func sortedKeys(m map[string]fixed.Uint) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// FromFlows rebuilds the held balances from the journal's asset flows.
// Every unit the vault ever received or paid out is recorded on a ledger
// entry, so the difference is exactly what custody holds.
func FromFlows(flows []model.AssetFlow) (*Ledger, error) {
	l := NewLedger()
	for _, f := range flows {
		held, err := f.Held()
		if err != nil {
			return nil, fmt.Errorf("rebuild %s: paid out more than received: %w", f.Asset, err)
		}
		l.balances[f.Asset] = held
	}
	return l, nil
}

// Package campaign holds the crowdfunding ledger: contributions toward a
// goal and the one-token-per-investor redemption that follows.
package campaign

import (
	"errors"
	"fmt"
	"slices"
	"time"
)

const DefaultGoal int64 = 100

type Investor struct {
	IdentityKey string `json:"identityKey"`
	Amount      int64  `json:"amount"`
	// Timestamp is the epoch milliseconds of the latest contribution.
	Timestamp int64 `json:"timestamp"`
	Redeemed  bool  `json:"redeemed"`
}

type State struct {
	Goal           int64      `json:"goal"`
	Raised         int64      `json:"raised"`
	Investors      []Investor `json:"investors"`
	IsComplete     bool       `json:"isComplete"`
	CompletionTxid string     `json:"completionTxid,omitempty"`
}

func NewState(goal int64) State {
	return State{Goal: goal, Investors: []Investor{}}
}

// Clone returns a deep copy so transitions never alias the caller's slice.
func (s State) Clone() State {
	c := s
	c.Investors = slices.Clone(s.Investors)
	if c.Investors == nil {
		c.Investors = []Investor{}
	}
	return c
}

func (s State) investorIndex(identity string) int {
	return slices.IndexFunc(s.Investors, func(inv Investor) bool { return inv.IdentityKey == identity })
}

// Investor returns the entry for identity, if any.
func (s State) Investor(identity string) (Investor, bool) {
	i := s.investorIndex(identity)
	if i < 0 {
		return Investor{}, false
	}
	return s.Investors[i], true
}

func (s State) AllRedeemed() bool {
	for _, inv := range s.Investors {
		if !inv.Redeemed {
			return false
		}
	}
	return true
}

func (s State) GoalReached() bool {
	return s.Raised >= s.Goal
}

var ErrInconsistentState = errors.New("inconsistent campaign state")

// CheckInvariants reports the first ledger invariant that does not hold.
func (s State) CheckInvariants() error {
	var sum int64
	seen := make(map[string]struct{}, len(s.Investors))
	for _, inv := range s.Investors {
		if _, dup := seen[inv.IdentityKey]; dup {
			return fmt.Errorf("%w: duplicate investor %q", ErrInconsistentState, inv.IdentityKey)
		}
		seen[inv.IdentityKey] = struct{}{}
		if inv.Amount < 0 {
			return fmt.Errorf("%w: negative amount for %q", ErrInconsistentState, inv.IdentityKey)
		}
		sum += inv.Amount
	}
	if sum != s.Raised {
		return fmt.Errorf("%w: raised %d but investors sum to %d", ErrInconsistentState, s.Raised, sum)
	}
	if s.IsComplete && (!s.AllRedeemed() || !s.GoalReached()) {
		return fmt.Errorf("%w: complete before goal reached or all investors redeemed", ErrInconsistentState)
	}
	return nil
}

// RecordContribution adds amount from payer to a copy of s.
func RecordContribution(s State, payer string, amount int64, now time.Time) (State, error) {
	if s.IsComplete {
		return s, ErrCampaignClosed
	}
	if payer == "" || payer == UnknownIdentity {
		return s, &ValidationError{Message: "Investor identity required"}
	}
	if amount <= 0 {
		return s, &ValidationError{Message: "Invalid investment amount"}
	}

	next := s.Clone()
	ts := now.UnixMilli()
	if i := next.investorIndex(payer); i >= 0 {
		next.Investors[i].Amount += amount
		next.Investors[i].Timestamp = ts
	} else {
		next.Investors = append(next.Investors, Investor{
			IdentityKey: payer,
			Amount:      amount,
			Timestamp:   ts,
		})
	}
	next.Raised += amount
	return next, nil
}

// CheckRedeemable applies the redemption preconditions in order.
func CheckRedeemable(s State, identity string) (Investor, error) {
	inv, ok := s.Investor(identity)
	if !ok {
		return Investor{}, ErrInvestorNotFound
	}
	if inv.Redeemed {
		return inv, ErrAlreadyRedeemed
	}
	if !s.GoalReached() {
		return inv, &GoalNotReachedError{Raised: s.Raised, Goal: s.Goal}
	}
	return inv, nil
}

// MarkRedeemed flags identity as redeemed on a copy of s and reports whether
// every investor is now redeemed.
func MarkRedeemed(s State, identity string) (State, bool) {
	next := s.Clone()
	if i := next.investorIndex(identity); i >= 0 {
		next.Investors[i].Redeemed = true
	}
	return next, next.AllRedeemed()
}

// Complete closes the campaign. It is a no-op once the campaign is closed.
func Complete(s State, txid string) State {
	if s.IsComplete {
		return s
	}
	next := s.Clone()
	next.IsComplete = true
	next.CompletionTxid = txid
	return next
}

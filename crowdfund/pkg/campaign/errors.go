package campaign

import (
	"errors"
	"fmt"
)

// UnknownIdentity is what the auth layer reports for unauthenticated callers.
const UnknownIdentity = "unknown"

var (
	ErrCampaignClosed   = errors.New("crowdfunding already complete")
	ErrInvestorNotFound = errors.New("investor not found")
	ErrAlreadyRedeemed  = errors.New("investor already redeemed")
	ErrGoalNotReached   = errors.New("goal not reached")
)

type Kind string

const (
	KindValidation       Kind = "validation"
	KindCampaignClosed   Kind = "campaign_closed"
	KindInvestorNotFound Kind = "investor_not_found"
	KindAlreadyRedeemed  Kind = "already_redeemed"
	KindGoalNotReached   Kind = "goal_not_reached"
)

// GoalNotReachedError carries the progress so callers can render it.
type GoalNotReachedError struct {
	Raised int64
	Goal   int64
}

func (e *GoalNotReachedError) Error() string {
	return fmt.Sprintf("goal not reached: raised %d of %d sats", e.Raised, e.Goal)
}

func (e *GoalNotReachedError) Is(target error) bool {
	return target == ErrGoalNotReached
}

// ValidationError is a rejected request field. Message is shown to clients.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// KindOf classifies domain and validation errors. Anything else returns
// ok=false and should be treated as a server failure.
func KindOf(err error) (Kind, bool) {
	var verr *ValidationError
	switch {
	case err == nil:
		return "", false
	case errors.As(err, &verr):
		return KindValidation, true
	case errors.Is(err, ErrCampaignClosed):
		return KindCampaignClosed, true
	case errors.Is(err, ErrInvestorNotFound):
		return KindInvestorNotFound, true
	case errors.Is(err, ErrAlreadyRedeemed):
		return KindAlreadyRedeemed, true
	case errors.Is(err, ErrGoalNotReached):
		return KindGoalNotReached, true
	}
	return "", false
}

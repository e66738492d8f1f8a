package campaign

const redactedPrefixLen = 16

type InvestorSummary struct {
	IdentityKey string `json:"identityKey"`
	Amount      int64  `json:"amount"`
	Timestamp   int64  `json:"timestamp"`
}

type Status struct {
	Goal           int64             `json:"goal"`
	Raised         int64             `json:"raised"`
	InvestorCount  int               `json:"investorCount"`
	IsComplete     bool              `json:"isComplete"`
	CompletionTxid string            `json:"completionTxid,omitempty"`
	PercentFunded  int64             `json:"percentFunded"`
	Investors      []InvestorSummary `json:"investors"`
}

func BuildStatus(s State) Status {
	investors := make([]InvestorSummary, 0, len(s.Investors))
	for _, inv := range s.Investors {
		investors = append(investors, InvestorSummary{
			IdentityKey: RedactIdentity(inv.IdentityKey),
			Amount:      inv.Amount,
			Timestamp:   inv.Timestamp,
		})
	}
	return Status{
		Goal:           s.Goal,
		Raised:         s.Raised,
		InvestorCount:  len(s.Investors),
		IsComplete:     s.IsComplete,
		CompletionTxid: s.CompletionTxid,
		PercentFunded:  PercentFunded(s.Raised, s.Goal),
		Investors:      investors,
	}
}

// PercentFunded is raised/goal*100 rounded half up. A non-positive goal
// reports 0.
func PercentFunded(raised, goal int64) int64 {
	if goal <= 0 {
		return 0
	}
	if raised < 0 {
		raised = 0
	}
	return (raised*200 + goal) / (2 * goal)
}

// RedactIdentity keeps the first 16 characters of an identity key.
func RedactIdentity(key string) string {
	if len(key) > redactedPrefixLen {
		key = key[:redactedPrefixLen]
	}
	return key + "..."
}

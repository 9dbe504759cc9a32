package ledger

import (
	"errors"
	"fmt"
	"time"
)

// PostingInput describes one line of a journal write.
type PostingInput struct {
	AccountID   int64
	AmountCents int64
	Memo        string
}

// WriteInput groups the fields required to append a journal.
type WriteInput struct {
	OrgID       string
	BasPeriodID *string
	Type        string
	OccurredAt  time.Time
	Source      string
	Description string
	Meta        map[string]any
	Postings    []PostingInput
}

// Validate ensures the write meets the double-entry invariants that do not
// require database state. Account existence is checked inside the write
// transaction.
func (in WriteInput) Validate() error {
	if in.OrgID == "" {
		return errors.New("ledger: org required")
	}
	if in.Type == "" {
		return errors.New("ledger: journal type required")
	}
	if len(in.Postings) == 0 {
		return ErrEmptyJournal
	}
	var sum int64
	for idx, p := range in.Postings {
		if p.AccountID == 0 {
			return fmt.Errorf("ledger: posting %d missing account", idx)
		}
		if p.AmountCents == 0 {
			return fmt.Errorf("ledger: posting %d moves no money", idx)
		}
		sum += p.AmountCents
	}
	if sum != 0 {
		return fmt.Errorf("%w: net %d cents", ErrUnbalanced, sum)
	}
	return nil
}

// ReverseInput wraps parameters for writing a reversing journal.
type ReverseInput struct {
	OrgID     string
	JournalID string
	ActorID   string
	Reason    string
}

// JournalFilter narrows journal listings.
type JournalFilter struct {
	BasPeriodID string
	Type        string
	Limit       int
}

package reputation

import (
	"errors"
	"fmt"
)

const (
	// RatingMin and RatingMax bound every rating submission. The bound is
	// canonical across all call sites.
	RatingMin uint8 = 1
	RatingMax uint8 = 5
)

// ErrRatingOutOfRange marks submissions outside the canonical bound.
var ErrRatingOutOfRange = fmt.Errorf("reputation: rating must be between %d and %d", RatingMin, RatingMax)

// Score accumulates rating submissions for a single account. The ratio is
// computed at read time and never stored pre-divided, so repeated aggregation
// cannot introduce rounding drift.
type Score struct {
	Account [20]byte
	Sum     uint64
	Count   uint64
}

// Average returns the integer score ratio, zero while no ratings exist.
func (s *Score) Average() uint64 {
	if s == nil || s.Count == 0 {
		return 0
	}
	return s.Sum / s.Count
}

// Review is the audit record kept for every rating submission, including the
// optional free-text review attached by the rater.
type Review struct {
	TransactionID uint64
	Rater         [20]byte
	Subject       [20]byte
	Rating        uint8
	Review        string
	SubmittedAt   int64
}

// Validate ensures the review payload is well formed before persistence.
func (r *Review) Validate() error {
	if r == nil {
		return errors.New("reputation: review nil")
	}
	if r.Rater == ([20]byte{}) {
		return errors.New("reputation: rater required")
	}
	if r.Subject == ([20]byte{}) {
		return errors.New("reputation: subject required")
	}
	if r.Rating < RatingMin || r.Rating > RatingMax {
		return ErrRatingOutOfRange
	}
	if r.SubmittedAt <= 0 {
		return errors.New("reputation: submittedAt must be positive")
	}
	return nil
}

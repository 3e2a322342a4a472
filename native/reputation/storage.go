package reputation

import (
	"errors"
	"fmt"
	"time"
)

// storage abstracts the subset of state manager functionality required by the
// reputation ledger.
type storage interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
}

var (
	scorePrefix  = []byte("reputation/score/")
	reviewPrefix = []byte("reputation/reviews/")
)

func scoreKey(addr [20]byte) []byte {
	return []byte(fmt.Sprintf("%s%x", scorePrefix, addr))
}

func reviewKey(addr [20]byte) []byte {
	return []byte(fmt.Sprintf("%s%x", reviewPrefix, addr))
}

type storedScore struct {
	Sum   uint64
	Count uint64
}

type storedReview struct {
	TransactionID uint64
	Rater         [20]byte
	Rating        uint8
	Review        string
	SubmittedAt   uint64
}

// Ledger accumulates rating submissions into running score sums per account.
// It has no independent external entry point: the transaction engine is the
// only caller, and the per-transaction rated flags guarantee a given
// (transaction, rater-role) pair contributes at most once.
type Ledger struct {
	store storage
	nowFn func() int64
}

// NewLedger constructs a ledger bound to the provided storage backend.
func NewLedger(store storage) *Ledger {
	return &Ledger{
		store: store,
		nowFn: func() int64 { return time.Now().Unix() },
	}
}

// SetNowFunc overrides the wall clock, primarily used in tests.
func (l *Ledger) SetNowFunc(now func() int64) {
	if l == nil {
		return
	}
	if now == nil {
		l.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	l.nowFn = now
}

func (l *Ledger) now() int64 {
	if l == nil || l.nowFn == nil {
		return time.Now().Unix()
	}
	return l.nowFn()
}

// Record applies a single rating to the subject's running totals and appends
// the review audit record. The caller supplies the transaction context; the
// ledger itself performs no double-counting checks beyond payload validation.
func (l *Ledger) Record(subject, rater [20]byte, transactionID uint64, rating uint8, review string) error {
	if l == nil || l.store == nil {
		return errors.New("reputation: storage unavailable")
	}
	entry := &Review{
		TransactionID: transactionID,
		Rater:         rater,
		Subject:       subject,
		Rating:        rating,
		Review:        review,
		SubmittedAt:   l.now(),
	}
	if err := entry.Validate(); err != nil {
		return err
	}
	var score storedScore
	if _, err := l.store.KVGet(scoreKey(subject), &score); err != nil {
		return err
	}
	score.Sum += uint64(rating)
	score.Count++
	if err := l.store.KVPut(scoreKey(subject), &score); err != nil {
		return err
	}
	var reviews []storedReview
	if _, err := l.store.KVGet(reviewKey(subject), &reviews); err != nil {
		return err
	}
	reviews = append(reviews, storedReview{
		TransactionID: entry.TransactionID,
		Rater:         entry.Rater,
		Rating:        entry.Rating,
		Review:        entry.Review,
		SubmittedAt:   uint64(entry.SubmittedAt),
	})
	return l.store.KVPut(reviewKey(subject), reviews)
}

// ScoreOf returns the running totals for the supplied account. Accounts with
// no ratings yield a zero score.
func (l *Ledger) ScoreOf(addr [20]byte) (*Score, error) {
	if l == nil || l.store == nil {
		return nil, errors.New("reputation: storage unavailable")
	}
	var stored storedScore
	if _, err := l.store.KVGet(scoreKey(addr), &stored); err != nil {
		return nil, err
	}
	return &Score{Account: addr, Sum: stored.Sum, Count: stored.Count}, nil
}

// Reviews returns the audit trail of every rating recorded against the
// supplied account, in submission order.
func (l *Ledger) Reviews(addr [20]byte) ([]*Review, error) {
	if l == nil || l.store == nil {
		return nil, errors.New("reputation: storage unavailable")
	}
	var stored []storedReview
	if _, err := l.store.KVGet(reviewKey(addr), &stored); err != nil {
		return nil, err
	}
	reviews := make([]*Review, 0, len(stored))
	for i := range stored {
		reviews = append(reviews, &Review{
			TransactionID: stored[i].TransactionID,
			Rater:         stored[i].Rater,
			Subject:       addr,
			Rating:        stored[i].Rating,
			Review:        stored[i].Review,
			SubmittedAt:   int64(stored[i].SubmittedAt),
		})
	}
	return reviews, nil
}

package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	pfirestore "github.com/orderdesk/api/internal/platform/firestore"
	"github.com/orderdesk/api/internal/repositories"
)

const countersCollection = "counters"

type counterDocument struct {
	CurrentValue int64     `firestore:"currentValue"`
	UpdatedAt    time.Time `firestore:"updatedAt"`
}

// CounterRepository implements repositories.CounterRepository backed by Firestore transactions.
type CounterRepository struct {
	uow      repositories.UnitOfWork
	counters *pfirestore.BaseRepository[counterDocument]
	clock    func() time.Time
}

// NewCounterRepository constructs a Firestore-backed counter repository.
func NewCounterRepository(provider *pfirestore.Provider, uow repositories.UnitOfWork) (*CounterRepository, error) {
	if provider == nil {
		return nil, errors.New("counter repository requires firestore provider")
	}
	if uow == nil {
		uow = pfirestore.NewUnitOfWork(provider)
	}
	return &CounterRepository{
		uow:      uow,
		counters: pfirestore.NewBaseRepository[counterDocument](provider, countersCollection, nil, nil),
		clock:    func() time.Time { return time.Now().UTC() },
	}, nil
}

// Next stores and returns max(current, floor)+1. The floor lets a counter
// created after orders already exist continue from the highest stored sequence.
func (r *CounterRepository) Next(ctx context.Context, counterID string, floor int64) (int64, error) {
	if r == nil || r.counters == nil {
		return 0, errors.New("counter repository not initialised")
	}
	id := strings.TrimSpace(counterID)
	if id == "" {
		return 0, repositories.NewCounterError(repositories.CounterErrorInvalidInput, "", "counter id is required", nil)
	}
	if floor < 0 {
		return 0, repositories.NewCounterError(repositories.CounterErrorInvalidInput, id, fmt.Sprintf("floor must not be negative, got %d", floor), nil)
	}

	var nextValue int64
	err := r.uow.RunInTx(ctx, func(ctx context.Context) error {
		current := floor
		doc, err := r.counters.Get(ctx, id)
		switch {
		case err == nil:
			current = max(doc.Data.CurrentValue, floor)
		case pfirestore.IsNotFound(err):
		default:
			return err
		}

		nextValue = current + 1
		return r.counters.Set(ctx, id, counterDocument{CurrentValue: nextValue, UpdatedAt: r.clock()}, firestore.MergeAll)
	})
	if err != nil {
		var counterErr *repositories.CounterError
		if errors.As(err, &counterErr) {
			if counterErr.Op == "" {
				counterErr.Op = "counters.next"
			}
			return 0, counterErr
		}
		return 0, pfirestore.WrapError("counters.next", err)
	}
	return nextValue, nil
}

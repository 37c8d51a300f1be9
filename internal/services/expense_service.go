package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/orderdesk/api/internal/repositories"
)

const expenseIDPrefix = "exp_"

// ExpenseServiceDeps bundles the collaborators required to construct an expense service.
type ExpenseServiceDeps struct {
	Expenses     repositories.ExpenseRepository
	DefaultActor string
	Clock        func() time.Time
	IDGenerator  func() string
}

type expenseService struct {
	repo         repositories.ExpenseRepository
	defaultActor string
	clock        func() time.Time
	newID        func() string
}

var _ ExpenseService = (*expenseService)(nil)

func NewExpenseService(deps ExpenseServiceDeps) (ExpenseService, error) {
	if deps.Expenses == nil {
		return nil, errors.New("expense service: expense repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}
	actor := strings.TrimSpace(deps.DefaultActor)
	if actor == "" {
		actor = defaultActor
	}
	return &expenseService{
		repo:         deps.Expenses,
		defaultActor: actor,
		clock:        func() time.Time { return clock().UTC() },
		newID:        idGen,
	}, nil
}

func (s *expenseService) RecordExpense(ctx context.Context, cmd RecordExpenseCommand) (Expense, error) {
	verr := validateStruct(ErrOrderInvalidInput, cmd)
	if !cmd.Amount.IsPositive() {
		verr.add("amount", "amount must be greater than zero")
	}
	if err := verr.orNil(); err != nil {
		return Expense{}, err
	}

	now := s.clock()
	spentAt := cmd.SpentAt.UTC()
	if cmd.SpentAt.IsZero() {
		spentAt = now
	}
	recordedBy := strings.TrimSpace(cmd.ActorID)
	if recordedBy == "" {
		recordedBy = s.defaultActor
	}

	expense := Expense{
		ID:         expenseIDPrefix + s.newID(),
		Category:   strings.TrimSpace(cmd.Category),
		Amount:     cmd.Amount.Round(2),
		Note:       sanitizeNote(cmd.Note),
		SpentAt:    spentAt,
		RecordedBy: recordedBy,
		CreatedAt:  now,
	}
	if err := s.repo.Insert(ctx, expense); err != nil {
		return Expense{}, mapPersistenceError(err, ErrOrderNotFound, ErrOrderConflict)
	}
	return expense, nil
}

func (s *expenseService) ListExpenses(ctx context.Context, period TimeRange) ([]Expense, error) {
	expenses, err := s.repo.List(ctx, period)
	if err != nil {
		return nil, mapPersistenceError(err, ErrOrderNotFound, ErrOrderConflict)
	}
	return expenses, nil
}

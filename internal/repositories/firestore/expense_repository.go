package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/shopspring/decimal"

	domain "github.com/orderdesk/api/internal/domain"
	pfirestore "github.com/orderdesk/api/internal/platform/firestore"
)

const expensesCollection = "expenses"

type expenseDocument struct {
	Category   string    `firestore:"category"`
	Amount     float64   `firestore:"amount"`
	Note       string    `firestore:"note,omitempty"`
	SpentAt    time.Time `firestore:"spentAt"`
	RecordedBy string    `firestore:"recordedBy,omitempty"`
	CreatedAt  time.Time `firestore:"createdAt"`
}

// ExpenseRepository stores operating expenses.
type ExpenseRepository struct {
	expenses *pfirestore.BaseRepository[expenseDocument]
}

func NewExpenseRepository(provider *pfirestore.Provider) (*ExpenseRepository, error) {
	if provider == nil {
		return nil, errors.New("expense repository requires firestore provider")
	}
	return &ExpenseRepository{
		expenses: pfirestore.NewBaseRepository[expenseDocument](provider, expensesCollection, nil, nil),
	}, nil
}

func (r *ExpenseRepository) Insert(ctx context.Context, expense domain.Expense) error {
	if r == nil || r.expenses == nil {
		return errors.New("expense repository not initialised")
	}
	id := strings.TrimSpace(expense.ID)
	if id == "" {
		return errors.New("expense insert: id is required")
	}
	return r.expenses.Create(ctx, id, expenseDocument{
		Category:   strings.TrimSpace(expense.Category),
		Amount:     expense.Amount.InexactFloat64(),
		Note:       expense.Note,
		SpentAt:    expense.SpentAt.UTC(),
		RecordedBy: expense.RecordedBy,
		CreatedAt:  expense.CreatedAt.UTC(),
	})
}

// List returns expenses spent inside the range, oldest first.
func (r *ExpenseRepository) List(ctx context.Context, spent domain.TimeRange) ([]domain.Expense, error) {
	if r == nil || r.expenses == nil {
		return nil, errors.New("expense repository not initialised")
	}
	docs, err := r.expenses.Query(ctx, func(q firestore.Query) firestore.Query {
		if !spent.From.IsZero() {
			q = q.Where("spentAt", ">=", spent.From.UTC())
		}
		if !spent.To.IsZero() {
			q = q.Where("spentAt", "<", spent.To.UTC())
		}
		return q.OrderBy("spentAt", firestore.Asc)
	})
	if err != nil {
		return nil, err
	}
	out := make([]domain.Expense, 0, len(docs))
	for _, doc := range docs {
		out = append(out, domain.Expense{
			ID:         doc.ID,
			Category:   doc.Data.Category,
			Amount:     decimal.NewFromFloat(doc.Data.Amount),
			Note:       doc.Data.Note,
			SpentAt:    doc.Data.SpentAt,
			RecordedBy: doc.Data.RecordedBy,
			CreatedAt:  doc.Data.CreatedAt,
		})
	}
	return out, nil
}

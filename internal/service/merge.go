package service

import (
	"context"
	"fmt"

	"github.com/rongwang/ledger-share/internal/models"
	"github.com/rongwang/ledger-share/internal/repository"
)

// MergePolicy folds a decoded snapshot into the local ledger. It runs inside
// the sync transaction and must only write through the store it is given.
type MergePolicy interface {
	Merge(ctx context.Context, store repository.LedgerStore, snap *models.LedgerSnapshot) (models.MergeStats, error)
}

// ReplaceByID inserts every snapshot record under its own id, replacing any
// local record that has the same id. Ids are assigned independently on each
// side, so an unrelated local record sharing an id is overwritten and the
// same logical record under two ids is kept twice.
type ReplaceByID struct{}

func (ReplaceByID) Merge(ctx context.Context, store repository.LedgerStore, snap *models.LedgerSnapshot) (models.MergeStats, error) {
	var stats models.MergeStats

	for i := range snap.Categories {
		category := snap.Categories[i]
		if _, err := store.InsertOrReplaceCategory(ctx, &category); err != nil {
			return stats, fmt.Errorf("category %d: %w", category.ID, err)
		}
		stats.Categories++
	}

	for i := range snap.Budgets {
		budget := snap.Budgets[i]
		if _, err := store.InsertOrReplaceBudget(ctx, &budget); err != nil {
			return stats, fmt.Errorf("budget %d: %w", budget.ID, err)
		}
		stats.Budgets++
	}

	for i := range snap.Expenses {
		expense := snap.Expenses[i]
		if _, err := store.InsertOrReplaceExpense(ctx, &expense); err != nil {
			return stats, fmt.Errorf("expense %d: %w", expense.ID, err)
		}
		stats.Expenses++
	}

	return stats, nil
}

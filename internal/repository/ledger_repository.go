package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/rongwang/ledger-share/internal/models"
)

const expenseColumns = `id, amount, date, time, merchant, category_id, installments, last_card_digits, description`

// Ledger repository methods
func (r *SQLRepository) AllExpenses(ctx context.Context) ([]models.ExpenseRecord, error) {
	query := `SELECT ` + expenseColumns + ` FROM expenses ORDER BY date DESC, time DESC, id ASC`

	expenses := []models.ExpenseRecord{}
	if err := r.selectAll(ctx, &expenses, query); err != nil {
		return nil, err
	}

	return expenses, nil
}

func (r *SQLRepository) AllCategories(ctx context.Context) ([]models.CategoryRecord, error) {
	categories := []models.CategoryRecord{}
	if err := r.selectAll(ctx, &categories, `SELECT id, name FROM categories ORDER BY id`); err != nil {
		return nil, err
	}

	return categories, nil
}

func (r *SQLRepository) AllBudgets(ctx context.Context) ([]models.BudgetRecord, error) {
	query := `SELECT id, category_id, amount, month, year FROM budgets ORDER BY id`

	budgets := []models.BudgetRecord{}
	if err := r.selectAll(ctx, &budgets, query); err != nil {
		return nil, err
	}

	return budgets, nil
}

func (r *SQLRepository) GetExpense(ctx context.Context, id int64) (*models.ExpenseRecord, error) {
	var expense models.ExpenseRecord
	err := r.get(ctx, &expense, `SELECT `+expenseColumns+` FROM expenses WHERE id = ?`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Expense not found
		}
		return nil, err
	}

	return &expense, nil
}

func (r *SQLRepository) GetCategory(ctx context.Context, id int64) (*models.CategoryRecord, error) {
	var category models.CategoryRecord
	err := r.get(ctx, &category, `SELECT id, name FROM categories WHERE id = ?`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Category not found
		}
		return nil, err
	}

	return &category, nil
}

func (r *SQLRepository) GetBudget(ctx context.Context, id int64) (*models.BudgetRecord, error) {
	var budget models.BudgetRecord
	err := r.get(ctx, &budget, `SELECT id, category_id, amount, month, year FROM budgets WHERE id = ?`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Budget not found
		}
		return nil, err
	}

	return &budget, nil
}

func (r *SQLRepository) InsertOrReplaceExpense(ctx context.Context, e *models.ExpenseRecord) (int64, error) {
	if e.ID == 0 {
		return r.insertReturningID(ctx, `
			INSERT INTO expenses (amount, date, time, merchant, category_id, installments, last_card_digits, description)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			e.Amount, e.Date, e.Time, e.Merchant, e.CategoryID, e.Installments, e.LastCardDigits, e.Description)
	}

	id, err := r.insertReturningID(ctx, `
		INSERT INTO expenses (`+expenseColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			amount = excluded.amount,
			date = excluded.date,
			time = excluded.time,
			merchant = excluded.merchant,
			category_id = excluded.category_id,
			installments = excluded.installments,
			last_card_digits = excluded.last_card_digits,
			description = excluded.description`,
		e.ID, e.Amount, e.Date, e.Time, e.Merchant, e.CategoryID, e.Installments, e.LastCardDigits, e.Description)
	if err != nil {
		return 0, err
	}

	return id, r.syncSequence(ctx, "expenses")
}

func (r *SQLRepository) InsertOrReplaceCategory(ctx context.Context, c *models.CategoryRecord) (int64, error) {
	if c.ID == 0 {
		return r.insertReturningID(ctx, `INSERT INTO categories (name) VALUES (?)`, c.Name)
	}

	id, err := r.insertReturningID(ctx, `
		INSERT INTO categories (id, name) VALUES (?, ?)
		ON CONFLICT (id) DO UPDATE SET name = excluded.name`,
		c.ID, c.Name)
	if err != nil {
		return 0, err
	}

	return id, r.syncSequence(ctx, "categories")
}

func (r *SQLRepository) InsertOrReplaceBudget(ctx context.Context, b *models.BudgetRecord) (int64, error) {
	if b.ID == 0 {
		return r.insertReturningID(ctx, `
			INSERT INTO budgets (category_id, amount, month, year) VALUES (?, ?, ?, ?)`,
			b.CategoryID, b.Amount, b.Month, b.Year)
	}

	id, err := r.insertReturningID(ctx, `
		INSERT INTO budgets (id, category_id, amount, month, year) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			category_id = excluded.category_id,
			amount = excluded.amount,
			month = excluded.month,
			year = excluded.year`,
		b.ID, b.CategoryID, b.Amount, b.Month, b.Year)
	if err != nil {
		return 0, err
	}

	return id, r.syncSequence(ctx, "budgets")
}

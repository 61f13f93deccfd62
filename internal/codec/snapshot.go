// Package codec converts a LedgerSnapshot to and from the JSON document
// peers exchange through the remote object store. The document has exactly
// three arrays, "expenses", "categories" and "budgets"; field names are part
// of the wire contract.
package codec

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"regexp"

	"github.com/shopspring/decimal"

	"github.com/rongwang/ledger-share/internal/models"
)

// MimeType is the content type of an encoded snapshot
const MimeType = "application/json"

// ErrCorruptSnapshot is returned when a document cannot be decoded into a snapshot
var ErrCorruptSnapshot = errors.New("corrupt snapshot")

var cardDigits = regexp.MustCompile(`^[0-9]{4}$`)

type document struct {
	Expenses   *[]expenseDoc  `json:"expenses"`
	Categories *[]categoryDoc `json:"categories"`
	Budgets    *[]budgetDoc   `json:"budgets"`
}

type expenseDoc struct {
	ID             int64       `json:"id"`
	Amount         json.Number `json:"amount"`
	Date           string      `json:"date"`
	Time           string      `json:"time"`
	Merchant       string      `json:"merchant"`
	CategoryID     *int64      `json:"categoryId"`
	Installments   *int        `json:"installments"`
	LastCardDigits *string     `json:"lastCardDigits"`
	Description    *string     `json:"description"`
}

type categoryDoc struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type budgetDoc struct {
	ID         int64       `json:"id"`
	CategoryID int64       `json:"categoryId"`
	Amount     json.Number `json:"amount"`
	Month      int         `json:"month"`
	Year       int         `json:"year"`
}

// Encode writes snap as a snapshot document
func Encode(w io.Writer, snap *models.LedgerSnapshot) error {
	expenses := make([]expenseDoc, 0, len(snap.Expenses))
	for _, e := range snap.Expenses {
		expenses = append(expenses, expenseDoc{
			ID:             e.ID,
			Amount:         formatAmount(e.Amount),
			Date:           e.Date,
			Time:           e.Time,
			Merchant:       e.Merchant,
			CategoryID:     e.CategoryID,
			Installments:   e.Installments,
			LastCardDigits: e.LastCardDigits,
			Description:    e.Description,
		})
	}

	categories := make([]categoryDoc, 0, len(snap.Categories))
	for _, c := range snap.Categories {
		categories = append(categories, categoryDoc{ID: c.ID, Name: c.Name})
	}

	budgets := make([]budgetDoc, 0, len(snap.Budgets))
	for _, b := range snap.Budgets {
		budgets = append(budgets, budgetDoc{
			ID:         b.ID,
			CategoryID: b.CategoryID,
			Amount:     formatAmount(b.Amount),
			Month:      b.Month,
			Year:       b.Year,
		})
	}

	doc := document{Expenses: &expenses, Categories: &categories, Budgets: &budgets}
	if err := json.NewEncoder(w).Encode(doc); err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	return nil
}

// Marshal returns the encoded document for snap
func Marshal(snap *models.LedgerSnapshot) ([]byte, error) {
	var buf bytes.Buffer
	if err := Encode(&buf, snap); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decode reads one snapshot document. Any malformed content, including a
// missing array or an out-of-range field, yields ErrCorruptSnapshot.
func Decode(r io.Reader) (*models.LedgerSnapshot, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	var doc document
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorruptSnapshot, err)
	}
	if dec.More() {
		return nil, fmt.Errorf("%w: trailing data after document", ErrCorruptSnapshot)
	}
	if doc.Expenses == nil || doc.Categories == nil || doc.Budgets == nil {
		return nil, fmt.Errorf("%w: document must contain expenses, categories and budgets", ErrCorruptSnapshot)
	}

	snap := &models.LedgerSnapshot{
		Expenses:   make([]models.ExpenseRecord, 0, len(*doc.Expenses)),
		Categories: make([]models.CategoryRecord, 0, len(*doc.Categories)),
		Budgets:    make([]models.BudgetRecord, 0, len(*doc.Budgets)),
	}

	for i, e := range *doc.Expenses {
		amount, err := parseAmount(e.Amount)
		if err != nil {
			return nil, fmt.Errorf("%w: expense %d: %w", ErrCorruptSnapshot, i, err)
		}
		if e.LastCardDigits != nil && !cardDigits.MatchString(*e.LastCardDigits) {
			return nil, fmt.Errorf("%w: expense %d: lastCardDigits must be 4 digits", ErrCorruptSnapshot, i)
		}
		snap.Expenses = append(snap.Expenses, models.ExpenseRecord{
			ID:             e.ID,
			Amount:         amount,
			Date:           e.Date,
			Time:           e.Time,
			Merchant:       e.Merchant,
			CategoryID:     e.CategoryID,
			Installments:   e.Installments,
			LastCardDigits: e.LastCardDigits,
			Description:    e.Description,
		})
	}

	for _, c := range *doc.Categories {
		snap.Categories = append(snap.Categories, models.CategoryRecord{ID: c.ID, Name: c.Name})
	}

	for i, b := range *doc.Budgets {
		amount, err := parseAmount(b.Amount)
		if err != nil {
			return nil, fmt.Errorf("%w: budget %d: %w", ErrCorruptSnapshot, i, err)
		}
		if b.Month < 1 || b.Month > 12 {
			return nil, fmt.Errorf("%w: budget %d: month %d out of range", ErrCorruptSnapshot, i, b.Month)
		}
		snap.Budgets = append(snap.Budgets, models.BudgetRecord{
			ID:         b.ID,
			CategoryID: b.CategoryID,
			Amount:     amount,
			Month:      b.Month,
			Year:       b.Year,
		})
	}

	return snap, nil
}

// Unmarshal decodes a snapshot document held in memory
func Unmarshal(data []byte) (*models.LedgerSnapshot, error) {
	return Decode(bytes.NewReader(data))
}

// formatAmount keeps the scale of the amount, so 12.50 is written as 12.50
func formatAmount(d decimal.Decimal) json.Number {
	if exp := d.Exponent(); exp < 0 {
		return json.Number(d.StringFixed(-exp))
	}
	return json.Number(d.String())
}

func parseAmount(n json.Number) (decimal.Decimal, error) {
	if n == "" {
		return decimal.Decimal{}, errors.New("amount is required")
	}
	return decimal.NewFromString(n.String())
}

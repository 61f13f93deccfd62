package codec

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rongwang/ledger-share/internal/models"
)

func ptr[T any](v T) *T { return &v }

func sampleSnapshot() *models.LedgerSnapshot {
	return &models.LedgerSnapshot{
		Expenses: []models.ExpenseRecord{
			{
				ID:             7,
				Amount:         decimal.RequireFromString("1520.75"),
				Date:           "2024-03-10",
				Time:           "13:45",
				Merchant:       "Supermercado Lider",
				CategoryID:     ptr(int64(2)),
				Installments:   ptr(3),
				LastCardDigits: ptr("4821"),
				Description:    ptr("weekly groceries"),
			},
			{
				ID:       3,
				Amount:   decimal.RequireFromString("9.9"),
				Date:     "2024-03-09",
				Time:     "08:02",
				Merchant: "Cafe",
			},
		},
		Categories: []models.CategoryRecord{
			{ID: 2, Name: "Food"},
			{ID: 1, Name: "Transport"},
		},
		Budgets: []models.BudgetRecord{
			{ID: 1, CategoryID: 2, Amount: decimal.RequireFromString("300000"), Month: 3, Year: 2024},
		},
	}
}

func TestRoundTrip(t *testing.T) {
	snap := sampleSnapshot()

	data, err := Marshal(snap)
	require.NoError(t, err)

	decoded, err := Unmarshal(data)
	require.NoError(t, err)
	assert.Equal(t, snap, decoded)
}

func TestRoundTripKeepsTrailingZeros(t *testing.T) {
	snap := &models.LedgerSnapshot{
		Expenses: []models.ExpenseRecord{
			{ID: 1, Amount: decimal.RequireFromString("12.50"), Date: "2024-03-01", Time: "08:15", Merchant: "Copec"},
			{ID: 2, Amount: decimal.RequireFromString("3.000"), Date: "2024-03-02", Time: "09:00", Merchant: "Lider"},
		},
		Categories: []models.CategoryRecord{},
		Budgets: []models.BudgetRecord{
			{ID: 1, CategoryID: 2, Amount: decimal.RequireFromString("1000.00"), Month: 3, Year: 2024},
		},
	}

	data, err := Marshal(snap)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"amount":12.50`)
	assert.Contains(t, string(data), `"amount":3.000`)
	assert.Contains(t, string(data), `"amount":1000.00`)

	decoded, err := Unmarshal(data)
	require.NoError(t, err)
	assert.Equal(t, snap, decoded)
	assert.Equal(t, "12.50", decoded.Expenses[0].Amount.StringFixed(2))
}

func TestRoundTripEmptyLedger(t *testing.T) {
	data, err := Marshal(&models.LedgerSnapshot{})
	require.NoError(t, err)
	assert.JSONEq(t, `{"expenses":[],"categories":[],"budgets":[]}`, string(data))

	decoded, err := Unmarshal(data)
	require.NoError(t, err)
	assert.Equal(t, 0, decoded.Size())
}

func TestWireFieldNames(t *testing.T) {
	data, err := Marshal(sampleSnapshot())
	require.NoError(t, err)

	var raw map[string][]map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &raw))

	assert.Len(t, raw, 3)
	expense := raw["expenses"][0]
	for _, key := range []string{"id", "amount", "date", "time", "merchant", "categoryId", "installments", "lastCardDigits", "description"} {
		assert.Contains(t, expense, key)
	}
	assert.Equal(t, 1520.75, expense["amount"])
	assert.Contains(t, raw["budgets"][0], "categoryId")
	assert.Contains(t, raw["categories"][0], "name")

	// Absent optional fields are written as null
	assert.Nil(t, raw["expenses"][1]["categoryId"])
}

func TestDecodeAcceptsForeignDocument(t *testing.T) {
	doc := `{
		"expenses": [{"id": 1, "amount": 12000.0, "date": "2024-01-02", "time": "10:00",
			"merchant": "Copec", "categoryId": null, "installments": null,
			"lastCardDigits": null, "description": null}],
		"categories": [],
		"budgets": [{"id": 4, "categoryId": 9, "amount": 50000, "month": 12, "year": 2023}]
	}`

	snap, err := Decode(strings.NewReader(doc))
	require.NoError(t, err)
	require.Len(t, snap.Expenses, 1)
	assert.True(t, snap.Expenses[0].Amount.Equal(decimal.NewFromInt(12000)))
	assert.Nil(t, snap.Expenses[0].CategoryID)
	assert.Equal(t, int64(9), snap.Budgets[0].CategoryID)
}

func TestDecodeCorrupt(t *testing.T) {
	cases := map[string]string{
		"not json":           `this is not a snapshot`,
		"truncated":          `{"expenses": [`,
		"missing budgets":    `{"expenses": [], "categories": []}`,
		"wrong shape":        `{"expenses": {}, "categories": [], "budgets": []}`,
		"bad amount":         `{"expenses": [{"id": 1, "amount": "lots"}], "categories": [], "budgets": []}`,
		"missing amount":     `{"expenses": [{"id": 1}], "categories": [], "budgets": []}`,
		"bad card digits":    `{"expenses": [{"id": 1, "amount": 1, "lastCardDigits": "12a4"}], "categories": [], "budgets": []}`,
		"month out of range": `{"expenses": [], "categories": [], "budgets": [{"id": 1, "categoryId": 1, "amount": 1, "month": 13, "year": 2024}]}`,
		"trailing data":      `{"expenses": [], "categories": [], "budgets": []} {}`,
		"empty":              ``,
	}

	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Decode(strings.NewReader(doc))
			assert.ErrorIs(t, err, ErrCorruptSnapshot)
		})
	}
}

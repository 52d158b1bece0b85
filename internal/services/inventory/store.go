package inventory

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"restaurant-orders/internal/database"
	"restaurant-orders/internal/models"
)

// AdjustmentAutoDeduction is the stock_adjustments type written for completed orders
const AdjustmentAutoDeduction = "AUTO_DEDUCTION"

// Adjustment is one ingredient drawn down for an order
type Adjustment struct {
	IngredientID uuid.UUID
	RestaurantID uuid.UUID
	Name         string
	Unit         string
	Quantity     decimal.Decimal
	StockAfter   decimal.Decimal
	MinStock     decimal.Decimal
}

// Low reports whether the ingredient is at or below its minimum after the deduction
func (a Adjustment) Low() bool {
	return a.StockAfter.LessThanOrEqual(a.MinStock)
}

// Result describes what a deduction did
type Result struct {
	// Applied is false when the order had already been deducted
	Applied     bool
	Adjustments []Adjustment
	// Unmapped lists order lines whose menu item has no recipe
	Unmapped []string
}

// Store applies the stock deduction of a completed order exactly once
type Store interface {
	Deduct(ctx context.Context, ev models.CompletionEvent) (*Result, error)
}

// PostgresStore claims the order in inventory_deductions and draws stock in the same transaction
type PostgresStore struct {
	db database.TxBeginner
}

func NewPostgresStore(db database.TxBeginner) *PostgresStore {
	return &PostgresStore{db: db}
}

type requirement struct {
	ingredientID uuid.UUID
	quantity     decimal.Decimal
}

func (s *PostgresStore) Deduct(ctx context.Context, ev models.CompletionEvent) (*Result, error) {
	res := &Result{}
	err := database.WithTx(ctx, s.db, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, database.ClaimDeductionSQL, ev.OrderID, ev.EventID)
		if err != nil {
			return fmt.Errorf("failed to claim deduction: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return nil
		}
		res.Applied = true

		needs, unmapped, err := loadRequirements(ctx, tx, ev.OrderID)
		if err != nil {
			return err
		}
		res.Unmapped = unmapped

		notes := "order " + ev.OrderNumber
		for _, need := range needs {
			adj := Adjustment{IngredientID: need.ingredientID, Quantity: need.quantity}
			err := tx.QueryRow(ctx, database.DeductIngredientSQL, need.ingredientID, need.quantity).
				Scan(&adj.RestaurantID, &adj.Name, &adj.Unit, &adj.StockAfter, &adj.MinStock)
			if err != nil {
				return fmt.Errorf("failed to deduct ingredient %s: %w", need.ingredientID, err)
			}
			_, err = tx.Exec(ctx, database.InsertStockAdjustmentSQL,
				need.ingredientID, ev.OrderID, AdjustmentAutoDeduction, need.quantity.Neg(), adj.StockAfter, notes)
			if err != nil {
				return fmt.Errorf("failed to record stock adjustment: %w", err)
			}
			res.Adjustments = append(res.Adjustments, adj)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// loadRequirements sums recipe quantity x ordered quantity per ingredient, in first-seen order
func loadRequirements(ctx context.Context, tx pgx.Tx, orderID uuid.UUID) ([]requirement, []string, error) {
	rows, err := tx.Query(ctx, database.GetDeductionLinesSQL, orderID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load deduction lines: %w", err)
	}
	defer rows.Close()

	var lines []line
	for rows.Next() {
		var l line
		if err := rows.Scan(&l.menuItemID, &l.itemName, &l.quantity, &l.ingredientID, &l.perUnit); err != nil {
			return nil, nil, fmt.Errorf("failed to scan deduction line: %w", err)
		}
		lines = append(lines, l)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	needs, unmapped := aggregate(lines)
	return needs, unmapped, nil
}

// line is one order item joined with one of its recipe rows. ingredientID is nil when the item has no recipe.
type line struct {
	menuItemID   *uuid.UUID
	itemName     string
	quantity     int
	ingredientID *uuid.UUID
	perUnit      decimal.NullDecimal
}

func aggregate(lines []line) ([]requirement, []string) {
	var (
		needs    []requirement
		unmapped []string
		index    = map[uuid.UUID]int{}
	)
	for _, l := range lines {
		if l.ingredientID == nil || !l.perUnit.Valid {
			unmapped = append(unmapped, l.itemName)
			continue
		}
		qty := l.perUnit.Decimal.Mul(decimal.NewFromInt(int64(l.quantity)))
		if i, ok := index[*l.ingredientID]; ok {
			needs[i].quantity = needs[i].quantity.Add(qty)
			continue
		}
		index[*l.ingredientID] = len(needs)
		needs = append(needs, requirement{ingredientID: *l.ingredientID, quantity: qty})
	}
	return needs, unmapped
}

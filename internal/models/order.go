package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

func init() {
	// Prices travel as JSON numbers, matching the stored order shape.
	decimal.MarshalJSONWithoutQuotes = true
}

// LineItem is an immutable snapshot of one menu item inside a submitted order.
type LineItem struct {
	MenuItemID string          `json:"menuItemId"`
	Name       string          `json:"name"`
	Price      decimal.Decimal `json:"price"`
	Quantity   int             `json:"qty"`
}

// Subtotal returns price * qty for the line.
func (li LineItem) Subtotal() decimal.Decimal {
	return li.Price.Mul(decimal.NewFromInt(int64(li.Quantity)))
}

// Order is a persisted submission, owned by exactly one restaurant.
type Order struct {
	ID           string     `json:"id"`
	RestaurantID string     `json:"restaurant_id"`
	Items        []LineItem `json:"items"`
	GuestName    *string    `json:"guest_name"`
	TableNumber  *string    `json:"table_number"`
	Comment      *string    `json:"comment"`
	Status       Status     `json:"status"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`

	// ItemsMalformed is set when the stored items could not be fully decoded
	// (non-numeric price or qty). Such orders are listed but never counted.
	ItemsMalformed bool `json:"items_malformed,omitempty"`
}

// Total sums price * qty over the order's line items.
func (o Order) Total() decimal.Decimal {
	total := decimal.Zero
	for _, item := range o.Items {
		total = total.Add(item.Subtotal())
	}
	return total
}

// Clone returns a deep copy so callers cannot mutate shared state.
func (o Order) Clone() Order {
	c := o
	if o.Items != nil {
		c.Items = make([]LineItem, len(o.Items))
		copy(c.Items, o.Items)
	}
	c.GuestName = cloneString(o.GuestName)
	c.TableNumber = cloneString(o.TableNumber)
	c.Comment = cloneString(o.Comment)
	return c
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

// NewOrder carries everything needed to persist a fresh submission.
// ID, status and creation time are assigned by the store.
type NewOrder struct {
	RestaurantID    string
	Items           []LineItem
	GuestName       *string
	TableNumber     *string
	Comment         *string
	SubmissionToken *string
}

// rawLineItem keeps numeric fields raw so malformed values can be detected
// instead of failing the whole decode.
type rawLineItem struct {
	MenuItemID json.RawMessage `json:"menuItemId"`
	Name       json.RawMessage `json:"name"`
	Price      json.RawMessage `json:"price"`
	Quantity   json.RawMessage `json:"qty"`
}

// DecodeLineItems decodes the stored items array. It returns the items it
// could decode and reports whether every item had a numeric price and qty.
// An error is returned only when the payload is not a JSON array.
func DecodeLineItems(raw []byte) ([]LineItem, bool, error) {
	var rawItems []rawLineItem
	if err := json.Unmarshal(raw, &rawItems); err != nil {
		return nil, false, fmt.Errorf("failed to decode line items: %w", err)
	}

	items := make([]LineItem, 0, len(rawItems))
	wellFormed := true
	for _, r := range rawItems {
		var item LineItem
		_ = json.Unmarshal(r.MenuItemID, &item.MenuItemID)
		_ = json.Unmarshal(r.Name, &item.Name)

		price, ok := decodeNumber(r.Price)
		if !ok {
			wellFormed = false
		}
		item.Price = price

		qty, ok := decodeNumber(r.Quantity)
		if !ok || !qty.IsInteger() {
			wellFormed = false
		} else {
			item.Quantity = int(qty.IntPart())
		}

		items = append(items, item)
	}

	return items, wellFormed, nil
}

// decodeNumber accepts only bare JSON numbers; quoted numbers, null and
// missing values are treated as malformed.
func decodeNumber(raw json.RawMessage) (decimal.Decimal, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || !(raw[0] == '-' || (raw[0] >= '0' && raw[0] <= '9')) {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(string(raw))
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

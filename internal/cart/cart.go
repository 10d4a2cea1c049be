// Package cart holds a guest's in-progress selection before submission.
package cart

import (
	"errors"
	"sync"

	"github.com/shopspring/decimal"
)

// ErrCheckoutInProgress is returned when a second checkout starts on a cart
// whose previous checkout has not finished.
var ErrCheckoutInProgress = errors.New("checkout already in progress")

// MenuItem is the menu data the guest picked.
type MenuItem struct {
	MenuItemID string          `json:"menuItemId"`
	Name       string          `json:"name"`
	Price      decimal.Decimal `json:"price"`
	Image      string          `json:"image,omitempty"`
}

// Entry is one distinct menu item in the cart with its quantity.
type Entry struct {
	MenuItem
	Quantity int `json:"quantity"`
}

func (e Entry) Subtotal() decimal.Decimal {
	return e.Price.Mul(decimal.NewFromInt(int64(e.Quantity)))
}

// Cart is keyed by menu item id and keeps insertion order for display.
// Every operation is total; the zero value is an empty cart.
type Cart struct {
	mu          sync.Mutex
	entries     []Entry
	checkingOut bool
}

func New() *Cart {
	return &Cart{}
}

// Add inserts item with quantity 1, or increments the quantity when an
// entry with the same menu item id already exists.
func (c *Cart) Add(item MenuItem) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if i := c.indexOf(item.MenuItemID); i >= 0 {
		c.entries[i].Quantity++
		return
	}
	c.entries = append(c.entries, Entry{MenuItem: item, Quantity: 1})
}

// Remove deletes the entry; absent ids are a no-op.
func (c *Cart) Remove(menuItemID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if i := c.indexOf(menuItemID); i >= 0 {
		c.entries = append(c.entries[:i], c.entries[i+1:]...)
	}
}

// UpdateQuantity sets the quantity, clamped to at least 1. Removal is only
// possible through Remove. Absent ids are a no-op.
func (c *Cart) UpdateQuantity(menuItemID string, qty int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if i := c.indexOf(menuItemID); i >= 0 {
		c.entries[i].Quantity = max(1, qty)
	}
}

// Clear empties the cart.
func (c *Cart) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = nil
}

// Entries returns a copy of the cart contents in insertion order.
func (c *Cart) Entries() []Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshot()
}

// Total is sum(price * quantity), computed on every read.
func (c *Cart) Total() decimal.Decimal {
	c.mu.Lock()
	defer c.mu.Unlock()

	total := decimal.Zero
	for _, e := range c.entries {
		total = total.Add(e.Subtotal())
	}
	return total
}

// Count is the total number of units in the cart.
func (c *Cart) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for _, e := range c.entries {
		n += e.Quantity
	}
	return n
}

// Checkout hands a snapshot of the entries to submit. The cart is cleared
// only when submit returns nil; on error it is left exactly as it was.
// Only one checkout may run at a time.
func (c *Cart) Checkout(submit func(entries []Entry) error) error {
	c.mu.Lock()
	if c.checkingOut {
		c.mu.Unlock()
		return ErrCheckoutInProgress
	}
	c.checkingOut = true
	entries := c.snapshot()
	c.mu.Unlock()

	err := submit(entries)

	c.mu.Lock()
	c.checkingOut = false
	if err == nil {
		c.entries = nil
	}
	c.mu.Unlock()

	return err
}

func (c *Cart) indexOf(menuItemID string) int {
	for i := range c.entries {
		if c.entries[i].MenuItemID == menuItemID {
			return i
		}
	}
	return -1
}

func (c *Cart) snapshot() []Entry {
	out := make([]Entry, len(c.entries))
	copy(out, c.entries)
	return out
}

package validation

import (
	"fmt"
	"unicode/utf8"

	"github.com/shopspring/decimal"

	"restaurant-orders/internal/models"
)

const (
	maxGuestNameLength   = 100
	maxTableNumberLength = 20
	maxCommentLength     = 500
	maxItemNameLength    = 120
)

type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Submission is the guest-supplied part of an order.
type Submission struct {
	RestaurantID string
	Items        []models.LineItem
	GuestName    string
	TableNumber  string
	Comment      string
}

// Limits bounds the size of a submission. Zero values disable a limit.
type Limits struct {
	MaxLineItems    int
	MaxItemQuantity int
}

func ValidateSubmission(s Submission, limits Limits) error {
	if s.RestaurantID == "" {
		return ValidationError{
			Field:   "restaurant_id",
			Message: "restaurant id is required",
		}
	}

	if err := validateOptional("guest_name", s.GuestName, maxGuestNameLength); err != nil {
		return err
	}
	if err := validateOptional("table_number", s.TableNumber, maxTableNumberLength); err != nil {
		return err
	}
	if err := validateOptional("comment", s.Comment, maxCommentLength); err != nil {
		return err
	}

	return validateItems(s.Items, limits)
}

// ValidateMenuItem checks an item before it is put into a cart.
func ValidateMenuItem(menuItemID, name string, price decimal.Decimal) error {
	return validateItem(models.LineItem{MenuItemID: menuItemID, Name: name, Price: price, Quantity: 1}, -1, 0)
}

// ValidateQuantity checks a requested quantity against 1..maxQty.
func ValidateQuantity(field string, qty, maxQty int) error {
	if qty < 1 {
		return ValidationError{
			Field:   field,
			Message: "item quantity must be at least 1",
		}
	}
	if maxQty > 0 && qty > maxQty {
		return ValidationError{
			Field:   field,
			Message: fmt.Sprintf("item quantity must be at most %d", maxQty),
		}
	}
	return nil
}

func validateOptional(field, value string, limit int) error {
	if utf8.RuneCountInString(value) > limit {
		return ValidationError{
			Field:   field,
			Message: fmt.Sprintf("%s must be at most %d characters", field, limit),
		}
	}
	return nil
}

func validateItems(items []models.LineItem, limits Limits) error {
	if len(items) == 0 {
		return ValidationError{
			Field:   "items",
			Message: "items cannot be empty",
		}
	}

	if limits.MaxLineItems > 0 && len(items) > limits.MaxLineItems {
		return ValidationError{
			Field:   "items",
			Message: fmt.Sprintf("a maximum of %d items is allowed", limits.MaxLineItems),
		}
	}

	for i, item := range items {
		if err := validateItem(item, i, limits.MaxItemQuantity); err != nil {
			return err
		}
	}
	return nil
}

func validateItem(item models.LineItem, index, maxQty int) error {
	prefix := "item"
	if index >= 0 {
		prefix = fmt.Sprintf("items[%d]", index)
	}

	if item.MenuItemID == "" {
		return ValidationError{
			Field:   prefix + ".menuItemId",
			Message: "menu item id is required",
		}
	}

	if item.Name == "" {
		return ValidationError{
			Field:   prefix + ".name",
			Message: "item name is required",
		}
	}

	if utf8.RuneCountInString(item.Name) > maxItemNameLength {
		return ValidationError{
			Field:   prefix + ".name",
			Message: fmt.Sprintf("item name must be at most %d characters", maxItemNameLength),
		}
	}

	if item.Price.IsNegative() {
		return ValidationError{
			Field:   prefix + ".price",
			Message: "item price must not be negative",
		}
	}

	return ValidateQuantity(prefix+".qty", item.Quantity, maxQty)
}

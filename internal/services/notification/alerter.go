// Package notification renders new-order alerts for staff.
package notification

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"restaurant-orders/internal/logger"
	"restaurant-orders/internal/models"
	"restaurant-orders/internal/services/metrics"
)

// bell is the terminal's audible alert.
const bell = "\a"

// ConsoleAlerter rings the terminal bell and prints one line per new order.
type ConsoleAlerter struct {
	mu     sync.Mutex
	out    io.Writer
	bell   bool
	logger *logger.Logger
}

func NewConsoleAlerter(out io.Writer, ringBell bool, log *logger.Logger) *ConsoleAlerter {
	return &ConsoleAlerter{out: out, bell: ringBell, logger: log}
}

// Alert implements feed.Alerter.
func (a *ConsoleAlerter) Alert(o models.Order) {
	line := FormatOrder(o)

	a.mu.Lock()
	if a.bell {
		fmt.Fprint(a.out, bell)
	}
	fmt.Fprintln(a.out, line)
	a.mu.Unlock()

	a.logger.Info("notification_displayed", "New order alert displayed", "", map[string]interface{}{
		"order_id":      o.ID,
		"restaurant_id": o.RestaurantID,
		"items":         len(o.Items),
		"total":         o.Total().String(),
	})
}

// Summary prints the current dashboard statistics.
func (a *ConsoleAlerter) Summary(restaurantID string, s metrics.Stats) {
	a.mu.Lock()
	defer a.mu.Unlock()
	fmt.Fprintln(a.out, FormatStats(restaurantID, s))
}

// FormatOrder creates a human-readable new order line.
func FormatOrder(o models.Order) string {
	timestamp := o.CreatedAt.Format("2006-01-02 15:04:05")

	items := make([]string, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, fmt.Sprintf("%dx %s", it.Quantity, it.Name))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "🔔 [%s] New order %s", timestamp, o.ID)
	if o.TableNumber != nil {
		fmt.Fprintf(&b, " for table %s", *o.TableNumber)
	}
	if o.GuestName != nil {
		fmt.Fprintf(&b, " (%s)", *o.GuestName)
	}
	fmt.Fprintf(&b, ": %s. Total %s", strings.Join(items, ", "), o.Total().StringFixed(2))
	if o.Comment != nil {
		fmt.Fprintf(&b, ". Note: %s", *o.Comment)
	}
	return b.String()
}

// FormatStats renders a one-line statistics summary.
func FormatStats(restaurantID string, s metrics.Stats) string {
	top := make([]string, 0, len(s.TopItems))
	for _, it := range s.TopItems {
		top = append(top, fmt.Sprintf("%s (%d)", it.Name, it.Quantity))
	}
	if len(top) == 0 {
		top = append(top, "none")
	}
	return fmt.Sprintf("📋 Restaurant %s: %d orders, revenue %s, average %s. Top: %s",
		restaurantID,
		s.OrderCount,
		s.TotalRevenue.StringFixed(2),
		s.AverageOrderValue.String(),
		strings.Join(top, ", "),
	)
}

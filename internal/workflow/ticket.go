package workflow

import (
	"fmt"
	"time"
)

// ticketNumberBase and ticketNumberSpan implement spec.md §4.11.2's
// N = 20000 + (unix_millis % 10000) rule.
const (
	ticketNumberBase = 20000
	ticketNumberSpan = 10000
)

// generateTicketNumber formats a ticket number N/YYYY/MM/DD for now.
// The format alone doesn't guarantee uniqueness — callers MUST enforce
// it with a conditional put and retry on collision (Engine.commit).
func generateTicketNumber(now time.Time) string {
	n := ticketNumberBase + (now.UnixMilli() % ticketNumberSpan)
	return fmt.Sprintf("%d/%04d/%02d/%02d", n, now.Year(), int(now.Month()), now.Day())
}

package workflow

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGenerateTicketNumber_Format(t *testing.T) {
	now := time.Date(2026, 3, 5, 10, 30, 0, 0, time.UTC)
	got := generateTicketNumber(now)
	assert.Regexp(t, `^\d{5}/2026/03/05$`, got)
}

func TestGenerateTicketNumber_Deterministic(t *testing.T) {
	now := time.Date(2026, 3, 5, 10, 30, 0, 123000000, time.UTC)
	a := generateTicketNumber(now)
	b := generateTicketNumber(now)
	assert.Equal(t, a, b)
}

package models

import (
	"strings"
	"time"
)

// Ledger is a named account bucket invoices are reconciled against.
type Ledger struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description *string   `json:"description"`
	CreatedBy   string    `json:"created_by"`
	UpdatedBy   string    `json:"updated_by"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// LedgerInput is used for creating ledgers.
type LedgerInput struct {
	Name        string  `json:"name"`
	Description *string `json:"description"`
}

func (l *LedgerInput) Validate() string {
	l.Name = strings.TrimSpace(l.Name)
	if l.Name == "" {
		return "name is required"
	}
	if strings.EqualFold(l.Name, LedgerNotSelected) {
		return "name is reserved"
	}
	return ""
}

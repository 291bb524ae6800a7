package models

import (
	"time"
)

// Transaction is one immutable row in a logical transaction's version chain.
// The logical identity is (tenant_id, provider_tx_id); every change appends a
// new row with a higher version linked through supersedes_transaction_id.
type Transaction struct {
	ID                       string    `json:"id" db:"id"`
	TenantID                 string    `json:"tenant_id" db:"tenant_id"`
	AccountID                string    `json:"account_id" db:"account_id"`
	ProviderTxID             string    `json:"provider_tx_id" db:"provider_tx_id"`
	Amount                   float64   `json:"amount" db:"amount"`
	Currency                 string    `json:"currency" db:"currency"`
	Description              string    `json:"description" db:"description"`
	OccurredAt               time.Time `json:"occurred_at" db:"occurred_at"`
	Status                   string    `json:"status" db:"status"`
	Version                  int       `json:"version" db:"version"`
	SupersedesTransactionID  *string   `json:"supersedes_transaction_id,omitempty" db:"supersedes_transaction_id"`
	CategoryID               *string   `json:"category_id,omitempty" db:"category_id"`
	CreatedAt                time.Time `json:"created_at" db:"created_at"`
}

// TransactionInput is one sub-transaction of an admitted webhook payload.
// Provider feeds are loosely shaped, so most fields are optional with
// ingestion-time defaults.
type TransactionInput struct {
	ProviderTxID            string  `json:"provider_tx_id"`
	ID                      string  `json:"id"` // provider alias for provider_tx_id
	Amount                  float64 `json:"amount"`
	Currency                string  `json:"currency"`
	Description             string  `json:"description"`
	Name                    string  `json:"name"` // provider alias for description
	OccurredAt              string  `json:"occurred_at"`
	Date                    string  `json:"date"` // provider alias for occurred_at
	Status                  string  `json:"status"`
	Version                 int     `json:"version"`
	SupersedesTransactionID *string `json:"supersedes_transaction_id,omitempty"`
}

const (
	DefaultCurrency          = "USD"
	DefaultTransactionStatus = "posted"
)

// Normalize resolves provider field aliases and applies ingestion defaults.
func (in TransactionInput) Normalize(now time.Time) (providerTxID, description, currency, status string, occurredAt time.Time, version int) {
	providerTxID = in.ProviderTxID
	if providerTxID == "" {
		providerTxID = in.ID
	}

	description = in.Description
	if description == "" {
		description = in.Name
	}

	currency = in.Currency
	if currency == "" {
		currency = DefaultCurrency
	}

	status = in.Status
	if status == "" {
		status = DefaultTransactionStatus
	}

	raw := in.OccurredAt
	if raw == "" {
		raw = in.Date
	}
	occurredAt = now
	if raw != "" {
		if parsed, err := time.Parse(time.RFC3339, raw); err == nil {
			occurredAt = parsed
		} else if parsed, err := time.Parse("2006-01-02", raw); err == nil {
			occurredAt = parsed
		}
	}

	version = in.Version
	if version == 0 {
		version = 1
	}

	return providerTxID, description, currency, status, occurredAt, version
}

package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseProposalPayload(t *testing.T) {
	t.Run("valid recategorize payload", func(t *testing.T) {
		raw := json.RawMessage(`{"transaction_id": "tx-1", "category_name": "Dining", "reason": "restaurant charge"}`)

		payload, err := ParseProposalPayload(ActionTypeRecategorize, raw)
		require.NoError(t, err)
		require.NotNil(t, payload.Recategorize)
		assert.Equal(t, "tx-1", payload.Recategorize.TransactionID)
		assert.Equal(t, "Dining", payload.Recategorize.CategoryName)
		assert.Equal(t, "restaurant charge", payload.Recategorize.Reason)
	})

	t.Run("missing transaction_id", func(t *testing.T) {
		raw := json.RawMessage(`{"category_name": "Dining"}`)

		_, err := ParseProposalPayload(ActionTypeRecategorize, raw)
		assert.ErrorContains(t, err, "transaction_id")
	})

	t.Run("missing category_name", func(t *testing.T) {
		raw := json.RawMessage(`{"transaction_id": "tx-1"}`)

		_, err := ParseProposalPayload(ActionTypeRecategorize, raw)
		assert.ErrorContains(t, err, "category_name")
	})

	t.Run("structurally invalid json", func(t *testing.T) {
		_, err := ParseProposalPayload(ActionTypeRecategorize, json.RawMessage(`{`))
		assert.Error(t, err)
	})

	t.Run("unknown action type", func(t *testing.T) {
		_, err := ParseProposalPayload(ActionType("delete_everything"), json.RawMessage(`{}`))
		assert.ErrorContains(t, err, "unknown action type")
	})
}

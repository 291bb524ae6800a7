package ingestion

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"testing"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/sage/pkg/database"
	"github.com/Ramsey-B/sage/pkg/events"
	"github.com/Ramsey-B/sage/pkg/models"
)

type openTx struct{}

func (openTx) IsOpen() bool                     { return true }
func (openTx) Commit(_ context.Context) error   { return nil }
func (openTx) Rollback(_ context.Context) error { return nil }
func (openTx) ExecContext(_ context.Context, _ string, _ ...any) (sql.Result, error) {
	return driver.RowsAffected(1), nil
}
func (openTx) GetContext(_ context.Context, _ any, _ string, _ ...any) error       { return nil }
func (openTx) QueryRowxContext(_ context.Context, _ string, _ ...any) *sqlx.Row   { return nil }
func (openTx) QueryxContext(_ context.Context, _ string, _ ...any) (*sqlx.Rows, error) {
	return nil, nil
}
func (openTx) SelectContext(_ context.Context, _ any, _ string, _ ...any) error { return nil }

type fakeAdmitter struct {
	admitted bool
	err      error
	calls    int
}

func (f *fakeAdmitter) Admit(_ context.Context, _, _, _, _ string) (bool, error) {
	f.calls++
	return f.admitted, f.err
}

type fakeWriter struct {
	inserted  []models.Transaction
	skipAfter int // insert this many rows, then report conflicts
}

func (f *fakeWriter) InsertVersion(_ context.Context, tx models.Transaction) (bool, error) {
	if f.skipAfter > 0 && len(f.inserted) >= f.skipAfter {
		return false, nil
	}
	f.inserted = append(f.inserted, tx)
	return true, nil
}

type fakeAuditor struct {
	events []models.AuditEvent
	err    error
}

func (f *fakeAuditor) Record(_ context.Context, event models.AuditEvent) error {
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, event)
	return nil
}

func newTestService(admitter *fakeAdmitter, writer *fakeWriter, auditor *fakeAuditor) *Service {
	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	svc := NewService(nil, logger, admitter, writer, auditor, events.NewEmitter(nil, logger))
	svc.now = func() time.Time { return time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC) }
	return svc
}

func scopedCtx() context.Context {
	return database.ContextWithTx(context.Background(), openTx{})
}

func TestHandleWebhook_IngestsBatch(t *testing.T) {
	admitter := &fakeAdmitter{admitted: true}
	writer := &fakeWriter{}
	auditor := &fakeAuditor{}
	svc := newTestService(admitter, writer, auditor)

	result, err := svc.HandleWebhook(scopedCtx(), WebhookRequest{
		TenantID: "tenant-a",
		Source:   "plaid",
		EventID:  "evt-1",
		Payload: WebhookPayload{
			AccountID: "acct-1",
			Transactions: []models.TransactionInput{
				{ProviderTxID: "prov-1", Amount: -12.50, Description: "Coffee"},
				{ID: "prov-2", Amount: -80, Name: "Groceries", Date: "2026-03-01"},
			},
		},
	})
	require.NoError(t, err)

	assert.False(t, result.Duplicate)
	assert.Equal(t, 2, result.Ingested)
	assert.Equal(t, 0, result.Skipped)
	require.Len(t, writer.inserted, 2)

	first := writer.inserted[0]
	assert.Equal(t, "tenant-a", first.TenantID)
	assert.Equal(t, "acct-1", first.AccountID)
	assert.Equal(t, "prov-1", first.ProviderTxID)
	assert.Equal(t, 1, first.Version)
	assert.Equal(t, models.DefaultCurrency, first.Currency)
	assert.Equal(t, models.DefaultTransactionStatus, first.Status)
	assert.NotEmpty(t, first.ID)

	second := writer.inserted[1]
	assert.Equal(t, "prov-2", second.ProviderTxID)
	assert.Equal(t, "Groceries", second.Description)

	// one webhook_received plus one transaction_ingested per row
	require.Len(t, auditor.events, 3)
	assert.Equal(t, models.AuditWebhookReceived, auditor.events[0].EventType)
	assert.Equal(t, models.ActorTypeProvider, auditor.events[0].ActorType)
	assert.Equal(t, models.AuditTransactionIngested, auditor.events[1].EventType)
	assert.Equal(t, &first.ID, auditor.events[1].EntityID)
}

func TestHandleWebhook_DuplicateDeliveryIsNoOp(t *testing.T) {
	admitter := &fakeAdmitter{admitted: false}
	writer := &fakeWriter{}
	auditor := &fakeAuditor{}
	svc := newTestService(admitter, writer, auditor)

	result, err := svc.HandleWebhook(scopedCtx(), WebhookRequest{
		TenantID: "tenant-a",
		Source:   "plaid",
		EventID:  "evt-1",
		Payload: WebhookPayload{
			Transactions: []models.TransactionInput{{ProviderTxID: "prov-1"}},
		},
	})
	require.NoError(t, err)

	assert.True(t, result.Duplicate)
	assert.Equal(t, 0, result.Ingested)
	assert.Empty(t, writer.inserted)
	assert.Empty(t, auditor.events)
	assert.Equal(t, 1, admitter.calls)
}

func TestHandleWebhook_VersionConflictSkipsRow(t *testing.T) {
	admitter := &fakeAdmitter{admitted: true}
	writer := &fakeWriter{skipAfter: 1}
	auditor := &fakeAuditor{}
	svc := newTestService(admitter, writer, auditor)

	result, err := svc.HandleWebhook(scopedCtx(), WebhookRequest{
		TenantID: "tenant-a",
		Source:   "plaid",
		EventID:  "evt-2",
		Payload: WebhookPayload{
			Transactions: []models.TransactionInput{
				{ProviderTxID: "prov-1"},
				{ProviderTxID: "prov-1"}, // same logical row, same version
			},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, 1, result.Ingested)
	assert.Equal(t, 1, result.Skipped)
	require.Len(t, auditor.events, 2) // skipped row gets no audit entry
}

func TestHandleWebhook_Validation(t *testing.T) {
	svc := newTestService(&fakeAdmitter{admitted: true}, &fakeWriter{}, &fakeAuditor{})

	tests := []struct {
		name string
		req  WebhookRequest
	}{
		{
			name: "missing source",
			req:  WebhookRequest{TenantID: "tenant-a", EventID: "evt-1"},
		},
		{
			name: "missing event id",
			req:  WebhookRequest{TenantID: "tenant-a", Source: "plaid"},
		},
		{
			name: "missing tenant",
			req:  WebhookRequest{Source: "plaid", EventID: "evt-1"},
		},
		{
			name: "transaction without provider id",
			req: WebhookRequest{
				TenantID: "tenant-a", Source: "plaid", EventID: "evt-1",
				Payload: WebhookPayload{Transactions: []models.TransactionInput{{Amount: 5}}},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.HandleWebhook(scopedCtx(), tt.req)
			require.Error(t, err)
			assert.Equal(t, 400, httperror.GetStatusCode(err))
		})
	}
}

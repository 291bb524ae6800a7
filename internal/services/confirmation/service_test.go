package confirmation

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"testing"

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
func (openTx) GetContext(_ context.Context, _ any, _ string, _ ...any) error     { return nil }
func (openTx) QueryRowxContext(_ context.Context, _ string, _ ...any) *sqlx.Row { return nil }
func (openTx) QueryxContext(_ context.Context, _ string, _ ...any) (*sqlx.Rows, error) {
	return nil, nil
}
func (openTx) SelectContext(_ context.Context, _ any, _ string, _ ...any) error { return nil }

type fakeProposals struct {
	proposal     *models.ActionProposal
	claimWon     bool
	statusOnLoss string
	claims       int
}

func (f *fakeProposals) GetByID(_ context.Context, id string) (*models.ActionProposal, error) {
	if f.proposal == nil || f.proposal.ID != id {
		return nil, httperror.NewHTTPError(404, "proposal not found")
	}
	p := *f.proposal
	if f.claims > 0 && !f.claimWon {
		p.Status = f.statusOnLoss
	}
	return &p, nil
}

func (f *fakeProposals) ClaimExecution(_ context.Context, _ string) (bool, error) {
	f.claims++
	return f.claimWon, nil
}

type fakeCategories struct {
	category *models.Category
}

func (f *fakeCategories) GetByName(_ context.Context, _, name string) (*models.Category, error) {
	if f.category == nil || f.category.Name != name {
		return nil, httperror.NewHTTPErrorf(404, "category %q not found", name)
	}
	return f.category, nil
}

type fakeLedger struct {
	applied *models.Transaction
	calls   int
}

func (f *fakeLedger) ApplyCategoryChange(_ context.Context, _, _ string, _ models.Category, _ string) (*models.Transaction, error) {
	f.calls++
	return f.applied, nil
}

type fakeAuditor struct {
	events []models.AuditEvent
}

func (f *fakeAuditor) Record(_ context.Context, event models.AuditEvent) error {
	f.events = append(f.events, event)
	return nil
}

func proposedRecategorize() *models.ActionProposal {
	return &models.ActionProposal{
		ID:         "prop-1",
		TenantID:   "tenant-a",
		UserID:     "user-1",
		ActionType: models.ActionTypeRecategorize,
		Payload:    json.RawMessage(`{"transaction_id": "tx-1", "category_name": "Dining"}`),
		Status:     models.ProposalStatusProposed,
	}
}

func newTestService(proposals *fakeProposals, categories *fakeCategories, ledger *fakeLedger, auditor *fakeAuditor) *Service {
	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	return NewService(nil, logger, proposals, categories, ledger, auditor, events.NewEmitter(nil, logger))
}

func scopedCtx() context.Context {
	return database.ContextWithTx(context.Background(), openTx{})
}

func TestConfirm_ExecutesRecategorize(t *testing.T) {
	proposals := &fakeProposals{proposal: proposedRecategorize(), claimWon: true}
	categories := &fakeCategories{category: &models.Category{ID: "cat-1", Name: "Dining"}}
	ledger := &fakeLedger{applied: &models.Transaction{ID: "tx-2", Version: 2}}
	auditor := &fakeAuditor{}
	svc := newTestService(proposals, categories, ledger, auditor)

	result, err := svc.Confirm(scopedCtx(), "tenant-a", "user-1", "prop-1")
	require.NoError(t, err)

	assert.Equal(t, models.ProposalStatusExecuted, result.Proposal.Status)
	require.NotNil(t, result.Transaction)
	assert.Equal(t, "tx-2", result.Transaction.ID)
	assert.Equal(t, 1, proposals.claims)
	assert.Equal(t, 1, ledger.calls)

	require.Len(t, auditor.events, 1)
	assert.Equal(t, models.AuditProposalExecuted, auditor.events[0].EventType)
	assert.Equal(t, models.ActorTypeUser, auditor.events[0].ActorType)
}

func TestConfirm_UnknownProposal(t *testing.T) {
	svc := newTestService(&fakeProposals{}, &fakeCategories{}, &fakeLedger{}, &fakeAuditor{})

	_, err := svc.Confirm(scopedCtx(), "tenant-a", "user-1", "missing")
	require.Error(t, err)
	assert.Equal(t, 404, httperror.GetStatusCode(err))
}

func TestConfirm_WrongUser(t *testing.T) {
	proposals := &fakeProposals{proposal: proposedRecategorize(), claimWon: true}
	svc := newTestService(proposals, &fakeCategories{}, &fakeLedger{}, &fakeAuditor{})

	_, err := svc.Confirm(scopedCtx(), "tenant-a", "user-2", "prop-1")
	require.Error(t, err)
	assert.Equal(t, 403, httperror.GetStatusCode(err))
	assert.Equal(t, 0, proposals.claims)
}

func TestConfirm_WrongTenant(t *testing.T) {
	proposals := &fakeProposals{proposal: proposedRecategorize(), claimWon: true}
	svc := newTestService(proposals, &fakeCategories{}, &fakeLedger{}, &fakeAuditor{})

	_, err := svc.Confirm(scopedCtx(), "tenant-b", "user-1", "prop-1")
	require.Error(t, err)
	assert.Equal(t, 403, httperror.GetStatusCode(err))
}

func TestConfirm_AlreadyExecuted(t *testing.T) {
	proposal := proposedRecategorize()
	proposal.Status = models.ProposalStatusExecuted
	proposals := &fakeProposals{proposal: proposal, claimWon: true}
	ledger := &fakeLedger{}
	svc := newTestService(proposals, &fakeCategories{}, ledger, &fakeAuditor{})

	_, err := svc.Confirm(scopedCtx(), "tenant-a", "user-1", "prop-1")
	require.Error(t, err)
	assert.Equal(t, 409, httperror.GetStatusCode(err))
	assert.Equal(t, 0, ledger.calls)
}

func TestConfirm_LostClaimRace(t *testing.T) {
	proposals := &fakeProposals{
		proposal:     proposedRecategorize(),
		claimWon:     false,
		statusOnLoss: models.ProposalStatusExecuted,
	}
	ledger := &fakeLedger{}
	svc := newTestService(proposals, &fakeCategories{}, ledger, &fakeAuditor{})

	_, err := svc.Confirm(scopedCtx(), "tenant-a", "user-1", "prop-1")
	require.Error(t, err)
	assert.Equal(t, 409, httperror.GetStatusCode(err))
	assert.Equal(t, 0, ledger.calls)
}

func TestConfirm_CategoryNotFound(t *testing.T) {
	proposals := &fakeProposals{proposal: proposedRecategorize(), claimWon: true}
	svc := newTestService(proposals, &fakeCategories{}, &fakeLedger{}, &fakeAuditor{})

	_, err := svc.Confirm(scopedCtx(), "tenant-a", "user-1", "prop-1")
	require.Error(t, err)
	assert.Equal(t, 404, httperror.GetStatusCode(err))
}

func TestConfirm_Validation(t *testing.T) {
	svc := newTestService(&fakeProposals{}, &fakeCategories{}, &fakeLedger{}, &fakeAuditor{})

	_, err := svc.Confirm(scopedCtx(), "tenant-a", "", "prop-1")
	require.Error(t, err)
	assert.Equal(t, 400, httperror.GetStatusCode(err))

	_, err = svc.Confirm(scopedCtx(), "tenant-a", "user-1", "")
	require.Error(t, err)
	assert.Equal(t, 400, httperror.GetStatusCode(err))
}

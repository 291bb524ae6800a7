package assistant

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

	"github.com/Ramsey-B/sage/pkg/citations"
	"github.com/Ramsey-B/sage/pkg/database"
	"github.com/Ramsey-B/sage/pkg/llm"
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

type fakeClient struct {
	completion llm.Completion
	err        error
	lastReq    llm.Request
}

func (f *fakeClient) Complete(_ context.Context, req llm.Request) (llm.Completion, error) {
	f.lastReq = req
	return f.completion, f.err
}

type fakeReader struct {
	txs  []models.Transaction
	cats []models.Category
}

func (f *fakeReader) ListCurrent(_ context.Context, _ string, _ int) ([]models.Transaction, error) {
	return f.txs, nil
}

func (f *fakeReader) List(_ context.Context, _ string) ([]models.Category, error) {
	return f.cats, nil
}

type fakeInteractions struct {
	created []models.AIInteraction
}

func (f *fakeInteractions) Create(_ context.Context, interaction models.AIInteraction) error {
	f.created = append(f.created, interaction)
	return nil
}

type fakeProposals struct {
	created []models.ActionProposal
}

func (f *fakeProposals) Create(_ context.Context, proposal models.ActionProposal) error {
	f.created = append(f.created, proposal)
	return nil
}

type fakeAuditor struct {
	events []models.AuditEvent
}

func (f *fakeAuditor) Record(_ context.Context, event models.AuditEvent) error {
	f.events = append(f.events, event)
	return nil
}

type fakeVerifier struct {
	result citations.Result
}

func (f *fakeVerifier) Verify(_ context.Context, _ string, claimed []string) (citations.Result, error) {
	if len(claimed) == 0 {
		return citations.Result{AllValid: true}, nil
	}
	return f.result, nil
}

type fixture struct {
	client       *fakeClient
	reader       *fakeReader
	interactions *fakeInteractions
	proposals    *fakeProposals
	auditor      *fakeAuditor
	verifier     *fakeVerifier
	svc          *Service
}

func newFixture(client *fakeClient, verifier *fakeVerifier) *fixture {
	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	f := &fixture{
		client:       client,
		reader:       &fakeReader{cats: []models.Category{{ID: "cat-1", Name: "Dining"}}},
		interactions: &fakeInteractions{},
		proposals:    &fakeProposals{},
		auditor:      &fakeAuditor{},
		verifier:     verifier,
	}
	var llmClient llm.Client
	if client != nil {
		llmClient = client
	}
	f.svc = NewService(nil, logger, llmClient, f.reader, f.reader,
		f.interactions, f.proposals, f.auditor, f.verifier)
	return f
}

func scopedCtx() context.Context {
	return database.ContextWithTx(context.Background(), openTx{})
}

const citedID = "44444444-4444-4444-4444-444444444444"

func TestChat_AnswersWithVerifiedCitations(t *testing.T) {
	client := &fakeClient{completion: llm.Completion{
		Text: "You spent $12.50 on coffee [tx:" + citedID + "].",
	}}
	verifier := &fakeVerifier{result: citations.Result{VerifiedIDs: []string{citedID}, AllValid: true}}
	f := newFixture(client, verifier)

	result, err := f.svc.Chat(scopedCtx(), "tenant-a", "user-1", "How much did I spend on coffee?")
	require.NoError(t, err)

	assert.Contains(t, result.Response, citedID)
	assert.Equal(t, []string{citedID}, result.Citations)
	assert.Nil(t, result.Proposal)

	require.Len(t, f.interactions.created, 1)
	stored := f.interactions.created[0]
	assert.Equal(t, result.InteractionID, stored.ID)
	assert.Equal(t, "How much did I spend on coffee?", stored.Question)
	assert.Equal(t, []string{citedID}, stored.Citations.Data)

	require.Len(t, f.auditor.events, 1)
	assert.Equal(t, models.AuditChatQuery, f.auditor.events[0].EventType)
	assert.Equal(t, models.ActorTypeAI, f.auditor.events[0].ActorType)
}

func TestChat_FailedVerificationFallsBack(t *testing.T) {
	client := &fakeClient{completion: llm.Completion{
		Text: "Your rent was $2000 [tx:" + citedID + "].",
	}}
	verifier := &fakeVerifier{result: citations.Result{AllValid: false}}
	f := newFixture(client, verifier)

	result, err := f.svc.Chat(scopedCtx(), "tenant-a", "user-1", "What is my rent?")
	require.NoError(t, err)

	assert.Equal(t, citations.FallbackMessage, result.Response)
	assert.Empty(t, result.Citations)

	// the stored interaction carries the fallback, not the unverified answer
	require.Len(t, f.interactions.created, 1)
	assert.Equal(t, citations.FallbackMessage, f.interactions.created[0].Response)
	assert.Empty(t, f.interactions.created[0].Citations.Data)
}

func TestChat_ToolCallCreatesProposal(t *testing.T) {
	client := &fakeClient{completion: llm.Completion{
		Text: "I can recategorize that for you, but it needs your confirmation.",
		ToolCall: &llm.ToolCall{
			Name: proposeRecategorizeTool,
			Args: json.RawMessage(`{"transaction_id": "tx-1", "category_name": "Dining"}`),
		},
	}}
	verifier := &fakeVerifier{result: citations.Result{AllValid: true}}
	f := newFixture(client, verifier)

	result, err := f.svc.Chat(scopedCtx(), "tenant-a", "user-1", "Move that to Dining")
	require.NoError(t, err)

	require.NotNil(t, result.Proposal)
	assert.Equal(t, models.ActionTypeRecategorize, result.Proposal.ActionType)
	assert.Equal(t, models.ProposalStatusProposed, result.Proposal.Status)
	assert.Equal(t, result.InteractionID, result.Proposal.AIInteractionID)
	assert.Equal(t, "user-1", result.Proposal.UserID)

	require.Len(t, f.proposals.created, 1)
	require.Len(t, f.auditor.events, 1)
	assert.Equal(t, models.AuditActionProposed, f.auditor.events[0].EventType)
}

func TestChat_MalformedToolCallDropped(t *testing.T) {
	client := &fakeClient{completion: llm.Completion{
		Text: "Done thinking.",
		ToolCall: &llm.ToolCall{
			Name: proposeRecategorizeTool,
			Args: json.RawMessage(`{"category_name": "Dining"}`), // no transaction_id
		},
	}}
	f := newFixture(client, &fakeVerifier{result: citations.Result{AllValid: true}})

	result, err := f.svc.Chat(scopedCtx(), "tenant-a", "user-1", "Move that to Dining")
	require.NoError(t, err)

	assert.Nil(t, result.Proposal)
	assert.Empty(t, f.proposals.created)
}

func TestChat_UnknownToolDropped(t *testing.T) {
	client := &fakeClient{completion: llm.Completion{
		Text:     "ok",
		ToolCall: &llm.ToolCall{Name: "delete_all", Args: json.RawMessage(`{}`)},
	}}
	f := newFixture(client, &fakeVerifier{result: citations.Result{AllValid: true}})

	result, err := f.svc.Chat(scopedCtx(), "tenant-a", "user-1", "wipe it")
	require.NoError(t, err)
	assert.Nil(t, result.Proposal)
}

func TestChat_PromptCarriesLedgerContext(t *testing.T) {
	client := &fakeClient{completion: llm.Completion{Text: "ok"}}
	f := newFixture(client, &fakeVerifier{result: citations.Result{AllValid: true}})
	f.reader.txs = []models.Transaction{{
		ID:          citedID,
		Amount:      -12.50,
		Currency:    "USD",
		Description: "Coffee",
		Status:      "posted",
	}}

	_, err := f.svc.Chat(scopedCtx(), "tenant-a", "user-1", "coffee?")
	require.NoError(t, err)

	assert.Contains(t, client.lastReq.Prompt, citedID)
	assert.Contains(t, client.lastReq.Prompt, "Coffee")
	assert.Contains(t, client.lastReq.Prompt, "Dining")
	assert.Contains(t, client.lastReq.System, "[tx:")
	require.Len(t, client.lastReq.Tools, 1)
	assert.Equal(t, proposeRecategorizeTool, client.lastReq.Tools[0].Name)
}

func TestChat_UpstreamFailures(t *testing.T) {
	t.Run("unconfigured client", func(t *testing.T) {
		f := newFixture(nil, &fakeVerifier{})

		_, err := f.svc.Chat(scopedCtx(), "tenant-a", "user-1", "hello")
		require.Error(t, err)
		assert.Equal(t, 503, httperror.GetStatusCode(err))
	})

	t.Run("completion error", func(t *testing.T) {
		f := newFixture(&fakeClient{err: assert.AnError}, &fakeVerifier{})

		_, err := f.svc.Chat(scopedCtx(), "tenant-a", "user-1", "hello")
		require.Error(t, err)
		assert.Equal(t, 503, httperror.GetStatusCode(err))
	})

	t.Run("blank question", func(t *testing.T) {
		f := newFixture(&fakeClient{}, &fakeVerifier{})

		_, err := f.svc.Chat(scopedCtx(), "tenant-a", "user-1", "   ")
		require.Error(t, err)
		assert.Equal(t, 400, httperror.GetStatusCode(err))
	})
}

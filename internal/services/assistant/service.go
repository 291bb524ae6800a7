// Package assistant implements grounded question answering over a tenant's
// ledger. Answers cite transactions, citations are verified against the
// current view before release, and any AI-suggested mutation is persisted as
// a proposal that takes effect only through explicit confirmation.
package assistant

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/Ramsey-B/sage/pkg/citations"
	"github.com/Ramsey-B/sage/pkg/database"
	"github.com/Ramsey-B/sage/pkg/llm"
	"github.com/Ramsey-B/sage/pkg/metrics"
	"github.com/Ramsey-B/sage/pkg/models"
	"github.com/Ramsey-B/sage/pkg/tracing"
)

// contextTransactionLimit caps how much ledger context is sent to the model.
const contextTransactionLimit = 100

const proposeRecategorizeTool = "propose_recategorize"

const systemPrompt = `You are a financial assistant for a transaction ledger. Follow these rules:
1. Answer only from the transaction data provided in the context. Never invent transactions, amounts, or dates.
2. Cite every transaction you reference using the exact format [tx:<id>] with the transaction's id from the context.
3. If the data provided cannot answer the question, say so plainly instead of guessing.
4. When the user asks to change a transaction's category, do not claim the change happened. Call the propose_recategorize tool and tell the user the change needs their confirmation.
5. Amounts are signed: negative is money out, positive is money in.`

// TransactionReader reads ledger context for prompting.
type TransactionReader interface {
	ListCurrent(ctx context.Context, tenantID string, limit int) ([]models.Transaction, error)
}

// CategoryReader lists the categories visible to a tenant.
type CategoryReader interface {
	List(ctx context.Context, tenantID string) ([]models.Category, error)
}

// InteractionWriter persists answered questions.
type InteractionWriter interface {
	Create(ctx context.Context, interaction models.AIInteraction) error
}

// ProposalWriter persists AI action proposals.
type ProposalWriter interface {
	Create(ctx context.Context, proposal models.ActionProposal) error
}

// AuditRecorder records audit trail entries.
type AuditRecorder interface {
	Record(ctx context.Context, event models.AuditEvent) error
}

// CitationVerifier checks claimed transaction ids against the current view.
type CitationVerifier interface {
	Verify(ctx context.Context, tenantID string, claimed []string) (citations.Result, error)
}

// ChatResult is the response to one question.
type ChatResult struct {
	InteractionID string                 `json:"interaction_id"`
	Response      string                 `json:"response"`
	Citations     []string               `json:"citations"`
	Proposal      *models.ActionProposal `json:"proposal,omitempty"`
}

// Service answers ledger questions through the completion client.
type Service struct {
	db           database.DB
	logger       ectologger.Logger
	client       llm.Client
	transactions TransactionReader
	categories   CategoryReader
	interactions InteractionWriter
	proposals    ProposalWriter
	auditor      AuditRecorder
	verifier     CitationVerifier
}

// NewService creates a new assistant service. A nil client leaves the
// assistant unconfigured; Chat reports upstream unavailability instead of
// panicking.
func NewService(db database.DB, logger ectologger.Logger, client llm.Client,
	transactions TransactionReader, categories CategoryReader,
	interactions InteractionWriter, proposals ProposalWriter,
	auditor AuditRecorder, verifier CitationVerifier) *Service {
	return &Service{
		db:           db,
		logger:       logger,
		client:       client,
		transactions: transactions,
		categories:   categories,
		interactions: interactions,
		proposals:    proposals,
		auditor:      auditor,
		verifier:     verifier,
	}
}

// Chat answers one question. The ledger context read, the model call, and the
// persistence of the outcome are three separate steps; no database
// transaction is held across the model call.
func (s *Service) Chat(ctx context.Context, tenantID, userID, question string) (*ChatResult, error) {
	ctx, span := tracing.StartSpan(ctx, "assistant.Service.Chat")
	defer span.End()

	start := time.Now()

	if userID == "" {
		return nil, httperror.NewHTTPError(http.StatusBadRequest, "user_id is required")
	}
	if strings.TrimSpace(question) == "" {
		return nil, httperror.NewHTTPError(http.StatusBadRequest, "question is required")
	}
	if s.client == nil {
		return nil, httperror.NewHTTPError(http.StatusServiceUnavailable, "assistant is not configured")
	}

	var txs []models.Transaction
	var cats []models.Category
	err := database.WithTenantScope(ctx, s.db, s.logger, tenantID, func(ctx context.Context) error {
		var readErr error
		if txs, readErr = s.transactions.ListCurrent(ctx, tenantID, contextTransactionLimit); readErr != nil {
			return readErr
		}
		cats, readErr = s.categories.List(ctx, tenantID)
		return readErr
	})
	if err != nil {
		metrics.ChatRequestsTotal.WithLabelValues(tenantID, "error").Inc()
		return nil, err
	}

	completion, err := s.client.Complete(ctx, llm.Request{
		System: systemPrompt,
		Prompt: buildPrompt(txs, cats, question),
		Tools: []llm.ToolDefinition{
			{
				Name:        proposeRecategorizeTool,
				Description: "Propose changing a transaction's category. The change is not applied until the user confirms it.",
				Params: []llm.ToolParam{
					{Name: "transaction_id", Description: "The id of the transaction to recategorize", Required: true},
					{Name: "category_name", Description: "The name of the target category", Required: true},
					{Name: "reason", Description: "Short justification for the change"},
				},
			},
		},
	})
	if err != nil {
		s.logger.WithContext(ctx).WithError(err).WithField("tenant_id", tenantID).Error("Completion request failed")
		metrics.ChatRequestsTotal.WithLabelValues(tenantID, "upstream_error").Inc()
		return nil, httperror.NewHTTPError(http.StatusServiceUnavailable, "assistant is temporarily unavailable")
	}

	responseText := completion.Text
	claimed := citations.Extract(responseText)

	result := &ChatResult{
		InteractionID: uuid.New().String(),
		Citations:     []string{},
	}

	err = database.WithTenantScope(ctx, s.db, s.logger, tenantID, func(ctx context.Context) error {
		verification, verifyErr := s.verifier.Verify(ctx, tenantID, claimed)
		if verifyErr != nil {
			return verifyErr
		}
		if !verification.AllValid {
			// Fail closed. One unverifiable citation voids the whole answer.
			responseText = citations.FallbackMessage
			metrics.CitationVerificationsTotal.WithLabelValues(tenantID, "failed").Inc()
		} else {
			result.Citations = append(result.Citations, verification.VerifiedIDs...)
			if len(claimed) > 0 {
				metrics.CitationVerificationsTotal.WithLabelValues(tenantID, "verified").Inc()
			}
		}
		result.Response = responseText

		if createErr := s.interactions.Create(ctx, models.AIInteraction{
			ID:        result.InteractionID,
			TenantID:  tenantID,
			UserID:    userID,
			Question:  question,
			Response:  responseText,
			Citations: database.JSONB[[]string]{Data: result.Citations},
		}); createErr != nil {
			return createErr
		}

		proposal, propErr := s.buildProposal(ctx, tenantID, userID, result.InteractionID, completion.ToolCall)
		if propErr != nil {
			return propErr
		}

		if proposal != nil {
			if createErr := s.proposals.Create(ctx, *proposal); createErr != nil {
				return createErr
			}
			result.Proposal = proposal

			diff, _ := json.Marshal(map[string]any{
				"action_type":       proposal.ActionType,
				"ai_interaction_id": result.InteractionID,
				"payload":           json.RawMessage(proposal.Payload),
			})
			return s.auditor.Record(ctx, models.AuditEvent{
				TenantID:   tenantID,
				ActorType:  models.ActorTypeAI,
				EventType:  models.AuditActionProposed,
				EntityType: "ai_action_proposals",
				EntityID:   &proposal.ID,
				Diff:       diff,
			})
		}

		diff, _ := json.Marshal(map[string]any{
			"citations": result.Citations,
			"verified":  verification.AllValid,
		})
		return s.auditor.Record(ctx, models.AuditEvent{
			TenantID:   tenantID,
			ActorType:  models.ActorTypeAI,
			ActorID:    &userID,
			EventType:  models.AuditChatQuery,
			EntityType: "ai_interactions",
			EntityID:   &result.InteractionID,
			Diff:       diff,
		})
	})
	if err != nil {
		metrics.ChatRequestsTotal.WithLabelValues(tenantID, "error").Inc()
		return nil, err
	}

	metrics.ChatRequestsTotal.WithLabelValues(tenantID, "ok").Inc()
	metrics.ChatDuration.WithLabelValues(tenantID).Observe(time.Since(start).Seconds())

	return result, nil
}

// buildProposal turns a model tool call into a proposal row. Unknown tools and
// structurally invalid payloads are dropped with a warning; the answer is
// still returned, just without a proposal.
func (s *Service) buildProposal(ctx context.Context, tenantID, userID, interactionID string, call *llm.ToolCall) (*models.ActionProposal, error) {
	if call == nil {
		return nil, nil
	}
	if call.Name != proposeRecategorizeTool {
		s.logger.WithContext(ctx).WithField("tool", call.Name).Warn("Model called an undeclared tool")
		return nil, nil
	}

	if _, err := models.ParseProposalPayload(models.ActionTypeRecategorize, call.Args); err != nil {
		s.logger.WithContext(ctx).WithError(err).WithField("tenant_id", tenantID).Warn("Rejecting malformed proposal payload")
		return nil, nil
	}

	return &models.ActionProposal{
		ID:              uuid.New().String(),
		TenantID:        tenantID,
		UserID:          userID,
		AIInteractionID: interactionID,
		ActionType:      models.ActionTypeRecategorize,
		Payload:         call.Args,
		Status:          models.ProposalStatusProposed,
	}, nil
}

func buildPrompt(txs []models.Transaction, cats []models.Category, question string) string {
	var b strings.Builder

	b.WriteString("Current transactions (most recent first):\n")
	if len(txs) == 0 {
		b.WriteString("(none)\n")
	}
	for _, tx := range txs {
		category := "uncategorized"
		if tx.CategoryID != nil {
			category = *tx.CategoryID
		}
		fmt.Fprintf(&b, "- id=%s date=%s amount=%.2f %s description=%q status=%s category=%s\n",
			tx.ID, tx.OccurredAt.Format("2006-01-02"), tx.Amount, tx.Currency,
			tx.Description, tx.Status, category)
	}

	b.WriteString("\nAvailable categories: ")
	names := make([]string, 0, len(cats))
	for _, c := range cats {
		names = append(names, c.Name)
	}
	b.WriteString(strings.Join(names, ", "))

	b.WriteString("\n\nQuestion: ")
	b.WriteString(question)

	return b.String()
}

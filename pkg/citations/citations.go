// Package citations extracts and verifies the transaction citations an AI
// answer makes. Verification is fail-closed: one unresolvable citation voids
// them all.
package citations

import (
	"context"
	"regexp"
	"strings"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/sage/pkg/tracing"
)

// Answers cite transactions with literal [tx:<uuid>] markers.
var citationPattern = regexp.MustCompile(`(?i)\[tx:([a-f0-9-]{36})\]`)

// FallbackMessage replaces the answer text whenever any citation fails to
// verify. Partial trust in a numeric financial claim is no trust.
const FallbackMessage = "I cannot confidently answer from the available data. Some referenced transactions could not be verified."

// Extract returns the distinct transaction ids cited in text, in first-seen
// order.
func Extract(text string) []string {
	matches := citationPattern.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return nil
	}

	seen := make(map[string]struct{}, len(matches))
	ids := make([]string, 0, len(matches))
	for _, m := range matches {
		id := strings.ToLower(m[1])
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids
}

// TransactionLookup resolves claimed ids against the current transaction view.
type TransactionLookup interface {
	ListCurrentIDs(ctx context.Context, tenantID string, ids []string) ([]string, error)
}

// Result is the outcome of verifying one answer's citations.
type Result struct {
	VerifiedIDs []string
	AllValid    bool
}

// Verifier cross-checks claimed transaction ids against the ledger before an
// answer is released.
type Verifier struct {
	lookup TransactionLookup
	logger ectologger.Logger
}

// NewVerifier creates a new citation verifier
func NewVerifier(lookup TransactionLookup, logger ectologger.Logger) *Verifier {
	return &Verifier{
		lookup: lookup,
		logger: logger,
	}
}

// Verify resolves every claimed id for the tenant. AllValid is true only when
// each id resolves to a current transaction; callers must discard all
// citations and fall back to FallbackMessage when it is false.
func (v *Verifier) Verify(ctx context.Context, tenantID string, claimed []string) (Result, error) {
	ctx, span := tracing.StartSpan(ctx, "citations.Verifier.Verify")
	defer span.End()

	if len(claimed) == 0 {
		return Result{AllValid: true}, nil
	}

	found, err := v.lookup.ListCurrentIDs(ctx, tenantID, claimed)
	if err != nil {
		return Result{}, err
	}

	resolved := make(map[string]struct{}, len(found))
	for _, id := range found {
		resolved[strings.ToLower(id)] = struct{}{}
	}

	verified := make([]string, 0, len(claimed))
	for _, id := range claimed {
		if _, ok := resolved[strings.ToLower(id)]; ok {
			verified = append(verified, id)
		}
	}

	if len(verified) != len(claimed) {
		v.logger.WithContext(ctx).WithFields(map[string]any{
			"tenant_id": tenantID,
			"claimed":   len(claimed),
			"verified":  len(verified),
		}).Warn("Citation verification failed")
		return Result{AllValid: false}, nil
	}

	return Result{VerifiedIDs: verified, AllValid: true}, nil
}

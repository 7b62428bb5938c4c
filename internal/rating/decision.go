package rating

import "github.com/opensure/kestrel/internal/domain"

// ResolveDecision combines per-tier quote options into one final
// disposition. The strictest applicable constraint wins:
// NO_QUOTE > QUOTE_AND_REFER > AUTO_QUOTE. Auto-issuing an unacceptable
// risk costs more than referring an acceptable one, so severity is
// never averaged down.
func ResolveDecision(options []domain.QuoteOption) domain.QuoteOption {
	decision := domain.AutoQuote
	for _, opt := range options {
		if opt.Severity() > decision.Severity() {
			decision = opt
		}
	}
	return decision
}

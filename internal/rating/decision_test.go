package rating

import (
	"testing"

	"github.com/opensure/kestrel/internal/domain"
)

func TestResolveDecision(t *testing.T) {
	cases := []struct {
		name    string
		options []domain.QuoteOption
		want    domain.QuoteOption
	}{
		{"empty defaults to auto quote", nil, domain.AutoQuote},
		{"all auto stays auto", []domain.QuoteOption{domain.AutoQuote, domain.AutoQuote}, domain.AutoQuote},
		{"one refer dominates auto", []domain.QuoteOption{domain.AutoQuote, domain.QuoteAndRefer, domain.AutoQuote}, domain.QuoteAndRefer},
		{"one no-quote dominates everything", []domain.QuoteOption{domain.QuoteAndRefer, domain.NoQuote, domain.AutoQuote}, domain.NoQuote},
		{"no-quote first still wins", []domain.QuoteOption{domain.NoQuote, domain.AutoQuote}, domain.NoQuote},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ResolveDecision(tc.options); got != tc.want {
				t.Fatalf("got %s, want %s", got, tc.want)
			}
		})
	}
}

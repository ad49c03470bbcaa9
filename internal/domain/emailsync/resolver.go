package emailsync

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"finzen/internal/domain/category"
	"finzen/internal/domain/transaction"
)

// RateClient converts an amount between currencies. Implemented against
// an external exchange-rate service in the infrastructure layer.
type RateClient interface {
	Convert(ctx context.Context, amount float64, from, to string) (converted float64, rate float64, err error)
}

// Resolver decides the final shape of a parsed transaction: its
// category (learned mapping beats the classifier), its base-currency
// amount, and whether it duplicates an existing expense.
type Resolver struct {
	mappings     category.MappingRepository
	transactions transaction.Repository
	rates        RateClient
	baseCurrency string
}

func NewResolver(mappings category.MappingRepository, transactions transaction.Repository, rates RateClient, baseCurrency string) *Resolver {
	return &Resolver{
		mappings:     mappings,
		transactions: transactions,
		rates:        rates,
		baseCurrency: baseCurrency,
	}
}

// ResolveCategory applies the learning order: a stored mapping for
// (user, normalized merchant) wins over the classifier's category. A
// mapping lookup failure falls back to the inferred category rather
// than failing the message.
func (r *Resolver) ResolveCategory(ctx context.Context, userID int64, merchant, inferred string) (name, source string) {
	normalized := category.NormalizeMerchant(merchant)
	if normalized != "" {
		mapping, err := r.mappings.Lookup(ctx, userID, normalized)
		if err != nil {
			log.Printf("merchant mapping lookup failed for user %d: %v", userID, err)
		} else if mapping != nil {
			return mapping.Category, category.SourceLearned
		}
	}
	return inferred, category.SourceInferred
}

// ConvertToBase converts a foreign-currency parse to the base currency
// in place, recording the original amount and rate for the audit trail.
func (r *Resolver) ConvertToBase(ctx context.Context, parsed *ParsedTransaction) error {
	if parsed.Currency == "" || parsed.Currency == r.baseCurrency {
		parsed.Currency = r.baseCurrency
		return nil
	}

	converted, rate, err := r.rates.Convert(ctx, parsed.Amount, parsed.Currency, r.baseCurrency)
	if err != nil {
		return fmt.Errorf("failed to convert %s to %s: %w", parsed.Currency, r.baseCurrency, err)
	}

	parsed.OriginalAmount = parsed.Amount
	parsed.OriginalCurrency = parsed.Currency
	parsed.ExchangeRate = rate
	parsed.Amount = converted
	parsed.Currency = r.baseCurrency
	return nil
}

// IsDuplicate reports whether an expense with the same amount already
// exists for the user on the same calendar day. When the parse carries
// a merchant name, the existing transaction's description must also
// contain it (case-insensitive) to count as a match.
func (r *Resolver) IsDuplicate(ctx context.Context, userID int64, parsed *ParsedTransaction) (bool, error) {
	dayStart := time.Date(parsed.Date.Year(), parsed.Date.Month(), parsed.Date.Day(), 0, 0, 0, 0, parsed.Date.Location())

	matches, err := r.transactions.FindExpensesOnDay(ctx, transaction.DayMatchCriteria{
		UserID:   userID,
		Amount:   parsed.Amount,
		DayStart: dayStart,
		DayEnd:   dayStart.AddDate(0, 0, 1),
	})
	if err != nil {
		return false, fmt.Errorf("failed to search same-day expenses: %w", err)
	}

	if parsed.Merchant == "" {
		return len(matches) > 0, nil
	}

	needle := strings.ToLower(parsed.Merchant)
	for _, m := range matches {
		if strings.Contains(strings.ToLower(m.Description), needle) {
			return true, nil
		}
	}
	return false, nil
}

// BuildDescription embeds the merchant, card, auth code, and provenance
// markers so the transaction is auditable and future dedup can match on
// the merchant substring.
func BuildDescription(parsed *ParsedTransaction, bankName string) string {
	var parts []string

	if parsed.Merchant != "" {
		parts = append(parts, parsed.Merchant)
	} else if parsed.Description != "" {
		parts = append(parts, parsed.Description)
	} else {
		parts = append(parts, "Bank notification")
	}

	if parsed.CardLast4 != "" {
		parts = append(parts, fmt.Sprintf("Card ****%s", parsed.CardLast4))
	}
	if parsed.AuthCode != "" {
		parts = append(parts, fmt.Sprintf("Auth %s", parsed.AuthCode))
	}
	if parsed.OriginalCurrency != "" {
		parts = append(parts, fmt.Sprintf("Orig %.2f %s @ %.4f", parsed.OriginalAmount, parsed.OriginalCurrency, parsed.ExchangeRate))
	}
	if bankName != "" {
		parts = append(parts, fmt.Sprintf("via %s email", bankName))
	}

	return strings.Join(parts, " | ")
}

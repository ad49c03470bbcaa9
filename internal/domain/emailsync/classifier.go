package emailsync

import (
	"context"
	"fmt"
	"strings"
	"time"

	"finzen/internal/domain/category"
)

// paymentPhrases are substrings that identify card-payment
// confirmations. Matching emails are skipped before the external
// classifier is ever called: payment confirmations vastly outnumber
// purchase notifications and must never be counted as expenses.
var paymentPhrases = []string{
	"pago recibido",
	"pago aplicado",
	"pago a tarjeta",
	"pago de tarjeta",
	"hemos recibido su pago",
	"gracias por su pago",
	"abono a su tarjeta",
	"payment received",
	"payment posted",
	"payment applied",
	"thank you for your payment",
	"we received your payment",
	"we have received your payment",
}

// IsPaymentConfirmation reports whether the subject or body matches a
// known payment-confirmation phrase, in either language.
func IsPaymentConfirmation(subject, body string) bool {
	text := strings.ToLower(subject + " " + body)
	for _, phrase := range paymentPhrases {
		if strings.Contains(text, phrase) {
			return true
		}
	}
	return false
}

// ClassifyRequest is the payload sent to the external classification
// service. Categories is enumerated by the caller at call time and
// constrains the category the service may return.
type ClassifyRequest struct {
	Subject    string   `json:"subject"`
	Body       string   `json:"body"`
	BankHint   string   `json:"bankHint,omitempty"`
	Country    string   `json:"country,omitempty"`
	Categories []string `json:"categories"`
}

// ClassifyResponse is the raw classification result: either a
// payment-email verdict or a structured parse.
type ClassifyResponse struct {
	IsPaymentEmail bool    `json:"isPaymentEmail"`
	Amount         float64 `json:"amount"`
	Currency       string  `json:"currency"`
	Merchant       string  `json:"merchant"`
	Category       string  `json:"category"`
	Date           string  `json:"date"`
	CardLast4      string  `json:"cardLast4"`
	AuthCode       string  `json:"authCode"`
	Description    string  `json:"description"`
}

// ClassifierClient calls the external classification service.
type ClassifierClient interface {
	Classify(ctx context.Context, req ClassifyRequest) (*ClassifyResponse, error)
}

// EmailClassifier runs the two-stage classification gate: a local
// payment-phrase filter first, then the external service constrained to
// the live expense category set.
type EmailClassifier struct {
	client     ClassifierClient
	categories category.Repository
	country    string
}

func NewEmailClassifier(client ClassifierClient, categories category.Repository, country string) *EmailClassifier {
	return &EmailClassifier{client: client, categories: categories, country: country}
}

// ClassifyInput is one candidate email.
type ClassifyInput struct {
	Subject    string
	Body       string
	BankHint   string
	ReceivedAt time.Time
}

// Classify turns a candidate email into a ParsedTransaction. It returns
// ErrPaymentEmail for payment confirmations (local phrase match or the
// service's second-chance verdict), ErrClassificationFailed for an
// empty response, and ErrInvalidAmount when no positive amount was
// parsed.
func (c *EmailClassifier) Classify(ctx context.Context, in ClassifyInput) (*ParsedTransaction, error) {
	if IsPaymentConfirmation(in.Subject, in.Body) {
		return nil, ErrPaymentEmail
	}

	names, err := c.categories.ListExpenseNames(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list expense categories: %w", err)
	}

	resp, err := c.client.Classify(ctx, ClassifyRequest{
		Subject:    in.Subject,
		Body:       in.Body,
		BankHint:   in.BankHint,
		Country:    c.country,
		Categories: names,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrClassificationFailed, err)
	}
	if resp == nil {
		return nil, ErrClassificationFailed
	}
	if resp.IsPaymentEmail {
		return nil, ErrPaymentEmail
	}
	if resp.Amount <= 0 {
		return nil, ErrInvalidAmount
	}

	parsed := &ParsedTransaction{
		Amount:      resp.Amount,
		Currency:    strings.ToUpper(strings.TrimSpace(resp.Currency)),
		Merchant:    strings.TrimSpace(resp.Merchant),
		Date:        parseEmailDate(resp.Date, in.ReceivedAt),
		CardLast4:   resp.CardLast4,
		AuthCode:    resp.AuthCode,
		Description: strings.TrimSpace(resp.Description),
	}

	listed := containsFold(names, resp.Category)
	if listed {
		parsed.Category = resp.Category
	} else {
		parsed.Category = category.FallbackName
	}

	parsed.Confidence = confidence(resp, listed)
	return parsed, nil
}

// confidence scores the parse from the presence and validity of its
// fields. Diagnostic only, never a hard gate.
func confidence(resp *ClassifyResponse, categoryListed bool) int {
	score := 0
	if resp.Amount > 0 {
		score += 30
	}
	if strings.TrimSpace(resp.Merchant) != "" {
		score += 25
	}
	if _, ok := tryParseDate(resp.Date); ok {
		score += 20
	}
	if validCardLast4(resp.CardLast4) {
		score += 15
	}
	if categoryListed {
		score += 10
	}
	return score
}

func validCardLast4(s string) bool {
	if len(s) != 4 {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

var emailDateLayouts = []string{
	time.RFC3339,
	"2006-01-02",
	"02/01/2006",
	"01/02/2006",
}

func tryParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range emailDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// parseEmailDate falls back to the message's received instant when the
// classifier's date is missing or unparseable.
func parseEmailDate(s string, receivedAt time.Time) time.Time {
	if t, ok := tryParseDate(s); ok {
		return t
	}
	return receivedAt
}

func containsFold(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}

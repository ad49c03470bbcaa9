package emailsync

import (
	"time"
	"unicode/utf8"
)

// EmailStatus is the terminal (or in-flight) state of one imported email.
type EmailStatus string

const (
	EmailProcessing EmailStatus = "PROCESSING"
	EmailSuccess    EmailStatus = "SUCCESS"
	EmailFailed     EmailStatus = "FAILED"
	EmailDuplicate  EmailStatus = "DUPLICATE"
	EmailSkipped    EmailStatus = "SKIPPED"
)

// Valid reports whether s is a known email status.
func (s EmailStatus) Valid() bool {
	switch s {
	case EmailProcessing, EmailSuccess, EmailFailed, EmailDuplicate, EmailSkipped:
		return true
	}
	return false
}

// Terminal reports whether s finalizes the imported email.
func (s EmailStatus) Terminal() bool {
	return s.Valid() && s != EmailProcessing
}

// maxBodyLength bounds the raw body stored on an ImportedEmail row.
const maxBodyLength = 10000

// ImportedEmail records one processed mailbox message. The
// (ConnectionID, MessageID) pair is the idempotency key: a message is
// never processed twice across runs.
type ImportedEmail struct {
	ID            string      `json:"id"`
	ConnectionID  string      `json:"connectionId"`
	MessageID     string      `json:"messageId"`
	Subject       string      `json:"subject"`
	Sender        string      `json:"sender"`
	ReceivedAt    time.Time   `json:"receivedAt"`
	Body          string      `json:"-"`
	Status        EmailStatus `json:"status"`
	ParsedData    *string     `json:"parsedData,omitempty"`
	TransactionID *string     `json:"transactionId,omitempty"`
	ErrorMessage  *string     `json:"errorMessage,omitempty"`
	ProcessedAt   *time.Time  `json:"processedAt,omitempty"`
	CreatedAt     time.Time   `json:"createdAt"`
}

type CreateImportedEmailParams struct {
	ConnectionID string
	MessageID    string
	Subject      string
	Sender       string
	ReceivedAt   time.Time
	Body         string
}

// SyncLogStatus is the state of one recorded sync run.
type SyncLogStatus string

const (
	RunInProgress SyncLogStatus = "IN_PROGRESS"
	RunSuccess    SyncLogStatus = "SUCCESS"
	RunFailed     SyncLogStatus = "FAILED"
)

// Valid reports whether s is a known run status.
func (s SyncLogStatus) Valid() bool {
	switch s {
	case RunInProgress, RunSuccess, RunFailed:
		return true
	}
	return false
}

// SyncLog records one sync run for a connection.
type SyncLog struct {
	ID                  string        `json:"id"`
	ConnectionID        string        `json:"connectionId"`
	Status              SyncLogStatus `json:"status"`
	EmailsFound         int           `json:"emailsFound"`
	EmailsProcessed     int           `json:"emailsProcessed"`
	EmailsSkipped       int           `json:"emailsSkipped"`
	TransactionsCreated int           `json:"transactionsCreated"`
	ErrorMessage        *string       `json:"errorMessage,omitempty"`
	StartedAt           time.Time     `json:"startedAt"`
	CompletedAt         *time.Time    `json:"completedAt,omitempty"`
}

// SyncCounts is the per-run tally reported back to the caller and
// written onto the SyncLog.
type SyncCounts struct {
	EmailsFound         int `json:"emailsFound"`
	EmailsProcessed     int `json:"emailsProcessed"`
	EmailsSkipped       int `json:"emailsSkipped"`
	TransactionsCreated int `json:"transactionsCreated"`
}

// SyncResult is the summary of one connection's sync run. Errors holds
// message-local failures; the run itself can still be SUCCESS when it
// is non-empty.
type SyncResult struct {
	ConnectionID string     `json:"connectionId"`
	Provider     string     `json:"provider"`
	Status       string     `json:"status"`
	Counts       SyncCounts `json:"counts"`
	Errors       []string   `json:"errors,omitempty"`
}

// ParsedTransaction is the structured parse of a bank notification
// email, after currency conversion and category resolution.
type ParsedTransaction struct {
	Amount      float64   `json:"amount"`
	Currency    string    `json:"currency"`
	Merchant    string    `json:"merchant"`
	Category    string    `json:"category"`
	Date        time.Time `json:"date"`
	CardLast4   string    `json:"cardLast4,omitempty"`
	AuthCode    string    `json:"authCode,omitempty"`
	Description string    `json:"description,omitempty"`
	Confidence  int       `json:"confidence"`

	// Audit trail for foreign-currency conversions.
	OriginalAmount   float64 `json:"originalAmount,omitempty"`
	OriginalCurrency string  `json:"originalCurrency,omitempty"`
	ExchangeRate     float64 `json:"exchangeRate,omitempty"`
}

// truncateBody cuts at a rune boundary so the stored body stays valid
// UTF-8. Spanish notification bodies carry multi-byte characters that
// a raw byte slice could split.
func truncateBody(body string) string {
	if len(body) <= maxBodyLength {
		return body
	}
	cut := maxBodyLength
	for cut > 0 && !utf8.RuneStart(body[cut]) {
		cut--
	}
	return body[:cut]
}

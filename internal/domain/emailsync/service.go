package emailsync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"finzen/internal/domain/connection"
	"finzen/internal/domain/transaction"
	"finzen/internal/infrastructure/provider"
)

// staleSyncWindow is how long an IN_PROGRESS connection may sit before
// a new run is allowed to take over. Covers runs abandoned by a process
// restart.
const staleSyncWindow = 2 * time.Hour

// TokenSource hands out a valid access token for a connection,
// refreshing and persisting it when expiry is near.
type TokenSource interface {
	EnsureValidToken(ctx context.Context, conn *connection.Connection) (string, error)
}

// TransactionCreatedHandler receives every transaction the sync
// pipeline creates. Failures are logged and never roll back the
// transaction.
type TransactionCreatedHandler interface {
	OnTransactionCreated(ctx context.Context, txn *transaction.Transaction) error
}

// Options tune the sync pipeline.
type Options struct {
	// FirstSyncLookbackDays is how far back the first sync of a
	// connection searches.
	FirstSyncLookbackDays int

	// MaxSearchResults caps one run's search.
	MaxSearchResults int
}

// Service orchestrates sync runs: it walks each connection's mailbox,
// classifies candidate bank emails, and turns them into transactions.
type Service struct {
	connections connection.Repository
	filters     connection.BankFilterRepository
	emails      ImportedEmailRepository
	syncLogs    SyncLogRepository
	txns        transaction.Repository
	tokens      TokenSource
	providers   map[string]provider.MailProvider
	classifier  *EmailClassifier
	resolver    *Resolver
	onCreated   TransactionCreatedHandler
	opts        Options
	now         func() time.Time
}

func NewService(
	connections connection.Repository,
	filters connection.BankFilterRepository,
	emails ImportedEmailRepository,
	syncLogs SyncLogRepository,
	txns transaction.Repository,
	tokens TokenSource,
	providers map[string]provider.MailProvider,
	classifier *EmailClassifier,
	resolver *Resolver,
	onCreated TransactionCreatedHandler,
	opts Options,
) *Service {
	if opts.FirstSyncLookbackDays <= 0 {
		opts.FirstSyncLookbackDays = 30
	}
	if opts.MaxSearchResults <= 0 {
		opts.MaxSearchResults = 50
	}
	return &Service{
		connections: connections,
		filters:     filters,
		emails:      emails,
		syncLogs:    syncLogs,
		txns:        txns,
		tokens:      tokens,
		providers:   providers,
		classifier:  classifier,
		resolver:    resolver,
		onCreated:   onCreated,
		opts:        opts,
		now:         time.Now,
	}
}

// SyncConnection runs the full pipeline for one connection. The run is
// guarded by a conditional status update: if another run already holds
// the IN_PROGRESS slot (and is not stale), ErrSyncInProgress is
// returned. Message-local failures are collected in the result; only
// connection-level failures (auth, search) mark the run FAILED.
func (s *Service) SyncConnection(ctx context.Context, connectionID string) (*SyncResult, error) {
	conn, err := s.connections.GetByID(ctx, connectionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load connection: %w", err)
	}
	if conn == nil {
		return nil, connection.ErrNotFound
	}

	acquired, err := s.connections.BeginSync(ctx, conn.ID, s.now().Add(-staleSyncWindow))
	if err != nil {
		return nil, fmt.Errorf("failed to acquire sync slot: %w", err)
	}
	if !acquired {
		return nil, fmt.Errorf("%w: %s", ErrSyncInProgress, conn.ID)
	}

	runLog, err := s.syncLogs.Create(ctx, conn.ID, s.now())
	if err != nil {
		// Release the slot so the next attempt is not blocked until
		// the staleness window elapses.
		s.finishConnection(ctx, conn.ID, connection.SyncFailed, err, nil)
		return nil, fmt.Errorf("failed to create sync log: %w", err)
	}

	result := &SyncResult{ConnectionID: conn.ID, Provider: conn.Provider}

	if fatal := s.runPipeline(ctx, conn, result); fatal != nil {
		result.Status = string(connection.SyncFailed)
		result.Errors = append(result.Errors, fatal.Error())
		s.finalizeRun(ctx, conn.ID, runLog.ID, connection.SyncFailed, result, fatal, nil)
		return result, nil
	}

	completedAt := s.now()
	result.Status = string(connection.SyncSuccess)
	s.finalizeRun(ctx, conn.ID, runLog.ID, connection.SyncSuccess, result, nil, &completedAt)
	return result, nil
}

// runPipeline executes steps 1-7 for one connection. A non-nil return
// is a connection-level fatal error; message-local failures land in
// result.Errors and never abort the loop.
func (s *Service) runPipeline(ctx context.Context, conn *connection.Connection, result *SyncResult) error {
	p, ok := s.providers[conn.Provider]
	if !ok {
		return fmt.Errorf("%w: %s", connection.ErrUnknownProvider, conn.Provider)
	}

	filters, err := s.filters.ListActiveByConnection(ctx, conn.ID)
	if err != nil {
		return fmt.Errorf("failed to load bank filters: %w", err)
	}
	if len(filters) == 0 {
		log.Printf("connection %s has no active bank filters, nothing to search", conn.ID)
		return nil
	}

	since, err := s.searchLowerBound(ctx, conn)
	if err != nil {
		return err
	}

	token, err := s.tokens.EnsureValidToken(ctx, conn)
	if err != nil {
		return fmt.Errorf("failed to obtain access token: %w", err)
	}

	refs, err := p.SearchMessages(ctx, token, provider.SearchQuery{
		Senders:    unionSenders(filters),
		Keywords:   unionKeywords(filters),
		Since:      since,
		MaxResults: s.opts.MaxSearchResults,
	})
	if err != nil {
		return fmt.Errorf("message search failed: %w", err)
	}
	result.Counts.EmailsFound = len(refs)

	for _, ref := range refs {
		s.processMessage(ctx, conn, p, token, ref.ID, filters, result)
	}
	return nil
}

// processMessage handles one message end to end. Every outcome is
// terminal for this message: the run always continues to the next one.
func (s *Service) processMessage(ctx context.Context, conn *connection.Connection, p provider.MailProvider, token, messageID string, filters []*connection.BankFilter, result *SyncResult) {
	exists, err := s.emails.Exists(ctx, conn.ID, messageID)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("message %s: idempotency check failed: %v", messageID, err))
		return
	}
	if exists {
		result.Counts.EmailsSkipped++
		return
	}

	msg, err := p.FetchMessage(ctx, token, messageID)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("message %s: fetch failed: %v", messageID, err))
		return
	}

	imported, err := s.emails.Create(ctx, CreateImportedEmailParams{
		ConnectionID: conn.ID,
		MessageID:    msg.ID,
		Subject:      msg.Subject,
		Sender:       msg.From,
		ReceivedAt:   msg.ReceivedAt,
		Body:         truncateBody(msg.Body),
	})
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("message %s: record failed: %v", messageID, err))
		return
	}

	bankName := bankForSender(filters, msg.From)

	parsed, err := s.classifier.Classify(ctx, ClassifyInput{
		Subject:    msg.Subject,
		Body:       msg.Body,
		BankHint:   bankName,
		ReceivedAt: msg.ReceivedAt,
	})
	// Each message lands in exactly one bucket: skipped (already
	// imported or payment confirmation) or processed, so the counts
	// reconcile against EmailsFound.
	if errors.Is(err, ErrPaymentEmail) {
		s.finalizeEmail(ctx, imported.ID, EmailSkipped, nil, nil, err)
		result.Counts.EmailsSkipped++
		return
	}
	result.Counts.EmailsProcessed++
	if err != nil {
		s.finalizeEmail(ctx, imported.ID, EmailFailed, nil, nil, err)
		result.Errors = append(result.Errors, fmt.Sprintf("message %s: %v", messageID, err))
		return
	}

	if err := s.resolver.ConvertToBase(ctx, parsed); err != nil {
		s.finalizeEmail(ctx, imported.ID, EmailFailed, parsed, nil, err)
		result.Errors = append(result.Errors, fmt.Sprintf("message %s: %v", messageID, err))
		return
	}

	categoryName, source := s.resolver.ResolveCategory(ctx, conn.UserID, parsed.Merchant, parsed.Category)
	parsed.Category = categoryName
	log.Printf("message %s categorized as %q (%s)", messageID, categoryName, source)

	dup, err := s.resolver.IsDuplicate(ctx, conn.UserID, parsed)
	if err != nil {
		s.finalizeEmail(ctx, imported.ID, EmailFailed, parsed, nil, err)
		result.Errors = append(result.Errors, fmt.Sprintf("message %s: %v", messageID, err))
		return
	}
	if dup {
		s.finalizeEmail(ctx, imported.ID, EmailDuplicate, parsed, nil, nil)
		return
	}

	txn, err := s.txns.Create(ctx, transaction.CreateTransactionParams{
		UserID:      conn.UserID,
		Amount:      parsed.Amount,
		Description: BuildDescription(parsed, bankName),
		Category:    parsed.Category,
		Date:        parsed.Date,
		Type:        transaction.TypeExpense,
	})
	if err != nil {
		s.finalizeEmail(ctx, imported.ID, EmailFailed, parsed, nil, err)
		result.Errors = append(result.Errors, fmt.Sprintf("message %s: transaction create failed: %v", messageID, err))
		return
	}

	s.finalizeEmail(ctx, imported.ID, EmailSuccess, parsed, &txn.ID, nil)
	result.Counts.TransactionsCreated++

	if s.onCreated != nil {
		// Cascade failures never roll back the persisted transaction.
		if err := s.onCreated.OnTransactionCreated(ctx, txn); err != nil {
			log.Printf("budget cascade failed for transaction %s: %v", txn.ID, err)
		}
	}
}

// searchLowerBound is 30 days back on a connection's first sync, else
// the last successful sync instant.
func (s *Service) searchLowerBound(ctx context.Context, conn *connection.Connection) (time.Time, error) {
	hasAny, err := s.emails.HasAny(ctx, conn.ID)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to check import history: %w", err)
	}
	if hasAny && conn.LastSyncAt != nil {
		return *conn.LastSyncAt, nil
	}
	return s.now().AddDate(0, 0, -s.opts.FirstSyncLookbackDays), nil
}

func (s *Service) finalizeEmail(ctx context.Context, id string, status EmailStatus, parsed *ParsedTransaction, transactionID *string, cause error) {
	var parsedData *string
	if parsed != nil {
		if raw, err := json.Marshal(parsed); err == nil {
			snapshot := string(raw)
			parsedData = &snapshot
		}
	}
	var errMsg *string
	if cause != nil {
		msg := cause.Error()
		errMsg = &msg
	}
	if err := s.emails.Finalize(ctx, id, status, parsedData, transactionID, errMsg); err != nil {
		log.Printf("failed to finalize imported email %s: %v", id, err)
	}
}

// finalizeRun closes both the sync log and the connection status. On
// failure the last-sync watermark is preserved so the next run still
// knows the last good lower bound.
func (s *Service) finalizeRun(ctx context.Context, connectionID, logID string, status connection.SyncStatus, result *SyncResult, cause error, completedAt *time.Time) {
	var errMsg *string
	if cause != nil {
		msg := cause.Error()
		errMsg = &msg
	}

	runStatus := RunSuccess
	if status == connection.SyncFailed {
		runStatus = RunFailed
	}
	if err := s.syncLogs.Finalize(ctx, logID, runStatus, result.Counts, errMsg, s.now()); err != nil {
		log.Printf("failed to finalize sync log %s: %v", logID, err)
	}
	s.finishConnection(ctx, connectionID, status, cause, completedAt)
}

func (s *Service) finishConnection(ctx context.Context, connectionID string, status connection.SyncStatus, cause error, lastSyncAt *time.Time) {
	var errMsg *string
	if cause != nil {
		msg := cause.Error()
		errMsg = &msg
	}
	if err := s.connections.FinishSync(ctx, connectionID, status, errMsg, lastSyncAt); err != nil {
		log.Printf("failed to finish sync for connection %s: %v", connectionID, err)
	}
}

// SyncAllForUser runs every connection of the user sequentially. A
// connection already syncing blocks the whole batch with an explicit
// conflict instead of being silently skipped.
func (s *Service) SyncAllForUser(ctx context.Context, userID int64) ([]*SyncResult, error) {
	conns, err := s.connections.ListByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list connections: %w", err)
	}

	results := make([]*SyncResult, 0, len(conns))
	for _, conn := range conns {
		result, err := s.SyncConnection(ctx, conn.ID)
		if err != nil {
			if errors.Is(err, ErrSyncInProgress) {
				return nil, err
			}
			results = append(results, &SyncResult{
				ConnectionID: conn.ID,
				Provider:     conn.Provider,
				Status:       string(connection.SyncFailed),
				Errors:       []string{err.Error()},
			})
			continue
		}
		results = append(results, result)
	}
	return results, nil
}

// SyncLogs returns the most recent sync runs for a connection.
func (s *Service) SyncLogs(ctx context.Context, connectionID string, limit int) ([]*SyncLog, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.syncLogs.ListByConnection(ctx, connectionID, limit)
}

// ImportedEmails returns the most recent imported email records for a
// connection.
func (s *Service) ImportedEmails(ctx context.Context, connectionID string, limit int) ([]*ImportedEmail, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.emails.ListByConnection(ctx, connectionID, limit)
}

func unionSenders(filters []*connection.BankFilter) []string {
	return unionStrings(filters, func(f *connection.BankFilter) []string { return f.Senders })
}

func unionKeywords(filters []*connection.BankFilter) []string {
	return unionStrings(filters, func(f *connection.BankFilter) []string { return f.Keywords })
}

func unionStrings(filters []*connection.BankFilter, pick func(*connection.BankFilter) []string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, f := range filters {
		for _, v := range pick(f) {
			key := strings.ToLower(v)
			if !seen[key] {
				seen[key] = true
				out = append(out, v)
			}
		}
	}
	return out
}

// bankForSender names the bank whose filter matches the From header.
// Used as a classification hint and in the transaction description.
func bankForSender(filters []*connection.BankFilter, from string) string {
	lowered := strings.ToLower(from)
	for _, f := range filters {
		for _, sender := range f.Senders {
			if strings.Contains(lowered, strings.ToLower(sender)) {
				return f.BankName
			}
		}
	}
	return ""
}

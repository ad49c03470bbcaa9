package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"

	"finzen/internal/domain/budget"
	"finzen/internal/domain/connection"
	"finzen/internal/domain/emailsync"
)

// EmailSyncJob implements the Job interface for syncing one user's
// mailbox connections.
type EmailSyncJob struct {
	userID      int64
	syncService *emailsync.Service
	notifier    budget.Notifier
}

// NewEmailSyncJob creates a new email sync job for a user. The
// notifier is optional; when set, scheduled runs that import
// transactions push a sync_completed notification.
func NewEmailSyncJob(userID int64, syncService *emailsync.Service, notifier budget.Notifier) *EmailSyncJob {
	return &EmailSyncJob{
		userID:      userID,
		syncService: syncService,
		notifier:    notifier,
	}
}

// Execute runs every connection of the user sequentially and logs the
// aggregate counts. An in-progress connection surfaces as a conflict,
// which the scheduler treats as an ordinary failure for this user.
func (j *EmailSyncJob) Execute(ctx context.Context) error {
	log.Printf("Starting email sync for user %d", j.userID)

	results, err := j.syncService.SyncAllForUser(ctx, j.userID)
	if err != nil {
		if errors.Is(err, emailsync.ErrSyncInProgress) {
			log.Printf("Email sync for user %d skipped: %v", j.userID, err)
			return err
		}
		log.Printf("Email sync failed for user %d: %v", j.userID, err)
		return fmt.Errorf("sync failed: %w", err)
	}

	var counts emailsync.SyncCounts
	var failed, messageErrors int
	for _, r := range results {
		counts.EmailsFound += r.Counts.EmailsFound
		counts.EmailsProcessed += r.Counts.EmailsProcessed
		counts.EmailsSkipped += r.Counts.EmailsSkipped
		counts.TransactionsCreated += r.Counts.TransactionsCreated
		messageErrors += len(r.Errors)
		if r.Status == string(connection.SyncFailed) {
			failed++
		}
	}

	if failed > 0 {
		log.Printf("Email sync for user %d completed with %d failed connections: Found=%d, Created=%d, Errors=%d",
			j.userID, failed, counts.EmailsFound, counts.TransactionsCreated, messageErrors)
		return fmt.Errorf("sync completed with %d failed connections", failed)
	}

	log.Printf("Email sync for user %d completed: Found=%d, Processed=%d, Skipped=%d, Created=%d",
		j.userID, counts.EmailsFound, counts.EmailsProcessed, counts.EmailsSkipped, counts.TransactionsCreated)

	if j.notifier != nil && counts.TransactionsCreated > 0 {
		body := fmt.Sprintf("%d new transactions imported from your email", counts.TransactionsCreated)
		if counts.TransactionsCreated == 1 {
			body = "1 new transaction imported from your email"
		}
		if err := j.notifier.Notify(ctx, j.userID, "sync_completed", "Email sync completed", body,
			map[string]string{"transactionsCreated": strconv.Itoa(counts.TransactionsCreated)}); err != nil {
			log.Printf("Error notifying user %d about sync completion: %v", j.userID, err)
		}
	}

	return nil
}

// UserID returns the user ID associated with this job
func (j *EmailSyncJob) UserID() string {
	return strconv.FormatInt(j.userID, 10)
}

// Description returns a human-readable description of the job
func (j *EmailSyncJob) Description() string {
	return fmt.Sprintf("Email sync for user %d", j.userID)
}

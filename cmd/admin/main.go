package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"finzen/internal/domain/budget"
	"finzen/internal/domain/connection"
	"finzen/internal/domain/emailsync"
	"finzen/internal/domain/notification"
	"finzen/internal/infrastructure/classifier"
	"finzen/internal/infrastructure/crypto"
	"finzen/internal/infrastructure/postgres"
	"finzen/internal/infrastructure/provider"
	"finzen/internal/infrastructure/rates"
	"finzen/internal/shared/config"
)

const usage = `Finzen Admin CLI - Management commands for the Finzen API

Usage:
  admin <command> [options]

Commands:
  sync          Run email sync for one or more users
  sync-logs     Show recent sync runs for a connection
  connections   List mailbox connections for a user

Examples:
  # Sync a specific user's mailboxes
  admin sync --user-id=1

  # Sync multiple users
  admin sync --user-id=1,2,3

  # Sync every user with an active connection
  admin sync --all

  # Run with a timeout
  admin sync --user-id=1 --timeout=5m

  # Inspect the last runs of a connection
  admin sync-logs --connection-id=8f14e45f --limit=10

  # List a user's connections
  admin connections --user-id=1
`

func main() {
	if len(os.Args) < 2 {
		fmt.Print(usage)
		os.Exit(1)
	}

	command := os.Args[1]

	switch command {
	case "sync":
		runSync(os.Args[2:])
	case "sync-logs":
		runSyncLogs(os.Args[2:])
	case "connections":
		runConnections(os.Args[2:])
	case "help", "-h", "--help":
		fmt.Print(usage)
	default:
		fmt.Printf("Unknown command: %s\n\n", command)
		fmt.Print(usage)
		os.Exit(1)
	}
}

// env holds the shared wiring every admin command needs.
type env struct {
	cfg            *config.Config
	db             *postgres.DB
	connectionRepo *postgres.ConnectionRepository
	syncLogRepo    *postgres.SyncLogRepository
}

func newEnv() *env {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	db, err := postgres.New(cfg.Database.ConnectionString())
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	log.Println("Connected to database")

	encryptor, err := crypto.NewEncryptor(cfg.Encryption.Key)
	if err != nil {
		log.Fatalf("Failed to create encryptor: %v", err)
	}

	return &env{
		cfg:            cfg,
		db:             db,
		connectionRepo: postgres.NewConnectionRepository(db, encryptor),
		syncLogRepo:    postgres.NewSyncLogRepository(db),
	}
}

func (e *env) close() {
	e.db.Close()
}

// buildSyncService wires the full ingestion pipeline. Push delivery is
// disabled: budget alerts from an admin-triggered sync are stored only.
func (e *env) buildSyncService() *emailsync.Service {
	cfg := e.cfg

	bankFilterRepo := postgres.NewBankFilterRepository(e.db)
	importedEmailRepo := postgres.NewImportedEmailRepository(e.db)
	transactionRepo := postgres.NewTransactionRepository(e.db)
	budgetRepo := postgres.NewBudgetRepository(e.db)
	categoryRepo := postgres.NewCategoryRepository(e.db)
	mappingRepo := postgres.NewMerchantMappingRepository(e.db)
	notificationRepo := postgres.NewNotificationRepository(e.db)

	providers := map[string]provider.MailProvider{
		provider.Gmail: provider.NewGmailProvider(
			cfg.OAuth.Google.ClientID,
			cfg.OAuth.Google.ClientSecret,
			cfg.OAuth.Google.CallbackURL,
		),
		provider.Outlook: provider.NewOutlookProvider(
			cfg.OAuth.Microsoft.ClientID,
			cfg.OAuth.Microsoft.ClientSecret,
			cfg.OAuth.Microsoft.Tenant,
			cfg.OAuth.Microsoft.CallbackURL,
		),
	}

	connectionService := connection.NewService(e.connectionRepo, bankFilterRepo, providers, cfg.EmailSync.Country)

	classifierClient := classifier.NewClient(
		cfg.Classifier.BaseURL,
		cfg.Classifier.APIKey,
		cfg.Classifier.Model,
		cfg.Classifier.Timeout,
	)
	emailClassifier := emailsync.NewEmailClassifier(classifierClient, categoryRepo, cfg.EmailSync.Country)

	ratesClient := rates.NewClient(cfg.Rates.BaseURL, cfg.Rates.Timeout)
	resolver := emailsync.NewResolver(mappingRepo, transactionRepo, ratesClient, cfg.EmailSync.BaseCurrency)

	notificationService := notification.NewService(notificationRepo, nil)
	recalculator := budget.NewRecalculator(budgetRepo, transactionRepo, notificationService)

	return emailsync.NewService(
		e.connectionRepo,
		bankFilterRepo,
		importedEmailRepo,
		e.syncLogRepo,
		transactionRepo,
		connectionService,
		providers,
		emailClassifier,
		resolver,
		recalculator,
		emailsync.Options{
			FirstSyncLookbackDays: cfg.EmailSync.FirstSyncLookbackDays,
			MaxSearchResults:      cfg.EmailSync.MaxSearchResults,
		},
	)
}

func runSync(args []string) {
	fs := flag.NewFlagSet("sync", flag.ExitOnError)

	userIDStr := fs.String("user-id", "", "User ID(s) to sync (comma-separated for multiple)")
	allUsers := fs.Bool("all", false, "Sync every user with an active connection")
	timeoutStr := fs.String("timeout", "30m", "Timeout for the operation (e.g., 5m, 1h)")

	fs.Usage = func() {
		fmt.Println("Usage: admin sync [options]")
		fmt.Println("\nOptions:")
		fs.PrintDefaults()
		fmt.Println("\nExamples:")
		fmt.Println("  admin sync --user-id=1")
		fmt.Println("  admin sync --user-id=1,2,3")
		fmt.Println("  admin sync --all --timeout=1h")
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	if *userIDStr == "" && !*allUsers {
		fmt.Println("Error: must specify --user-id or --all")
		fs.Usage()
		os.Exit(1)
	}

	timeout, err := time.ParseDuration(*timeoutStr)
	if err != nil {
		log.Fatalf("Invalid timeout format: %v", err)
	}

	e := newEnv()
	defer e.close()

	syncService := e.buildSyncService()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var userIDs []int64
	if *allUsers {
		connections, err := e.connectionRepo.ListActive(ctx)
		if err != nil {
			log.Fatalf("Failed to list active connections: %v", err)
		}
		seen := make(map[int64]bool)
		for _, conn := range connections {
			if !seen[conn.UserID] {
				seen[conn.UserID] = true
				userIDs = append(userIDs, conn.UserID)
			}
		}
		log.Printf("Found %d users with active connections", len(userIDs))
	} else {
		userIDs, err = parseUserIDs(*userIDStr)
		if err != nil {
			log.Fatalf("%v", err)
		}
	}

	if len(userIDs) == 0 {
		log.Println("No users to process")
		return
	}

	log.Printf("Starting email sync for %d user(s)", len(userIDs))
	startTime := time.Now()

	for _, userID := range userIDs {
		results, err := syncService.SyncAllForUser(ctx, userID)
		if err != nil {
			log.Printf("Sync failed for user %d: %v", userID, err)
			continue
		}
		printResults(userID, results)
	}

	log.Printf("Email sync completed in %v", time.Since(startTime))
}

func printResults(userID int64, results []*emailsync.SyncResult) {
	fmt.Printf("\n=== User %d ===\n", userID)
	for _, r := range results {
		fmt.Printf("  Connection %s (%s): %s\n", r.ConnectionID, r.Provider, r.Status)
		fmt.Printf("    Emails found:         %d\n", r.Counts.EmailsFound)
		fmt.Printf("    Emails processed:     %d\n", r.Counts.EmailsProcessed)
		fmt.Printf("    Emails skipped:       %d\n", r.Counts.EmailsSkipped)
		fmt.Printf("    Transactions created: %d\n", r.Counts.TransactionsCreated)

		if len(r.Errors) > 0 {
			fmt.Printf("    Errors:               %d\n", len(r.Errors))
			for i, e := range r.Errors {
				if i >= 5 {
					fmt.Printf("      ... and %d more errors\n", len(r.Errors)-5)
					break
				}
				fmt.Printf("      - %s\n", e)
			}
		}
	}
}

func runSyncLogs(args []string) {
	fs := flag.NewFlagSet("sync-logs", flag.ExitOnError)

	connectionID := fs.String("connection-id", "", "Connection ID to inspect")
	limit := fs.Int("limit", 10, "Number of runs to show")

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	if *connectionID == "" {
		fmt.Println("Error: must specify --connection-id")
		os.Exit(1)
	}

	e := newEnv()
	defer e.close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	logs, err := e.syncLogRepo.ListByConnection(ctx, *connectionID, *limit)
	if err != nil {
		log.Fatalf("Failed to list sync logs: %v", err)
	}

	if len(logs) == 0 {
		fmt.Println("No sync runs recorded for this connection")
		return
	}

	for _, l := range logs {
		completed := "running"
		if l.CompletedAt != nil {
			completed = l.CompletedAt.Format(time.RFC3339)
		}
		fmt.Printf("%s  %-11s  started=%s  completed=%s  found=%d processed=%d skipped=%d created=%d\n",
			l.ID, l.Status, l.StartedAt.Format(time.RFC3339), completed,
			l.EmailsFound, l.EmailsProcessed, l.EmailsSkipped, l.TransactionsCreated)
		if l.ErrorMessage != nil {
			fmt.Printf("    error: %s\n", *l.ErrorMessage)
		}
	}
}

func runConnections(args []string) {
	fs := flag.NewFlagSet("connections", flag.ExitOnError)

	userIDStr := fs.String("user-id", "", "User ID to inspect")

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	if *userIDStr == "" {
		fmt.Println("Error: must specify --user-id")
		os.Exit(1)
	}

	userID, err := strconv.ParseInt(strings.TrimSpace(*userIDStr), 10, 64)
	if err != nil {
		log.Fatalf("Invalid user ID '%s': %v", *userIDStr, err)
	}

	e := newEnv()
	defer e.close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	connections, err := e.connectionRepo.ListByUserID(ctx, userID)
	if err != nil {
		log.Fatalf("Failed to list connections: %v", err)
	}

	if len(connections) == 0 {
		fmt.Println("No connections for this user")
		return
	}

	for _, c := range connections {
		lastSync := "never"
		if c.LastSyncAt != nil {
			lastSync = c.LastSyncAt.Format(time.RFC3339)
		}
		fmt.Printf("%s  %-8s  %-30s  status=%-11s  lastSync=%s\n",
			c.ID, c.Provider, c.EmailAddress, c.LastSyncStatus, lastSync)
	}
}

func parseUserIDs(s string) ([]int64, error) {
	var userIDs []int64
	for _, p := range strings.Split(s, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		id, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid user ID '%s': %w", p, err)
		}
		userIDs = append(userIDs, id)
	}
	return userIDs, nil
}

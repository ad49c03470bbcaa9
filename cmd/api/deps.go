package main

import (
	"context"
	"log"

	"finzen/internal/domain/budget"
	"finzen/internal/domain/connection"
	"finzen/internal/domain/emailsync"
	"finzen/internal/domain/notification"
	"finzen/internal/infrastructure/classifier"
	"finzen/internal/infrastructure/crypto"
	"finzen/internal/infrastructure/firebase"
	"finzen/internal/infrastructure/postgres"
	"finzen/internal/infrastructure/provider"
	"finzen/internal/infrastructure/rates"
	httphandlers "finzen/internal/interfaces/http"
	"finzen/internal/shared/auth"
	"finzen/internal/shared/config"
)

// Dependencies holds all initialized application components.
type Dependencies struct {
	DB *postgres.DB

	// Handlers
	EmailSyncHandler    *httphandlers.EmailSyncHandler
	NotificationHandler *httphandlers.NotificationHandler

	// Auth
	JWT *auth.JWT

	// Services (for scheduler wiring)
	SyncService         *emailsync.Service
	NotificationService *notification.Service

	// Repositories (for scheduler job provider)
	ConnectionRepo *postgres.ConnectionRepository
}

// NewDependencies initializes all application dependencies.
func NewDependencies(ctx context.Context, cfg *config.Config) (*Dependencies, error) {
	// Connect to database
	db, err := postgres.New(cfg.Database.ConnectionString())
	if err != nil {
		return nil, err
	}
	log.Println("Connected to database")

	// Initialize encryptor for tokens at rest
	encryptor, err := crypto.NewEncryptor(cfg.Encryption.Key)
	if err != nil {
		return nil, err
	}

	// Initialize repositories
	connectionRepo := postgres.NewConnectionRepository(db, encryptor)
	bankFilterRepo := postgres.NewBankFilterRepository(db)
	importedEmailRepo := postgres.NewImportedEmailRepository(db)
	syncLogRepo := postgres.NewSyncLogRepository(db)
	transactionRepo := postgres.NewTransactionRepository(db)
	budgetRepo := postgres.NewBudgetRepository(db)
	categoryRepo := postgres.NewCategoryRepository(db)
	mappingRepo := postgres.NewMerchantMappingRepository(db)
	notificationRepo := postgres.NewNotificationRepository(db)

	// Initialize mail providers
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

	// Initialize domain services
	connectionService := connection.NewService(connectionRepo, bankFilterRepo, providers, cfg.EmailSync.Country)

	classifierClient := classifier.NewClient(
		cfg.Classifier.BaseURL,
		cfg.Classifier.APIKey,
		cfg.Classifier.Model,
		cfg.Classifier.Timeout,
	)
	emailClassifier := emailsync.NewEmailClassifier(classifierClient, categoryRepo, cfg.EmailSync.Country)

	ratesClient := rates.NewClient(cfg.Rates.BaseURL, cfg.Rates.Timeout)
	resolver := emailsync.NewResolver(mappingRepo, transactionRepo, ratesClient, cfg.EmailSync.BaseCurrency)

	// Initialize FCM if configured; push delivery is optional
	var messenger notification.Messenger
	if cfg.Firebase.CredentialsFile != "" {
		fcmClient, err := firebase.NewClient(ctx, cfg.Firebase.CredentialsFile, notificationRepo.DeactivateToken)
		if err != nil {
			log.Printf("Warning: failed to initialize Firebase client: %v", err)
		} else {
			messenger = fcmClient
			log.Println("Firebase messaging initialized")
		}
	} else {
		log.Println("Firebase credentials not configured, push notifications disabled")
	}
	notificationService := notification.NewService(notificationRepo, messenger)

	recalculator := budget.NewRecalculator(budgetRepo, transactionRepo, notificationService)

	syncService := emailsync.NewService(
		connectionRepo,
		bankFilterRepo,
		importedEmailRepo,
		syncLogRepo,
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

	// Initialize auth components
	jwt := auth.NewJWT(cfg.JWT.Secret)

	// Initialize handlers
	emailSyncHandler := httphandlers.NewEmailSyncHandler(connectionService, syncService)
	notificationHandler := httphandlers.NewNotificationHandler(notificationService)

	return &Dependencies{
		DB:                  db,
		EmailSyncHandler:    emailSyncHandler,
		NotificationHandler: notificationHandler,
		JWT:                 jwt,
		SyncService:         syncService,
		NotificationService: notificationService,
		ConnectionRepo:      connectionRepo,
	}, nil
}

// Close releases all resources held by dependencies.
func (d *Dependencies) Close() {
	if d.DB != nil {
		d.DB.Close()
	}
}

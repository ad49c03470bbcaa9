package connection

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"finzen/internal/infrastructure/provider"
)

// tokenRefreshWindow is the safety margin before expiry inside which the
// access token is refreshed instead of reused.
const tokenRefreshWindow = 5 * time.Minute

var (
	// ErrNotFound means the connection does not exist.
	ErrNotFound = errors.New("connection not found")

	// ErrForbidden means the connection belongs to another user.
	ErrForbidden = errors.New("connection does not belong to user")

	// ErrUnknownProvider means no adapter is registered for the name.
	ErrUnknownProvider = errors.New("unknown mail provider")
)

// Service contains the business logic for mailbox connections: the
// OAuth lifecycle, bank filter seeding, and token upkeep.
type Service struct {
	repo      Repository
	filters   BankFilterRepository
	providers map[string]provider.MailProvider
	country   string
	now       func() time.Time
}

// NewService creates a new connection service. providers is keyed by
// provider name (GMAIL, OUTLOOK); country selects the bank catalog.
func NewService(repo Repository, filters BankFilterRepository, providers map[string]provider.MailProvider, country string) *Service {
	return &Service{
		repo:      repo,
		filters:   filters,
		providers: providers,
		country:   country,
		now:       time.Now,
	}
}

func (s *Service) provider(name string) (provider.MailProvider, error) {
	// Callback paths carry the name lowercased.
	p, ok := s.providers[strings.ToUpper(name)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, name)
	}
	return p, nil
}

// AuthorizationURL builds the provider consent URL with the user and
// return URL encoded in the OAuth state.
func (s *Service) AuthorizationURL(userID int64, providerName, returnURL string) (string, error) {
	p, err := s.provider(providerName)
	if err != nil {
		return "", err
	}

	state, err := provider.EncodeState(provider.State{UserID: userID, ReturnURL: returnURL})
	if err != nil {
		return "", err
	}

	return p.AuthURL(state), nil
}

// Connect completes the OAuth flow: exchanges the code, resolves the
// mailbox address, upserts the connection, and seeds bank filters from
// the country catalog when the connection is new.
func (s *Service) Connect(ctx context.Context, userID int64, providerName, code string) (*Connection, error) {
	p, err := s.provider(providerName)
	if err != nil {
		return nil, err
	}

	tokens, err := p.ExchangeCode(ctx, code)
	if err != nil {
		return nil, err
	}

	email, err := p.CurrentUserEmail(ctx, tokens.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve mailbox address: %w", err)
	}

	existing, err := s.repo.GetByUserAndProvider(ctx, userID, p.Name())
	if err != nil {
		return nil, fmt.Errorf("failed to look up existing connection: %w", err)
	}

	var refreshToken *string
	if tokens.RefreshToken != "" {
		refreshToken = &tokens.RefreshToken
	} else if existing != nil {
		// Providers omit the refresh token on re-consent; keep the stored one
		refreshToken = existing.RefreshToken
	}

	conn, err := s.repo.Upsert(ctx, UpsertConnectionParams{
		UserID:         userID,
		Provider:       p.Name(),
		EmailAddress:   email,
		AccessToken:    tokens.AccessToken,
		RefreshToken:   refreshToken,
		TokenExpiresAt: tokens.ExpiresAt(s.now()),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to save connection: %w", err)
	}

	if existing == nil {
		if err := s.seedBankFilters(ctx, conn.ID); err != nil {
			log.Printf("Warning: failed to seed bank filters for connection %s: %v", conn.ID, err)
		}
	}

	log.Printf("Connected %s mailbox %s for user %d", p.Name(), email, userID)
	return conn, nil
}

// seedBankFilters creates one filter per catalog bank for the country.
func (s *Service) seedBankFilters(ctx context.Context, connectionID string) error {
	banks := SupportedBanks(s.country)
	if len(banks) == 0 {
		return nil
	}

	params := make([]CreateBankFilterParams, 0, len(banks))
	for _, b := range banks {
		params = append(params, CreateBankFilterParams{
			ConnectionID: connectionID,
			BankName:     b.Name,
			Senders:      b.Senders,
			Keywords:     b.Keywords,
		})
	}

	_, err := s.filters.CreateBatch(ctx, params)
	return err
}

// Get returns the connection if it exists and belongs to the user.
func (s *Service) Get(ctx context.Context, connectionID string, userID int64) (*Connection, error) {
	conn, err := s.repo.GetByID(ctx, connectionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get connection: %w", err)
	}
	if conn == nil {
		return nil, ErrNotFound
	}
	if conn.UserID != userID {
		return nil, ErrForbidden
	}
	return conn, nil
}

// List returns all of the user's connections.
func (s *Service) List(ctx context.Context, userID int64) ([]*Connection, error) {
	return s.repo.ListByUserID(ctx, userID)
}

// Filters returns the bank filters of the user's connection.
func (s *Service) Filters(ctx context.Context, connectionID string, userID int64) ([]*BankFilter, error) {
	if _, err := s.Get(ctx, connectionID, userID); err != nil {
		return nil, err
	}
	return s.filters.ListByConnection(ctx, connectionID)
}

// SetFilterActive toggles a bank filter after checking that it belongs
// to the user's connection.
func (s *Service) SetFilterActive(ctx context.Context, connectionID, filterID string, userID int64, active bool) error {
	filters, err := s.Filters(ctx, connectionID, userID)
	if err != nil {
		return err
	}

	for _, f := range filters {
		if f.ID == filterID {
			return s.filters.SetActive(ctx, filterID, active)
		}
	}
	return fmt.Errorf("%w: filter %s", ErrNotFound, filterID)
}

// Disconnect removes a connection after best-effort token revocation.
// Revocation failure never blocks the disconnect.
func (s *Service) Disconnect(ctx context.Context, connectionID string, userID int64) error {
	conn, err := s.repo.GetByID(ctx, connectionID)
	if err != nil {
		return fmt.Errorf("failed to get connection: %w", err)
	}
	if conn == nil {
		return ErrNotFound
	}
	if conn.UserID != userID {
		return ErrForbidden
	}

	if p, err := s.provider(conn.Provider); err == nil {
		if err := p.Revoke(ctx, conn.AccessToken); err != nil {
			log.Printf("Warning: token revocation failed for connection %s: %v", connectionID, err)
		}
	}

	if err := s.repo.Delete(ctx, connectionID); err != nil {
		return fmt.Errorf("failed to delete connection: %w", err)
	}

	log.Printf("Disconnected %s mailbox for user %d", conn.Provider, userID)
	return nil
}

// EnsureValidToken is the single token-refresh choke point. It refreshes
// and persists new tokens when the stored expiry is within the safety
// window; otherwise the stored token is returned unchanged. A refresh
// failure is connection-fatal (provider.ErrAuthRefresh).
func (s *Service) EnsureValidToken(ctx context.Context, conn *Connection) (string, error) {
	if s.now().Add(tokenRefreshWindow).Before(conn.TokenExpiresAt) {
		return conn.AccessToken, nil
	}

	if conn.RefreshToken == nil || *conn.RefreshToken == "" {
		return "", fmt.Errorf("%w: no refresh token stored", provider.ErrAuthRefresh)
	}

	p, err := s.provider(conn.Provider)
	if err != nil {
		return "", err
	}

	tokens, err := p.Refresh(ctx, *conn.RefreshToken)
	if err != nil {
		return "", err
	}

	refreshToken := conn.RefreshToken
	if tokens.RefreshToken != "" {
		refreshToken = &tokens.RefreshToken
	}

	expiresAt := tokens.ExpiresAt(s.now())
	if err := s.repo.UpdateTokens(ctx, conn.ID, tokens.AccessToken, refreshToken, expiresAt); err != nil {
		return "", fmt.Errorf("failed to persist refreshed tokens: %w", err)
	}

	conn.AccessToken = tokens.AccessToken
	conn.RefreshToken = refreshToken
	conn.TokenExpiresAt = expiresAt

	log.Printf("Refreshed %s token for connection %s", conn.Provider, conn.ID)
	return tokens.AccessToken, nil
}

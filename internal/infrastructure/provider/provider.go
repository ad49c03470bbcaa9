package provider

import (
	"context"
	"errors"
	"time"
)

// Provider names. Stored on the connection row.
const (
	Gmail   = "GMAIL"
	Outlook = "OUTLOOK"
)

// Sentinel errors shared by both adapters.
var (
	// ErrAuthExchange means the authorization code was invalid or expired.
	ErrAuthExchange = errors.New("oauth code exchange failed")

	// ErrAuthRefresh means the refresh token was revoked or expired.
	// Callers must treat this as "connection broken, needs re-auth",
	// not as a transient failure.
	ErrAuthRefresh = errors.New("oauth token refresh failed")

	// ErrQueryRejected means the provider rejected the search filter
	// (e.g. too many OR'd senders for the Graph filter grammar).
	// Adapters fall back to an unfiltered recent fetch when they see it.
	ErrQueryRejected = errors.New("provider rejected search query")
)

// TokenSet is the result of a code exchange or refresh.
type TokenSet struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	RefreshToken string `json:"refresh_token,omitempty"`
}

// ExpiresAt converts ExpiresIn to an absolute instant relative to now.
func (t *TokenSet) ExpiresAt(now time.Time) time.Time {
	return now.Add(time.Duration(t.ExpiresIn) * time.Second)
}

// MessageRef identifies one message in the provider's mailbox.
type MessageRef struct {
	ID string
}

// Message is a fetched mail message with its body already reduced to
// plain text.
type Message struct {
	ID         string
	Subject    string
	From       string
	ReceivedAt time.Time
	Body       string
}

// SearchQuery describes a bank-email search: OR of senders AND OR of
// subject keywords, bounded by a lower time bound and a result cap.
type SearchQuery struct {
	Senders    []string
	Keywords   []string
	Since      time.Time
	MaxResults int
}

// MailProvider is the capability set a mailbox provider must offer.
// Two implementations exist: Gmail (Gmail REST API) and Outlook
// (Microsoft Graph). Only token, query and body mechanics differ; all
// orchestration lives above this interface.
type MailProvider interface {
	// Name returns the provider constant (GMAIL or OUTLOOK).
	Name() string

	// AuthURL builds the provider authorization URL. The state is
	// round-tripped verbatim by the provider.
	AuthURL(state string) string

	// ExchangeCode trades an authorization code for tokens.
	// Returns ErrAuthExchange (wrapped) on an invalid/expired code.
	ExchangeCode(ctx context.Context, code string) (*TokenSet, error)

	// Refresh trades a refresh token for a fresh access token.
	// Returns ErrAuthRefresh (wrapped) when the refresh token is revoked.
	Refresh(ctx context.Context, refreshToken string) (*TokenSet, error)

	// CurrentUserEmail returns the mailbox address of the token's owner.
	CurrentUserEmail(ctx context.Context, accessToken string) (string, error)

	// SearchMessages finds candidate bank emails. When the provider
	// rejects the filter as too complex, the adapter falls back to
	// fetching a recency-ordered superset and filtering by sender
	// locally; callers never see ErrQueryRejected from this method.
	SearchMessages(ctx context.Context, accessToken string, q SearchQuery) ([]MessageRef, error)

	// FetchMessage retrieves one message with its plain-text body.
	FetchMessage(ctx context.Context, accessToken, id string) (*Message, error)

	// Revoke invalidates the access token at the provider. Best-effort:
	// failures must not block disconnection.
	Revoke(ctx context.Context, accessToken string) error
}

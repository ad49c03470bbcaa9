package provider

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	gmailAuthURL     = "https://accounts.google.com/o/oauth2/v2/auth"
	gmailTokenURL    = "https://oauth2.googleapis.com/token"
	gmailRevokeURL   = "https://oauth2.googleapis.com/revoke"
	gmailUserInfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"
	gmailAPIBase     = "https://gmail.googleapis.com/gmail/v1/users/me"
	gmailScopes      = "https://www.googleapis.com/auth/gmail.readonly email"
)

// GmailProvider implements MailProvider against the Gmail REST API.
type GmailProvider struct {
	clientID     string
	clientSecret string
	redirectURL  string
	httpClient   *http.Client
}

var _ MailProvider = (*GmailProvider)(nil)

// NewGmailProvider creates a Gmail mail provider.
func NewGmailProvider(clientID, clientSecret, redirectURL string) *GmailProvider {
	return &GmailProvider{
		clientID:     clientID,
		clientSecret: clientSecret,
		redirectURL:  redirectURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (g *GmailProvider) Name() string { return Gmail }

func (g *GmailProvider) AuthURL(state string) string {
	params := url.Values{}
	params.Add("client_id", g.clientID)
	params.Add("redirect_uri", g.redirectURL)
	params.Add("response_type", "code")
	params.Add("scope", gmailScopes)
	params.Add("state", state)
	params.Add("access_type", "offline")
	params.Add("prompt", "consent")

	return gmailAuthURL + "?" + params.Encode()
}

func (g *GmailProvider) ExchangeCode(ctx context.Context, code string) (*TokenSet, error) {
	data := url.Values{}
	data.Set("code", code)
	data.Set("client_id", g.clientID)
	data.Set("client_secret", g.clientSecret)
	data.Set("redirect_uri", g.redirectURL)
	data.Set("grant_type", "authorization_code")

	token, err := g.tokenRequest(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAuthExchange, err)
	}
	return token, nil
}

func (g *GmailProvider) Refresh(ctx context.Context, refreshToken string) (*TokenSet, error) {
	data := url.Values{}
	data.Set("refresh_token", refreshToken)
	data.Set("client_id", g.clientID)
	data.Set("client_secret", g.clientSecret)
	data.Set("grant_type", "refresh_token")

	token, err := g.tokenRequest(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAuthRefresh, err)
	}
	return token, nil
}

func (g *GmailProvider) tokenRequest(ctx context.Context, data url.Values) (*TokenSet, error) {
	req, err := http.NewRequestWithContext(ctx, "POST", gmailTokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("token request failed: %s", string(body))
	}

	var token TokenSet
	if err := json.NewDecoder(resp.Body).Decode(&token); err != nil {
		return nil, fmt.Errorf("failed to decode token response: %w", err)
	}

	return &token, nil
}

func (g *GmailProvider) CurrentUserEmail(ctx context.Context, accessToken string) (string, error) {
	var userInfo struct {
		Email string `json:"email"`
	}
	if err := g.getJSON(ctx, accessToken, gmailUserInfoURL, &userInfo); err != nil {
		return "", err
	}
	if userInfo.Email == "" {
		return "", fmt.Errorf("user info response has no email")
	}
	return userInfo.Email, nil
}

// buildGmailQuery builds a Gmail search expression:
// from:(a OR b) subject:(k1 OR k2) after:<unix>
func buildGmailQuery(q SearchQuery) string {
	var parts []string

	if len(q.Senders) > 0 {
		parts = append(parts, "from:("+strings.Join(q.Senders, " OR ")+")")
	}
	if len(q.Keywords) > 0 {
		quoted := make([]string, 0, len(q.Keywords))
		for _, k := range q.Keywords {
			quoted = append(quoted, `"`+k+`"`)
		}
		parts = append(parts, "subject:("+strings.Join(quoted, " OR ")+")")
	}
	if !q.Since.IsZero() {
		parts = append(parts, fmt.Sprintf("after:%d", q.Since.Unix()))
	}

	return strings.Join(parts, " ")
}

func (g *GmailProvider) SearchMessages(ctx context.Context, accessToken string, q SearchQuery) ([]MessageRef, error) {
	refs, err := g.listMessages(ctx, accessToken, buildGmailQuery(q), q.MaxResults)
	if err == nil {
		return refs, nil
	}
	if !isQueryRejected(err) {
		return nil, err
	}

	// Filter grammar rejected: fetch a recency-ordered superset bounded by the
	// time window only and filter by sender locally.
	return g.searchFallback(ctx, accessToken, q)
}

func (g *GmailProvider) searchFallback(ctx context.Context, accessToken string, q SearchQuery) ([]MessageRef, error) {
	fallbackQ := ""
	if !q.Since.IsZero() {
		fallbackQ = fmt.Sprintf("after:%d", q.Since.Unix())
	}

	refs, err := g.listMessages(ctx, accessToken, fallbackQ, supersetMultiplier*q.MaxResults)
	if err != nil {
		return nil, err
	}

	return filterRefsBySender(ctx, refs, q, func(ctx context.Context, id string) (string, error) {
		msg, err := g.fetchMetadata(ctx, accessToken, id)
		if err != nil {
			return "", err
		}
		return msg.From, nil
	})
}

func (g *GmailProvider) listMessages(ctx context.Context, accessToken, query string, maxResults int) ([]MessageRef, error) {
	params := url.Values{}
	if query != "" {
		params.Set("q", query)
	}
	params.Set("maxResults", fmt.Sprintf("%d", maxResults))

	var list struct {
		Messages []struct {
			ID string `json:"id"`
		} `json:"messages"`
	}
	if err := g.getJSON(ctx, accessToken, gmailAPIBase+"/messages?"+params.Encode(), &list); err != nil {
		return nil, err
	}

	refs := make([]MessageRef, 0, len(list.Messages))
	for _, m := range list.Messages {
		refs = append(refs, MessageRef{ID: m.ID})
	}
	return refs, nil
}

// gmailMessage mirrors the subset of the Gmail message resource we read.
type gmailMessage struct {
	ID      string `json:"id"`
	Payload struct {
		Headers []struct {
			Name  string `json:"name"`
			Value string `json:"value"`
		} `json:"headers"`
		MimeType string `json:"mimeType"`
		Body     struct {
			Data string `json:"data"`
		} `json:"body"`
		Parts []gmailPart `json:"parts"`
	} `json:"payload"`
	InternalDate string `json:"internalDate"` // epoch millis as string
}

type gmailPart struct {
	MimeType string `json:"mimeType"`
	Body     struct {
		Data string `json:"data"`
	} `json:"body"`
	Parts []gmailPart `json:"parts"`
}

func (g *GmailProvider) FetchMessage(ctx context.Context, accessToken, id string) (*Message, error) {
	var raw gmailMessage
	if err := g.getJSON(ctx, accessToken, gmailAPIBase+"/messages/"+id+"?format=full", &raw); err != nil {
		return nil, err
	}

	msg := &Message{ID: raw.ID}
	for _, h := range raw.Payload.Headers {
		switch strings.ToLower(h.Name) {
		case "subject":
			msg.Subject = h.Value
		case "from":
			msg.From = h.Value
		}
	}

	if millis, err := parseEpochMillis(raw.InternalDate); err == nil {
		msg.ReceivedAt = millis
	}

	body := findGmailBody(raw.Payload.Parts, "text/plain")
	if body == "" {
		body = findGmailBody(raw.Payload.Parts, "text/html")
	}
	if body == "" {
		body = raw.Payload.Body.Data
	}

	decoded, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(body, "="))
	if err != nil {
		return nil, fmt.Errorf("failed to decode message body: %w", err)
	}
	msg.Body = ExtractText(string(decoded))

	return msg, nil
}

// fetchMetadata fetches only headers, used by the local-filter fallback.
func (g *GmailProvider) fetchMetadata(ctx context.Context, accessToken, id string) (*Message, error) {
	var raw gmailMessage
	u := gmailAPIBase + "/messages/" + id + "?format=metadata&metadataHeaders=From&metadataHeaders=Subject"
	if err := g.getJSON(ctx, accessToken, u, &raw); err != nil {
		return nil, err
	}

	msg := &Message{ID: raw.ID}
	for _, h := range raw.Payload.Headers {
		switch strings.ToLower(h.Name) {
		case "subject":
			msg.Subject = h.Value
		case "from":
			msg.From = h.Value
		}
	}
	return msg, nil
}

// findGmailBody walks the MIME tree looking for the first part with the
// wanted mime type.
func findGmailBody(parts []gmailPart, mimeType string) string {
	for _, p := range parts {
		if p.MimeType == mimeType && p.Body.Data != "" {
			return p.Body.Data
		}
		if nested := findGmailBody(p.Parts, mimeType); nested != "" {
			return nested
		}
	}
	return ""
}

func (g *GmailProvider) Revoke(ctx context.Context, accessToken string) error {
	data := url.Values{}
	data.Set("token", accessToken)

	req, err := http.NewRequestWithContext(ctx, "POST", gmailRevokeURL, strings.NewReader(data.Encode()))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("revoke request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("revoke failed: %s", string(body))
	}
	return nil
}

func (g *GmailProvider) getJSON(ctx context.Context, accessToken, u string, out any) error {
	req, err := http.NewRequestWithContext(ctx, "GET", u, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusBadRequest {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%w: %s", ErrQueryRejected, string(body))
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("request failed with status %d: %s", resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func parseEpochMillis(s string) (time.Time, error) {
	var millis int64
	if _, err := fmt.Sscanf(s, "%d", &millis); err != nil {
		return time.Time{}, err
	}
	return time.UnixMilli(millis), nil
}

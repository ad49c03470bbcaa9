package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	graphAPIBase  = "https://graph.microsoft.com/v1.0"
	outlookScopes = "offline_access User.Read Mail.Read"
)

// OutlookProvider implements MailProvider against Microsoft Graph.
type OutlookProvider struct {
	clientID     string
	clientSecret string
	tenant       string
	redirectURL  string
	apiBase      string
	httpClient   *http.Client
}

var _ MailProvider = (*OutlookProvider)(nil)

// NewOutlookProvider creates an Outlook mail provider. tenant is usually
// "common" for multi-tenant consumer + work accounts.
func NewOutlookProvider(clientID, clientSecret, tenant, redirectURL string) *OutlookProvider {
	if tenant == "" {
		tenant = "common"
	}
	return &OutlookProvider{
		clientID:     clientID,
		clientSecret: clientSecret,
		tenant:       tenant,
		redirectURL:  redirectURL,
		apiBase:      graphAPIBase,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (o *OutlookProvider) Name() string { return Outlook }

func (o *OutlookProvider) authorityURL(path string) string {
	return fmt.Sprintf("https://login.microsoftonline.com/%s/oauth2/v2.0/%s", o.tenant, path)
}

func (o *OutlookProvider) AuthURL(state string) string {
	params := url.Values{}
	params.Add("client_id", o.clientID)
	params.Add("redirect_uri", o.redirectURL)
	params.Add("response_type", "code")
	params.Add("response_mode", "query")
	params.Add("scope", outlookScopes)
	params.Add("state", state)

	return o.authorityURL("authorize") + "?" + params.Encode()
}

func (o *OutlookProvider) ExchangeCode(ctx context.Context, code string) (*TokenSet, error) {
	data := url.Values{}
	data.Set("code", code)
	data.Set("client_id", o.clientID)
	data.Set("client_secret", o.clientSecret)
	data.Set("redirect_uri", o.redirectURL)
	data.Set("grant_type", "authorization_code")
	data.Set("scope", outlookScopes)

	token, err := o.tokenRequest(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAuthExchange, err)
	}
	return token, nil
}

func (o *OutlookProvider) Refresh(ctx context.Context, refreshToken string) (*TokenSet, error) {
	data := url.Values{}
	data.Set("refresh_token", refreshToken)
	data.Set("client_id", o.clientID)
	data.Set("client_secret", o.clientSecret)
	data.Set("grant_type", "refresh_token")
	data.Set("scope", outlookScopes)

	token, err := o.tokenRequest(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAuthRefresh, err)
	}
	return token, nil
}

func (o *OutlookProvider) tokenRequest(ctx context.Context, data url.Values) (*TokenSet, error) {
	req, err := http.NewRequestWithContext(ctx, "POST", o.authorityURL("token"), strings.NewReader(data.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := o.httpClient.Do(req)
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

func (o *OutlookProvider) CurrentUserEmail(ctx context.Context, accessToken string) (string, error) {
	var me struct {
		Mail              string `json:"mail"`
		UserPrincipalName string `json:"userPrincipalName"`
	}
	if err := o.getJSON(ctx, accessToken, o.apiBase+"/me", &me); err != nil {
		return "", err
	}

	if me.Mail != "" {
		return me.Mail, nil
	}
	if me.UserPrincipalName != "" {
		return me.UserPrincipalName, nil
	}
	return "", fmt.Errorf("profile has no mail address")
}

// graphMessage mirrors the subset of the Graph message resource we read.
type graphMessage struct {
	ID      string `json:"id"`
	Subject string `json:"subject"`
	From    struct {
		EmailAddress struct {
			Address string `json:"address"`
		} `json:"emailAddress"`
	} `json:"from"`
	ReceivedDateTime string `json:"receivedDateTime"`
	Body             struct {
		ContentType string `json:"contentType"`
		Content     string `json:"content"`
	} `json:"body"`
}

type graphMessageList struct {
	Value []graphMessage `json:"value"`
}

// buildGraphFilter builds an OData filter:
// receivedDateTime ge X and (from/.../address eq 'a' or ...)
// Subject keywords are not expressible efficiently in the filter grammar,
// so they are left to the classifier stage; with 10+ OR'd senders Graph
// rejects the filter outright (InefficientFilter), which triggers the
// local fallback.
func buildGraphFilter(q SearchQuery) string {
	var parts []string

	if !q.Since.IsZero() {
		parts = append(parts, fmt.Sprintf("receivedDateTime ge %s", q.Since.UTC().Format(time.RFC3339)))
	}
	if len(q.Senders) > 0 {
		senderTerms := make([]string, 0, len(q.Senders))
		for _, s := range q.Senders {
			senderTerms = append(senderTerms, fmt.Sprintf("from/emailAddress/address eq '%s'", strings.ReplaceAll(s, "'", "''")))
		}
		parts = append(parts, "("+strings.Join(senderTerms, " or ")+")")
	}

	return strings.Join(parts, " and ")
}

func (o *OutlookProvider) SearchMessages(ctx context.Context, accessToken string, q SearchQuery) ([]MessageRef, error) {
	params := url.Values{}
	params.Set("$filter", buildGraphFilter(q))
	params.Set("$orderby", "receivedDateTime desc")
	params.Set("$top", fmt.Sprintf("%d", q.MaxResults))
	params.Set("$select", "id")

	var list graphMessageList
	err := o.getJSON(ctx, accessToken, o.apiBase+"/me/messages?"+params.Encode(), &list)
	if err == nil {
		refs := make([]MessageRef, 0, len(list.Value))
		for _, m := range list.Value {
			refs = append(refs, MessageRef{ID: m.ID})
		}
		return refs, nil
	}
	if !isQueryRejected(err) {
		return nil, err
	}

	return o.searchFallback(ctx, accessToken, q)
}

// searchFallback fetches a recency-ordered superset without the sender
// filter and matches senders locally. Graph returns sender metadata in
// the list response, so no extra per-message fetch is needed.
func (o *OutlookProvider) searchFallback(ctx context.Context, accessToken string, q SearchQuery) ([]MessageRef, error) {
	params := url.Values{}
	if !q.Since.IsZero() {
		params.Set("$filter", fmt.Sprintf("receivedDateTime ge %s", q.Since.UTC().Format(time.RFC3339)))
	}
	params.Set("$orderby", "receivedDateTime desc")
	params.Set("$top", fmt.Sprintf("%d", supersetMultiplier*q.MaxResults))
	params.Set("$select", "id,from")

	var list graphMessageList
	if err := o.getJSON(ctx, accessToken, o.apiBase+"/me/messages?"+params.Encode(), &list); err != nil {
		return nil, err
	}

	matched := make([]MessageRef, 0, q.MaxResults)
	for _, m := range list.Value {
		if len(matched) >= q.MaxResults {
			break
		}
		if senderMatches(m.From.EmailAddress.Address, q.Senders) {
			matched = append(matched, MessageRef{ID: m.ID})
		}
	}

	return matched, nil
}

func (o *OutlookProvider) FetchMessage(ctx context.Context, accessToken, id string) (*Message, error) {
	var raw graphMessage
	u := o.apiBase + "/me/messages/" + id + "?$select=subject,from,receivedDateTime,body"
	if err := o.getJSON(ctx, accessToken, u, &raw); err != nil {
		return nil, err
	}

	msg := &Message{
		ID:      raw.ID,
		Subject: raw.Subject,
		From:    raw.From.EmailAddress.Address,
		Body:    ExtractText(raw.Body.Content),
	}
	if t, err := time.Parse(time.RFC3339, raw.ReceivedDateTime); err == nil {
		msg.ReceivedAt = t
	}

	return msg, nil
}

// Revoke is a no-op for Outlook: the Microsoft identity platform offers
// no per-token revocation endpoint, so disconnecting just discards the
// stored tokens and lets them expire.
func (o *OutlookProvider) Revoke(ctx context.Context, accessToken string) error {
	return nil
}

func (o *OutlookProvider) getJSON(ctx context.Context, accessToken, u string, out any) error {
	req, err := http.NewRequestWithContext(ctx, "GET", u, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := o.httpClient.Do(req)
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

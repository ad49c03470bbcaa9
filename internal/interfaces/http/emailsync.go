package http

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"net/url"
	"strconv"

	"finzen/internal/domain/connection"
	"finzen/internal/domain/emailsync"
	"finzen/internal/infrastructure/provider"
	"finzen/internal/shared/middleware"
)

type EmailSyncHandler struct {
	connectionService *connection.Service
	syncService       *emailsync.Service
}

func NewEmailSyncHandler(connectionService *connection.Service, syncService *emailsync.Service) *EmailSyncHandler {
	return &EmailSyncHandler{
		connectionService: connectionService,
		syncService:       syncService,
	}
}

type AuthURLResponse struct {
	AuthURL string `json:"authUrl"`
}

type ToggleFilterRequest struct {
	Active bool `json:"active"`
}

const maxEmailSyncBodySize = 1 << 20 // 1 MiB

// HandleAuthURL handles GET /api/email-sync/auth-url/{provider}
func (h *EmailSyncHandler) HandleAuthURL(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	userID, ok := r.Context().Value(middleware.UserIDKey).(int64)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	providerName := r.PathValue("provider")
	returnURL := r.URL.Query().Get("returnUrl")

	authURL, err := h.connectionService.AuthorizationURL(userID, providerName, returnURL)
	if err != nil {
		if errors.Is(err, connection.ErrUnknownProvider) {
			http.Error(w, "Unknown provider", http.StatusBadRequest)
			return
		}
		log.Printf("Error building auth URL for provider %s: %v", providerName, err)
		http.Error(w, "Failed to build authorization URL", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(AuthURLResponse{AuthURL: authURL})
}

// HandleCallback handles GET /api/email-sync/callback/{provider}.
// This route is public: the provider calls it, not the app. Identity
// comes from the signed-through state parameter, and the result is a
// redirect back to the app's returnUrl.
func (h *EmailSyncHandler) HandleCallback(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	providerName := r.PathValue("provider")
	code := r.URL.Query().Get("code")
	stateParam := r.URL.Query().Get("state")

	state, err := provider.DecodeState(stateParam)
	if err != nil {
		log.Printf("Error decoding oauth state for provider %s: %v", providerName, err)
		http.Error(w, "Invalid state parameter", http.StatusBadRequest)
		return
	}

	if providerErr := r.URL.Query().Get("error"); providerErr != "" {
		redirectWithError(w, r, state.ReturnURL, providerErr)
		return
	}
	if code == "" {
		redirectWithError(w, r, state.ReturnURL, "missing_code")
		return
	}

	conn, err := h.connectionService.Connect(r.Context(), state.UserID, providerName, code)
	if err != nil {
		log.Printf("Error connecting %s mailbox for user %d: %v", providerName, state.UserID, err)
		redirectWithError(w, r, state.ReturnURL, "connection_failed")
		return
	}

	redirectWithSuccess(w, r, state.ReturnURL, conn.EmailAddress)
}

// HandleConnections handles GET /api/email-sync/connections
func (h *EmailSyncHandler) HandleConnections(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	userID, ok := r.Context().Value(middleware.UserIDKey).(int64)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	connections, err := h.connectionService.List(r.Context(), userID)
	if err != nil {
		log.Printf("Error listing connections for user %d: %v", userID, err)
		http.Error(w, "Failed to list connections", http.StatusInternalServerError)
		return
	}

	if connections == nil {
		connections = []*connection.Connection{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{"connections": connections})
}

// HandleConnectionByID handles DELETE /api/email-sync/connections/{id}
func (h *EmailSyncHandler) HandleConnectionByID(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value(middleware.UserIDKey).(int64)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	connectionID := r.PathValue("id")
	if connectionID == "" {
		http.Error(w, "Connection ID is required", http.StatusBadRequest)
		return
	}

	switch r.Method {
	case http.MethodDelete:
		if err := h.connectionService.Disconnect(r.Context(), connectionID, userID); err != nil {
			writeConnectionError(w, connectionID, err, "Failed to disconnect")
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]bool{"success": true})
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// HandleSync handles POST /api/email-sync/connections/{id}/sync
func (h *EmailSyncHandler) HandleSync(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	userID, ok := r.Context().Value(middleware.UserIDKey).(int64)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	connectionID := r.PathValue("id")

	// Ownership check before the run itself.
	if _, err := h.connectionService.Get(r.Context(), connectionID, userID); err != nil {
		writeConnectionError(w, connectionID, err, "Failed to sync")
		return
	}

	result, err := h.syncService.SyncConnection(r.Context(), connectionID)
	if err != nil {
		if errors.Is(err, emailsync.ErrSyncInProgress) {
			http.Error(w, "Sync already in progress", http.StatusConflict)
			return
		}
		log.Printf("Error syncing connection %s: %v", connectionID, err)
		http.Error(w, "Failed to sync", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}

// HandleSyncAll handles POST /api/email-sync/sync
func (h *EmailSyncHandler) HandleSyncAll(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	userID, ok := r.Context().Value(middleware.UserIDKey).(int64)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	results, err := h.syncService.SyncAllForUser(r.Context(), userID)
	if err != nil {
		if errors.Is(err, emailsync.ErrSyncInProgress) {
			http.Error(w, "Sync already in progress", http.StatusConflict)
			return
		}
		log.Printf("Error syncing connections for user %d: %v", userID, err)
		http.Error(w, "Failed to sync", http.StatusInternalServerError)
		return
	}

	if results == nil {
		results = []*emailsync.SyncResult{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{"results": results})
}

// HandleFilters handles GET /api/email-sync/connections/{id}/filters
func (h *EmailSyncHandler) HandleFilters(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	userID, ok := r.Context().Value(middleware.UserIDKey).(int64)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	connectionID := r.PathValue("id")

	filters, err := h.connectionService.Filters(r.Context(), connectionID, userID)
	if err != nil {
		writeConnectionError(w, connectionID, err, "Failed to list filters")
		return
	}

	if filters == nil {
		filters = []*connection.BankFilter{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{"filters": filters})
}

// HandleFilterByID handles PATCH /api/email-sync/connections/{id}/filters/{filterId}
func (h *EmailSyncHandler) HandleFilterByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPatch {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	userID, ok := r.Context().Value(middleware.UserIDKey).(int64)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	connectionID := r.PathValue("id")
	filterID := r.PathValue("filterId")

	r.Body = http.MaxBytesReader(w, r.Body, maxEmailSyncBodySize)
	var req ToggleFilterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.connectionService.SetFilterActive(r.Context(), connectionID, filterID, userID, req.Active); err != nil {
		writeConnectionError(w, connectionID, err, "Failed to update filter")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]bool{"success": true})
}

// HandleSyncLogs handles GET /api/email-sync/connections/{id}/sync-logs
func (h *EmailSyncHandler) HandleSyncLogs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	userID, ok := r.Context().Value(middleware.UserIDKey).(int64)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	connectionID := r.PathValue("id")

	if _, err := h.connectionService.Get(r.Context(), connectionID, userID); err != nil {
		writeConnectionError(w, connectionID, err, "Failed to list sync logs")
		return
	}

	logs, err := h.syncService.SyncLogs(r.Context(), connectionID, queryLimit(r))
	if err != nil {
		log.Printf("Error listing sync logs for connection %s: %v", connectionID, err)
		http.Error(w, "Failed to list sync logs", http.StatusInternalServerError)
		return
	}

	if logs == nil {
		logs = []*emailsync.SyncLog{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{"syncLogs": logs})
}

// HandleImportedEmails handles GET /api/email-sync/connections/{id}/emails
func (h *EmailSyncHandler) HandleImportedEmails(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	userID, ok := r.Context().Value(middleware.UserIDKey).(int64)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	connectionID := r.PathValue("id")

	if _, err := h.connectionService.Get(r.Context(), connectionID, userID); err != nil {
		writeConnectionError(w, connectionID, err, "Failed to list imported emails")
		return
	}

	emails, err := h.syncService.ImportedEmails(r.Context(), connectionID, queryLimit(r))
	if err != nil {
		log.Printf("Error listing imported emails for connection %s: %v", connectionID, err)
		http.Error(w, "Failed to list imported emails", http.StatusInternalServerError)
		return
	}

	if emails == nil {
		emails = []*emailsync.ImportedEmail{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{"emails": emails})
}

// --- Helpers ---

func writeConnectionError(w http.ResponseWriter, connectionID string, err error, fallback string) {
	switch {
	case errors.Is(err, connection.ErrNotFound):
		http.Error(w, "Not found", http.StatusNotFound)
	case errors.Is(err, connection.ErrForbidden):
		http.Error(w, "Forbidden", http.StatusForbidden)
	default:
		log.Printf("Error on connection %s: %v", connectionID, err)
		http.Error(w, fallback, http.StatusInternalServerError)
	}
}

func queryLimit(r *http.Request) int {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	return limit
}

func redirectWithSuccess(w http.ResponseWriter, r *http.Request, returnURL, email string) {
	redirect(w, r, returnURL, url.Values{"success": {"true"}, "email": {email}})
}

func redirectWithError(w http.ResponseWriter, r *http.Request, returnURL, cause string) {
	redirect(w, r, returnURL, url.Values{"error": {cause}})
}

func redirect(w http.ResponseWriter, r *http.Request, returnURL string, params url.Values) {
	target, err := url.Parse(returnURL)
	if err != nil || returnURL == "" {
		// No usable return URL. Answer in place instead of redirecting.
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(params)
		return
	}

	query := target.Query()
	for key, values := range params {
		for _, v := range values {
			query.Set(key, v)
		}
	}
	target.RawQuery = query.Encode()

	http.Redirect(w, r, target.String(), http.StatusFound)
}

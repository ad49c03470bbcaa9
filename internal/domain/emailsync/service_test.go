package emailsync

import (
	"context"
	"errors"
	"testing"
	"time"

	"finzen/internal/domain/connection"
	"finzen/internal/domain/transaction"
	"finzen/internal/infrastructure/provider"
)

type MockSyncConnRepo struct {
	conns      map[string]*connection.Connection
	beginOK    bool
	beginErr   error
	finished   []connection.SyncStatus
	finishedAt []*time.Time
}

func newMockSyncConnRepo(conns ...*connection.Connection) *MockSyncConnRepo {
	m := &MockSyncConnRepo{conns: make(map[string]*connection.Connection), beginOK: true}
	for _, c := range conns {
		m.conns[c.ID] = c
	}
	return m
}

func (m *MockSyncConnRepo) Upsert(ctx context.Context, params connection.UpsertConnectionParams) (*connection.Connection, error) {
	return nil, nil
}
func (m *MockSyncConnRepo) GetByID(ctx context.Context, id string) (*connection.Connection, error) {
	return m.conns[id], nil
}
func (m *MockSyncConnRepo) GetByUserAndProvider(ctx context.Context, userID int64, providerName string) (*connection.Connection, error) {
	return nil, nil
}
func (m *MockSyncConnRepo) ListByUserID(ctx context.Context, userID int64) ([]*connection.Connection, error) {
	var out []*connection.Connection
	for _, c := range m.conns {
		if c.UserID == userID {
			out = append(out, c)
		}
	}
	return out, nil
}
func (m *MockSyncConnRepo) ListActive(ctx context.Context) ([]*connection.Connection, error) {
	return nil, nil
}
func (m *MockSyncConnRepo) BeginSync(ctx context.Context, id string, staleBefore time.Time) (bool, error) {
	return m.beginOK, m.beginErr
}
func (m *MockSyncConnRepo) FinishSync(ctx context.Context, id string, status connection.SyncStatus, syncErr *string, lastSyncAt *time.Time) error {
	m.finished = append(m.finished, status)
	m.finishedAt = append(m.finishedAt, lastSyncAt)
	return nil
}
func (m *MockSyncConnRepo) UpdateTokens(ctx context.Context, id string, accessToken string, refreshToken *string, expiresAt time.Time) error {
	return nil
}
func (m *MockSyncConnRepo) Delete(ctx context.Context, id string) error { return nil }

type MockSyncFilterRepo struct {
	active []*connection.BankFilter
}

func (m *MockSyncFilterRepo) CreateBatch(ctx context.Context, params []connection.CreateBankFilterParams) ([]*connection.BankFilter, error) {
	return nil, nil
}
func (m *MockSyncFilterRepo) ListByConnection(ctx context.Context, connectionID string) ([]*connection.BankFilter, error) {
	return m.active, nil
}
func (m *MockSyncFilterRepo) ListActiveByConnection(ctx context.Context, connectionID string) ([]*connection.BankFilter, error) {
	return m.active, nil
}
func (m *MockSyncFilterRepo) SetActive(ctx context.Context, id string, active bool) error {
	return nil
}

type MockEmailRepo struct {
	existing   map[string]bool
	hasAny     bool
	created    []CreateImportedEmailParams
	finalized  map[string]EmailStatus
	finalTxIDs map[string]*string
}

func newMockEmailRepo() *MockEmailRepo {
	return &MockEmailRepo{
		existing:   make(map[string]bool),
		finalized:  make(map[string]EmailStatus),
		finalTxIDs: make(map[string]*string),
	}
}

func (m *MockEmailRepo) Create(ctx context.Context, params CreateImportedEmailParams) (*ImportedEmail, error) {
	m.created = append(m.created, params)
	return &ImportedEmail{ID: "email-" + params.MessageID, ConnectionID: params.ConnectionID, MessageID: params.MessageID, Status: EmailProcessing}, nil
}
func (m *MockEmailRepo) Exists(ctx context.Context, connectionID, messageID string) (bool, error) {
	return m.existing[messageID], nil
}
func (m *MockEmailRepo) HasAny(ctx context.Context, connectionID string) (bool, error) {
	return m.hasAny, nil
}
func (m *MockEmailRepo) Finalize(ctx context.Context, id string, status EmailStatus, parsedData *string, transactionID *string, errorMessage *string) error {
	m.finalized[id] = status
	m.finalTxIDs[id] = transactionID
	return nil
}
func (m *MockEmailRepo) ListByConnection(ctx context.Context, connectionID string, limit int) ([]*ImportedEmail, error) {
	return nil, nil
}

type MockSyncLogRepo struct {
	finalStatus SyncLogStatus
	finalCounts SyncCounts
	finalErr    *string
}

func (m *MockSyncLogRepo) Create(ctx context.Context, connectionID string, startedAt time.Time) (*SyncLog, error) {
	return &SyncLog{ID: "log-1", ConnectionID: connectionID, Status: RunInProgress, StartedAt: startedAt}, nil
}
func (m *MockSyncLogRepo) Finalize(ctx context.Context, id string, status SyncLogStatus, counts SyncCounts, errorMessage *string, completedAt time.Time) error {
	m.finalStatus = status
	m.finalCounts = counts
	m.finalErr = errorMessage
	return nil
}
func (m *MockSyncLogRepo) ListByConnection(ctx context.Context, connectionID string, limit int) ([]*SyncLog, error) {
	return nil, nil
}

// StubProvider serves canned messages.
type StubProvider struct {
	messages  map[string]*provider.Message
	lastQuery provider.SearchQuery
	searchErr error
}

func (s *StubProvider) Name() string                { return provider.Gmail }
func (s *StubProvider) AuthURL(state string) string { return "" }
func (s *StubProvider) ExchangeCode(ctx context.Context, code string) (*provider.TokenSet, error) {
	return nil, nil
}
func (s *StubProvider) Refresh(ctx context.Context, refreshToken string) (*provider.TokenSet, error) {
	return nil, nil
}
func (s *StubProvider) CurrentUserEmail(ctx context.Context, accessToken string) (string, error) {
	return "", nil
}
func (s *StubProvider) SearchMessages(ctx context.Context, accessToken string, q provider.SearchQuery) ([]provider.MessageRef, error) {
	s.lastQuery = q
	if s.searchErr != nil {
		return nil, s.searchErr
	}
	var refs []provider.MessageRef
	for id := range s.messages {
		refs = append(refs, provider.MessageRef{ID: id})
	}
	return refs, nil
}
func (s *StubProvider) FetchMessage(ctx context.Context, accessToken, id string) (*provider.Message, error) {
	msg, ok := s.messages[id]
	if !ok {
		return nil, errors.New("message not found")
	}
	return msg, nil
}
func (s *StubProvider) Revoke(ctx context.Context, accessToken string) error { return nil }

type StubTokenSource struct {
	token string
	err   error
}

func (s *StubTokenSource) EnsureValidToken(ctx context.Context, conn *connection.Connection) (string, error) {
	return s.token, s.err
}

type MockCascade struct {
	created []*transaction.Transaction
}

func (m *MockCascade) OnTransactionCreated(ctx context.Context, txn *transaction.Transaction) error {
	m.created = append(m.created, txn)
	return nil
}

type syncFixture struct {
	service  *Service
	conns    *MockSyncConnRepo
	emails   *MockEmailRepo
	syncLogs *MockSyncLogRepo
	txns     *MockTransactionRepo
	provider *StubProvider
	tokens   *StubTokenSource
	cascade  *MockCascade
}

func testConnection() *connection.Connection {
	lastSync := time.Date(2026, 8, 20, 6, 0, 0, 0, time.UTC)
	return &connection.Connection{
		ID:         "conn-1",
		UserID:     7,
		Provider:   provider.Gmail,
		LastSyncAt: &lastSync,
	}
}

func newSyncFixture(conn *connection.Connection) *syncFixture {
	f := &syncFixture{
		conns:    newMockSyncConnRepo(conn),
		emails:   newMockEmailRepo(),
		syncLogs: &MockSyncLogRepo{},
		txns:     &MockTransactionRepo{},
		provider: &StubProvider{messages: make(map[string]*provider.Message)},
		tokens:   &StubTokenSource{token: "access"},
		cascade:  &MockCascade{},
	}

	filters := &MockSyncFilterRepo{active: []*connection.BankFilter{
		{BankName: "Banco Popular", Senders: []string{"notificaciones@bpd.com.do"}, Keywords: []string{"consumo"}, Active: true},
	}}

	classifier := NewEmailClassifier(&MockClassifierClient{}, &MockCategoryRepo{}, "DO")
	resolver := NewResolver(&MockMappingRepo{}, f.txns, &MockRateClient{}, "DOP")

	f.service = NewService(
		f.conns, filters, f.emails, f.syncLogs, f.txns,
		f.tokens,
		map[string]provider.MailProvider{provider.Gmail: f.provider},
		classifier, resolver, f.cascade,
		Options{FirstSyncLookbackDays: 30, MaxSearchResults: 50},
	)
	return f
}

func bankEmail(id string) *provider.Message {
	return &provider.Message{
		ID:         id,
		Subject:    "Consumo con tarjeta",
		From:       "Banco Popular <notificaciones@bpd.com.do>",
		ReceivedAt: time.Date(2026, 8, 25, 9, 0, 0, 0, time.UTC),
		Body:       "Compra en SUPERMERCADO NACIONAL por RD$1,500.00",
	}
}

func TestSyncConnection_CreatesTransaction(t *testing.T) {
	f := newSyncFixture(testConnection())
	f.provider.messages["m1"] = bankEmail("m1")

	result, err := f.service.SyncConnection(context.Background(), "conn-1")
	if err != nil {
		t.Fatalf("SyncConnection() failed: %v", err)
	}

	if result.Status != string(connection.SyncSuccess) {
		t.Errorf("status = %q, want SUCCESS", result.Status)
	}
	if result.Counts.EmailsFound != 1 || result.Counts.EmailsProcessed != 1 || result.Counts.TransactionsCreated != 1 {
		t.Errorf("counts = %+v", result.Counts)
	}
	if f.emails.finalized["email-m1"] != EmailSuccess {
		t.Errorf("email status = %q, want SUCCESS", f.emails.finalized["email-m1"])
	}
	if f.emails.finalTxIDs["email-m1"] == nil {
		t.Error("imported email missing transaction back-reference")
	}
	if len(f.cascade.created) != 1 {
		t.Errorf("cascade invoked %d times, want 1", len(f.cascade.created))
	}
	if f.syncLogs.finalStatus != RunSuccess {
		t.Errorf("sync log status = %q", f.syncLogs.finalStatus)
	}
	if len(f.conns.finishedAt) != 1 || f.conns.finishedAt[0] == nil {
		t.Error("successful run should advance the last-sync watermark")
	}
}

func TestSyncConnection_IdempotentAcrossRuns(t *testing.T) {
	f := newSyncFixture(testConnection())
	f.provider.messages["m1"] = bankEmail("m1")
	f.emails.existing["m1"] = true
	f.emails.hasAny = true

	result, err := f.service.SyncConnection(context.Background(), "conn-1")
	if err != nil {
		t.Fatalf("SyncConnection() failed: %v", err)
	}

	if result.Counts.TransactionsCreated != 0 {
		t.Errorf("already-imported message created %d transactions", result.Counts.TransactionsCreated)
	}
	if result.Counts.EmailsSkipped != 1 {
		t.Errorf("skipped = %d, want 1", result.Counts.EmailsSkipped)
	}
	if len(f.emails.created) != 0 {
		t.Error("already-imported message created a new ImportedEmail row")
	}
}

func TestSyncConnection_PaymentEmailSkipped(t *testing.T) {
	f := newSyncFixture(testConnection())
	msg := bankEmail("m1")
	msg.Subject = "Pago recibido"
	msg.Body = "Gracias por su pago de RD$5,000.00"
	f.provider.messages["m1"] = msg

	result, err := f.service.SyncConnection(context.Background(), "conn-1")
	if err != nil {
		t.Fatalf("SyncConnection() failed: %v", err)
	}

	if result.Counts.TransactionsCreated != 0 {
		t.Error("payment confirmation created a transaction")
	}
	if result.Counts.EmailsProcessed != 0 || result.Counts.EmailsSkipped != 1 {
		t.Errorf("counts = processed %d, skipped %d; want the message in the skipped bucket only",
			result.Counts.EmailsProcessed, result.Counts.EmailsSkipped)
	}
	if got := result.Counts.EmailsProcessed + result.Counts.EmailsSkipped; got != result.Counts.EmailsFound {
		t.Errorf("processed+skipped = %d, want %d found", got, result.Counts.EmailsFound)
	}
	if f.emails.finalized["email-m1"] != EmailSkipped {
		t.Errorf("email status = %q, want SKIPPED", f.emails.finalized["email-m1"])
	}
	if result.Status != string(connection.SyncSuccess) {
		t.Errorf("status = %q, want SUCCESS", result.Status)
	}
}

func TestSyncConnection_DuplicateDetected(t *testing.T) {
	f := newSyncFixture(testConnection())
	f.provider.messages["m1"] = bankEmail("m1")
	f.txns.FindExpensesOnDayFunc = func(ctx context.Context, criteria transaction.DayMatchCriteria) ([]*transaction.Transaction, error) {
		return []*transaction.Transaction{{Description: "STORE | Card ****1234"}}, nil
	}

	result, err := f.service.SyncConnection(context.Background(), "conn-1")
	if err != nil {
		t.Fatalf("SyncConnection() failed: %v", err)
	}

	if result.Counts.TransactionsCreated != 0 {
		t.Error("duplicate created a transaction")
	}
	if f.emails.finalized["email-m1"] != EmailDuplicate {
		t.Errorf("email status = %q, want DUPLICATE", f.emails.finalized["email-m1"])
	}
	if len(f.cascade.created) != 0 {
		t.Error("cascade invoked for a duplicate")
	}
}

func TestSyncConnection_MessageFailureDoesNotAbortRun(t *testing.T) {
	f := newSyncFixture(testConnection())
	f.provider.messages["bad"] = func() *provider.Message {
		m := bankEmail("bad")
		m.Body = "unreadable"
		return m
	}()
	f.provider.messages["good"] = bankEmail("good")

	failing := &MockClassifierClient{ClassifyFunc: func(ctx context.Context, req ClassifyRequest) (*ClassifyResponse, error) {
		if req.Body == "unreadable" {
			return nil, errors.New("no parse")
		}
		return &ClassifyResponse{Amount: 100, Currency: "DOP", Merchant: "Store", Category: "Groceries"}, nil
	}}
	f.service.classifier = NewEmailClassifier(failing, &MockCategoryRepo{}, "DO")

	result, err := f.service.SyncConnection(context.Background(), "conn-1")
	if err != nil {
		t.Fatalf("SyncConnection() failed: %v", err)
	}

	if result.Status != string(connection.SyncSuccess) {
		t.Errorf("run status = %q, want SUCCESS despite message failure", result.Status)
	}
	if result.Counts.TransactionsCreated != 1 {
		t.Errorf("created = %d, want 1", result.Counts.TransactionsCreated)
	}
	if result.Counts.EmailsProcessed != 2 {
		t.Errorf("processed = %d, want 2 (a failed message still counts as processed)", result.Counts.EmailsProcessed)
	}
	if len(result.Errors) != 1 {
		t.Errorf("errors = %v, want one message-local failure", result.Errors)
	}
	if f.emails.finalized["email-bad"] != EmailFailed {
		t.Errorf("bad email status = %q, want FAILED", f.emails.finalized["email-bad"])
	}
}

func TestSyncConnection_TokenFailureIsFatal(t *testing.T) {
	f := newSyncFixture(testConnection())
	f.tokens.err = provider.ErrAuthRefresh

	result, err := f.service.SyncConnection(context.Background(), "conn-1")
	if err != nil {
		t.Fatalf("SyncConnection() returned error: %v", err)
	}

	if result.Status != string(connection.SyncFailed) {
		t.Errorf("status = %q, want FAILED", result.Status)
	}
	if f.syncLogs.finalStatus != RunFailed {
		t.Errorf("sync log status = %q, want FAILED", f.syncLogs.finalStatus)
	}
	if len(f.conns.finishedAt) != 1 || f.conns.finishedAt[0] != nil {
		t.Error("failed run must not advance the last-sync watermark")
	}
}

func TestSyncConnection_InProgressBlocked(t *testing.T) {
	f := newSyncFixture(testConnection())
	f.conns.beginOK = false

	_, err := f.service.SyncConnection(context.Background(), "conn-1")
	if !errors.Is(err, ErrSyncInProgress) {
		t.Errorf("SyncConnection() error = %v, want ErrSyncInProgress", err)
	}
}

func TestSyncConnection_NotFound(t *testing.T) {
	f := newSyncFixture(testConnection())

	_, err := f.service.SyncConnection(context.Background(), "missing")
	if !errors.Is(err, connection.ErrNotFound) {
		t.Errorf("SyncConnection() error = %v, want ErrNotFound", err)
	}
}

func TestSyncConnection_FirstSyncLookback(t *testing.T) {
	conn := testConnection()
	conn.LastSyncAt = nil
	f := newSyncFixture(conn)

	if _, err := f.service.SyncConnection(context.Background(), "conn-1"); err != nil {
		t.Fatalf("SyncConnection() failed: %v", err)
	}

	want := time.Now().AddDate(0, 0, -30)
	if diff := f.provider.lastQuery.Since.Sub(want); diff < -time.Minute || diff > time.Minute {
		t.Errorf("first sync lower bound = %v, want ~30 days ago", f.provider.lastQuery.Since)
	}
}

func TestSyncConnection_IncrementalSyncUsesWatermark(t *testing.T) {
	conn := testConnection()
	f := newSyncFixture(conn)
	f.emails.hasAny = true

	if _, err := f.service.SyncConnection(context.Background(), "conn-1"); err != nil {
		t.Fatalf("SyncConnection() failed: %v", err)
	}

	if !f.provider.lastQuery.Since.Equal(*conn.LastSyncAt) {
		t.Errorf("incremental lower bound = %v, want last sync %v", f.provider.lastQuery.Since, *conn.LastSyncAt)
	}
}

func TestSyncAllForUser_InProgressBlocksBatch(t *testing.T) {
	f := newSyncFixture(testConnection())
	f.conns.beginOK = false

	_, err := f.service.SyncAllForUser(context.Background(), 7)
	if !errors.Is(err, ErrSyncInProgress) {
		t.Errorf("SyncAllForUser() error = %v, want ErrSyncInProgress", err)
	}
}

func TestSyncAllForUser_AggregatesResults(t *testing.T) {
	f := newSyncFixture(testConnection())
	f.provider.messages["m1"] = bankEmail("m1")

	results, err := f.service.SyncAllForUser(context.Background(), 7)
	if err != nil {
		t.Fatalf("SyncAllForUser() failed: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("got %d results, want 1", len(results))
	}
	if results[0].Counts.TransactionsCreated != 1 {
		t.Errorf("created = %d, want 1", results[0].Counts.TransactionsCreated)
	}
}

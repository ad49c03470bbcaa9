package emailsync

import (
	"context"
	"errors"
	"testing"
	"time"
)

type MockClassifierClient struct {
	ClassifyFunc func(ctx context.Context, req ClassifyRequest) (*ClassifyResponse, error)
	calls        int
	lastRequest  ClassifyRequest
}

func (m *MockClassifierClient) Classify(ctx context.Context, req ClassifyRequest) (*ClassifyResponse, error) {
	m.calls++
	m.lastRequest = req
	if m.ClassifyFunc != nil {
		return m.ClassifyFunc(ctx, req)
	}
	return &ClassifyResponse{Amount: 100, Currency: "DOP", Merchant: "Store", Category: "Groceries"}, nil
}

type MockCategoryRepo struct {
	Names []string
	Err   error
}

func (m *MockCategoryRepo) ListExpenseNames(ctx context.Context) ([]string, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	if m.Names != nil {
		return m.Names, nil
	}
	return []string{"Groceries", "Restaurants", "Transport", "Miscellaneous"}, nil
}

func newTestClassifier(client *MockClassifierClient) *EmailClassifier {
	return NewEmailClassifier(client, &MockCategoryRepo{}, "DO")
}

func TestClassify_PaymentPhraseShortCircuits(t *testing.T) {
	client := &MockClassifierClient{}
	c := newTestClassifier(client)

	_, err := c.Classify(context.Background(), ClassifyInput{
		Subject: "Pago recibido",
		Body:    "Gracias por su pago de RD$5,000.00",
	})
	if !errors.Is(err, ErrPaymentEmail) {
		t.Fatalf("Classify() error = %v, want ErrPaymentEmail", err)
	}
	if client.calls != 0 {
		t.Errorf("external classifier called %d times, want 0", client.calls)
	}
}

func TestClassify_SecondChancePaymentVerdict(t *testing.T) {
	client := &MockClassifierClient{ClassifyFunc: func(ctx context.Context, req ClassifyRequest) (*ClassifyResponse, error) {
		return &ClassifyResponse{IsPaymentEmail: true}, nil
	}}
	c := newTestClassifier(client)

	_, err := c.Classify(context.Background(), ClassifyInput{Subject: "Notificacion", Body: "some text"})
	if !errors.Is(err, ErrPaymentEmail) {
		t.Errorf("Classify() error = %v, want ErrPaymentEmail", err)
	}
}

func TestClassify_InvalidAmount(t *testing.T) {
	client := &MockClassifierClient{ClassifyFunc: func(ctx context.Context, req ClassifyRequest) (*ClassifyResponse, error) {
		return &ClassifyResponse{Amount: 0, Merchant: "Store"}, nil
	}}
	c := newTestClassifier(client)

	_, err := c.Classify(context.Background(), ClassifyInput{Subject: "Consumo", Body: "text"})
	if !errors.Is(err, ErrInvalidAmount) {
		t.Errorf("Classify() error = %v, want ErrInvalidAmount", err)
	}
}

func TestClassify_ClientError(t *testing.T) {
	client := &MockClassifierClient{ClassifyFunc: func(ctx context.Context, req ClassifyRequest) (*ClassifyResponse, error) {
		return nil, errors.New("service unavailable")
	}}
	c := newTestClassifier(client)

	_, err := c.Classify(context.Background(), ClassifyInput{Subject: "Consumo", Body: "text"})
	if !errors.Is(err, ErrClassificationFailed) {
		t.Errorf("Classify() error = %v, want ErrClassificationFailed", err)
	}
}

func TestClassify_ConstrainsCategoryToList(t *testing.T) {
	client := &MockClassifierClient{ClassifyFunc: func(ctx context.Context, req ClassifyRequest) (*ClassifyResponse, error) {
		return &ClassifyResponse{Amount: 50, Merchant: "Store", Category: "Cryptocurrency"}, nil
	}}
	c := newTestClassifier(client)

	parsed, err := c.Classify(context.Background(), ClassifyInput{Subject: "Consumo", Body: "text"})
	if err != nil {
		t.Fatalf("Classify() failed: %v", err)
	}
	if parsed.Category != "Miscellaneous" {
		t.Errorf("category = %q, want fallback Miscellaneous", parsed.Category)
	}
}

func TestClassify_SendsLiveCategoryList(t *testing.T) {
	client := &MockClassifierClient{}
	c := newTestClassifier(client)

	if _, err := c.Classify(context.Background(), ClassifyInput{Subject: "Consumo", Body: "text"}); err != nil {
		t.Fatalf("Classify() failed: %v", err)
	}
	if len(client.lastRequest.Categories) != 4 {
		t.Errorf("request carried %d categories, want 4", len(client.lastRequest.Categories))
	}
	if client.lastRequest.Country != "DO" {
		t.Errorf("country hint = %q, want DO", client.lastRequest.Country)
	}
}

func TestClassify_DateFallsBackToReceivedAt(t *testing.T) {
	client := &MockClassifierClient{ClassifyFunc: func(ctx context.Context, req ClassifyRequest) (*ClassifyResponse, error) {
		return &ClassifyResponse{Amount: 50, Merchant: "Store", Category: "Groceries", Date: "not a date"}, nil
	}}
	c := newTestClassifier(client)

	received := time.Date(2026, 8, 15, 10, 30, 0, 0, time.UTC)
	parsed, err := c.Classify(context.Background(), ClassifyInput{Subject: "Consumo", Body: "text", ReceivedAt: received})
	if err != nil {
		t.Fatalf("Classify() failed: %v", err)
	}
	if !parsed.Date.Equal(received) {
		t.Errorf("date = %v, want received instant %v", parsed.Date, received)
	}
}

func TestConfidence(t *testing.T) {
	tests := []struct {
		name   string
		resp   ClassifyResponse
		listed bool
		want   int
	}{
		{
			name:   "all fields valid",
			resp:   ClassifyResponse{Amount: 45, Merchant: "Store", Date: "2026-08-15", CardLast4: "1234"},
			listed: true,
			want:   100,
		},
		{
			name:   "amount and merchant only",
			resp:   ClassifyResponse{Amount: 45, Merchant: "Store"},
			listed: false,
			want:   55,
		},
		{
			name:   "bad card suffix not counted",
			resp:   ClassifyResponse{Amount: 45, Merchant: "Store", Date: "2026-08-15", CardLast4: "12x4"},
			listed: true,
			want:   85,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := confidence(&tt.resp, tt.listed); got != tt.want {
				t.Errorf("confidence() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestIsPaymentConfirmation_Bilingual(t *testing.T) {
	if !IsPaymentConfirmation("Payment received", "") {
		t.Error("English phrase not detected")
	}
	if !IsPaymentConfirmation("", "Hemos recibido su pago de la tarjeta") {
		t.Error("Spanish phrase in body not detected")
	}
	if IsPaymentConfirmation("Consumo con tarjeta", "Compra en SUPERMERCADO NACIONAL") {
		t.Error("purchase notification misdetected as payment")
	}
}

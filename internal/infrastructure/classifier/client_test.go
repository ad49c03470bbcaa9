package classifier

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"finzen/internal/domain/emailsync"
)

func TestClassify(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/classify-email" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("missing bearer token")
		}

		var payload struct {
			Model string                    `json:"model"`
			Email emailsync.ClassifyRequest `json:"email"`
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Fatalf("bad payload: %v", err)
		}
		if len(payload.Email.Categories) != 2 {
			t.Errorf("categories = %v", payload.Email.Categories)
		}

		json.NewEncoder(w).Encode(emailsync.ClassifyResponse{
			Amount: 1500, Currency: "DOP", Merchant: "Supermercado Nacional", Category: "Groceries",
		})
	}))
	defer server.Close()

	c := NewClient(server.URL, "test-key", "gpt-4o-mini", 0)
	resp, err := c.Classify(context.Background(), emailsync.ClassifyRequest{
		Subject:    "Consumo con tarjeta",
		Body:       "Compra por RD$1,500.00",
		Categories: []string{"Groceries", "Transport"},
	})
	if err != nil {
		t.Fatalf("Classify() failed: %v", err)
	}
	if resp.Amount != 1500 || resp.Merchant != "Supermercado Nacional" {
		t.Errorf("unexpected response: %+v", resp)
	}
}

func TestClassify_ServiceError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		json.NewEncoder(w).Encode(map[string]string{"error": "upstream", "message": "model overloaded"})
	}))
	defer server.Close()

	c := NewClient(server.URL, "test-key", "", 0)
	if _, err := c.Classify(context.Background(), emailsync.ClassifyRequest{}); err == nil {
		t.Fatal("Classify() should fail on a 502")
	}
}

func TestClassify_EmptyBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer server.Close()

	c := NewClient(server.URL, "test-key", "", 0)
	if _, err := c.Classify(context.Background(), emailsync.ClassifyRequest{}); err == nil {
		t.Fatal("Classify() should fail on an empty body")
	}
}

package config

import (
	"os"
	"testing"
	"time"
)

func setRequiredEnvVars(t *testing.T) {
	t.Helper()
	t.Setenv("ENCRYPTION_KEY", "01234567890123456789012345678901") // 32 bytes
	t.Setenv("JWT_SECRET", "test-secret")
}

func TestLoad_MissingJWTSecret(t *testing.T) {
	t.Setenv("ENCRYPTION_KEY", "01234567890123456789012345678901")
	t.Setenv("JWT_SECRET", "")
	os.Unsetenv("JWT_SECRET")

	_, err := Load()
	if err == nil {
		t.Error("Load() expected error for missing JWT_SECRET, got nil")
	}
}

func TestLoad_Success(t *testing.T) {
	setRequiredEnvVars(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Server.Port != "8080" {
		t.Errorf("Server.Port = %q, want %q", cfg.Server.Port, "8080")
	}
	if cfg.Database.Port != 5432 {
		t.Errorf("Database.Port = %d, want %d", cfg.Database.Port, 5432)
	}
	if cfg.EmailSync.FirstSyncLookbackDays != 30 {
		t.Errorf("EmailSync.FirstSyncLookbackDays = %d, want 30", cfg.EmailSync.FirstSyncLookbackDays)
	}
	if cfg.Classifier.Timeout != 45*time.Second {
		t.Errorf("Classifier.Timeout = %v, want 45s", cfg.Classifier.Timeout)
	}
	if cfg.Telemetry.Environment != "development" {
		t.Errorf("Telemetry.Environment = %q, want %q", cfg.Telemetry.Environment, "development")
	}
}

func TestLoad_EnvironmentOverride(t *testing.T) {
	setRequiredEnvVars(t)
	t.Setenv("ENVIRONMENT", "production")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Telemetry.Environment != "production" {
		t.Errorf("Telemetry.Environment = %q, want %q", cfg.Telemetry.Environment, "production")
	}
}

func TestLoad_MissingEncryptionKey(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("ENCRYPTION_KEY", "")
	os.Unsetenv("ENCRYPTION_KEY")

	_, err := Load()
	if err == nil {
		t.Error("Load() expected error for missing ENCRYPTION_KEY, got nil")
	}
}

func TestLoad_InvalidEncryptionKeyLength(t *testing.T) {
	t.Setenv("ENCRYPTION_KEY", "too-short")

	_, err := Load()
	if err == nil {
		t.Error("Load() expected error for invalid ENCRYPTION_KEY length, got nil")
	}
}

func TestLoad_InvalidDBPort(t *testing.T) {
	setRequiredEnvVars(t)
	t.Setenv("DB_PORT", "not-a-number")

	_, err := Load()
	if err == nil {
		t.Error("Load() expected error for invalid DB_PORT, got nil")
	}
}

func TestLoad_TLSValidation(t *testing.T) {
	setRequiredEnvVars(t)
	t.Setenv("TLS_ENABLED", "true")
	t.Setenv("TLS_CERT_PATH", "")
	t.Setenv("TLS_KEY_PATH", "")

	_, err := Load()
	if err == nil {
		t.Error("Load() expected error for TLS enabled without cert path, got nil")
	}
}

func TestLoad_CallbackURLsFromHostURL(t *testing.T) {
	setRequiredEnvVars(t)
	t.Setenv("HOST_URL", "https://api.example.com")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	want := "https://api.example.com/api/email-sync/callback/gmail"
	if cfg.OAuth.Google.CallbackURL != want {
		t.Errorf("Google.CallbackURL = %q, want %q", cfg.OAuth.Google.CallbackURL, want)
	}
	want = "https://api.example.com/api/email-sync/callback/outlook"
	if cfg.OAuth.Microsoft.CallbackURL != want {
		t.Errorf("Microsoft.CallbackURL = %q, want %q", cfg.OAuth.Microsoft.CallbackURL, want)
	}
}

func TestLoad_CallbackURLOverride(t *testing.T) {
	setRequiredEnvVars(t)
	t.Setenv("HOST_URL", "https://api.example.com")
	t.Setenv("GOOGLE_CALLBACK_URL", "https://other.example.com/cb")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.OAuth.Google.CallbackURL != "https://other.example.com/cb" {
		t.Errorf("Google.CallbackURL = %q, want override", cfg.OAuth.Google.CallbackURL)
	}
}

func TestGetBoolEnv(t *testing.T) {
	tests := []struct {
		value string
		want  bool
	}{
		{"true", true},
		{"1", true},
		{"yes", true},
		{"false", false},
		{"0", false},
		{"no", false},
		{"garbage", true}, // falls back to default
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			t.Setenv("TEST_BOOL", tt.value)
			if got := getBoolEnv("TEST_BOOL", true); got != tt.want {
				t.Errorf("getBoolEnv(%q) = %v, want %v", tt.value, got, tt.want)
			}
		})
	}
}

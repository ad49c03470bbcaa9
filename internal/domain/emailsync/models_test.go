package emailsync

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestTruncateBody_ShortBodyUnchanged(t *testing.T) {
	body := "Consumo con tarjeta por RD$1,500.00"
	if got := truncateBody(body); got != body {
		t.Errorf("truncateBody() = %q, want unchanged", got)
	}
}

func TestTruncateBody_CutsAtRuneBoundary(t *testing.T) {
	// Place a two-byte rune straddling the byte limit so a raw byte
	// slice would split it.
	body := strings.Repeat("a", maxBodyLength-1) + "ñ" + strings.Repeat("b", 50)

	got := truncateBody(body)

	if len(got) > maxBodyLength {
		t.Fatalf("truncated body is %d bytes, limit is %d", len(got), maxBodyLength)
	}
	if !utf8.ValidString(got) {
		t.Fatal("truncated body is not valid UTF-8")
	}
	if !strings.HasSuffix(got, "a") {
		t.Errorf("expected the straddling rune to be dropped, body ends with %q", got[len(got)-1:])
	}
}

func TestTruncateBody_KeepsWholeRuneAtLimit(t *testing.T) {
	// The multi-byte rune ends exactly at the limit and must survive.
	body := strings.Repeat("a", maxBodyLength-2) + "ñ" + strings.Repeat("b", 50)

	got := truncateBody(body)

	if len(got) != maxBodyLength {
		t.Fatalf("truncated body is %d bytes, want %d", len(got), maxBodyLength)
	}
	if !strings.HasSuffix(got, "ñ") {
		t.Error("rune ending exactly at the limit was dropped")
	}
}

func TestSyncLogStatus_Valid(t *testing.T) {
	for _, s := range []SyncLogStatus{RunInProgress, RunSuccess, RunFailed} {
		if !s.Valid() {
			t.Errorf("%q should be valid", s)
		}
	}
	if SyncLogStatus("PENDING").Valid() {
		t.Error("PENDING is not a run status")
	}
}

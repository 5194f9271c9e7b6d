package storage

import (
	"strings"
	"testing"
)

func TestAllowedContentType(t *testing.T) {
	tests := []struct {
		contentType string
		wantExt     string
		wantOK      bool
	}{
		{"image/png", ".png", true},
		{"IMAGE/PNG", ".png", true},
		{" video/mp4 ", ".mp4", true},
		{"application/zip", "", false},
		{"application/x-msdownload", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		ext, ok := AllowedContentType(tt.contentType)
		if ok != tt.wantOK || ext != tt.wantExt {
			t.Errorf("AllowedContentType(%q) = %q/%v, want %q/%v",
				tt.contentType, ext, ok, tt.wantExt, tt.wantOK)
		}
	}
}

func TestEvidenceKey(t *testing.T) {
	key, err := EvidenceKey(42, "image/png")
	if err != nil {
		t.Fatalf("EvidenceKey: %v", err)
	}
	if !strings.HasPrefix(key, "disputes/42/") {
		t.Errorf("key = %q, want disputes/42/ prefix", key)
	}
	if !strings.HasSuffix(key, ".png") {
		t.Errorf("key = %q, want .png suffix", key)
	}

	// Ключи не повторяются даже для одинаковых входов.
	other, err := EvidenceKey(42, "image/png")
	if err != nil {
		t.Fatalf("EvidenceKey: %v", err)
	}
	if key == other {
		t.Error("two evidence keys for the same input collided")
	}

	if _, err := EvidenceKey(42, "application/zip"); err == nil {
		t.Error("expected error for disallowed content type")
	}
}

func TestProofKey(t *testing.T) {
	key, err := ProofKey(7, "video/webm")
	if err != nil {
		t.Fatalf("ProofKey: %v", err)
	}
	if !strings.HasPrefix(key, "matches/7/proofs/") {
		t.Errorf("key = %q, want matches/7/proofs/ prefix", key)
	}
	if !strings.HasSuffix(key, ".webm") {
		t.Errorf("key = %q, want .webm suffix", key)
	}
}

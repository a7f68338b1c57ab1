package webhook

import (
	"strings"
	"testing"
)

func TestVerifyHMACSignature(t *testing.T) {
	secret := "test-secret-key"
	body := []byte(`{"source":"ci"}`)
	prefixed := SignatureFor(body, secret)
	plain := strings.TrimPrefix(prefixed, "sha256=")

	tests := []struct {
		name      string
		body      []byte
		signature string
		secret    string
		wantErr   bool
	}{
		{"plain hex", body, plain, secret, false},
		{"sha256 prefix", body, prefixed, secret, false},
		{"surrounding space", body, " " + prefixed + " ", secret, false},
		{"wrong signature", body, strings.Repeat("0", 64), secret, true},
		{"wrong secret", body, prefixed, "other", true},
		{"tampered body", []byte(`{"source":"cd"}`), prefixed, secret, true},
		{"not hex", body, "sha256=zzzz", secret, true},
		{"empty signature", body, "", secret, true},
		{"empty secret", body, prefixed, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := verifyHMACSignature(tt.body, tt.signature, tt.secret)
			if (err != nil) != tt.wantErr {
				t.Fatalf("verifyHMACSignature() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && err != errVerification {
				t.Fatalf("expected generic verification error, got %v", err)
			}
		})
	}
}

func TestParseMaxBodySize(t *testing.T) {
	tests := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{"", DefaultMaxBodySize, false},
		{"2048", 2048, false},
		{"64KB", 64 << 10, false},
		{"1 mb", 1 << 20, false},
		{"2GB", 2 << 30, false},
		{"10B", 10, false},
		{"0", 0, true},
		{"-5KB", 0, true},
		{"lots", 0, true},
		{"99999999999GB", 0, true},
	}
	for _, tt := range tests {
		got, err := parseMaxBodySize(tt.in)
		if (err != nil) != tt.wantErr {
			t.Fatalf("parseMaxBodySize(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if !tt.wantErr && got != tt.want {
			t.Fatalf("parseMaxBodySize(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

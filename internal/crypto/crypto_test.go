package crypto

import (
	"encoding/base64"
	"errors"
	"testing"
)

func newTestEncryptor(t *testing.T) *TokenEncryptor {
	t.Helper()
	key, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	enc, err := NewTokenEncryptor(key)
	if err != nil {
		t.Fatalf("NewTokenEncryptor: %v", err)
	}
	return enc
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	enc := newTestEncryptor(t)

	sealed, err := enc.Encrypt("xero-access-token")
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if sealed == "xero-access-token" {
		t.Fatalf("ciphertext equals plaintext")
	}
	again, _ := enc.Encrypt("xero-access-token")
	if again == sealed {
		t.Fatalf("expected a fresh nonce per call")
	}

	plain, err := enc.Decrypt(sealed)
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if plain != "xero-access-token" {
		t.Fatalf("Decrypt = %q", plain)
	}
}

func TestEmptyValuesPassThrough(t *testing.T) {
	enc := newTestEncryptor(t)
	if got, err := enc.Encrypt(""); err != nil || got != "" {
		t.Fatalf("Encrypt(\"\") = %q, %v", got, err)
	}
	if got, err := enc.Decrypt(""); err != nil || got != "" {
		t.Fatalf("Decrypt(\"\") = %q, %v", got, err)
	}
}

func TestNewTokenEncryptor_RejectsBadKeys(t *testing.T) {
	tests := []struct {
		name string
		key  string
	}{
		{"empty", ""},
		{"not base64", "%%%"},
		{"short", base64.StdEncoding.EncodeToString([]byte("too-short"))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewTokenEncryptor(tt.key); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestDecrypt_Failures(t *testing.T) {
	enc := newTestEncryptor(t)

	if _, err := enc.Decrypt(base64.StdEncoding.EncodeToString([]byte("abc"))); !errors.Is(err, ErrCiphertextTooShort) {
		t.Fatalf("expected ErrCiphertextTooShort, got %v", err)
	}

	other := newTestEncryptor(t)
	sealed, _ := other.Encrypt("secret")
	if _, err := enc.Decrypt(sealed); err == nil {
		t.Fatalf("expected authentication failure with a different key")
	}
}

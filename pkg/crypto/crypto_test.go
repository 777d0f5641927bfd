package crypto

import "testing"

func TestEncryptDecryptRoundTrip(t *testing.T) {
	tests := []struct {
		name      string
		plaintext string
	}{
		{name: "access token", plaintext: "ya29.a0AfH6SMBx"},
		{name: "imap password", plaintext: "s3cret-app-password"},
		{name: "unicode", plaintext: "pässwörd ✉"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			encrypted, err := Encrypt(tt.plaintext, "test-key")
			if err != nil {
				t.Fatalf("Encrypt: %v", err)
			}
			if encrypted == tt.plaintext {
				t.Fatal("ciphertext equals plaintext")
			}

			decrypted, err := Decrypt(encrypted, "test-key")
			if err != nil {
				t.Fatalf("Decrypt: %v", err)
			}
			if decrypted != tt.plaintext {
				t.Errorf("got %q, want %q", decrypted, tt.plaintext)
			}
		})
	}
}

func TestEncryptEmptyPlaintext(t *testing.T) {
	encrypted, err := Encrypt("", "test-key")
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if encrypted != "" {
		t.Errorf("expected empty ciphertext, got %q", encrypted)
	}
}

func TestDecryptWrongKey(t *testing.T) {
	encrypted, err := Encrypt("refresh-token", "key-one")
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}

	if _, err := Decrypt(encrypted, "key-two"); err != ErrInvalidCiphertext {
		t.Errorf("expected ErrInvalidCiphertext, got %v", err)
	}
}

func TestDecryptGarbage(t *testing.T) {
	if _, err := Decrypt("not-base64!!", "key"); err != ErrInvalidCiphertext {
		t.Errorf("expected ErrInvalidCiphertext, got %v", err)
	}
}

func TestEncryptRequiresKey(t *testing.T) {
	if _, err := Encrypt("value", ""); err == nil {
		t.Error("expected error for missing key")
	}
}

package crypto

import (
	"bytes"
	"testing"
)

func testKey() []byte {
	key := make([]byte, KeySize)
	for i := range key {
		key[i] = byte(i)
	}
	return key
}

func TestSha256Hash(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want int // expected length in bytes
	}{
		{
			name: "Basic input",
			data: []byte("test string"),
			want: 32, // SHA-256 produces 32 bytes
		},
		{
			name: "Empty input",
			data: []byte(""),
			want: 32,
		},
		{
			name: "Long input",
			data: bytes.Repeat([]byte("x"), 100_000),
			want: 32,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Sha256Hash(tt.data)
			if len(got) != tt.want {
				t.Errorf("Sha256Hash() length = %v, want %v", len(got), tt.want)
			}
		})
	}
}

func TestSha256Hex(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want string
	}{
		{
			name: "Empty input",
			data: []byte(""),
			want: "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855",
		},
		{
			name: "Known vector",
			data: []byte("abc"),
			want: "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Sha256Hex(tt.data); got != tt.want {
				t.Errorf("Sha256Hex() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEncryptAndDecryptWithAAD(t *testing.T) {
	key := testKey()

	tests := []struct {
		name      string
		plaintext string
		aad       string
	}{
		{
			name:      "Basic round trip",
			plaintext: "refresh-token-value",
			aad:       "oauth_credentials:org-1:google:support@acme.test",
		},
		{
			name:      "Empty plaintext",
			plaintext: "",
			aad:       "oauth_credentials:org-1:google:support@acme.test",
		},
		{
			name:      "Empty aad",
			plaintext: "refresh-token-value",
			aad:       "",
		},
		{
			name:      "Special characters",
			plaintext: "!@#$%^&*()_+{}|:\"<>?",
			aad:       "oauth_credentials:org-2:google:billing@acme.test",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			encrypted, err := EncryptWithAAD([]byte(tt.plaintext), key, tt.aad)
			if err != nil {
				t.Fatalf("EncryptWithAAD() error = %v", err)
			}
			if encrypted == "" {
				t.Error("EncryptWithAAD() returned empty string for valid input")
			}

			decrypted, err := DecryptWithAAD(encrypted, key, tt.aad)
			if err != nil {
				t.Fatalf("DecryptWithAAD() error = %v", err)
			}
			if string(decrypted) != tt.plaintext {
				t.Errorf("DecryptWithAAD() = %v, want %v", string(decrypted), tt.plaintext)
			}
		})
	}
}

func TestDecryptWithAAD_WrongAAD(t *testing.T) {
	key := testKey()

	encrypted, err := EncryptWithAAD([]byte("refresh-token-value"), key, "oauth_credentials:org-1:google:support@acme.test")
	if err != nil {
		t.Fatalf("EncryptWithAAD() error = %v", err)
	}

	// Same ciphertext presented under another organization must not decrypt.
	if _, err := DecryptWithAAD(encrypted, key, "oauth_credentials:org-2:google:support@acme.test"); err == nil {
		t.Error("DecryptWithAAD() expected error with mismatched aad, got nil")
	}
}

func TestDecryptWithAAD_Errors(t *testing.T) {
	key := testKey()

	tests := []struct {
		name    string
		encoded string
		key     []byte
		aad     string
	}{
		{
			name:    "Empty string",
			encoded: "",
			key:     key,
			aad:     "aad",
		},
		{
			name:    "Invalid hex string",
			encoded: "not a hex string",
			key:     key,
			aad:     "aad",
		},
		{
			name:    "Truncated ciphertext",
			encoded: "abcd",
			key:     key,
			aad:     "aad",
		},
		{
			name:    "Wrong key size",
			encoded: "abcd",
			key:     []byte("short"),
			aad:     "aad",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := DecryptWithAAD(tt.encoded, tt.key, tt.aad); err == nil {
				t.Errorf("DecryptWithAAD() expected error, got nil")
			}
		})
	}
}

func TestEncryptWithAAD_WrongKeySize(t *testing.T) {
	if _, err := EncryptWithAAD([]byte("data"), []byte("short"), "aad"); err == nil {
		t.Error("EncryptWithAAD() expected error with short key, got nil")
	}
}

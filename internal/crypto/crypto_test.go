package crypto

import "testing"

func TestEncryptDecryptRoundTrip(t *testing.T) {
	adapter, err := New([]byte("passphrase"))
	if err != nil {
		t.Fatalf("new adapter: %v", err)
	}

	plaintext := []byte(`{"name":"Alice"}`)
	cipherStr, err := adapter.Encrypt(plaintext)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}

	got, err := adapter.Decrypt(cipherStr)
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if string(got) != string(plaintext) {
		t.Errorf("expected %q, got %q", plaintext, got)
	}
}

func TestEncryptUsesFreshIVEachCall(t *testing.T) {
	adapter, err := New([]byte("passphrase"))
	if err != nil {
		t.Fatalf("new adapter: %v", err)
	}

	a, err := adapter.Encrypt([]byte("same plaintext"))
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	b, err := adapter.Encrypt([]byte("same plaintext"))
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if a == b {
		t.Error("expected two encryptions of the same plaintext to differ by IV")
	}
}

func TestDecryptRejectsMalformedInput(t *testing.T) {
	adapter, err := New([]byte("passphrase"))
	if err != nil {
		t.Fatalf("new adapter: %v", err)
	}
	if _, err := adapter.Decrypt("not-a-valid-payload"); err == nil {
		t.Error("expected an error decrypting malformed input")
	}
}

func TestNewRejectsEmptyKey(t *testing.T) {
	if _, err := New(nil); err == nil {
		t.Error("expected an error constructing an adapter with an empty key")
	}
}

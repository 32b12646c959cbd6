// Package crypto implements the encryption adapter (§4.2): an opaque
// symmetric codec applied to a document's user-field payload when a
// collection enables encryption.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
)

// ErrMalformed is returned by Decrypt when the persisted "iv:ciphertext"
// form is corrupt, which callers treat as fatal for that document (§7).
var ErrMalformed = fmt.Errorf("crypto: malformed ciphertext")

// Adapter is a stateless-after-construction codec. The configured key
// is deterministically derived via SHA-256, matching the spec's "Key
// derivation is deterministic from the configured key" requirement,
// the way bundoc's Encryptor wraps a single derived AES key.
type Adapter struct {
	block cipher.Block
}

// New derives an AES-256 key from the given passphrase/key material and
// builds a block-mode codec around it.
func New(key []byte) (*Adapter, error) {
	if len(key) == 0 {
		return nil, fmt.Errorf("crypto: empty key")
	}
	digest := sha256.Sum256(key)
	block, err := aes.NewCipher(digest[:])
	if err != nil {
		return nil, fmt.Errorf("crypto: new cipher: %w", err)
	}
	return &Adapter{block: block}, nil
}

// Encrypt returns the on-disk "<iv_hex>:<cipher_hex>" string for
// plaintext, using AES-CFB with a fresh random IV per call (§4.2, §6).
func (a *Adapter) Encrypt(plaintext []byte) (string, error) {
	iv := make([]byte, aes.BlockSize)
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return "", fmt.Errorf("crypto: generate iv: %w", err)
	}

	ciphertext := make([]byte, len(plaintext))
	stream := cipher.NewCFBEncrypter(a.block, iv)
	stream.XORKeyStream(ciphertext, plaintext)

	return hex.EncodeToString(iv) + ":" + hex.EncodeToString(ciphertext), nil
}

// Decrypt parses the "<iv_hex>:<cipher_hex>" form and recovers the
// plaintext, failing with ErrMalformed on any structural problem.
func (a *Adapter) Decrypt(payload string) ([]byte, error) {
	sep := -1
	for i := 0; i < len(payload); i++ {
		if payload[i] == ':' {
			sep = i
			break
		}
	}
	if sep < 0 {
		return nil, ErrMalformed
	}

	iv, err := hex.DecodeString(payload[:sep])
	if err != nil || len(iv) != aes.BlockSize {
		return nil, ErrMalformed
	}
	ciphertext, err := hex.DecodeString(payload[sep+1:])
	if err != nil {
		return nil, ErrMalformed
	}

	plaintext := make([]byte, len(ciphertext))
	stream := cipher.NewCFBDecrypter(a.block, iv)
	stream.XORKeyStream(plaintext, ciphertext)
	return plaintext, nil
}

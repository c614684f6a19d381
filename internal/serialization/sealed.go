package serialization

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/pbkdf2"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/rendis/flowgraph/pkg/schema"
)

// Sealed marks a string variable that must be encrypted at rest.
// In memory it behaves like any other string.
type Sealed string

func (s Sealed) String() string { return string(s) }

// SealedSerializer encrypts Sealed values with AES-256-GCM. The nonce is
// prepended to the ciphertext and the result stored as base64.
type SealedSerializer struct {
	aead cipher.AEAD
}

// NewSealedSerializer creates a serializer from a raw 32-byte key.
func NewSealedSerializer(key []byte) (*SealedSerializer, error) {
	if len(key) != 32 {
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"sealed key must be 32 bytes, got %d", len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("aes cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("gcm: %w", err)
	}
	return &SealedSerializer{aead: aead}, nil
}

// DeriveKey derives a 32-byte key from a passphrase with PBKDF2-SHA256.
func DeriveKey(passphrase string, salt []byte, iterations int) ([]byte, error) {
	if passphrase == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "passphrase is required")
	}
	if len(salt) == 0 {
		return nil, schema.NewError(schema.ErrCodeValidation, "salt is required with passphrase")
	}
	if iterations <= 0 {
		iterations = 100_000
	}
	return pbkdf2.Key(sha256.New, passphrase, salt, iterations, 32)
}

func (s *SealedSerializer) Kind() string { return KindSealed }

func (s *SealedSerializer) Accepts(v any) bool {
	_, ok := v.(Sealed)
	return ok
}

func (s *SealedSerializer) Serialize(v any) (json.RawMessage, error) {
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	sealed := s.aead.Seal(nonce, nonce, []byte(v.(Sealed)), nil)
	return json.Marshal(base64.StdEncoding.EncodeToString(sealed))
}

func (s *SealedSerializer) Deserialize(raw json.RawMessage) (any, error) {
	var encoded string
	if err := json.Unmarshal(raw, &encoded); err != nil {
		return nil, err
	}
	ciphertext, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, err
	}
	n := s.aead.NonceSize()
	if len(ciphertext) < n {
		return nil, fmt.Errorf("ciphertext too short")
	}
	plain, err := s.aead.Open(nil, ciphertext[:n], ciphertext[n:], nil)
	if err != nil {
		return nil, fmt.Errorf("decrypt: %w", err)
	}
	return Sealed(plain), nil
}

package middleware

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/aretw0/servicemocker/pkg/ports"
)

// ErrUndecryptable is returned when no configured key opens a stored value.
var ErrUndecryptable = errors.New("no configured key decrypts the stored value")

// encryptedField is the only field of the envelope written to the underlying store.
const encryptedField = "__encrypted__"

// EncryptionConfig holds the keys for encryption and decryption.
type EncryptionConfig struct {
	// ActiveKey is the key used for encrypting new data.
	// Must be 32 bytes for AES-256.
	ActiveKey []byte

	// FallbackKeys are retired keys still accepted on read, tried in order.
	FallbackKeys [][]byte
}

type encryptionMiddleware struct {
	next   ports.KVStore
	config EncryptionConfig
}

// NewEncryptionMiddleware creates a middleware that encrypts values at rest using AES-GCM.
func NewEncryptionMiddleware(config EncryptionConfig) Middleware {
	if len(config.ActiveKey) != 32 {
		panic("active key must be 32 bytes (AES-256)")
	}
	return func(next ports.KVStore) ports.KVStore {
		return &encryptionMiddleware{
			next:   next,
			config: config,
		}
	}
}

func (m *encryptionMiddleware) Set(ctx context.Context, key string, value any) (any, error) {
	plainText, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal value: %w", err)
	}

	ciphertext, err := seal(plainText, m.config.ActiveKey)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt value: %w", err)
	}

	envelope := map[string]any{
		encryptedField: base64.StdEncoding.EncodeToString(ciphertext),
	}
	if _, err := m.next.Set(ctx, key, envelope); err != nil {
		return nil, err
	}
	return value, nil
}

func (m *encryptionMiddleware) Get(ctx context.Context, key string) (any, error) {
	stored, err := m.next.Get(ctx, key)
	if err != nil || stored == nil {
		return nil, err
	}

	envelope, ok := stored.(map[string]any)
	if !ok {
		return nil, errors.New("value is missing encrypted data envelope")
	}
	// Fail secure: with encryption configured, plain values are rejected.
	encryptedStr, ok := envelope[encryptedField].(string)
	if !ok {
		return nil, errors.New("value is missing encrypted data envelope")
	}

	ciphertext, err := base64.StdEncoding.DecodeString(encryptedStr)
	if err != nil {
		return nil, fmt.Errorf("failed to decode ciphertext base64: %w", err)
	}

	plainText, err := m.open(ciphertext)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt value: %w", err)
	}

	var value any
	if err := json.Unmarshal(plainText, &value); err != nil {
		return nil, fmt.Errorf("failed to unmarshal decrypted value: %w", err)
	}
	return value, nil
}

func (m *encryptionMiddleware) Remove(ctx context.Context, key string) error {
	return m.next.Remove(ctx, key)
}

func (m *encryptionMiddleware) Clear(ctx context.Context) error {
	return m.next.Clear(ctx)
}

// seal encrypts plaintext under key. The random nonce is prepended to the result.
func seal(plaintext, key []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

// open decrypts a sealed value with the active key, then each fallback key in order.
func (m *encryptionMiddleware) open(sealed []byte) ([]byte, error) {
	keys := append([][]byte{m.config.ActiveKey}, m.config.FallbackKeys...)
	for _, key := range keys {
		gcm, err := newGCM(key)
		if err != nil || len(sealed) < gcm.NonceSize() {
			continue
		}
		nonce, body := sealed[:gcm.NonceSize()], sealed[gcm.NonceSize():]
		if plain, err := gcm.Open(nil, nonce, body, nil); err == nil {
			return plain, nil
		}
	}
	return nil, ErrUndecryptable
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

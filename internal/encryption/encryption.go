// Package encryption seals patient contact fields at rest with AES-256-GCM.
package encryption

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
)

const keySize = 32

var (
	ErrMalformedCiphertext = errors.New("malformed ciphertext")
	ErrUnknownKey          = errors.New("ciphertext sealed with an unknown key")
)

type Service interface {
	Encrypt(plaintext []byte) (string, error)
	Decrypt(ciphertext string) ([]byte, error)
	// RotateKey seals new values with a fresh key. Values sealed with earlier
	// keys still open.
	RotateKey() error
}

// service keeps every key it has used. Ciphertexts carry the key version as a
// "v<N>:" prefix ahead of the base64 nonce and sealed bytes.
type service struct {
	mu      sync.RWMutex
	keys    map[int]cipher.AEAD
	current int
}

// NewService builds a service around a hex encoded 32 byte key. An empty key
// generates a random one, which only suits tests and throwaway deployments.
func NewService(hexKey string) (Service, error) {
	key := make([]byte, keySize)
	if hexKey == "" {
		if _, err := io.ReadFull(rand.Reader, key); err != nil {
			return nil, err
		}
	} else {
		decoded, err := hex.DecodeString(hexKey)
		if err != nil {
			return nil, fmt.Errorf("encryption key must be a valid hex string: %w", err)
		}
		if len(decoded) != keySize {
			return nil, fmt.Errorf("encryption key must be exactly %d bytes (%d hex characters) long for AES-256", keySize, keySize*2)
		}
		key = decoded
	}

	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	return &service{
		keys:    map[int]cipher.AEAD{1: gcm},
		current: 1,
	}, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

func (s *service) Encrypt(plaintext []byte) (string, error) {
	s.mu.RLock()
	version, gcm := s.current, s.keys[s.current]
	s.mu.RUnlock()

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}
	sealed := gcm.Seal(nonce, nonce, plaintext, nil)
	return "v" + strconv.Itoa(version) + ":" + base64.StdEncoding.EncodeToString(sealed), nil
}

func (s *service) Decrypt(encoded string) ([]byte, error) {
	prefix, body, ok := strings.Cut(encoded, ":")
	if !ok || !strings.HasPrefix(prefix, "v") {
		return nil, ErrMalformedCiphertext
	}
	version, err := strconv.Atoi(prefix[1:])
	if err != nil {
		return nil, ErrMalformedCiphertext
	}

	s.mu.RLock()
	gcm, ok := s.keys[version]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrUnknownKey
	}

	ciphertext, err := base64.StdEncoding.DecodeString(body)
	if err != nil {
		return nil, ErrMalformedCiphertext
	}
	if len(ciphertext) < gcm.NonceSize() {
		return nil, ErrMalformedCiphertext
	}
	nonce, ciphertext := ciphertext[:gcm.NonceSize()], ciphertext[gcm.NonceSize():]
	return gcm.Open(nil, nonce, ciphertext, nil)
}

func (s *service) RotateKey() error {
	key := make([]byte, keySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return err
	}
	gcm, err := newGCM(key)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.current++
	s.keys[s.current] = gcm
	return nil
}

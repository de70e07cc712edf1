// Package crypto provides vault keypair generation and password-based
// sealing of the vault key store at rest.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// pbkdf2Iterations is the OWASP-recommended minimum for HMAC-SHA256.
	pbkdf2Iterations = 480_000
	// saltLen is the random salt length in bytes.
	saltLen = 16
	// aesKeyLen is the derived AES-256 key length.
	aesKeyLen = 32
	// currentVersion is the sealed-blob JSON schema version.
	currentVersion = 1
)

// sealedBlobJSON is the on-disk format for a sealed payload.
type sealedBlobJSON struct {
	Version    int    `json:"version"`
	Salt       string `json:"salt"`       // base64 standard encoding
	Nonce      string `json:"nonce"`      // base64 standard encoding
	Ciphertext string `json:"ciphertext"` // base64 standard encoding
}

// SealBlob encrypts plaintext with a password using PBKDF2-HMAC-SHA256 key
// derivation and AES-256-GCM authenticated encryption. It returns a JSON
// document suitable for writing to disk or object storage.
func SealBlob(plaintext []byte, password string) ([]byte, error) {
	s, err := NewSealer(password)
	if err != nil {
		return nil, err
	}
	return s.Seal(plaintext)
}

// OpenBlob decrypts a document produced by SealBlob.
func OpenBlob(sealed []byte, password string) ([]byte, error) {
	s, err := NewSealer(password)
	if err != nil {
		return nil, err
	}
	return s.Open(sealed)
}

// maxCachedKeys bounds the per-salt cipher cache of a Sealer.
const maxCachedKeys = 8

// Sealer seals and opens blobs under one password, deriving each salt's key
// once. Seal reuses a single salt with a fresh nonce per call, so a process
// that rewrites the same blob pays for one PBKDF2 derivation instead of one
// per read and write. A Sealer is safe for concurrent use.
type Sealer struct {
	password string

	mu      sync.Mutex
	salt    []byte
	ciphers map[string]cipher.AEAD
	derived int
}

// NewSealer creates a Sealer for password.
func NewSealer(password string) (*Sealer, error) {
	if password == "" {
		return nil, errors.New("crypto: password must not be empty")
	}
	return &Sealer{password: password, ciphers: make(map[string]cipher.AEAD)}, nil
}

// Seal encrypts plaintext into a sealed JSON document.
func (s *Sealer) Seal(plaintext []byte) ([]byte, error) {
	s.mu.Lock()
	if s.salt == nil {
		salt := make([]byte, saltLen)
		if _, err := rand.Read(salt); err != nil {
			s.mu.Unlock()
			return nil, fmt.Errorf("crypto: generating salt: %w", err)
		}
		s.salt = salt
	}
	salt := s.salt
	gcm, err := s.cipherLocked(salt)
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("crypto: generating nonce: %w", err)
	}

	out := sealedBlobJSON{
		Version:    currentVersion,
		Salt:       base64.StdEncoding.EncodeToString(salt),
		Nonce:      base64.StdEncoding.EncodeToString(nonce),
		Ciphertext: base64.StdEncoding.EncodeToString(gcm.Seal(nil, nonce, plaintext, nil)),
	}

	return json.MarshalIndent(out, "", "  ")
}

// Open decrypts a sealed JSON document.
func (s *Sealer) Open(sealed []byte) ([]byte, error) {
	var stored sealedBlobJSON
	if err := json.Unmarshal(sealed, &stored); err != nil {
		return nil, fmt.Errorf("crypto: parsing sealed blob: %w", err)
	}
	if stored.Version != currentVersion {
		return nil, fmt.Errorf("crypto: unsupported version %d", stored.Version)
	}

	salt, err := base64.StdEncoding.DecodeString(stored.Salt)
	if err != nil {
		return nil, fmt.Errorf("crypto: decoding salt: %w", err)
	}
	nonce, err := base64.StdEncoding.DecodeString(stored.Nonce)
	if err != nil {
		return nil, fmt.Errorf("crypto: decoding nonce: %w", err)
	}
	ciphertext, err := base64.StdEncoding.DecodeString(stored.Ciphertext)
	if err != nil {
		return nil, fmt.Errorf("crypto: decoding ciphertext: %w", err)
	}

	s.mu.Lock()
	gcm, err := s.cipherLocked(salt)
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	if len(nonce) != gcm.NonceSize() {
		return nil, fmt.Errorf("crypto: nonce length %d, want %d", len(nonce), gcm.NonceSize())
	}

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("crypto: decryption failed (wrong password?): %w", err)
	}
	return plaintext, nil
}

// cipherLocked returns the cached AEAD for salt, deriving it on first use.
// s.mu must be held.
func (s *Sealer) cipherLocked(salt []byte) (cipher.AEAD, error) {
	if gcm, ok := s.ciphers[string(salt)]; ok {
		return gcm, nil
	}
	gcm, err := newGCM(s.password, salt)
	if err != nil {
		return nil, err
	}
	s.derived++
	if len(s.ciphers) >= maxCachedKeys {
		clear(s.ciphers)
	}
	s.ciphers[string(salt)] = gcm
	return gcm, nil
}

// IsSealed reports whether data looks like a SealBlob document.
func IsSealed(data []byte) bool {
	var probe struct {
		Version    int    `json:"version"`
		Ciphertext string `json:"ciphertext"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return false
	}
	return probe.Version > 0 && probe.Ciphertext != ""
}

func newGCM(password string, salt []byte) (cipher.AEAD, error) {
	derivedKey := pbkdf2.Key([]byte(password), salt, pbkdf2Iterations, aesKeyLen, sha256.New)

	block, err := aes.NewCipher(derivedKey)
	if err != nil {
		return nil, fmt.Errorf("crypto: creating cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("crypto: creating GCM: %w", err)
	}
	return gcm, nil
}

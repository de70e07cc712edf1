// Package vault persists vault secret keys as a single serialized mapping
// from market id to secret bytes.
//
// Every Save is a read-modify-write of the whole mapping, serialized by a
// mutex, and the new mapping replaces the old one atomically through the
// configured Backend. A process must own the mapping exclusively: two
// processes saving through different Store values lose each other's updates.
package vault

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/alanyoungcy/boldengine/internal/crypto"
	"github.com/alanyoungcy/boldengine/internal/domain"
)

// Backend loads and atomically replaces the serialized mapping. Load returns
// domain.ErrNotFound when nothing has been stored yet.
type Backend interface {
	Load(ctx context.Context) ([]byte, error)
	Replace(ctx context.Context, data []byte) error
	Name() string
}

// Store implements domain.VaultKeyStore on top of a Backend.
type Store struct {
	backend Backend
	sealer  *crypto.Sealer
	logger  *slog.Logger

	mu sync.Mutex
}

// Option configures a Store.
type Option func(*Store)

// WithPassword seals the mapping at rest with the given password. The key is
// derived once per Store and reused for every read and write. An empty
// password leaves the mapping unsealed.
func WithPassword(password string) Option {
	return func(s *Store) { s.sealer, _ = crypto.NewSealer(password) }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// NewStore creates a Store writing through backend.
func NewStore(backend Backend, opts ...Option) *Store {
	s := &Store{
		backend: backend,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(
		slog.String("component", "vault_store"),
		slog.String("backend", backend.Name()),
	)
	return s
}

// Save writes or overwrites the secret for marketID.
func (s *Store) Save(ctx context.Context, marketID string, secret []byte) error {
	if marketID == "" {
		return errors.New("vault: market id must not be empty")
	}
	if len(secret) == 0 {
		return errors.New("vault: secret must not be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	keys, err := s.read(ctx)
	if err != nil {
		return fmt.Errorf("vault: save %s: %w", marketID, err)
	}

	stored := make([]byte, len(secret))
	copy(stored, secret)
	keys[marketID] = stored

	if err := s.write(ctx, keys); err != nil {
		return fmt.Errorf("vault: save %s: %w", marketID, err)
	}

	s.logger.InfoContext(ctx, "saved vault key", slog.String("market_id", marketID))
	return nil
}

// Get returns the secret for marketID or domain.ErrNotFound.
func (s *Store) Get(ctx context.Context, marketID string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys, err := s.read(ctx)
	if err != nil {
		return nil, fmt.Errorf("vault: get %s: %w", marketID, err)
	}
	secret, ok := keys[marketID]
	if !ok {
		return nil, fmt.Errorf("vault: get %s: %w", marketID, domain.ErrNotFound)
	}
	return secret, nil
}

// MarketIDs lists every market with a stored key, sorted.
func (s *Store) MarketIDs(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys, err := s.read(ctx)
	if err != nil {
		return nil, fmt.Errorf("vault: list: %w", err)
	}
	ids := make([]string, 0, len(keys))
	for id := range keys {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *Store) read(ctx context.Context) (map[string][]byte, error) {
	data, err := s.backend.Load(ctx)
	if errors.Is(err, domain.ErrNotFound) {
		return map[string][]byte{}, nil
	}
	if err != nil {
		return nil, err
	}

	if crypto.IsSealed(data) {
		if s.sealer == nil {
			return nil, errors.New("key store is sealed but no password is configured")
		}
		if data, err = s.sealer.Open(data); err != nil {
			return nil, err
		}
	}
	return decodeMapping(data)
}

func (s *Store) write(ctx context.Context, keys map[string][]byte) error {
	data, err := encodeMapping(keys)
	if err != nil {
		return err
	}
	if s.sealer != nil {
		if data, err = s.sealer.Seal(data); err != nil {
			return err
		}
	}
	return s.backend.Replace(ctx, data)
}

// encodeMapping renders secrets as arrays of numbers rather than base64 so
// the layout stays compatible with existing key files.
func encodeMapping(keys map[string][]byte) ([]byte, error) {
	out := make(map[string][]int, len(keys))
	for id, secret := range keys {
		nums := make([]int, len(secret))
		for i, b := range secret {
			nums[i] = int(b)
		}
		out[id] = nums
	}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode key mapping: %w", err)
	}
	return data, nil
}

func decodeMapping(data []byte) (map[string][]byte, error) {
	if len(data) == 0 {
		return map[string][]byte{}, nil
	}
	var raw map[string][]int
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode key mapping: %w", err)
	}
	keys := make(map[string][]byte, len(raw))
	for id, nums := range raw {
		secret := make([]byte, len(nums))
		for i, n := range nums {
			if n < 0 || n > 255 {
				return nil, fmt.Errorf("decode key mapping: market %s byte %d out of range: %d", id, i, n)
			}
			secret[i] = byte(n)
		}
		keys[id] = secret
	}
	return keys, nil
}

// Compile-time interface check.
var _ domain.VaultKeyStore = (*Store)(nil)

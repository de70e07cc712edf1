package main

import (
	"bytes"
	"context"
	"errors"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/boldengine/internal/crypto"
	"github.com/alanyoungcy/boldengine/internal/domain"
)

type mapKeys map[string][]byte

func (m mapKeys) Save(_ context.Context, id string, secret []byte) error {
	m[id] = secret
	return nil
}

func (m mapKeys) Get(_ context.Context, id string) ([]byte, error) {
	s, ok := m[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return s, nil
}

func (m mapKeys) MarketIDs(context.Context) ([]string, error) {
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

type mapMarkets map[string]domain.Market

func (m mapMarkets) ListUnprovisioned(context.Context) ([]domain.Market, error) { return nil, nil }
func (m mapMarkets) SetVault(context.Context, string, string) error            { return nil }
func (m mapMarkets) GetByID(_ context.Context, id string) (domain.Market, error) {
	mk, ok := m[id]
	if !ok {
		return domain.Market{}, domain.ErrNotFound
	}
	return mk, nil
}

func newKey(t *testing.T) *crypto.VaultKeypair {
	t.Helper()
	kp, err := crypto.GenerateVaultKeypair()
	require.NoError(t, err)
	return kp
}

func TestVerifyKeys(t *testing.T) {
	good, other, orphan := newKey(t), newKey(t), newKey(t)
	goodAddr, otherAddr := good.Address(), other.Address()

	keys := mapKeys{
		"m-good":    good.Secret(),
		"m-swapped": good.Secret(),
		"m-orphan":  orphan.Secret(),
		"m-broken":  []byte{1, 2, 3},
	}
	markets := mapMarkets{
		"m-good":    {ID: "m-good", VaultCreated: true, VaultAddress: &goodAddr},
		"m-swapped": {ID: "m-swapped", VaultCreated: true, VaultAddress: &otherAddr},
	}

	var out bytes.Buffer
	err := verifyKeys(context.Background(), keys, markets, &out)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errMismatch))
	assert.Contains(t, err.Error(), "3 of 4")

	text := out.String()
	assert.Contains(t, text, "m-broken")
	assert.Contains(t, text, "invalid_key")
	assert.Contains(t, text, "orphaned")
	assert.Contains(t, text, "mismatch")
	assert.NotContains(t, text, string(good.Secret()))
}

func TestVerifyKeys_AllMatch(t *testing.T) {
	kp := newKey(t)
	addr := kp.Address()

	var out bytes.Buffer
	err := verifyKeys(context.Background(),
		mapKeys{"m1": kp.Secret()},
		mapMarkets{"m1": {ID: "m1", VaultCreated: true, VaultAddress: &addr}},
		&out,
	)
	require.NoError(t, err)
	assert.Contains(t, out.String(), addr)
}

func TestVerifyOne_Unpublished(t *testing.T) {
	kp := newKey(t)
	state, detail := verifyOne(context.Background(),
		mapKeys{"m1": kp.Secret()},
		mapMarkets{"m1": {ID: "m1"}},
		"m1",
	)
	assert.Equal(t, "unpublished", state)
	assert.Equal(t, kp.Address(), detail)
}

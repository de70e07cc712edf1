package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSealOpenBlob(t *testing.T) {
	plaintext := []byte(`{"m1":[1,2,3]}`)

	sealed, err := SealBlob(plaintext, "hunter2")
	require.NoError(t, err)
	assert.True(t, IsSealed(sealed))
	assert.NotContains(t, string(sealed), `"m1"`)

	opened, err := OpenBlob(sealed, "hunter2")
	require.NoError(t, err)
	assert.Equal(t, plaintext, opened)
}

func TestOpenBlob_WrongPassword(t *testing.T) {
	sealed, err := SealBlob([]byte("secret"), "right")
	require.NoError(t, err)

	_, err = OpenBlob(sealed, "wrong")
	assert.Error(t, err)
}

func TestSealBlob_EmptyPassword(t *testing.T) {
	_, err := SealBlob([]byte("x"), "")
	assert.Error(t, err)

	_, err = OpenBlob([]byte("{}"), "")
	assert.Error(t, err)
}

func TestIsSealed_PlainMapping(t *testing.T) {
	assert.False(t, IsSealed([]byte(`{"market-1":[1,2,3]}`)))
	assert.False(t, IsSealed([]byte(`not json`)))
}

func TestSealer_DerivesOncePerSalt(t *testing.T) {
	s, err := NewSealer("hunter2")
	require.NoError(t, err)

	first, err := s.Seal([]byte("one"))
	require.NoError(t, err)
	second, err := s.Seal([]byte("two"))
	require.NoError(t, err)
	assert.NotEqual(t, first, second)

	for range 3 {
		got, err := s.Open(second)
		require.NoError(t, err)
		assert.Equal(t, []byte("two"), got)
	}
	assert.Equal(t, 1, s.derived)

	// A blob written elsewhere has its own salt.
	foreign, err := SealBlob([]byte("three"), "hunter2")
	require.NoError(t, err)
	got, err := s.Open(foreign)
	require.NoError(t, err)
	assert.Equal(t, []byte("three"), got)
	_, err = s.Open(foreign)
	require.NoError(t, err)
	assert.Equal(t, 2, s.derived)
}

func TestSealer_WrongPassword(t *testing.T) {
	right, err := NewSealer("right")
	require.NoError(t, err)
	sealed, err := right.Seal([]byte("secret"))
	require.NoError(t, err)

	wrong, err := NewSealer("wrong")
	require.NoError(t, err)
	_, err = wrong.Open(sealed)
	assert.Error(t, err)

	_, err = NewSealer("")
	assert.Error(t, err)
}

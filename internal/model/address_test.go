package model

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeAddress(t *testing.T) {
	got, err := NormalizeAddress("  0x52908400098527886E0F7030069857D2E4169EE7 ")
	require.NoError(t, err)
	assert.Equal(t, "0x52908400098527886e0f7030069857d2e4169ee7", got)

	got, err = NormalizeAddress("52908400098527886e0f7030069857d2e4169ee7")
	require.NoError(t, err)
	assert.Equal(t, "0x52908400098527886e0f7030069857d2e4169ee7", got)

	_, err = NormalizeAddress("0x1234")
	assert.Error(t, err)
	_, err = NormalizeAddress("")
	assert.Error(t, err)
}

func TestSameAddress(t *testing.T) {
	assert.True(t, SameAddress("0x52908400098527886E0F7030069857D2E4169EE7", "0x52908400098527886e0f7030069857d2e4169ee7"))
	assert.False(t, SameAddress("0x52908400098527886E0F7030069857D2E4169EE7", "0x0000000000000000000000000000000000000000"))
	assert.False(t, SameAddress("bad", "bad"))
}

func TestAmount(t *testing.T) {
	a, err := ParseAmount(" 123 ")
	require.NoError(t, err)
	assert.Equal(t, "123", a.String())
	assert.True(t, a.IsSet())

	_, err = ParseAmount("1.5")
	assert.Error(t, err)
	_, err = ParseAmount("")
	assert.Error(t, err)

	var unset Amount
	assert.False(t, unset.IsSet())
	assert.Equal(t, "0", unset.String())
	assert.Equal(t, -1, unset.Cmp(a))

	// Big returns a copy.
	b := a.Big()
	b.SetInt64(0)
	assert.Equal(t, "123", a.String())
}

func TestNotFoundError(t *testing.T) {
	err := NewNotFound("round", 10, "0xabc")
	assert.Equal(t, "round not found: 10/0xabc", err.Error())
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.True(t, IsNotFound(errors.Join(errors.New("context"), err)))
	assert.False(t, IsNotFound(errors.New("other")))
}

package codec

import (
	"encoding/base64"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCodec(t *testing.T) *AmountCodec {
	t.Helper()
	c, err := NewAmountCodec("test-master-key", "test-salt")
	require.NoError(t, err)
	return c
}

func TestNewAmountCodecRequiresKey(t *testing.T) {
	_, err := NewAmountCodec("", "salt")
	require.Error(t, err)
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	c := newTestCodec(t)

	for _, plaintext := range []string{
		"10.00",
		"0.01",
		"-5.25",
		"999999999999999.99",
		"13000000",
		"0",
	} {
		encrypted, err := c.Encrypt(plaintext)
		require.NoError(t, err)
		require.NotEqual(t, plaintext, encrypted)

		decrypted, err := c.Decrypt(encrypted)
		require.NoError(t, err)
		assert.Equal(t, plaintext, decrypted)
	}
}

func TestEncryptProducesFreshNonce(t *testing.T) {
	c := newTestCodec(t)

	first, err := c.Encrypt("42.00")
	require.NoError(t, err)
	second, err := c.Encrypt("42.00")
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
}

func TestDecryptFailsClosedOnTamper(t *testing.T) {
	c := newTestCodec(t)

	encrypted, err := c.Encrypt("100.00")
	require.NoError(t, err)

	payload, err := base64.StdEncoding.DecodeString(encrypted)
	require.NoError(t, err)

	// Flip one byte at every position; decryption must never yield a value.
	for i := range payload {
		tampered := make([]byte, len(payload))
		copy(tampered, payload)
		tampered[i] ^= 0x01

		_, err := c.Decrypt(base64.StdEncoding.EncodeToString(tampered))
		assert.ErrorIs(t, err, ErrInvalidCiphertext, "byte %d", i)
	}
}

func TestDecryptRejectsMalformedInput(t *testing.T) {
	c := newTestCodec(t)

	_, err := c.Decrypt("not-base64!!!")
	assert.ErrorIs(t, err, ErrInvalidCiphertext)

	_, err = c.Decrypt(base64.StdEncoding.EncodeToString([]byte("short")))
	assert.ErrorIs(t, err, ErrInvalidCiphertext)

	_, err = c.Decrypt("")
	assert.ErrorIs(t, err, ErrInvalidCiphertext)
}

func TestDecryptRejectsForeignKey(t *testing.T) {
	c := newTestCodec(t)
	other, err := NewAmountCodec("different-master-key", "test-salt")
	require.NoError(t, err)

	encrypted, err := c.Encrypt("77.50")
	require.NoError(t, err)

	_, err = other.Decrypt(encrypted)
	assert.ErrorIs(t, err, ErrInvalidCiphertext)
}

func TestAmountHelpers(t *testing.T) {
	c := newTestCodec(t)

	amount := decimal.RequireFromString("1234.56")
	encrypted, err := c.EncryptAmount(amount)
	require.NoError(t, err)

	decrypted, err := c.DecryptAmount(encrypted)
	require.NoError(t, err)
	assert.True(t, amount.Equal(decrypted), "want %s got %s", amount, decrypted)
}

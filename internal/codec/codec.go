// Package codec provides authenticated encryption for monetary amounts.
//
// Amounts are stored as base64(nonce || ciphertext) produced by AES-256-GCM
// with a fresh random nonce per call. Decryption fails closed: any structural
// or authentication error yields an error, never a wrong plaintext.
package codec

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/pbkdf2"
)

const (
	keyIterations = 100000
	keyLength     = 32
)

// ErrInvalidCiphertext is returned when a ciphertext cannot be decoded or
// fails authentication.
var ErrInvalidCiphertext = errors.New("invalid ciphertext")

// AmountCodec encrypts and decrypts monetary amount strings.
type AmountCodec struct {
	aead cipher.AEAD
}

// NewAmountCodec derives the service encryption key from the master key and
// salt and prepares the AEAD. The key never changes for the process lifetime.
func NewAmountCodec(masterKey, salt string) (*AmountCodec, error) {
	if masterKey == "" {
		return nil, errors.New("master key is required")
	}

	dataKey := pbkdf2.Key([]byte(masterKey), []byte(salt), keyIterations, keyLength, sha256.New)

	block, err := aes.NewCipher(dataKey)
	if err != nil {
		return nil, fmt.Errorf("cipher creation failed: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("GCM creation failed: %w", err)
	}

	return &AmountCodec{aead: gcm}, nil
}

// Encrypt encrypts a plaintext decimal string.
func (c *AmountCodec) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("nonce generation failed: %w", err)
	}

	ciphertext := c.aead.Seal(nil, nonce, []byte(plaintext), nil)

	payload := make([]byte, 0, len(nonce)+len(ciphertext))
	payload = append(payload, nonce...)
	payload = append(payload, ciphertext...)

	return base64.StdEncoding.EncodeToString(payload), nil
}

// Decrypt recovers the plaintext decimal string from an encrypted payload.
func (c *AmountCodec) Decrypt(encrypted string) (string, error) {
	payload, err := base64.StdEncoding.DecodeString(encrypted)
	if err != nil {
		return "", fmt.Errorf("%w: base64 decode failed", ErrInvalidCiphertext)
	}

	nonceSize := c.aead.NonceSize()
	if len(payload) <= nonceSize {
		return "", fmt.Errorf("%w: payload too short", ErrInvalidCiphertext)
	}

	nonce, ciphertext := payload[:nonceSize], payload[nonceSize:]
	plaintext, err := c.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("%w: authentication failed", ErrInvalidCiphertext)
	}

	return string(plaintext), nil
}

// EncryptAmount encrypts a decimal amount using its canonical string form.
func (c *AmountCodec) EncryptAmount(amount decimal.Decimal) (string, error) {
	return c.Encrypt(amount.String())
}

// DecryptAmount decrypts an encrypted payload back into a decimal amount.
func (c *AmountCodec) DecryptAmount(encrypted string) (decimal.Decimal, error) {
	plaintext, err := c.Decrypt(encrypted)
	if err != nil {
		return decimal.Zero, err
	}

	amount, err := decimal.NewFromString(plaintext)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: not a decimal amount", ErrInvalidCiphertext)
	}

	return amount, nil
}

package internal

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"gitee.com/golang-module/dongle"
	"golang.org/x/crypto/hkdf"
	"io"
	"strings"
)

const storeKeyInfo = "yappy-secure-store"

// Encryptor seals values kept in the secure store with AES-256-GCM.
type Encryptor struct {
	aead cipher.AEAD
}

// NewEncryptor derives the store key from the master secret with HKDF-SHA256.
func NewEncryptor(masterKey string) (*Encryptor, error) {
	if masterKey == "" {
		return nil, errors.New("master key cannot be empty")
	}
	reader := hkdf.New(sha256.New, []byte(masterKey), nil, []byte(storeKeyInfo))
	key := make([]byte, 32)
	if _, err := io.ReadFull(reader, key); err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &Encryptor{aead: aead}, nil
}

// Seal encrypts plain text; the nonce is prepended to the result.
func (e *Encryptor) Seal(plainText []byte) ([]byte, error) {
	nonce := make([]byte, e.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("nonce: %w", err)
	}
	return e.aead.Seal(nonce, nonce, plainText, nil), nil
}

// Open decrypts a value produced by Seal.
func (e *Encryptor) Open(sealed []byte) ([]byte, error) {
	size := e.aead.NonceSize()
	if len(sealed) < size {
		return nil, errors.New("sealed value too short")
	}
	plainText, err := e.aead.Open(nil, sealed[:size], sealed[size:], nil)
	if err != nil {
		return nil, fmt.Errorf("open sealed value: %w", err)
	}
	return plainText, nil
}

// DecryptConfig decrypts a remote configuration payload: AES/ECB with PKCS5 padding,
// cipher text in base64url. The key is used as is when it has an AES key length,
// otherwise it is expected in base64url.
func DecryptConfig(encryptedData, encryptionKey string) (plainText []byte, err error) {
	// unpadding a block decrypted with the wrong key can panic
	defer func() {
		if r := recover(); r != nil {
			plainText, err = nil, fmt.Errorf("decrypt: %v", r)
		}
	}()

	key, err := configKey(encryptionKey)
	if err != nil {
		return nil, err
	}

	decoded := dongle.Decode.FromString(normalizeBase64URL(encryptedData)).ByBase64URL()
	if decoded.Error != nil {
		return nil, fmt.Errorf("decode data: %w", decoded.Error)
	}
	cipherText := decoded.ToBytes()
	if len(cipherText) == 0 || len(cipherText)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("invalid cipher text length %d", len(cipherText))
	}

	c := dongle.NewCipher()
	c.SetMode(dongle.ECB)
	c.SetPadding(dongle.PKCS7)
	c.SetKey(key)

	decrypted := dongle.Decrypt.FromRawBytes(cipherText).ByAes(c)
	if decrypted.Error != nil {
		return nil, fmt.Errorf("decrypt: %w", decrypted.Error)
	}
	plainText = decrypted.ToBytes()
	if len(plainText) == 0 {
		return nil, errors.New("decrypt: empty result")
	}
	return plainText, nil
}

// EncryptConfig is the inverse of DecryptConfig, used by tools and tests.
func EncryptConfig(plainText []byte, encryptionKey string) (string, error) {
	key, err := configKey(encryptionKey)
	if err != nil {
		return "", err
	}
	c := dongle.NewCipher()
	c.SetMode(dongle.ECB)
	c.SetPadding(dongle.PKCS7)
	c.SetKey(key)

	encrypted := dongle.Encrypt.FromBytes(plainText).ByAes(c)
	if encrypted.Error != nil {
		return "", fmt.Errorf("encrypt: %w", encrypted.Error)
	}
	encoded := dongle.Encode.FromBytes(encrypted.ToRawBytes()).ByBase64URL()
	if encoded.Error != nil {
		return "", fmt.Errorf("encode: %w", encoded.Error)
	}
	return encoded.ToString(), nil
}

func configKey(encryptionKey string) ([]byte, error) {
	if isAesKeyLength(len(encryptionKey)) {
		return []byte(encryptionKey), nil
	}
	decoded := dongle.Decode.FromString(normalizeBase64URL(encryptionKey)).ByBase64URL()
	if decoded.Error != nil {
		return nil, fmt.Errorf("decode key: %w", decoded.Error)
	}
	key := decoded.ToBytes()
	if !isAesKeyLength(len(key)) {
		return nil, fmt.Errorf("invalid key length %d", len(key))
	}
	return key, nil
}

func isAesKeyLength(n int) bool {
	return n == 16 || n == 24 || n == 32
}

// normalizeBase64URL accepts standard or url alphabet, with or without padding.
func normalizeBase64URL(value string) string {
	value = strings.TrimSpace(value)
	value = strings.NewReplacer("+", "-", "/", "_", "\n", "", "\r", "").Replace(value)
	value = strings.TrimRight(value, "=")
	if rest := len(value) % 4; rest != 0 {
		value += strings.Repeat("=", 4-rest)
	}
	return value
}

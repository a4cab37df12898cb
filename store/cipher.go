package store

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"

	"golang.org/x/crypto/scrypt"
)

// ErrCipherText is returned when a persisted blob cannot be authenticated or
// decrypted. Callers of the store never see it; Store folds it into the
// "no accounts" degradation path.
var ErrCipherText = errors.New("registry blob unreadable")

const (
	cipherSaltSize = 16
	scryptN        = 1 << 15
	scryptR        = 8
	scryptP        = 1
	keySize        = 32
)

// registryCipher seals and opens the serialized account registry with
// AES-256-GCM. The key is stretched from a passphrase embedded in the client;
// this deters casual inspection of local storage only and is a documented
// limitation, not a security boundary.
type registryCipher struct {
	passphrase []byte
}

func newRegistryCipher(passphrase string) *registryCipher {
	return &registryCipher{passphrase: []byte(passphrase)}
}

func (c *registryCipher) deriveKey(salt []byte) ([]byte, error) {
	return scrypt.Key(c.passphrase, salt, scryptN, scryptR, scryptP, keySize)
}

// Seal encrypts plaintext into salt||nonce||ciphertext. A fresh salt and nonce
// are drawn per write, so identical registries never produce identical blobs.
func (c *registryCipher) Seal(plaintext []byte) ([]byte, error) {
	salt := make([]byte, cipherSaltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, err
	}

	key, err := c.deriveKey(salt)
	if err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}

	out := make([]byte, 0, cipherSaltSize+gcm.NonceSize()+len(plaintext)+gcm.Overhead())
	out = append(out, salt...)
	out = append(out, nonce...)
	return gcm.Seal(out, nonce, plaintext, nil), nil
}

// Open decrypts a blob produced by Seal. Any structural or authentication
// failure maps to ErrCipherText.
func (c *registryCipher) Open(blob []byte) ([]byte, error) {
	if len(blob) < cipherSaltSize {
		return nil, ErrCipherText
	}
	salt := blob[:cipherSaltSize]

	key, err := c.deriveKey(salt)
	if err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	rest := blob[cipherSaltSize:]
	if len(rest) < gcm.NonceSize() {
		return nil, ErrCipherText
	}
	nonce, ciphertext := rest[:gcm.NonceSize()], rest[gcm.NonceSize():]

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrCipherText
	}
	return plaintext, nil
}

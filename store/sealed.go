package store

import (
	"crypto/cipher"
	"crypto/rand"

	"github.com/pkg/errors"
	"golang.org/x/crypto/chacha20poly1305"
)

// sealedBox encrypts sensitive answer values at rest. The nonce is
// prepended to the ciphertext.
type sealedBox struct {
	aead cipher.AEAD
}

func newSealedBox(key []byte) (*sealedBox, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, errors.Wrap(err, "sealed_box.key")
	}
	return &sealedBox{aead}, nil
}

func (b *sealedBox) Seal(plaintext string) ([]byte, error) {
	nonce := make([]byte, b.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, errors.Wrap(err, "sealed_box.nonce")
	}
	return b.aead.Seal(nonce, nonce, []byte(plaintext), nil), nil
}

func (b *sealedBox) Open(sealed []byte) (string, error) {
	if len(sealed) < b.aead.NonceSize() {
		return "", errors.New("sealed_box.short_payload")
	}
	nonce, ciphertext := sealed[:b.aead.NonceSize()], sealed[b.aead.NonceSize():]
	plaintext, err := b.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", errors.Wrap(err, "sealed_box.open")
	}
	return string(plaintext), nil
}

package session

import (
	"crypto/rand"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

// ErrCryptoFailure is returned for malformed ciphertext or a failed AEAD
// open. Always a hard auth failure, never retryable.
var ErrCryptoFailure = errors.New("crypto failure")

const sealVersion1 = 1

// seal encrypts plaintext under key and prefixes the envelope with the key
// id, so resolution can pick the right key after a rotation.
//
// Envelope layout: version(1) | kidLen(1) | kid | nonce(24) | ciphertext.
func seal(key *Key, plaintext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(key.Material)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCryptoFailure, err)
	}

	kid := []byte(key.KeyID)
	if len(kid) == 0 || len(kid) > 255 {
		return nil, fmt.Errorf("%w: invalid key id length", ErrCryptoFailure)
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}

	out := make([]byte, 0, 2+len(kid)+len(nonce)+len(plaintext)+aead.Overhead())
	out = append(out, sealVersion1, byte(len(kid)))
	out = append(out, kid...)
	out = append(out, nonce...)
	return aead.Seal(out, nonce, plaintext, kid), nil
}

// openKeyID extracts the key id from an envelope without decrypting.
func openKeyID(envelope []byte) (string, error) {
	if len(envelope) < 2 || envelope[0] != sealVersion1 {
		return "", fmt.Errorf("%w: bad envelope header", ErrCryptoFailure)
	}
	kidLen := int(envelope[1])
	if kidLen == 0 || len(envelope) < 2+kidLen {
		return "", fmt.Errorf("%w: truncated envelope", ErrCryptoFailure)
	}
	return string(envelope[2 : 2+kidLen]), nil
}

// open decrypts an envelope under key, verifying the bound key id.
func open(key *Key, envelope []byte) ([]byte, error) {
	kid, err := openKeyID(envelope)
	if err != nil {
		return nil, err
	}
	if kid != key.KeyID {
		return nil, fmt.Errorf("%w: key id mismatch", ErrCryptoFailure)
	}

	aead, err := chacha20poly1305.NewX(key.Material)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCryptoFailure, err)
	}

	body := envelope[2+len(kid):]
	if len(body) < aead.NonceSize()+aead.Overhead() {
		return nil, fmt.Errorf("%w: truncated envelope", ErrCryptoFailure)
	}

	nonce := body[:aead.NonceSize()]
	ciphertext := body[aead.NonceSize():]

	plaintext, err := aead.Open(nil, nonce, ciphertext, []byte(kid))
	if err != nil {
		return nil, fmt.Errorf("%w: aead open failed", ErrCryptoFailure)
	}
	return plaintext, nil
}

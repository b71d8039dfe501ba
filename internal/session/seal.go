package session

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/nacl/secretbox"
)

const nonceSize = 24

var errSealedTooShort = errors.New("session: sealed payload too short")

// sealer encrypts persisted session payloads so bearer tokens never sit in
// the database in clear.
type sealer struct {
	key [32]byte
}

func newSealer(key []byte) (*sealer, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("session: encryption key must be 32 bytes, got %d", len(key))
	}
	s := &sealer{}
	copy(s.key[:], key)
	return s, nil
}

func (s *sealer) seal(plain []byte) ([]byte, error) {
	var nonce [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, fmt.Errorf("session: nonce: %w", err)
	}
	return secretbox.Seal(nonce[:], plain, &nonce, &s.key), nil
}

func (s *sealer) open(sealed []byte) ([]byte, error) {
	if len(sealed) < nonceSize+secretbox.Overhead {
		return nil, errSealedTooShort
	}
	var nonce [nonceSize]byte
	copy(nonce[:], sealed[:nonceSize])
	plain, ok := secretbox.Open(nil, sealed[nonceSize:], &nonce, &s.key)
	if !ok {
		return nil, errors.New("session: payload authentication failed")
	}
	return plain, nil
}

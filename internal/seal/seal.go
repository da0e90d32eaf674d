// Package seal encrypts raw argument documents so held actions can still be
// executed after their persisted arguments were redacted.
package seal

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/viant/gatekeep/model"
	"golang.org/x/crypto/nacl/secretbox"
)

const (
	keySize   = 32
	nonceSize = 24
)

var errOpen = errors.New("seal: unable to open sealed document")

// Sealer seals documents with NaCl secretbox under a symmetric key.
type Sealer struct {
	key [keySize]byte
}

// ParseKey accepts a 32 byte key encoded as hex or standard base64.
func ParseKey(text string) ([]byte, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("seal: empty key")
	}
	if key, err := hex.DecodeString(text); err == nil && len(key) == keySize {
		return key, nil
	}
	if key, err := base64.StdEncoding.DecodeString(text); err == nil && len(key) == keySize {
		return key, nil
	}
	return nil, fmt.Errorf("seal: key must be %d bytes encoded as hex or base64", keySize)
}

// New creates a Sealer; key must be 32 bytes.
func New(key []byte) (*Sealer, error) {
	if len(key) != keySize {
		return nil, fmt.Errorf("seal: invalid key size %d", len(key))
	}
	ret := &Sealer{}
	copy(ret.key[:], key)
	return ret, nil
}

// Seal encrypts the JSON form of doc; the nonce is prepended.
func (s *Sealer) Seal(doc map[string]interface{}) ([]byte, error) {
	plain, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("seal: %w", err)
	}
	var nonce [nonceSize]byte
	if _, err = io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, fmt.Errorf("seal: nonce: %w", err)
	}
	return secretbox.Seal(nonce[:], plain, &nonce, &s.key), nil
}

// Open decrypts a document produced by Seal.
func (s *Sealer) Open(sealed []byte) (map[string]interface{}, error) {
	if len(sealed) < nonceSize+secretbox.Overhead {
		return nil, errOpen
	}
	var nonce [nonceSize]byte
	copy(nonce[:], sealed[:nonceSize])
	plain, ok := secretbox.Open(nil, sealed[nonceSize:], &nonce, &s.key)
	if !ok {
		return nil, errOpen
	}
	var doc map[string]interface{}
	if err := model.DecodeJSON(plain, &doc); err != nil {
		return nil, fmt.Errorf("seal: %w", err)
	}
	return doc, nil
}

// Package secrets seals booking-site credentials for at-rest storage in the
// registry. The registry never stores or returns credentials in the clear;
// only the secure-config path opens the blob.
package secrets

import (
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/gorilla/securecookie"

	"github.com/example/teesched/internal/task"
)

const blobName = "task_credentials"

var ErrBadKey = errors.New("sealing keys must be 32 bytes, base64-encoded")

// Sealer authenticates and encrypts credential blobs with a hash key and a
// block key, the same key discipline used for session cookies.
type Sealer struct {
	sc *securecookie.SecureCookie
}

func NewSealer(hashKey, blockKey []byte) (*Sealer, error) {
	if len(hashKey) != 32 || len(blockKey) != 32 {
		return nil, ErrBadKey
	}
	sc := securecookie.New(hashKey, blockKey)
	sc.MaxAge(0) // sealed blobs do not expire
	return &Sealer{sc: sc}, nil
}

// NewSealerFromB64 builds a Sealer from base64-encoded key material, the
// form keys take in config files and environments.
func NewSealerFromB64(hashKeyB64, blockKeyB64 string) (*Sealer, error) {
	hk, err := base64.StdEncoding.DecodeString(hashKeyB64)
	if err != nil {
		return nil, fmt.Errorf("%w: hash key: %v", ErrBadKey, err)
	}
	bk, err := base64.StdEncoding.DecodeString(blockKeyB64)
	if err != nil {
		return nil, fmt.Errorf("%w: block key: %v", ErrBadKey, err)
	}
	return NewSealer(hk, bk)
}

func (s *Sealer) Seal(c task.Credentials) (string, error) {
	blob, err := s.sc.Encode(blobName, map[string]string{
		"u": c.Username,
		"p": c.Password,
	})
	if err != nil {
		return "", fmt.Errorf("seal credentials: %w", err)
	}
	return blob, nil
}

func (s *Sealer) Open(blob string) (task.Credentials, error) {
	m := map[string]string{}
	if err := s.sc.Decode(blobName, blob, &m); err != nil {
		return task.Credentials{}, fmt.Errorf("open credentials: %w", err)
	}
	return task.Credentials{Username: m["u"], Password: m["p"]}, nil
}

// GenerateKey returns fresh base64-encoded key material for a Sealer.
func GenerateKey() string {
	return base64.StdEncoding.EncodeToString(securecookie.GenerateRandomKey(32))
}

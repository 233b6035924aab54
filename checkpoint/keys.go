package checkpoint

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/veraison/go-cose"
)

var ErrKeyFormat = errors.New("checkpoint: expected a PEM encoded EC private key")

const pemTypeECKey = "EC PRIVATE KEY"

// LoadOrCreateKey reads the P-256 signing key at path, generating and saving a
// new one if the file does not exist.
func LoadOrCreateKey(path string) (*ecdsa.PrivateKey, error) {
	key, err := LoadKey(path)
	if errors.Is(err, fs.ErrNotExist) {
		return createKey(path)
	}
	return key, err
}

// LoadKey reads a PEM encoded EC private key.
func LoadKey(path string) (*ecdsa.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	block, _ := pem.Decode(data)
	if block == nil || block.Type != pemTypeECKey {
		return nil, fmt.Errorf("%w: %s", ErrKeyFormat, path)
	}
	key, err := x509.ParseECPrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrKeyFormat, path, err)
	}
	return key, nil
}

func createKey(path string) (*ecdsa.PrivateKey, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, err
	}
	der, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		return nil, err
	}
	data := pem.EncodeToMemory(&pem.Block{Type: pemTypeECKey, Bytes: der})
	if err = os.WriteFile(path, data, 0o600); err != nil {
		return nil, err
	}
	return key, nil
}

// NewCoseSigner returns an ES256 signer for key.
func NewCoseSigner(key *ecdsa.PrivateKey) (cose.Signer, error) {
	return cose.NewSigner(cose.AlgorithmES256, key)
}

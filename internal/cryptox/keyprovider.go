package cryptox

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/peertutor/tutorchat/internal/common"
)

// KeyProvider supplies the process-wide encryption key.
type KeyProvider interface {
	Key() ([]byte, error)
}

// StaticKeyProvider returns a key handed over at construction time,
// typically decoded from configuration.
type StaticKeyProvider struct {
	key []byte
}

// NewStaticKeyProvider builds a provider around a hex-encoded key.
func NewStaticKeyProvider(hexKey string) (*StaticKeyProvider, error) {
	key, err := hex.DecodeString(strings.TrimSpace(hexKey))
	if err != nil {
		return nil, fmt.Errorf("invalid key encoding: %w", err)
	}
	return &StaticKeyProvider{key: key}, nil
}

func (p *StaticKeyProvider) Key() ([]byte, error) {
	return p.key, nil
}

// FileKeyProvider loads the key from a file and, when the file does not
// exist yet, generates a fresh key and persists it with 0600 permissions.
// The generate-and-persist path is a one-time bootstrap for deployments
// that did not configure a key explicitly.
type FileKeyProvider struct {
	path string
}

// NewFileKeyProvider builds a provider for the given key file path.
func NewFileKeyProvider(path string) *FileKeyProvider {
	return &FileKeyProvider{path: path}
}

func (p *FileKeyProvider) Key() ([]byte, error) {
	raw, err := os.ReadFile(p.path)
	if err == nil {
		key, decErr := hex.DecodeString(strings.TrimSpace(string(raw)))
		if decErr != nil {
			return nil, fmt.Errorf("key file %s: %w", p.path, decErr)
		}
		return key, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("key file %s: %w", p.path, err)
	}

	return p.bootstrap()
}

func (p *FileKeyProvider) bootstrap() ([]byte, error) {
	key := common.GenerateRandByteArray(KeySize)

	if dir := filepath.Dir(p.path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("key dir: %w", err)
		}
	}
	if err := os.WriteFile(p.path, []byte(hex.EncodeToString(key)+"\n"), 0o600); err != nil {
		return nil, fmt.Errorf("persisting key file: %w", err)
	}

	return key, nil
}

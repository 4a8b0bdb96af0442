// Package credential stores the analysis service API key on disk.
package credential

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

var ErrCredentialNotFound = errors.New("credential not found")

const fileName = "credential.json"

type Credential struct {
	APIKey string `json:"api_key"` // #nosec G117 - JSON field for the stored key, not an exposed secret
}

type Store struct {
	dir string
}

func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// Path returns the credential file location.
func (s *Store) Path() string {
	return filepath.Join(s.dir, fileName)
}

func (s *Store) Save(apiKey string) error {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return errors.New("API key is empty")
	}
	if err := os.MkdirAll(s.dir, 0700); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	data, err := json.Marshal(Credential{APIKey: apiKey})
	if err != nil {
		return fmt.Errorf("failed to marshal credential: %w", err)
	}

	return os.WriteFile(s.Path(), data, 0600)
}

func (s *Store) Load() (string, error) {
	data, err := os.ReadFile(s.Path()) // #nosec G304 -- path is built from the config directory
	if err != nil {
		if os.IsNotExist(err) {
			return "", ErrCredentialNotFound
		}
		return "", fmt.Errorf("failed to read credential: %w", err)
	}

	var c Credential
	if err := json.Unmarshal(data, &c); err != nil {
		return "", fmt.Errorf("failed to unmarshal credential: %w", err)
	}
	if c.APIKey == "" {
		return "", ErrCredentialNotFound
	}

	return c.APIKey, nil
}

// Delete removes the stored credential. Deleting a missing credential is not an error.
func (s *Store) Delete() error {
	if err := os.Remove(s.Path()); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete credential: %w", err)
	}
	return nil
}

// Mask hides all but the last four characters of key.
func Mask(key string) string {
	if key == "" {
		return "(not set)"
	}
	runes := []rune(key)
	if len(runes) <= 4 {
		return strings.Repeat("*", len(runes))
	}
	return strings.Repeat("*", len(runes)-4) + string(runes[len(runes)-4:])
}

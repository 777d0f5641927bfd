package blob

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Store persists attachment content outside the database. Message rows only
// hold the returned key.
type Store struct {
	root string
}

func NewStore(root string) (*Store, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create blob root: %w", err)
	}
	return &Store{root: root}, nil
}

// Put writes data under a key scoped to one account. The key layout keeps one
// directory per account so a disconnected account can be purged with one walk.
func (s *Store) Put(accountID, attachmentID string, data []byte) (string, error) {
	key := filepath.Join(sanitize(accountID), sanitize(attachmentID))
	path := filepath.Join(s.root, key)

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("failed to create blob dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write blob: %w", err)
	}
	return key, nil
}

func (s *Store) Get(key string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(s.root, filepath.Clean(key)))
	if err != nil {
		return nil, fmt.Errorf("failed to read blob %s: %w", key, err)
	}
	return data, nil
}

func (s *Store) Delete(key string) error {
	err := os.Remove(filepath.Join(s.root, filepath.Clean(key)))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete blob %s: %w", key, err)
	}
	return nil
}

// PurgeAccount removes all blobs stored for one account.
func (s *Store) PurgeAccount(accountID string) error {
	return os.RemoveAll(filepath.Join(s.root, sanitize(accountID)))
}

func sanitize(s2 string) string {
	replacer := strings.NewReplacer("/", "_", "\\", "_", "..", "_")
	return replacer.Replace(s2)
}

package keystore

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/crypto/chacha20poly1305"
)

const fileMode = 0o600

// File is a Keystore persisted to a single file encrypted with
// XChaCha20-Poly1305. The file holds nonce||ciphertext of a JSON object keyed
// by "service/account". Every Set and Delete rewrites the file atomically.
type File struct {
	path string
	key  []byte

	mu sync.Mutex
}

var _ Keystore = (*File)(nil)

// NewFile returns a File keystore stored at path. The passphrase is hashed
// with SHA-256 to derive the encryption key. The file is created on first
// write.
func NewFile(path string, passphrase []byte) (*File, error) {
	const op = "keystore.NewFile"
	switch {
	case path == "":
		return nil, fmt.Errorf("%s: missing path: %w", op, ErrInvalidParameter)
	case len(passphrase) == 0:
		return nil, fmt.Errorf("%s: missing passphrase: %w", op, ErrInvalidParameter)
	}
	sum := sha256.Sum256(passphrase)
	return &File{path: path, key: sum[:]}, nil
}

// Get returns the stored item or ErrNotFound.
func (f *File) Get(service, account string) ([]byte, error) {
	const op = "File.Get"
	k, err := itemKey(op, service, account)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	items, err := f.read()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	v, ok := items[k]
	if !ok {
		return nil, fmt.Errorf("%s: %s: %w", op, k, ErrNotFound)
	}
	return v, nil
}

// Set stores data, replacing any existing item.
func (f *File) Set(service, account string, data []byte) error {
	const op = "File.Set"
	k, err := itemKey(op, service, account)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	items, err := f.read()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	items[k] = data
	if err := f.write(items); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// Delete removes the item.
func (f *File) Delete(service, account string) error {
	const op = "File.Delete"
	k, err := itemKey(op, service, account)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	items, err := f.read()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if _, ok := items[k]; !ok {
		return nil
	}
	delete(items, k)
	if err := f.write(items); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (f *File) read() (map[string][]byte, error) {
	data, err := os.ReadFile(f.path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return map[string][]byte{}, nil
	case err != nil:
		return nil, fmt.Errorf("unable to read %s: %w", f.path, err)
	}
	aead, err := chacha20poly1305.NewX(f.key)
	if err != nil {
		return nil, fmt.Errorf("unable to create cipher: %w", err)
	}
	if len(data) < aead.NonceSize() {
		return nil, fmt.Errorf("ciphertext too short: %w", ErrDecrypt)
	}
	nonce, ciphertext := data[:aead.NonceSize()], data[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", err, ErrDecrypt)
	}
	items := map[string][]byte{}
	if err := json.Unmarshal(plaintext, &items); err != nil {
		return nil, fmt.Errorf("unable to decode items: %w", ErrDecrypt)
	}
	return items, nil
}

func (f *File) write(items map[string][]byte) error {
	plaintext, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("unable to encode items: %w", err)
	}
	aead, err := chacha20poly1305.NewX(f.key)
	if err != nil {
		return fmt.Errorf("unable to create cipher: %w", err)
	}
	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plaintext)+aead.Overhead())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return fmt.Errorf("unable to generate nonce: %w", err)
	}
	sealed := aead.Seal(nonce, nonce, plaintext, nil)

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("unable to create %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(f.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("unable to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if err := tmp.Chmod(fileMode); err != nil {
		tmp.Close()
		return fmt.Errorf("unable to chmod temp file: %w", err)
	}
	if _, err := tmp.Write(sealed); err != nil {
		tmp.Close()
		return fmt.Errorf("unable to write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("unable to close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return fmt.Errorf("unable to replace %s: %w", f.path, err)
	}
	return nil
}

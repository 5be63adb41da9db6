// Copyright 2026 The Courier Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"sync"

	"filippo.io/age"

	"github.com/courier-foundation/courier/lib/secret"
)

var _ Store = (*EncryptedFileStore)(nil)

// EncryptedFileStore persists the record as an age-encrypted file,
// keyed by a scrypt passphrase. The file layout and atomic write
// discipline match FileStore; only the content is ciphertext.
//
// The auth key inside a session record is a bearer credential, so
// deployments that cannot rely on filesystem permissions alone should
// prefer this store over FileStore.
type EncryptedFileStore struct {
	path       string
	passphrase *secret.Buffer
	mu         sync.Mutex
}

// NewEncryptedFileStore returns a store backed by the encrypted file
// at path. The passphrase buffer is borrowed: the store reads it on
// every Load and Save and never closes it.
func NewEncryptedFileStore(path string, passphrase *secret.Buffer) *EncryptedFileStore {
	return &EncryptedFileStore{path: path, passphrase: passphrase}
}

// Path returns the backing file path.
func (s *EncryptedFileStore) Path() string {
	return s.path
}

func (s *EncryptedFileStore) Load(ctx context.Context) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ciphertext, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("session: reading record file: %w", err)
	}

	identity, err := age.NewScryptIdentity(s.passphrase.String())
	if err != nil {
		return nil, fmt.Errorf("session: preparing passphrase identity: %w", err)
	}
	reader, err := age.Decrypt(bytes.NewReader(ciphertext), identity)
	if err != nil {
		return nil, fmt.Errorf("session: decrypting record file (wrong passphrase?): %w", err)
	}
	plaintext, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("session: reading decrypted record: %w", err)
	}
	defer secret.Zero(plaintext)

	var record Record
	if err := json.Unmarshal(plaintext, &record); err != nil {
		return nil, fmt.Errorf("session: parsing decrypted record: %w", err)
	}
	return &record, nil
}

func (s *EncryptedFileStore) Save(ctx context.Context, record *Record) error {
	plaintext, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("session: encoding record: %w", err)
	}
	defer secret.Zero(plaintext)

	recipient, err := age.NewScryptRecipient(s.passphrase.String())
	if err != nil {
		return fmt.Errorf("session: preparing passphrase recipient: %w", err)
	}

	var ciphertext bytes.Buffer
	writer, err := age.Encrypt(&ciphertext, recipient)
	if err != nil {
		return fmt.Errorf("session: creating age encryptor: %w", err)
	}
	if _, err := writer.Write(plaintext); err != nil {
		return fmt.Errorf("session: writing record to age encryptor: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("session: finalizing record encryption: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return writeFileAtomic(s.path, ciphertext.Bytes())
}

func (s *EncryptedFileStore) Delete(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("session: removing record file: %w", err)
	}
	return nil
}

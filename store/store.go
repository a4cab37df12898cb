// Package store implements the encrypted multi-account credential registry.
//
// The registry is a JSON-encoded account list sealed with AES-256-GCM and
// persisted as a single blob through a pluggable Blob backend (file or Redis).
// Every mutation rewrites and re-encrypts the whole registry, so a crash
// between read and write can only leave a stale registry, never a partially
// updated account.
//
// Failure policy: an unreadable, undecryptable, or unparseable blob is treated
// as an empty registry. The rest of the system then degrades to a logged-out
// state instead of surfacing storage corruption to callers.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"go.uber.org/zap"
)

// ErrNotFound is returned by Get, Delete and SetActive for unknown account IDs.
var ErrNotFound = errors.New("account not found")

// ErrNoActiveAccount is returned by GetActive when no account is marked active.
var ErrNoActiveAccount = errors.New("no active account")

// Store is the credential registry. All methods are safe for concurrent use;
// a single mutex serializes read-modify-write cycles against the blob.
type Store struct {
	mu     sync.Mutex
	blob   Blob
	cipher *registryCipher
	log    *zap.Logger
}

// New creates a Store over blob, encrypting with a key derived from
// passphrase. A nil logger disables logging.
func New(blob Blob, passphrase string, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{
		blob:   blob,
		cipher: newRegistryCipher(passphrase),
		log:    log,
	}
}

// load reads and decrypts the full registry. Corruption degrades to empty.
func (s *Store) load(ctx context.Context) []*Account {
	data, err := s.blob.Load(ctx)
	if err != nil {
		if !errors.Is(err, ErrBlobNotFound) {
			s.log.Warn("registry load failed, treating as empty", zap.Error(err))
		}
		return nil
	}

	plaintext, err := s.cipher.Open(data)
	if err != nil {
		s.log.Warn("registry decrypt failed, treating as empty", zap.Error(err))
		return nil
	}

	var accounts []*Account
	if err := json.Unmarshal(plaintext, &accounts); err != nil {
		s.log.Warn("registry parse failed, treating as empty", zap.Error(err))
		return nil
	}
	return accounts
}

// persist re-encrypts and writes the full registry.
func (s *Store) persist(ctx context.Context, accounts []*Account) error {
	if accounts == nil {
		accounts = []*Account{}
	}
	plaintext, err := json.Marshal(accounts)
	if err != nil {
		return err
	}
	sealed, err := s.cipher.Seal(plaintext)
	if err != nil {
		return err
	}
	return s.blob.Store(ctx, sealed)
}

// Save upserts account by ID and persists the registry.
func (s *Store) Save(ctx context.Context, account *Account) error {
	if account == nil || account.ID == "" {
		return errors.New("account id required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	accounts := s.load(ctx)
	replaced := false
	for i, existing := range accounts {
		if existing.ID == account.ID {
			accounts[i] = account.Clone()
			replaced = true
			break
		}
	}
	if !replaced {
		accounts = append(accounts, account.Clone())
	}
	return s.persist(ctx, accounts)
}

// GetAll returns the decrypted account list. An absent or corrupt registry
// yields an empty list, never an error.
func (s *Store) GetAll(ctx context.Context) []*Account {
	s.mu.Lock()
	defer s.mu.Unlock()

	accounts := s.load(ctx)
	out := make([]*Account, 0, len(accounts))
	for _, a := range accounts {
		out = append(out, a.Clone())
	}
	return out
}

// Get returns the account with the given ID.
func (s *Store) Get(ctx context.Context, id string) (*Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, a := range s.load(ctx) {
		if a.ID == id {
			return a.Clone(), nil
		}
	}
	return nil, ErrNotFound
}

// Delete removes the account with the given ID and persists the registry.
// Deleting the active account leaves the registry with no active entry.
func (s *Store) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	accounts := s.load(ctx)
	kept := accounts[:0]
	found := false
	for _, a := range accounts {
		if a.ID == id {
			found = true
			continue
		}
		kept = append(kept, a)
	}
	if !found {
		return ErrNotFound
	}
	return s.persist(ctx, kept)
}

// SetActive clears the active flag on every account, sets it on the target,
// and persists. At most one account is active after any sequence of calls.
func (s *Store) SetActive(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	accounts := s.load(ctx)
	found := false
	for _, a := range accounts {
		a.Active = a.ID == id
		if a.Active {
			found = true
		}
	}
	if !found {
		return ErrNotFound
	}
	return s.persist(ctx, accounts)
}

// ClearActive unsets the active flag everywhere and persists.
func (s *Store) ClearActive(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	accounts := s.load(ctx)
	changed := false
	for _, a := range accounts {
		if a.Active {
			a.Active = false
			changed = true
		}
	}
	if !changed {
		return nil
	}
	return s.persist(ctx, accounts)
}

// GetActive returns the single account marked active.
func (s *Store) GetActive(ctx context.Context) (*Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, a := range s.load(ctx) {
		if a.Active {
			return a.Clone(), nil
		}
	}
	return nil, ErrNoActiveAccount
}

// FindByPhone returns the first account registered under phone.
func (s *Store) FindByPhone(ctx context.Context, phone string) (*Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, a := range s.load(ctx) {
		if a.Phone == phone {
			return a.Clone(), nil
		}
	}
	return nil, ErrNotFound
}

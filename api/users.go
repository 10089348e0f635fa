package api

import (
	"errors"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

var (
	ErrEmailTaken         = errors.New("email already exists")
	ErrInvalidCredentials = errors.New("invalid email or password")
)

// UserStore keeps dashboard users in memory, matching the rest of the
// simulation: nothing here survives a restart.
type UserStore struct {
	mu     sync.RWMutex
	hashes map[string][]byte // email -> bcrypt hash
}

func NewUserStore() *UserStore {
	return &UserStore{hashes: make(map[string][]byte)}
}

func (s *UserStore) Register(email, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.hashes[email]; exists {
		return ErrEmailTaken
	}
	s.hashes[email] = hash
	return nil
}

func (s *UserStore) Authenticate(email, password string) error {
	s.mu.RLock()
	hash, ok := s.hashes[email]
	s.mu.RUnlock()
	if !ok {
		return ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(hash, []byte(password)); err != nil {
		return ErrInvalidCredentials
	}
	return nil
}

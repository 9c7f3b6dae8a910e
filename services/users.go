package services

import (
	"errors"
	"sync"
	"time"

	"predictive-maintenance-api/models"
)

var ErrEmailTaken = errors.New("email already registered")

// UserStore is the in-memory account store. Accounts created at runtime are
// lost on restart; only the seeded admin survives.
type UserStore struct {
	mu     sync.RWMutex
	users  map[string]*models.User
	nextID uint
}

func NewUserStore() *UserStore {
	return &UserStore{
		users:  make(map[string]*models.User),
		nextID: 1,
	}
}

// Create registers a new user. The password must already be hashed.
func (s *UserStore) Create(email, passwordHash, name, role string) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.users[email]; exists {
		return models.User{}, ErrEmailTaken
	}

	user := &models.User{
		ID:        s.nextID,
		Email:     email,
		Name:      name,
		Password:  passwordHash,
		Role:      role,
		CreatedAt: time.Now(),
	}
	s.nextID++
	s.users[email] = user
	return *user, nil
}

// FindByEmail looks up a user by email.
func (s *UserStore) FindByEmail(email string) (models.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[email]
	if !ok {
		return models.User{}, false
	}
	return *user, true
}

// SeedAdmin creates the bootstrap admin account.
func (s *UserStore) SeedAdmin(auth *AuthService, email, password string) error {
	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}
	_, err = s.Create(email, hash, "Administrator", "admin")
	return err
}

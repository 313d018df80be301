package store

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/hugh/medpocket/internal/api/dto"
	"github.com/hugh/medpocket/internal/client"
)

var ErrNotLoggedIn = errors.New("not logged in")

// AuthAPI is the slice of the REST client the auth store needs.
type AuthAPI interface {
	Register(ctx context.Context, email, password, name string) (*dto.AuthResponse, error)
	Login(ctx context.Context, email, password string) (*dto.AuthResponse, error)
	Logout(ctx context.Context) error
	Me(ctx context.Context) (*dto.UserDTO, error)
	SetToken(token string)
}

// AuthStore keeps the session token and user, mirrored under authToken and
// authUser.
type AuthStore struct {
	api     AuthAPI
	storage Storage

	mu    sync.RWMutex
	token string
	user  *dto.UserDTO
}

func NewAuthStore(api AuthAPI, storage Storage) *AuthStore {
	return &AuthStore{api: api, storage: storage}
}

// Load restores a saved session and hands its token to the API client.
func (s *AuthStore) Load(ctx context.Context) error {
	var token string
	if _, err := loadJSON(ctx, s.storage, KeyAuthToken, &token); err != nil {
		return err
	}
	var user dto.UserDTO
	found, err := loadJSON(ctx, s.storage, KeyAuthUser, &user)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
	s.user = nil
	if found {
		s.user = &user
	}
	s.api.SetToken(token)
	return nil
}

func (s *AuthStore) Register(ctx context.Context, email, password, name string) (*dto.UserDTO, error) {
	resp, err := s.api.Register(ctx, email, password, name)
	if err != nil {
		return nil, err
	}
	return s.persist(ctx, resp)
}

func (s *AuthStore) Login(ctx context.Context, email, password string) (*dto.UserDTO, error) {
	resp, err := s.api.Login(ctx, email, password)
	if err != nil {
		return nil, err
	}
	return s.persist(ctx, resp)
}

func (s *AuthStore) persist(ctx context.Context, resp *dto.AuthResponse) (*dto.UserDTO, error) {
	if err := saveJSON(ctx, s.storage, KeyAuthToken, resp.Token); err != nil {
		return nil, err
	}
	if err := saveJSON(ctx, s.storage, KeyAuthUser, resp.User); err != nil {
		return nil, err
	}

	user := resp.User
	s.mu.Lock()
	s.token = resp.Token
	s.user = &user
	s.mu.Unlock()
	s.api.SetToken(resp.Token)
	return &user, nil
}

// Logout clears local state even when the server call fails.
func (s *AuthStore) Logout(ctx context.Context) error {
	apiErr := s.api.Logout(ctx)
	if client.IsUnavailable(apiErr) {
		apiErr = nil
	}

	s.mu.Lock()
	s.token = ""
	s.user = nil
	s.mu.Unlock()
	s.api.SetToken("")

	if err := s.storage.Delete(ctx, KeyAuthToken); err != nil {
		return err
	}
	if err := s.storage.Delete(ctx, KeyAuthUser); err != nil {
		return err
	}
	return apiErr
}

// Refresh re-reads the user from the server. An expired token ends the
// session.
func (s *AuthStore) Refresh(ctx context.Context) (*dto.UserDTO, error) {
	if !s.IsAuthenticated() {
		return nil, ErrNotLoggedIn
	}

	user, err := s.api.Me(ctx)
	if errors.Is(err, client.ErrUnauthorized) {
		_ = s.Logout(ctx)
		return nil, fmt.Errorf("session expired: %w", ErrNotLoggedIn)
	}
	if err != nil {
		return nil, err
	}

	if err := saveJSON(ctx, s.storage, KeyAuthUser, user); err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.user = user
	s.mu.Unlock()
	return user, nil
}

func (s *AuthStore) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// User returns a copy of the current user, nil when logged out.
func (s *AuthStore) User() *dto.UserDTO {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return nil
	}
	u := *s.user
	return &u
}

func (s *AuthStore) IsAuthenticated() bool {
	return s.Token() != ""
}

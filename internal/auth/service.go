package auth

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"openbank-cache/internal/apperr"
)

const (
	minUsernameLength = 3
	minPasswordLength = 3
)

type IdentityStore interface {
	Create(ctx context.Context, user User) error
	FindByID(ctx context.Context, id uuid.UUID) (User, error)
	FindByUsername(ctx context.Context, username string) (User, error)
	UpdateCode(ctx context.Context, id uuid.UUID, code string) error
	UpdateAccessToken(ctx context.Context, id uuid.UUID, token string) error
	AccessToken(ctx context.Context, id uuid.UUID) (string, bool, error)
}

type PasswordHasher interface {
	Hash(plaintext string) (string, error)
	Verify(plaintext, encoded string) bool
}

// AuthorizationLinker builds the provider consent URL handed out at login.
type AuthorizationLinker interface {
	AuthorizationURL(state string) string
}

type Service struct {
	store  IdentityStore
	hasher PasswordHasher
	tokens *TokenService
	linker AuthorizationLinker
	now    func() time.Time

	dummyOnce sync.Once
	dummyHash string
}

func NewService(store IdentityStore, hasher PasswordHasher, tokens *TokenService, linker AuthorizationLinker) *Service {
	return &Service{
		store:  store,
		hasher: hasher,
		tokens: tokens,
		linker: linker,
		now:    time.Now,
	}
}

func (s *Service) Signup(ctx context.Context, input SignupInput) (User, error) {
	input.Username = strings.TrimSpace(input.Username)
	input.Email = strings.TrimSpace(input.Email)

	if err := validateSignup(input); err != nil {
		return User{}, err
	}

	hash, err := s.hasher.Hash(input.Password)
	if err != nil {
		return User{}, apperr.Wrap(apperr.Internal, "hash password", err)
	}
	id, err := uuid.NewV7()
	if err != nil {
		return User{}, apperr.Wrap(apperr.Internal, "generate uuid v7", err)
	}

	now := s.now().UTC()
	user := User{
		ID:           id,
		Username:     input.Username,
		Email:        input.Email,
		PasswordHash: hash,
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.store.Create(ctx, user); err != nil {
		var conflict *ConflictError
		if errors.As(err, &conflict) {
			return User{}, apperr.Wrap(apperr.InvalidInput, conflictMessage(conflict), err)
		}
		return User{}, err
	}
	return user, nil
}

func validateSignup(input SignupInput) error {
	if len(input.Username) < minUsernameLength {
		return apperr.New(apperr.InvalidInput, fmt.Sprintf("Invalid username. %q is too short.", input.Username))
	}
	if addr, err := mail.ParseAddress(input.Email); err != nil || addr.Address != input.Email {
		return apperr.New(apperr.InvalidInput, fmt.Sprintf("Invalid email address %q", input.Email))
	}
	if len(input.Password) < minPasswordLength {
		return apperr.New(apperr.InvalidInput, "Invalid password. Too short")
	}
	return nil
}

func conflictMessage(conflict *ConflictError) string {
	switch {
	case conflict.Username && conflict.Email:
		return "Username or email already exists."
	case conflict.Email:
		return "Email address already exists."
	case conflict.Username:
		return "Username already exists."
	default:
		return "Username or email already exists."
	}
}

// Login checks Basic credentials and returns a bearer token plus the
// provider consent URL bound to this user through a signed state value.
func (s *Service) Login(ctx context.Context, username, password string) (LoginResult, error) {
	user, err := s.store.FindByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			// Unknown usernames pay the same hashing cost as wrong passwords.
			s.hasher.Verify(password, s.dummyPasswordHash())
			return LoginResult{}, apperr.New(apperr.InvalidCredentials, "invalid credentials")
		}
		return LoginResult{}, err
	}
	valid := s.hasher.Verify(password, user.PasswordHash)
	if !valid || !user.Active {
		return LoginResult{}, apperr.New(apperr.InvalidCredentials, "invalid credentials")
	}

	token, err := s.tokens.Issue(user.ID)
	if err != nil {
		return LoginResult{}, apperr.Wrap(apperr.Internal, "issue token", err)
	}
	state, err := s.tokens.IssueState(user.ID)
	if err != nil {
		return LoginResult{}, apperr.Wrap(apperr.Internal, "issue oauth state", err)
	}

	return LoginResult{Token: token, URL: s.linker.AuthorizationURL(state)}, nil
}

func (s *Service) dummyPasswordHash() string {
	s.dummyOnce.Do(func() {
		s.dummyHash, _ = s.hasher.Hash(uuid.NewString())
	})
	return s.dummyHash
}

func (s *Service) Me(ctx context.Context, id uuid.UUID) (User, error) {
	user, err := s.store.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return User{}, apperr.Wrap(apperr.NotAuthorized, "not authorized", err)
		}
		return User{}, err
	}
	return user, nil
}

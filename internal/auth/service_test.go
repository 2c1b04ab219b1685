package auth

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"openbank-cache/internal/apperr"
)

func newTestService(store IdentityStore) (*Service, *TokenService) {
	tokens := NewTokenService("jwt-secret", time.Hour)
	return NewService(store, NewHasher("pepper", testHashParams()), tokens, staticLinker{}), tokens
}

func TestService_Signup(t *testing.T) {
	svc, _ := newTestService(newMemStore())

	user, err := svc.Signup(context.Background(), SignupInput{Username: "alice123", Password: "secret123", Email: "a@b.com"})
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, user.ID)
	assert.True(t, user.Active)
	assert.True(t, strings.HasPrefix(user.PasswordHash, "$argon2id$"))
	assert.Equal(t, byte(7), user.ID[6]>>4, "expected uuid v7")
}

func TestService_Signup_Validation(t *testing.T) {
	svc, _ := newTestService(newMemStore())

	cases := []struct {
		input SignupInput
		msg   string
	}{
		{SignupInput{Username: "al", Password: "secret", Email: "a@b.com"}, `Invalid username. "al" is too short.`},
		{SignupInput{Username: "alice", Password: "secret", Email: "not-an-email"}, `Invalid email address "not-an-email"`},
		{SignupInput{Username: "alice", Password: "se", Email: "a@b.com"}, "Invalid password. Too short"},
	}
	for _, tc := range cases {
		_, err := svc.Signup(context.Background(), tc.input)
		require.Error(t, err)
		assert.Equal(t, apperr.InvalidInput, apperr.KindOf(err))
		assert.Equal(t, tc.msg, apperr.Message(err))
	}
}

func TestService_Signup_Duplicates(t *testing.T) {
	store := newMemStore()
	svc, _ := newTestService(store)

	_, err := svc.Signup(context.Background(), SignupInput{Username: "alice123", Password: "secret123", Email: "a@b.com"})
	require.NoError(t, err)

	cases := []struct {
		input SignupInput
		msg   string
	}{
		{SignupInput{Username: "alice123", Password: "secret123", Email: "other@b.com"}, "Username already exists."},
		{SignupInput{Username: "bob456", Password: "secret123", Email: "a@b.com"}, "Email address already exists."},
		{SignupInput{Username: "alice123", Password: "secret123", Email: "a@b.com"}, "Username or email already exists."},
	}
	for _, tc := range cases {
		_, err := svc.Signup(context.Background(), tc.input)
		require.Error(t, err)
		assert.Equal(t, apperr.InvalidInput, apperr.KindOf(err))
		assert.Equal(t, tc.msg, apperr.Message(err))
	}
	assert.Len(t, store.users, 1)
}

func TestService_Login(t *testing.T) {
	svc, tokens := newTestService(newMemStore())

	user, err := svc.Signup(context.Background(), SignupInput{Username: "alice123", Password: "secret123", Email: "a@b.com"})
	require.NoError(t, err)

	result, err := svc.Login(context.Background(), "alice123", "secret123")
	require.NoError(t, err)

	got, err := tokens.Verify(result.Token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, got)

	assert.Contains(t, result.URL, "client_id=client-123")
	state := result.URL[strings.Index(result.URL, "state=")+len("state="):]
	stateUser, err := tokens.VerifyState(state)
	require.NoError(t, err)
	assert.Equal(t, user.ID, stateUser)
}

func TestService_Login_BadCredentials(t *testing.T) {
	svc, _ := newTestService(newMemStore())

	_, err := svc.Signup(context.Background(), SignupInput{Username: "alice123", Password: "secret123", Email: "a@b.com"})
	require.NoError(t, err)

	_, err = svc.Login(context.Background(), "alice123", "wrong")
	assert.Equal(t, apperr.InvalidCredentials, apperr.KindOf(err))

	_, err = svc.Login(context.Background(), "nobody", "secret123")
	assert.Equal(t, apperr.InvalidCredentials, apperr.KindOf(err))
}

type failingStore struct {
	*memStore
}

func (failingStore) FindByUsername(context.Context, string) (User, error) {
	return User{}, errors.New("db down")
}

func TestService_Login_StoreFailureIsInternal(t *testing.T) {
	svc, _ := newTestService(failingStore{memStore: newMemStore()})

	_, err := svc.Login(context.Background(), "alice123", "secret123")
	assert.Equal(t, apperr.Internal, apperr.KindOf(err))
}

func TestService_Me_UnknownUser(t *testing.T) {
	svc, _ := newTestService(newMemStore())

	_, err := svc.Me(context.Background(), uuid.New())
	assert.Equal(t, apperr.NotAuthorized, apperr.KindOf(err))
}

type recordingHasher struct {
	*Hasher
	verified []string
}

func (h *recordingHasher) Verify(plaintext, encoded string) bool {
	h.verified = append(h.verified, encoded)
	return h.Hasher.Verify(plaintext, encoded)
}

func TestService_Login_UnknownUserStillVerifies(t *testing.T) {
	hasher := &recordingHasher{Hasher: NewHasher("pepper", testHashParams())}
	svc := NewService(newMemStore(), hasher, NewTokenService("jwt-secret", time.Hour), staticLinker{})

	_, err := svc.Login(context.Background(), "nobody", "secret123")
	assert.Equal(t, apperr.InvalidCredentials, apperr.KindOf(err))
	require.Len(t, hasher.verified, 1)
	assert.True(t, strings.HasPrefix(hasher.verified[0], "$argon2id$v=19$m=1024,t=1,p=1$"), hasher.verified[0])

	_, err = svc.Login(context.Background(), "nobody-else", "secret123")
	assert.Equal(t, apperr.InvalidCredentials, apperr.KindOf(err))
	require.Len(t, hasher.verified, 2)
	assert.Equal(t, hasher.verified[0], hasher.verified[1], "dummy hash is computed once")
}

func TestService_Login_InactiveUserStillVerifies(t *testing.T) {
	store := newMemStore()
	hasher := &recordingHasher{Hasher: NewHasher("pepper", testHashParams())}
	svc := NewService(store, hasher, NewTokenService("jwt-secret", time.Hour), staticLinker{})

	user, err := svc.Signup(context.Background(), SignupInput{Username: "alice123", Password: "secret123", Email: "a@b.com"})
	require.NoError(t, err)
	store.setActive(user.ID, false)

	_, err = svc.Login(context.Background(), "alice123", "secret123")
	assert.Equal(t, apperr.InvalidCredentials, apperr.KindOf(err))
	assert.Equal(t, []string{user.PasswordHash}, hasher.verified)
}

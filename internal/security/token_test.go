package security_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"chatcore/internal/domain"
	"chatcore/internal/security"
)

type MockUserRepo struct {
	mock.Mock
}

func (m *MockUserRepo) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *MockUserRepo) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	args := m.Called(ctx, username)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *MockUserRepo) SetOnlineStatus(ctx context.Context, id int64, isOnline bool, lastSeen time.Time) error {
	args := m.Called(ctx, id, isOnline, lastSeen)
	return args.Error(0)
}

func TestAuthenticate(t *testing.T) {
	tokens := security.NewTokenService("secret", time.Hour)
	mockRepo := new(MockUserRepo)
	auth := security.NewAuthenticator(tokens, mockRepo)

	alice := &domain.User{ID: 1, Username: "alice", IsActive: true}
	mockRepo.On("GetByUsername", mock.Anything, "alice").Return(alice, nil)
	mockRepo.On("GetByUsername", mock.Anything, "ghost").Return(nil, domain.ErrNotFound)
	mockRepo.On("GetByUsername", mock.Anything, "banned").Return(&domain.User{ID: 3, Username: "banned"}, nil)

	t.Run("Success", func(t *testing.T) {
		tok, err := tokens.CreateForUser("alice")
		require.NoError(t, err)

		user, err := auth.Authenticate(context.Background(), tok)
		assert.NoError(t, err)
		assert.Equal(t, alice, user)
	})

	t.Run("Missing", func(t *testing.T) {
		_, err := auth.Authenticate(context.Background(), "")
		assert.ErrorIs(t, err, domain.ErrUnauthorized)
	})

	t.Run("Garbage", func(t *testing.T) {
		_, err := auth.Authenticate(context.Background(), "not-a-jwt")
		assert.ErrorIs(t, err, domain.ErrUnauthorized)
	})

	t.Run("Expired", func(t *testing.T) {
		tok, err := tokens.CreateWithTTL("alice", -time.Minute)
		require.NoError(t, err)
		_, err = auth.Authenticate(context.Background(), tok)
		assert.ErrorIs(t, err, domain.ErrUnauthorized)
	})

	t.Run("WrongSecret", func(t *testing.T) {
		tok, err := security.NewTokenService("other", time.Hour).CreateForUser("alice")
		require.NoError(t, err)
		_, err = auth.Authenticate(context.Background(), tok)
		assert.ErrorIs(t, err, domain.ErrUnauthorized)
	})

	t.Run("UnknownUser", func(t *testing.T) {
		tok, _ := tokens.CreateForUser("ghost")
		_, err := auth.Authenticate(context.Background(), tok)
		assert.ErrorIs(t, err, domain.ErrUnauthorized)
	})

	t.Run("InactiveUser", func(t *testing.T) {
		tok, _ := tokens.CreateForUser("banned")
		_, err := auth.Authenticate(context.Background(), tok)
		assert.ErrorIs(t, err, domain.ErrUnauthorized)
	})

	mockRepo.AssertExpectations(t)
}

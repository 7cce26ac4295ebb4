package account

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type memAccountStore struct {
	accounts map[string]*Account // by username
	blocks   map[[2]string]bool
}

func newMemAccountStore() *memAccountStore {
	return &memAccountStore{
		accounts: make(map[string]*Account),
		blocks:   make(map[[2]string]bool),
	}
}

func (s *memAccountStore) CreateAccount(_ context.Context, a *Account) (*Account, error) {
	if _, ok := s.accounts[a.Username]; ok {
		// Same error shape the unique constraint produces.
		return nil, &pgconn.PgError{Code: "23505", ConstraintName: "accounts_username_key"}
	}
	cp := *a
	cp.ID = uuid.NewString()
	s.accounts[cp.Username] = &cp
	out := cp
	return &out, nil
}

func (s *memAccountStore) ByUsername(_ context.Context, username string) (*Account, error) {
	a, ok := s.accounts[username]
	if !ok {
		return nil, nil
	}
	cp := *a
	return &cp, nil
}

func (s *memAccountStore) ByID(_ context.Context, id string) (*Account, error) {
	for _, a := range s.accounts {
		if a.ID == id {
			cp := *a
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *memAccountStore) SearchAccounts(_ context.Context, query string) ([]Account, error) {
	var out []Account
	for _, a := range s.accounts {
		out = append(out, *a)
	}
	return out, nil
}

func (s *memAccountStore) BlockExists(_ context.Context, userID, blockedID string) (bool, error) {
	return s.blocks[[2]string{userID, blockedID}], nil
}

func TestRegister_HashesPasswordAndAssignsID(t *testing.T) {
	req := require.New(t)
	svc := NewService(newMemAccountStore(), "test-secret")

	a, err := svc.Register(context.Background(), RegisterForm{
		Username: "alice",
		Email:    "alice@example.com",
		Password: "correct horse",
	})
	req.NoError(err)
	req.NotEmpty(a.ID)
	req.NotEqual("correct horse", a.Password, "passwords are never stored in the clear")
	req.NoError(bcrypt.CompareHashAndPassword([]byte(a.Password), []byte("correct horse")))
}

func TestRegister_DuplicateUsername(t *testing.T) {
	req := require.New(t)
	svc := NewService(newMemAccountStore(), "test-secret")
	ctx := context.Background()

	form := RegisterForm{Username: "alice", Password: "correct horse"}
	_, err := svc.Register(ctx, form)
	req.NoError(err)

	_, err = svc.Register(ctx, form)
	req.ErrorIs(err, ErrUsernameTaken)
}

func TestLogin_RoundTripsThroughToken(t *testing.T) {
	req := require.New(t)
	svc := NewService(newMemAccountStore(), "test-secret")
	ctx := context.Background()

	created, err := svc.Register(ctx, RegisterForm{Username: "alice", Password: "correct horse"})
	req.NoError(err)

	token, a, err := svc.Login(ctx, LoginForm{Username: "alice", Password: "correct horse"})
	req.NoError(err)
	req.Equal(created.ID, a.ID)
	req.NotEmpty(token)

	id, username, err := svc.ValidateToken(token)
	req.NoError(err)
	req.Equal(created.ID, id)
	req.Equal("alice", username)
}

func TestLogin_RejectsBadCredentials(t *testing.T) {
	req := require.New(t)
	svc := NewService(newMemAccountStore(), "test-secret")
	ctx := context.Background()

	_, err := svc.Register(ctx, RegisterForm{Username: "alice", Password: "correct horse"})
	req.NoError(err)

	_, _, err = svc.Login(ctx, LoginForm{Username: "alice", Password: "wrong"})
	req.ErrorIs(err, ErrInvalidCredentials)

	_, _, err = svc.Login(ctx, LoginForm{Username: "nobody", Password: "correct horse"})
	req.ErrorIs(err, ErrInvalidCredentials)
}

func TestValidateToken_RejectsForeignSignature(t *testing.T) {
	req := require.New(t)
	store := newMemAccountStore()
	svc := NewService(store, "test-secret")
	other := NewService(store, "another-secret")
	ctx := context.Background()

	_, err := svc.Register(ctx, RegisterForm{Username: "alice", Password: "correct horse"})
	req.NoError(err)
	token, _, err := other.Login(ctx, LoginForm{Username: "alice", Password: "correct horse"})
	req.NoError(err)

	_, _, err = svc.ValidateToken(token)
	req.Error(err)
}

func TestBlockedEitherWay(t *testing.T) {
	req := require.New(t)
	store := newMemAccountStore()
	svc := NewService(store, "test-secret")
	ctx := context.Background()

	blocked, err := svc.BlockedEitherWay(ctx, "a", "b")
	req.NoError(err)
	req.False(blocked)

	store.blocks[[2]string{"b", "a"}] = true
	blocked, err = svc.BlockedEitherWay(ctx, "a", "b")
	req.NoError(err)
	req.True(blocked, "a block in either direction severs the pair")
}

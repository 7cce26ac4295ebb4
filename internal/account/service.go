package account

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrUsernameTaken      = errors.New("account: username already taken")
	ErrInvalidCredentials = errors.New("account: invalid credentials")
)

// Store is what the service needs from persistence.
type Store interface {
	CreateAccount(ctx context.Context, a *Account) (*Account, error)
	ByUsername(ctx context.Context, username string) (*Account, error)
	ByID(ctx context.Context, id string) (*Account, error)
	SearchAccounts(ctx context.Context, query string) ([]Account, error)
	BlockExists(ctx context.Context, userID, blockedID string) (bool, error)
}

type Service struct {
	store     Store
	jwtSecret string
	tokenTTL  time.Duration
}

type Claims struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

func NewService(store Store, secret string) *Service {
	return &Service{
		store:     store,
		jwtSecret: secret,
		tokenTTL:  24 * time.Hour,
	}
}

func (s *Service) Register(ctx context.Context, form RegisterForm) (*Account, error) {
	hashedPwd, err := bcrypt.GenerateFromPassword([]byte(form.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	a := &Account{
		Username: form.Username,
		Email:    form.Email,
		Password: string(hashedPwd),
	}

	created, err := s.store.CreateAccount(ctx, a)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, ErrUsernameTaken
		}
		return nil, err
	}
	return created, nil
}

func (s *Service) Login(ctx context.Context, form LoginForm) (string, *Account, error) {
	a, err := s.store.ByUsername(ctx, form.Username)
	if err != nil {
		return "", nil, err
	}
	if a == nil {
		return "", nil, ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(a.Password), []byte(form.Password)); err != nil {
		return "", nil, ErrInvalidCredentials
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		ID:       a.ID,
		Username: a.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "chatrooms",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(s.tokenTTL)),
		},
	})

	ss, err := token.SignedString([]byte(s.jwtSecret))
	if err != nil {
		return "", nil, err
	}
	return ss, a, nil
}

func (s *Service) ValidateToken(tokenString string) (string, string, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return []byte(s.jwtSecret), nil
	})
	if err != nil {
		return "", "", err
	}
	if !token.Valid {
		return "", "", errors.New("account: invalid token")
	}

	return claims.ID, claims.Username, nil
}

func (s *Service) ByUsername(ctx context.Context, username string) (*Account, error) {
	return s.store.ByUsername(ctx, username)
}

func (s *Service) Search(ctx context.Context, query string) ([]Account, error) {
	return s.store.SearchAccounts(ctx, query)
}

// BlockedEitherWay reports whether either account has blocked the other.
func (s *Service) BlockedEitherWay(ctx context.Context, a, b string) (bool, error) {
	blocked, err := s.store.BlockExists(ctx, a, b)
	if err != nil || blocked {
		return blocked, err
	}
	return s.store.BlockExists(ctx, b, a)
}

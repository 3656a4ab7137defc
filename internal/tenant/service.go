package tenant

import (
	"context"
	"crypto/subtle"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// Repository is the persistence contract for tenants.
type Repository interface {
	Get(ctx context.Context, id string) (Tenant, error)
	GetByPhoneNumberID(ctx context.Context, phoneNumberID string) (Tenant, error)
	GetByUsername(ctx context.Context, username string) (Tenant, error)
	ListVerifyTokens(ctx context.Context) ([]string, error)
	Insert(ctx context.Context, t Tenant) error
}

type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

func (s *Service) Get(ctx context.Context, id string) (Tenant, error) {
	if id == "" {
		return Tenant{}, ErrNotFound
	}
	return s.repo.Get(ctx, id)
}

// ByPhoneNumberID resolves the tenant that owns a provider phone number.
func (s *Service) ByPhoneNumberID(ctx context.Context, phoneNumberID string) (Tenant, error) {
	if phoneNumberID == "" {
		return Tenant{}, ErrNotFound
	}
	return s.repo.GetByPhoneNumberID(ctx, phoneNumberID)
}

// MatchVerifyToken reports whether any tenant configured token as its webhook verify token.
func (s *Service) MatchVerifyToken(ctx context.Context, token string) (bool, error) {
	if token == "" {
		return false, nil
	}
	tokens, err := s.repo.ListVerifyTokens(ctx)
	if err != nil {
		return false, err
	}
	for _, t := range tokens {
		if t != "" && subtle.ConstantTimeCompare([]byte(t), []byte(token)) == 1 {
			return true, nil
		}
	}
	return false, nil
}

// Authenticate checks a dashboard login. Unknown users and bad passwords are indistinguishable.
func (s *Service) Authenticate(ctx context.Context, username, password string) (Tenant, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return Tenant{}, ErrInvalidCredentials
	}
	t, err := s.repo.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Tenant{}, ErrInvalidCredentials
		}
		return Tenant{}, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(t.PasswordHash), []byte(password)); err != nil {
		return Tenant{}, ErrInvalidCredentials
	}
	return t, nil
}

// Create registers a tenant with a hashed password.
func (s *Service) Create(ctx context.Context, t Tenant, password string) (Tenant, error) {
	if strings.TrimSpace(t.Name) == "" || strings.TrimSpace(t.Username) == "" || len(password) < 8 {
		return Tenant{}, ErrInvalidArgument
	}
	hash, err := HashPassword(password)
	if err != nil {
		return Tenant{}, err
	}
	now := s.clock().UTC()
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	t.PasswordHash = hash
	t.CreatedAt = now
	t.UpdatedAt = now
	if err := s.repo.Insert(ctx, t); err != nil {
		return Tenant{}, err
	}
	return t, nil
}

func HashPassword(password string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

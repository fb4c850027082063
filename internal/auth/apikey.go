package auth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/RealZimboGuy/approvalflow/pkg/approvalflow/core"
	"github.com/RealZimboGuy/approvalflow/pkg/approvalflow/domain"
	"github.com/RealZimboGuy/approvalflow/pkg/approvalflow/models"
)

var ErrMalformedKey = errors.New("malformed api key")

// KeyStore is the part of the user repository needed to issue keys.
type KeyStore interface {
	Save(ctx context.Context, u *domain.User) (int64, error)
	UpdateApiKey(ctx context.Context, id int64, hash string) error
}

// NewKey returns a fresh key for userID in the form "<userID>.<secret>" and
// the bcrypt hash to store.
func NewKey(userID int64) (key string, hash string, err error) {
	secret := strings.ReplaceAll(uuid.NewString(), "-", "")
	b, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", "", err
	}
	return fmt.Sprintf("%d.%s", userID, secret), string(b), nil
}

// ParseKey splits a presented key into the user id and secret.
func ParseKey(key string) (int64, string, error) {
	idPart, secret, ok := strings.Cut(key, ".")
	if !ok || secret == "" {
		return 0, "", ErrMalformedKey
	}
	id, err := strconv.ParseInt(idPart, 10, 64)
	if err != nil || id <= 0 {
		return 0, "", ErrMalformedKey
	}
	return id, secret, nil
}

func Verify(hash string, secret string) bool {
	if hash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret)) == nil
}

// CreateUser stores a new enabled user and issues its first API key.
func CreateUser(ctx context.Context, store KeyStore, tenantID string, req models.CreateUserRequest) (*models.CreateUserResponse, error) {
	username := strings.TrimSpace(req.Username)
	if username == "" {
		return nil, core.Validationf("username is required")
	}
	u := &domain.User{
		TenantID: tenantID,
		Username: username,
		Enabled:  true,
		Roles:    req.Roles,
	}
	if req.Manager != "" {
		m := req.Manager
		u.Manager = &m
	}
	if u.Roles == nil {
		u.Roles = []string{}
	}
	id, err := store.Save(ctx, u)
	if err != nil {
		return nil, err
	}
	key, hash, err := NewKey(id)
	if err != nil {
		return nil, err
	}
	if err := store.UpdateApiKey(ctx, id, hash); err != nil {
		return nil, err
	}
	return &models.CreateUserResponse{
		ID:       id,
		Username: u.Username,
		TenantID: tenantID,
		Roles:    u.Roles,
		ApiKey:   key,
	}, nil
}

package apikey

import (
	"context"
	"crypto/subtle"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Service manages the API key lifecycle and evaluates authorization.
type Service struct {
	repo Repository
	now  func() time.Time
}

// NewService creates an API key service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// IssueInput captures data required to create a key.
type IssueInput struct {
	OwnerID     string
	Name        string
	Permissions []string
	Expiry      string
}

// IssuedKey carries the stored key plus the plaintext secret. The secret is
// available only here, never again.
type IssuedKey struct {
	Key
	Secret string
}

// Issue creates a new key for the owner. Fails with ErrTooManyActiveKeys if
// the owner already holds MaxActiveKeys active keys; the limit is enforced by
// the repository inside the same atomic unit as the insert.
func (s *Service) Issue(ctx context.Context, input IssueInput) (IssuedKey, error) {
	perms, err := ParsePermissions(input.Permissions)
	if err != nil {
		return IssuedKey{}, err
	}
	ttl, err := ParseExpiry(input.Expiry)
	if err != nil {
		return IssuedKey{}, err
	}

	secret, hash, prefix, err := GenerateSecret()
	if err != nil {
		return IssuedKey{}, err
	}

	now := s.now().UTC()
	key := Key{
		ID:          uuid.NewString(),
		Name:        input.Name,
		OwnerID:     input.OwnerID,
		Prefix:      prefix,
		SecretHash:  hash,
		Permissions: perms,
		ExpiresAt:   now.Add(ttl),
		CreatedAt:   now,
	}

	if err := s.repo.Insert(ctx, key, MaxActiveKeys); err != nil {
		return IssuedKey{}, err
	}

	return IssuedKey{Key: key, Secret: secret}, nil
}

// Rollover creates a fresh key inheriting the permissions of an expired one.
// The expired record is left untouched. Fails with ErrNotExpired when the
// referenced key is still live and ErrKeyNotFound when it is absent or owned
// by someone else.
func (s *Service) Rollover(ctx context.Context, ownerID, keyID, expiry string) (IssuedKey, error) {
	old, err := s.repo.Get(ctx, keyID)
	if err != nil {
		return IssuedKey{}, err
	}
	if old.OwnerID != ownerID {
		return IssuedKey{}, ErrKeyNotFound
	}
	if !old.Expired(s.now().UTC()) {
		return IssuedKey{}, ErrNotExpired
	}

	names := make([]string, len(old.Permissions))
	for i, p := range old.Permissions {
		names[i] = string(p)
	}
	return s.Issue(ctx, IssueInput{
		OwnerID:     ownerID,
		Name:        old.Name + " (rolled over)",
		Permissions: names,
		Expiry:      expiry,
	})
}

// Revoke deactivates a key. Revoking an already revoked or expired key is a
// no-op success.
func (s *Service) Revoke(ctx context.Context, ownerID, keyID string) error {
	key, err := s.repo.Get(ctx, keyID)
	if err != nil {
		return err
	}
	if key.OwnerID != ownerID {
		return ErrKeyNotFound
	}
	if key.Revoked || key.Expired(s.now().UTC()) {
		return nil
	}
	return s.repo.Revoke(ctx, keyID)
}

// List returns all of the owner's keys with status evaluated lazily.
func (s *Service) List(ctx context.Context, ownerID string) ([]Key, error) {
	return s.repo.ListByOwner(ctx, ownerID)
}

// Authorize verifies the secret's derivation, checks the key is active and
// carries the required permission, and returns the owning user. Every failure
// collapses to ErrDenied so callers learn nothing about which check failed.
func (s *Service) Authorize(ctx context.Context, secret string, required Permission) (string, error) {
	hash := HashSecret(secret)
	key, err := s.repo.GetBySecretHash(ctx, hash)
	if err != nil {
		if errors.Is(err, ErrKeyNotFound) {
			return "", ErrDenied
		}
		return "", err
	}
	if subtle.ConstantTimeCompare([]byte(key.SecretHash), []byte(hash)) != 1 {
		return "", ErrDenied
	}
	if !key.Active(s.now().UTC()) {
		return "", ErrDenied
	}
	if !key.HasPermission(required) {
		return "", ErrDenied
	}

	// Best effort; authorization does not fail on a missed touch.
	_ = s.repo.TouchLastUsed(ctx, key.ID, s.now().UTC())

	return key.OwnerID, nil
}

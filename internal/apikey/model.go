package apikey

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"math/big"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrDenied is the single outcome for every authorization failure: unknown
	// secret, revoked or expired key, or missing permission. Deliberately
	// uninformative.
	ErrDenied = errors.New("denied")

	// ErrKeyNotFound occurs when no key matches the id for the caller.
	ErrKeyNotFound = errors.New("api key not found")

	// ErrTooManyActiveKeys occurs when an owner already holds the maximum
	// number of active keys.
	ErrTooManyActiveKeys = errors.New("too many active api keys")

	// ErrNotExpired occurs when rollover targets a key that is still live.
	ErrNotExpired = errors.New("api key has not expired")

	// ErrInvalidPermission occurs when a requested permission is outside the
	// defined set, or no permission was requested at all.
	ErrInvalidPermission = errors.New("invalid permissions")

	// ErrInvalidExpiry occurs when the expiry code cannot be parsed.
	ErrInvalidExpiry = errors.New("invalid expiry format, use 1H, 1D, 1M or 1Y")
)

// Permission scopes what a key may invoke.
type Permission string

const (
	PermissionRead     Permission = "read"
	PermissionDeposit  Permission = "deposit"
	PermissionTransfer Permission = "transfer"
)

// MaxActiveKeys bounds how many active keys an owner may hold at once.
const MaxActiveKeys = 5

const (
	secretPrefix   = "sk_"
	secretLength   = 32
	displayPrefix  = 10
	secretAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

// Key is a scoped, expiring, revocable credential. The plaintext secret is
// returned once at issuance; only its SHA-256 derivation is stored.
type Key struct {
	ID          string
	Name        string
	OwnerID     string
	Prefix      string
	SecretHash  string
	Permissions []Permission
	ExpiresAt   time.Time
	Revoked     bool
	LastUsedAt  *time.Time
	CreatedAt   time.Time
}

// Expired reports whether the key's expiry has passed. Expiry is evaluated
// lazily wherever status is needed; no background sweeper exists.
func (k Key) Expired(now time.Time) bool {
	return !now.Before(k.ExpiresAt)
}

// Active reports whether the key may authorize requests at the given instant.
func (k Key) Active(now time.Time) bool {
	return !k.Revoked && !k.Expired(now)
}

// Status derives the key's lifecycle state.
func (k Key) Status(now time.Time) string {
	switch {
	case k.Revoked:
		return "revoked"
	case k.Expired(now):
		return "expired"
	default:
		return "active"
	}
}

// HasPermission reports whether the key carries the given permission.
func (k Key) HasPermission(p Permission) bool {
	for _, granted := range k.Permissions {
		if granted == p {
			return true
		}
	}
	return false
}

// ParsePermissions validates and converts the requested permission names. At
// least one permission is required and all must be within the defined set.
func ParsePermissions(names []string) ([]Permission, error) {
	if len(names) == 0 {
		return nil, ErrInvalidPermission
	}
	perms := make([]Permission, 0, len(names))
	for _, name := range names {
		p := Permission(strings.ToLower(strings.TrimSpace(name)))
		switch p {
		case PermissionRead, PermissionDeposit, PermissionTransfer:
			perms = append(perms, p)
		default:
			return nil, ErrInvalidPermission
		}
	}
	return perms, nil
}

// ParseExpiry converts an expiry code (1H, 1D, 1M, 1Y; any positive count)
// into a duration. Months and years are approximated as 30 and 365 days.
func ParseExpiry(code string) (time.Duration, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if len(code) < 2 {
		return 0, ErrInvalidExpiry
	}
	count, err := strconv.Atoi(code[:len(code)-1])
	if err != nil || count <= 0 {
		return 0, ErrInvalidExpiry
	}
	switch code[len(code)-1] {
	case 'H':
		return time.Duration(count) * time.Hour, nil
	case 'D':
		return time.Duration(count) * 24 * time.Hour, nil
	case 'M':
		return time.Duration(count) * 30 * 24 * time.Hour, nil
	case 'Y':
		return time.Duration(count) * 365 * 24 * time.Hour, nil
	default:
		return 0, ErrInvalidExpiry
	}
}

// GenerateSecret produces a fresh plaintext secret together with its stored
// derivation and display prefix.
func GenerateSecret() (secret, hash, prefix string, err error) {
	var b strings.Builder
	b.WriteString(secretPrefix)
	for i := 0; i < secretLength; i++ {
		n, randErr := rand.Int(rand.Reader, big.NewInt(int64(len(secretAlphabet))))
		if randErr != nil {
			return "", "", "", randErr
		}
		b.WriteByte(secretAlphabet[n.Int64()])
	}
	secret = b.String()
	return secret, HashSecret(secret), secret[:displayPrefix], nil
}

// HashSecret derives the stored form of a plaintext secret.
func HashSecret(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}

package apikey

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists API keys. Insert enforces the active-key limit
// structurally: the count and the insert happen in one atomic unit so
// concurrent issuance cannot exceed the limit.
type Repository interface {
	Insert(ctx context.Context, key Key, maxActive int) error
	Get(ctx context.Context, id string) (Key, error)
	GetBySecretHash(ctx context.Context, hash string) (Key, error)
	ListByOwner(ctx context.Context, ownerID string) ([]Key, error)
	Revoke(ctx context.Context, id string) error
	TouchLastUsed(ctx context.Context, id string, at time.Time) error
}

// PostgresRepository stores API keys in PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a repository backed by PostgreSQL.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Insert adds a key after verifying the owner holds fewer than maxActive
// active keys. An advisory lock on the owner serializes concurrent issuance
// so the check-then-insert cannot race.
func (r *PostgresRepository) Insert(ctx context.Context, key Key, maxActive int) error {
	keyID, err := uuid.Parse(key.ID)
	if err != nil {
		return err
	}
	ownerID, err := uuid.Parse(key.OwnerID)
	if err != nil {
		return err
	}

	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, key.OwnerID); err != nil {
		return err
	}

	var active int
	err = tx.QueryRow(ctx, `SELECT COUNT(*) FROM api_keys
        WHERE owner_id = $1 AND revoked = FALSE AND expires_at > now()`, ownerID).Scan(&active)
	if err != nil {
		return err
	}
	if active >= maxActive {
		return ErrTooManyActiveKeys
	}

	perms := make([]string, len(key.Permissions))
	for i, p := range key.Permissions {
		perms[i] = string(p)
	}
	_, err = tx.Exec(ctx, `INSERT INTO api_keys (id, name, owner_id, prefix, secret_hash, permissions, expires_at, revoked, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		keyID, key.Name, ownerID, key.Prefix, key.SecretHash, perms, key.ExpiresAt.UTC(), key.Revoked, key.CreatedAt.UTC())
	if err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// Get fetches a key by identifier.
func (r *PostgresRepository) Get(ctx context.Context, id string) (Key, error) {
	keyID, err := uuid.Parse(id)
	if err != nil {
		return Key{}, ErrKeyNotFound
	}
	return r.scanOne(r.db.QueryRow(ctx, selectKeyQuery+` WHERE id = $1`, keyID))
}

// GetBySecretHash fetches a key by its stored secret derivation.
func (r *PostgresRepository) GetBySecretHash(ctx context.Context, hash string) (Key, error) {
	return r.scanOne(r.db.QueryRow(ctx, selectKeyQuery+` WHERE secret_hash = $1`, hash))
}

// ListByOwner returns all keys for the owner, newest first.
func (r *PostgresRepository) ListByOwner(ctx context.Context, ownerID string) ([]Key, error) {
	owner, err := uuid.Parse(ownerID)
	if err != nil {
		return nil, ErrKeyNotFound
	}
	rows, err := r.db.Query(ctx, selectKeyQuery+` WHERE owner_id = $1 ORDER BY created_at DESC`, owner)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []Key
	for rows.Next() {
		key, err := scanKey(rows)
		if err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

// Revoke marks the key revoked. Revoking an absent key reports ErrKeyNotFound;
// revoking an already revoked key is a no-op.
func (r *PostgresRepository) Revoke(ctx context.Context, id string) error {
	keyID, err := uuid.Parse(id)
	if err != nil {
		return ErrKeyNotFound
	}
	cmd, err := r.db.Exec(ctx, `UPDATE api_keys SET revoked = TRUE WHERE id = $1`, keyID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrKeyNotFound
	}
	return nil
}

// TouchLastUsed records when the key last authorized a request.
func (r *PostgresRepository) TouchLastUsed(ctx context.Context, id string, at time.Time) error {
	keyID, err := uuid.Parse(id)
	if err != nil {
		return ErrKeyNotFound
	}
	_, err = r.db.Exec(ctx, `UPDATE api_keys SET last_used_at = $1 WHERE id = $2`, at.UTC(), keyID)
	return err
}

const selectKeyQuery = `SELECT id, name, owner_id, prefix, secret_hash, permissions, expires_at, revoked, last_used_at, created_at
    FROM api_keys`

func (r *PostgresRepository) scanOne(row pgx.Row) (Key, error) {
	key, err := scanKey(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Key{}, ErrKeyNotFound
	}
	return key, err
}

func scanKey(row pgx.Row) (Key, error) {
	var (
		key        Key
		id         uuid.UUID
		ownerID    uuid.UUID
		perms      []string
		expiresAt  time.Time
		lastUsedAt *time.Time
		createdAt  time.Time
	)
	if err := row.Scan(&id, &key.Name, &ownerID, &key.Prefix, &key.SecretHash, &perms, &expiresAt, &key.Revoked, &lastUsedAt, &createdAt); err != nil {
		return Key{}, err
	}
	key.ID = id.String()
	key.OwnerID = ownerID.String()
	key.Permissions = make([]Permission, len(perms))
	for i, p := range perms {
		key.Permissions[i] = Permission(p)
	}
	key.ExpiresAt = expiresAt.UTC()
	if lastUsedAt != nil {
		t := lastUsedAt.UTC()
		key.LastUsedAt = &t
	}
	key.CreatedAt = createdAt.UTC()
	return key, nil
}

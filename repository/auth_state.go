package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/goliatone/go-fleet-auth"
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

// AuthStateModel is the Bun model for a persisted auth state.
type AuthStateModel struct {
	bun.BaseModel `bun:"table:auth_state,alias:ast"`

	ID        uuid.UUID `bun:"id,pk,type:uuid"`
	StateKey  string    `bun:"state_key,notnull,unique"`
	Payload   string    `bun:"payload,notnull"`
	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt time.Time `bun:"updated_at,notnull,default:current_timestamp"`
}

// AuthStateRepository implements auth.StateStorage using Bun.
type AuthStateRepository struct {
	db *bun.DB
}

var _ auth.StateStorage = (*AuthStateRepository)(nil)

// Open opens a SQLite database through the sqlite shim.
func Open(dsn string) (*bun.DB, error) {
	sqldb, err := sql.Open(sqliteshim.ShimName, dsn)
	if err != nil {
		return nil, err
	}
	sqldb.SetMaxOpenConns(1)
	return bun.NewDB(sqldb, sqlitedialect.New()), nil
}

// NewAuthStateRepository creates a new repository.
func NewAuthStateRepository(db *bun.DB) *AuthStateRepository {
	return &AuthStateRepository{db: db}
}

// Init creates the auth_state table when missing.
func (r *AuthStateRepository) Init(ctx context.Context) error {
	_, err := r.db.NewCreateTable().
		Model((*AuthStateModel)(nil)).
		IfNotExists().
		Exec(ctx)
	return err
}

// Load implements auth.StateStorage.
func (r *AuthStateRepository) Load(ctx context.Context, key string) ([]byte, error) {
	var model AuthStateModel
	err := r.db.NewSelect().
		Model(&model).
		Where("state_key = ?", key).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, auth.ErrStateNotFound
		}
		return nil, err
	}
	return []byte(model.Payload), nil
}

// Save implements auth.StateStorage.
func (r *AuthStateRepository) Save(ctx context.Context, key string, data []byte) error {
	id, err := hashid.NewUUID(key)
	if err != nil {
		return err
	}

	now := time.Now()
	model := &AuthStateModel{
		ID:        id,
		StateKey:  key,
		Payload:   string(data),
		CreatedAt: now,
		UpdatedAt: now,
	}

	_, err = r.db.NewInsert().
		Model(model).
		On("CONFLICT (id) DO UPDATE").
		Set("payload = EXCLUDED.payload").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)

	return err
}

// Delete removes the state stored under key.
func (r *AuthStateRepository) Delete(ctx context.Context, key string) error {
	_, err := r.db.NewDelete().
		Model((*AuthStateModel)(nil)).
		Where("state_key = ?", key).
		Exec(ctx)
	return err
}

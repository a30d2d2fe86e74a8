package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-pg/pg/v10"
	"github.com/rbroggi/communityevents/internal/core/model"
	"github.com/rbroggi/communityevents/internal/metrics"
)

// PostgresDB is a postgres adapter for the custom claims table read by the authentication service.
type PostgresDB struct {
	db      *pg.DB
	nowFunc func() time.Time
}

// PostgresDBArgs are the mandatory arguments for the creation of a PostgresDB
type PostgresDBArgs struct {
	// DB is a postgres database handle
	DB *pg.DB
}

// PostgresDBOptArgs are the optional arguments for building a PostgresDB
type PostgresDBOptArgs = func(*PostgresDB)

// WithNowFunc can be used to override the nowFunc. Useful for testing.
func WithNowFunc(nowFunc func() time.Time) PostgresDBOptArgs {
	return func(p *PostgresDB) {
		p.nowFunc = nowFunc
	}
}

// NewPostgresDB creates a new PostgresDB.
func NewPostgresDB(args PostgresDBArgs, optArgs ...PostgresDBOptArgs) (*PostgresDB, error) {
	if args.DB == nil {
		return nil, errors.New("nil db passed to postgres adapter")
	}
	pg := &PostgresDB{db: args.DB, nowFunc: func() time.Time { return time.Now().UTC() }}
	for _, opt := range optArgs {
		opt(pg)
	}
	return pg, nil
}

// SetCustomClaims replaces the claims of uid. Previous claims are not merged.
func (p *PostgresDB) SetCustomClaims(ctx context.Context, uid string, claims model.Claims) error {
	err := p.upsert(ctx, uid, claims)
	metrics.ClaimsUpdates.WithLabelValues("postgres", metrics.Result(err)).Inc()
	return err
}

func (p *PostgresDB) upsert(ctx context.Context, uid string, claims model.Claims) error {
	if uid == "" {
		return fmt.Errorf("%w: empty uid", model.ErrInvalidArgument)
	}
	row := &claimsDB{
		UID:       uid,
		Claims:    map[string]interface{}(claims),
		UpdatedAt: p.nowFunc(),
	}
	if row.Claims == nil {
		row.Claims = map[string]interface{}{}
	}
	_, err := p.db.ModelContext(ctx, row).
		OnConflict("(uid) DO UPDATE").
		Set("claims = EXCLUDED.claims").
		Set("updated_at = EXCLUDED.updated_at").
		Insert()
	if err != nil {
		return fmt.Errorf("error upserting claims of [%s]: %w", uid, err)
	}
	return nil
}

// GetCustomClaims returns the claims of uid. It returns model.ErrNotFound if none were ever set.
func (p *PostgresDB) GetCustomClaims(ctx context.Context, uid string) (model.Claims, error) {
	row := new(claimsDB)
	err := p.db.ModelContext(ctx, row).Where("uid = ?", uid).Select()
	if errors.Is(err, pg.ErrNoRows) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error reading claims of [%s]: %w", uid, err)
	}
	return model.Claims(row.Claims), nil
}

// Ping checks the database connection.
func (p *PostgresDB) Ping(ctx context.Context) error {
	return p.db.Ping(ctx)
}

type claimsDB struct {
	tableName struct{} `pg:"auth.custom_claims"`

	// UID is the authentication account id.
	UID string `pg:"uid,pk"`

	// Claims is the full set of custom claims.
	Claims map[string]interface{} `pg:"claims,type:jsonb"`

	// UpdatedAt is the time of the last overwrite.
	UpdatedAt time.Time `pg:"updated_at"`
}

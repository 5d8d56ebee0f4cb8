// Package pg is the postgres Store built on pgx. All repositories run
// against a querier, which is either the pool or a transaction, so the
// same code serves both paths.
package pg

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/evecore/evecore/internal/domain"
	"github.com/evecore/evecore/internal/observability/logger"
)

// querier is the subset of pgxpool.Pool and pgx.Tx the repositories use.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store is the root postgres store.
type Store struct {
	pool *pgxpool.Pool
	q    querier
}

type Options struct {
	MaxConns        int32
	MinConns        int32
	ConnMaxLifetime time.Duration
}

func New(ctx context.Context, dsn string, opts Options) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	if opts.MaxConns > 0 {
		cfg.MaxConns = opts.MaxConns
	}
	if opts.MinConns > 0 {
		cfg.MinConns = opts.MinConns
	}
	if opts.ConnMaxLifetime > 0 {
		cfg.MaxConnLifetime = opts.ConnMaxLifetime
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		logger.L().Warn("postgres ping failed at startup",
			logger.Component("store"), logger.Err(err))
	}
	return &Store{pool: pool, q: pool}, nil
}

func (s *Store) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Pool exposes the underlying pool for metrics collection.
func (s *Store) Pool() *pgxpool.Pool { return s.pool }

func (s *Store) Players() domain.PlayerRepository { return &playerRepo{s.q} }
func (s *Store) Characters() domain.CharacterRepository { return &characterRepo{s.q} }
func (s *Store) EsiTokens() domain.EsiTokenRepository { return &tokenRepo{s.q} }
func (s *Store) EveLogins() domain.EveLoginRepository { return &eveLoginRepo{s.q} }
func (s *Store) Groups() domain.GroupRepository { return &groupRepo{s.q} }
func (s *Store) GroupApplications() domain.GroupApplicationRepository {
	return &appRepo{s.q}
}
func (s *Store) Roles() domain.RoleRepository { return &roleRepo{s.q} }
func (s *Store) RemovedCharacters() domain.RemovedCharacterRepository {
	return &removedRepo{s.q}
}
func (s *Store) Corporations() domain.CorporationRepository { return &corpRepo{s.q} }
func (s *Store) Alliances() domain.AllianceRepository { return &allianceRepo{s.q} }
func (s *Store) Settings() domain.SettingsRepository { return &settingsRepo{s.q} }

// WithTx runs fn against a transaction-bound Store. A nested call reuses
// the surrounding transaction.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, st domain.Store) error) error {
	if _, nested := s.q.(pgx.Tx); nested {
		return fn(ctx, s)
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	txStore := &Store{pool: s.pool, q: tx}
	if err := fn(ctx, txStore); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			logger.From(ctx).Error("tx rollback failed", logger.Component("store"), logger.Err(rbErr))
		}
		return err
	}
	return tx.Commit(ctx)
}

// mapErr converts pgx-level errors into domain sentinels.
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return domain.ErrDuplicate
	}
	return err
}

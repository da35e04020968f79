package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"coursecast/internal/media"
)

type postgresRepository struct {
	pool *pgxpool.Pool
	cfg  PostgresConfig
}

// NewPostgresRepository opens a Postgres-backed repository. The caller must
// ensure database migrations have been applied prior to invoking this
// constructor.
func NewPostgresRepository(ctx context.Context, dsn string, opts ...Option) (Repository, error) {
	cfg := newPostgresConfig(dsn, opts...)
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, fmt.Errorf("postgres dsn required")
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}
	if cfg.MaxConnections > 0 {
		poolCfg.MaxConns = cfg.MaxConnections
	}
	if cfg.MinConnections >= 0 {
		poolCfg.MinConns = cfg.MinConnections
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		poolCfg.MaxConnIdleTime = cfg.MaxConnIdleTime
	}
	if cfg.HealthCheckInterval > 0 {
		poolCfg.HealthCheckPeriod = cfg.HealthCheckInterval
	}
	if cfg.AcquireTimeout > 0 {
		poolCfg.ConnConfig.ConnectTimeout = cfg.AcquireTimeout
	}
	if cfg.ApplicationName != "" {
		if poolCfg.ConnConfig.RuntimeParams == nil {
			poolCfg.ConnConfig.RuntimeParams = make(map[string]string)
		}
		poolCfg.ConnConfig.RuntimeParams["application_name"] = cfg.ApplicationName
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("open postgres pool: %w", err)
	}

	return &postgresRepository{pool: pool, cfg: cfg}, nil
}

// opContext applies the configured acquire timeout so a saturated pool or a
// stuck statement fails fast instead of holding the request open.
func (r *postgresRepository) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.cfg.AcquireTimeout > 0 {
		return context.WithTimeout(ctx, r.cfg.AcquireTimeout)
	}
	return context.WithCancel(ctx)
}

func (r *postgresRepository) Ping(ctx context.Context) error {
	ctx, cancel := r.opContext(ctx)
	defer cancel()
	if err := r.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}

func (r *postgresRepository) ValidateAccessToken(ctx context.Context, token, clientIP string) (bool, error) {
	ctx, cancel := r.opContext(ctx)
	defer cancel()

	var valid *bool
	err := r.pool.QueryRow(ctx, `SELECT validate_access_token($1, $2)`, token, clientIP).Scan(&valid)
	if err != nil {
		return false, fmt.Errorf("validate access token: %w", err)
	}
	return valid != nil && *valid, nil
}

func (r *postgresRepository) UserHasRole(ctx context.Context, userID, role string) (bool, error) {
	ctx, cancel := r.opContext(ctx)
	defer cancel()

	var granted bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM user_roles WHERE user_id = $1 AND role = $2)`,
		userID, role,
	).Scan(&granted)
	if err != nil {
		return false, fmt.Errorf("look up role grant: %w", err)
	}
	return granted, nil
}

func (r *postgresRepository) UpdateVideoIngest(ctx context.Context, videoID string, update media.IngestUpdate) error {
	ctx, cancel := r.opContext(ctx)
	defer cancel()

	tag, err := r.pool.Exec(ctx,
		`UPDATE videos
		    SET video_path = $2,
		        hls_path = $3,
		        duration = $4,
		        title = CASE WHEN $5 <> '' THEN $5 ELSE title END,
		        updated_at = now()
		  WHERE id = $1`,
		videoID, update.VideoPath, update.HLSPath, update.DurationSeconds, update.Title,
	)
	if err != nil {
		return fmt.Errorf("update video %s: %w", videoID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update video %s: %w", videoID, ErrVideoNotFound)
	}
	return nil
}

func (r *postgresRepository) ClearVideoPaths(ctx context.Context, videoID string) error {
	ctx, cancel := r.opContext(ctx)
	defer cancel()

	// Deletion is idempotent end to end, so a missing row is not an error.
	_, err := r.pool.Exec(ctx,
		`UPDATE videos
		    SET video_path = NULL,
		        hls_path = NULL,
		        updated_at = now()
		  WHERE id = $1`,
		videoID,
	)
	if err != nil {
		return fmt.Errorf("clear video paths %s: %w", videoID, err)
	}
	return nil
}

func (r *postgresRepository) Close(ctx context.Context) error {
	if r == nil || r.pool == nil {
		return nil
	}
	done := make(chan struct{})
	go func() {
		r.pool.Close()
		close(done)
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

var (
	_ Repository    = (*postgresRepository)(nil)
	_ media.Catalog = (*postgresRepository)(nil)
)

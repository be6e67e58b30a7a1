package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pubcrawl-badges/internal/config"
	"github.com/pubcrawl-badges/internal/domain"
)

// DB is the subset of pgxpool.Pool used by the repository
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
	Ping(ctx context.Context) error
	Close()
}

var psql = squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)

var (
	checkInColumns = []string{"id", "user_id", "pub_id", "checked_in_at", "date_key"}
	badgeColumns   = []string{"id", "name", "description", "category", "emoji", "icon_url", "icon", "criteria", "created_at", "updated_at"}
	earnedColumns  = []string{"id", "user_id", "badge_id", "awarded_at", "metadata"}
)

type earnedBadgeRow struct {
	ID        string    `db:"id"`
	UserID    string    `db:"user_id"`
	BadgeID   string    `db:"badge_id"`
	AwardedAt time.Time `db:"awarded_at"`
	Metadata  []byte    `db:"metadata"`
}

// Repository provides PostgreSQL-based data access
type Repository struct {
	db     DB
	logger *slog.Logger
	now    func() time.Time
}

// NewRepository creates a new PostgreSQL repository
func NewRepository(ctx context.Context, cfg *config.PostgresConfig, logger *slog.Logger) (*Repository, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("parsing connection string: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxConnections)
	poolConfig.MinConns = int32(cfg.MinConnections)
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	// Test connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	return NewRepositoryWithDB(pool, logger), nil
}

// NewRepositoryWithDB wraps an existing connection
func NewRepositoryWithDB(db DB, logger *slog.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
		now:    time.Now,
	}
}

// Close closes the database connection pool
func (r *Repository) Close() {
	r.db.Close()
}

// Ping checks the database connection
func (r *Repository) Ping(ctx context.Context) error {
	return r.db.Ping(ctx)
}

// RunMigrations executes database migrations
func (r *Repository) RunMigrations(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS checkins (
			id VARCHAR(64) PRIMARY KEY,
			user_id VARCHAR(64) NOT NULL,
			pub_id VARCHAR(64) NOT NULL,
			checked_in_at TIMESTAMPTZ NOT NULL,
			date_key VARCHAR(10) NOT NULL,
			created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS badges (
			id VARCHAR(64) PRIMARY KEY,
			name VARCHAR(255) NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			category VARCHAR(64) NOT NULL DEFAULT '',
			emoji VARCHAR(16) NOT NULL DEFAULT '',
			icon_url TEXT NOT NULL DEFAULT '',
			icon VARCHAR(64) NOT NULL DEFAULT '',
			criteria TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS earned_badges (
			id VARCHAR(64) PRIMARY KEY,
			user_id VARCHAR(64) NOT NULL,
			badge_id VARCHAR(64) NOT NULL,
			awarded_at TIMESTAMPTZ NOT NULL,
			metadata JSONB,
			UNIQUE(user_id, badge_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_checkins_user ON checkins(user_id, checked_in_at)`,
		`CREATE INDEX IF NOT EXISTS idx_earned_badges_user ON earned_badges(user_id, awarded_at)`,
	}

	for _, migration := range migrations {
		_, err := r.db.Exec(ctx, migration)
		if err != nil {
			return fmt.Errorf("executing migration: %w", err)
		}
	}

	r.logger.Info("database migrations completed")
	return nil
}

// CreateCheckIn stores a check-in
func (r *Repository) CreateCheckIn(ctx context.Context, c domain.CheckIn) error {
	query, args, err := psql.Insert("checkins").
		Columns(checkInColumns...).
		Values(c.ID, c.UserID, c.PubID, c.Timestamp, c.DateKey).
		ToSql()
	if err != nil {
		return fmt.Errorf("building check-in insert: %w", err)
	}

	if _, err := r.db.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("creating check-in: %w", err)
	}
	return nil
}

// ListCheckIns returns a user's check-ins, oldest first
func (r *Repository) ListCheckIns(ctx context.Context, userID string) ([]domain.CheckIn, error) {
	query, args, err := psql.Select(checkInColumns...).
		From("checkins").
		Where(squirrel.Eq{"user_id": userID}).
		OrderBy("checked_in_at ASC", "id ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building check-in query: %w", err)
	}

	var checkIns []domain.CheckIn
	if err := pgxscan.Select(ctx, r.db, &checkIns, query, args...); err != nil {
		return nil, fmt.Errorf("listing check-ins: %w", err)
	}
	return checkIns, nil
}

// ListUserIDs returns a page of users that have check-ins, ordered by id
// and starting after the given id
func (r *Repository) ListUserIDs(ctx context.Context, after string, limit int) ([]string, error) {
	builder := psql.Select("user_id").
		Distinct().
		From("checkins").
		OrderBy("user_id").
		Limit(uint64(limit))
	if after != "" {
		builder = builder.Where(squirrel.Gt{"user_id": after})
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("building user query: %w", err)
	}

	var ids []string
	if err := pgxscan.Select(ctx, r.db, &ids, query, args...); err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}
	return ids, nil
}

// UpsertBadge creates or updates a badge definition
func (r *Repository) UpsertBadge(ctx context.Context, b domain.Badge) (*domain.Badge, error) {
	query := `
		INSERT INTO badges (id, name, description, category, emoji, icon_url, icon, criteria, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
		ON CONFLICT (id)
		DO UPDATE SET name = $2, description = $3, category = $4, emoji = $5,
			icon_url = $6, icon = $7, criteria = $8, updated_at = $9
		RETURNING created_at, updated_at
	`
	err := r.db.QueryRow(ctx, query,
		b.ID, b.Name, b.Description, b.Category, b.Emoji, b.IconURL, b.Icon, b.Criteria, r.now(),
	).Scan(&b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("upserting badge: %w", err)
	}
	return &b, nil
}

// SeedBadges inserts definitions that do not exist yet
func (r *Repository) SeedBadges(ctx context.Context, badges []domain.Badge) error {
	if len(badges) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	query := `
		INSERT INTO badges (id, name, description, category, emoji, icon_url, icon, criteria, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
		ON CONFLICT (id) DO NOTHING
	`
	now := r.now()
	for _, b := range badges {
		batch.Queue(query, b.ID, b.Name, b.Description, b.Category, b.Emoji, b.IconURL, b.Icon, b.Criteria, now)
	}

	br := r.db.SendBatch(ctx, batch)
	defer br.Close()

	for range badges {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("seeding badges: %w", err)
		}
	}
	return nil
}

// ListBadges returns all badge definitions
func (r *Repository) ListBadges(ctx context.Context) ([]domain.Badge, error) {
	query, args, err := psql.Select(badgeColumns...).
		From("badges").
		OrderBy("created_at ASC", "id ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building badge query: %w", err)
	}

	var badges []domain.Badge
	if err := pgxscan.Select(ctx, r.db, &badges, query, args...); err != nil {
		return nil, fmt.Errorf("listing badges: %w", err)
	}
	return badges, nil
}

// DeleteBadge removes a badge definition. Earned records are kept.
func (r *Repository) DeleteBadge(ctx context.Context, badgeID string) error {
	query, args, err := psql.Delete("badges").
		Where(squirrel.Eq{"id": badgeID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("building badge delete: %w", err)
	}

	result, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("deleting badge: %w", err)
	}
	if result.RowsAffected() == 0 {
		return domain.ErrBadgeNotFound
	}
	return nil
}

// ListEarnedBadges returns the badges a user holds, oldest first
func (r *Repository) ListEarnedBadges(ctx context.Context, userID string) ([]domain.EarnedBadge, error) {
	query, args, err := psql.Select(earnedColumns...).
		From("earned_badges").
		Where(squirrel.Eq{"user_id": userID}).
		OrderBy("awarded_at ASC", "id ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building earned badge query: %w", err)
	}

	var rows []earnedBadgeRow
	if err := pgxscan.Select(ctx, r.db, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("listing earned badges: %w", err)
	}

	earned := make([]domain.EarnedBadge, 0, len(rows))
	for _, row := range rows {
		eb := domain.EarnedBadge{
			ID:        row.ID,
			UserID:    row.UserID,
			BadgeID:   row.BadgeID,
			AwardedAt: row.AwardedAt,
		}
		if len(row.Metadata) > 0 {
			if err := json.Unmarshal(row.Metadata, &eb.Metadata); err != nil {
				return nil, fmt.Errorf("unmarshaling metadata: %w", err)
			}
		}
		earned = append(earned, eb)
	}
	return earned, nil
}

// HasEarnedBadge reports whether the user holds the badge
func (r *Repository) HasEarnedBadge(ctx context.Context, userID, badgeID string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM earned_badges WHERE user_id = $1 AND badge_id = $2)`
	var exists bool
	err := r.db.QueryRow(ctx, query, userID, badgeID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking earned badge: %w", err)
	}
	return exists, nil
}

// CreateEarnedBadge awards a badge. The insert is conditional on the
// (user_id, badge_id) pair being absent; a duplicate yields
// domain.ErrBadgeAlreadyEarned.
func (r *Repository) CreateEarnedBadge(ctx context.Context, userID, badgeID string, metadata map[string]interface{}) (*domain.EarnedBadge, error) {
	var metadataJSON []byte
	var err error
	if metadata != nil {
		metadataJSON, err = json.Marshal(metadata)
		if err != nil {
			return nil, fmt.Errorf("marshaling metadata: %w", err)
		}
	}

	eb := domain.EarnedBadge{
		ID:        uuid.NewString(),
		UserID:    userID,
		BadgeID:   badgeID,
		AwardedAt: r.now().UTC(),
		Metadata:  metadata,
	}

	query, args, err := psql.Insert("earned_badges").
		Columns(earnedColumns...).
		Values(eb.ID, userID, badgeID, eb.AwardedAt, metadataJSON).
		Suffix("ON CONFLICT (user_id, badge_id) DO NOTHING RETURNING id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building earned badge insert: %w", err)
	}

	err = r.db.QueryRow(ctx, query, args...).Scan(&eb.ID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrBadgeAlreadyEarned
		}
		return nil, fmt.Errorf("creating earned badge: %w", err)
	}
	return &eb, nil
}

// DeleteEarnedBadge revokes a badge from a user
func (r *Repository) DeleteEarnedBadge(ctx context.Context, userID, badgeID string) error {
	query, args, err := psql.Delete("earned_badges").
		Where(squirrel.Eq{"user_id": userID, "badge_id": badgeID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("building earned badge delete: %w", err)
	}

	result, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("deleting earned badge: %w", err)
	}
	if result.RowsAffected() == 0 {
		return domain.ErrBadgeNotEarned
	}
	return nil
}

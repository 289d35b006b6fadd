// internal/storage/postgres.go
// Package storage provides the PostgreSQL implementation of the Store
// interface. This implementation is intended for production use.
package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MemoryHaze/memoryhaze-gift-go/internal/model"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type postgres struct {
	db *pgxpool.Pool
}

// NewPostgres creates a new PostgreSQL storage implementation.
// It establishes a connection pool to the database and initializes the schema.
func NewPostgres(dsn string) (Store, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("invalid database DSN: %w", err)
	}

	config.MaxConns = 20
	config.MinConns = 5
	config.MaxConnLifetime = time.Hour
	config.MaxConnIdleTime = time.Minute * 30
	config.HealthCheckPeriod = time.Minute

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := initSchema(ctx, pool); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &postgres{db: pool}, nil
}

// initSchema creates all required tables and indexes if they don't exist.
func initSchema(ctx context.Context, db *pgxpool.Pool) error {
	schema := `
		CREATE TABLE IF NOT EXISTS users (
		    id TEXT PRIMARY KEY,                     -- Sequential human-readable id (usr-00001)
		    email TEXT NOT NULL UNIQUE,
		    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
		);

		-- Counter backing the sequential user ids.
		CREATE TABLE IF NOT EXISTS counters (
		    name TEXT PRIMARY KEY,
		    seq BIGINT NOT NULL DEFAULT 0
		);

		CREATE TABLE IF NOT EXISTS gifts (
		    id TEXT PRIMARY KEY,
		    user_id TEXT NOT NULL REFERENCES users(id),

		    recipient_name TEXT NOT NULL DEFAULT '',
		    occasion TEXT NOT NULL DEFAULT '',
		    occasion_date TIMESTAMP WITH TIME ZONE,
		    scenarios TEXT[] NOT NULL DEFAULT '{}',
		    song_genre TEXT NOT NULL DEFAULT '',
		    photos TEXT[] NOT NULL DEFAULT '{}',
		    photo_asset_ids TEXT[] NOT NULL DEFAULT '{}',
		    plan TEXT NOT NULL DEFAULT '',
		    message TEXT NOT NULL DEFAULT '',

		    audio TEXT NOT NULL DEFAULT '',
		    audio_asset_id TEXT NOT NULL DEFAULT '',
		    lyrics TEXT NOT NULL DEFAULT '',

		    status TEXT NOT NULL,
		    submitted_at TIMESTAMP WITH TIME ZONE NOT NULL,
		    verified_at TIMESTAMP WITH TIME ZONE,
		    completed_at TIMESTAMP WITH TIME ZONE,
		    rejected_at TIMESTAMP WITH TIME ZONE,
		    rejection_reason TEXT NOT NULL DEFAULT '',
		    assigned_at TIMESTAMP WITH TIME ZONE,
		    expires_at TIMESTAMP WITH TIME ZONE,
		    access_enabled BOOLEAN NOT NULL DEFAULT FALSE,

		    permanently_deleted BOOLEAN NOT NULL DEFAULT FALSE,
		    deleted_at TIMESTAMP WITH TIME ZONE,

		    memory TEXT NOT NULL DEFAULT '',
		    template_id TEXT NOT NULL DEFAULT ''
		);

		CREATE INDEX IF NOT EXISTS idx_gifts_user_submitted_at ON gifts(user_id, submitted_at DESC);
		CREATE INDEX IF NOT EXISTS idx_gifts_status ON gifts(status);
		-- Partial index serving the sweep's conditional update.
		CREATE INDEX IF NOT EXISTS idx_gifts_expiry_sweep ON gifts(user_id, expires_at)
		    WHERE access_enabled AND NOT permanently_deleted AND expires_at IS NOT NULL;
	`

	_, err := db.Exec(ctx, schema)
	return err
}

// Close closes the database connection pool
func (p *postgres) Close() {
	p.db.Close()
}

// CreateUser inserts a new user with the next sequential id. The counter
// bump and the insert run in one transaction so ids are never reused even
// when the insert fails.
func (p *postgres) CreateUser(ctx context.Context, email string) (model.User, error) {
	tx, err := p.db.Begin(ctx)
	if err != nil {
		return model.User{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var seq int64
	err = tx.QueryRow(ctx, `
		INSERT INTO counters (name, seq) VALUES ('user', 1)
		ON CONFLICT (name) DO UPDATE SET seq = counters.seq + 1
		RETURNING seq`).Scan(&seq)
	if err != nil {
		return model.User{}, fmt.Errorf("failed to bump user counter: %w", err)
	}

	user := model.User{
		ID:        fmt.Sprintf("usr-%05d", seq),
		Email:     email,
		CreatedAt: time.Now().UTC(),
	}

	_, err = tx.Exec(ctx, `INSERT INTO users (id, email, created_at) VALUES ($1, $2, $3)`,
		user.ID, user.Email, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return model.User{}, ErrConflict
		}
		return model.User{}, fmt.Errorf("failed to create user: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return model.User{}, fmt.Errorf("failed to commit user creation: %w", err)
	}
	return user, nil
}

// EnsureUser mirrors an externally issued identity. The insert is a no-op
// when the id already exists; the stored email wins over the claim.
func (p *postgres) EnsureUser(ctx context.Context, id, email string) (model.User, error) {
	_, err := p.db.Exec(ctx, `
		INSERT INTO users (id, email, created_at) VALUES ($1, $2, NOW())
		ON CONFLICT (id) DO NOTHING`, id, email)
	if err != nil {
		return model.User{}, fmt.Errorf("failed to ensure user: %w", err)
	}

	u, err := p.GetUser(ctx, id)
	if err != nil {
		return model.User{}, err
	}
	return *u, nil
}

// GetUser retrieves a user by id.
func (p *postgres) GetUser(ctx context.Context, id string) (*model.User, error) {
	var user model.User
	err := p.db.QueryRow(ctx, `SELECT id, email, created_at FROM users WHERE id = $1`, id).
		Scan(&user.ID, &user.Email, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &user, nil
}

const giftColumns = `id, user_id, recipient_name, occasion, occasion_date, scenarios,
	song_genre, photos, photo_asset_ids, plan, message, audio, audio_asset_id, lyrics,
	status, submitted_at, verified_at, completed_at, rejected_at, rejection_reason,
	assigned_at, expires_at, access_enabled, permanently_deleted, deleted_at, memory, template_id`

// CreateGift inserts a new gift row.
func (p *postgres) CreateGift(ctx context.Context, g model.Gift) error {
	query := `INSERT INTO gifts (` + giftColumns + `)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
	                  $15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27)`

	_, err := p.db.Exec(ctx, query,
		g.ID, g.UserID, g.RecipientName, string(g.Occasion), nullableTime(g.OccasionDate),
		g.Scenarios, g.SongGenre, g.Photos, g.PhotoAssetIDs, string(g.Plan), g.Message,
		g.Audio, g.AudioAssetID, g.Lyrics,
		string(g.Status), g.SubmittedAt, g.VerifiedAt, g.CompletedAt, g.RejectedAt,
		g.RejectionReason, g.AssignedAt, g.ExpiresAt, g.AccessEnabled,
		g.PermanentlyDeleted, g.DeletedAt, string(g.Memory), g.TemplateID)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("failed to create gift: %w", err)
	}
	return nil
}

// GetGift retrieves a gift by id.
func (p *postgres) GetGift(ctx context.Context, id string) (*model.Gift, error) {
	row := p.db.QueryRow(ctx, `SELECT `+giftColumns+` FROM gifts WHERE id = $1`, id)
	g, err := scanGift(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get gift: %w", err)
	}
	return g, nil
}

// ListGiftsByOwner lists all gifts of one owner, newest submission first.
func (p *postgres) ListGiftsByOwner(ctx context.Context, ownerID string) ([]model.Gift, error) {
	rows, err := p.db.Query(ctx,
		`SELECT `+giftColumns+` FROM gifts WHERE user_id = $1 ORDER BY submitted_at DESC`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list gifts: %w", err)
	}
	defer rows.Close()

	var gifts []model.Gift
	for rows.Next() {
		g, err := scanGift(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan gift: %w", err)
		}
		gifts = append(gifts, *g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating gifts: %w", err)
	}
	return gifts, nil
}

// ListGiftsByStatus lists gifts for the admin review queue, newest
// submission first. An empty status lists every gift.
func (p *postgres) ListGiftsByStatus(ctx context.Context, status model.Status) ([]model.Gift, error) {
	query := `SELECT ` + giftColumns + ` FROM gifts ORDER BY submitted_at DESC`
	args := []any{}
	if status != "" {
		query = `SELECT ` + giftColumns + ` FROM gifts WHERE status = $1 ORDER BY submitted_at DESC`
		args = append(args, string(status))
	}

	rows, err := p.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list gifts by status: %w", err)
	}
	defer rows.Close()

	gifts := make([]model.Gift, 0)
	for rows.Next() {
		g, err := scanGift(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan gift: %w", err)
		}
		gifts = append(gifts, *g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating gifts: %w", err)
	}
	return gifts, nil
}

// UpdateGift commits the gift only while the stored status still equals
// expectStatus. The WHERE clause is the compare-and-swap guarding every
// transition against concurrent double-invocation.
func (p *postgres) UpdateGift(ctx context.Context, g model.Gift, expectStatus model.Status) error {
	query := `UPDATE gifts SET
	        recipient_name = $3, occasion = $4, occasion_date = $5, scenarios = $6,
	        song_genre = $7, photos = $8, photo_asset_ids = $9, plan = $10, message = $11,
	        audio = $12, audio_asset_id = $13, lyrics = $14,
	        status = $15, submitted_at = $16, verified_at = $17, completed_at = $18,
	        rejected_at = $19, rejection_reason = $20, assigned_at = $21, expires_at = $22,
	        access_enabled = $23, permanently_deleted = $24, deleted_at = $25,
	        memory = $26, template_id = $27
	    WHERE id = $1 AND status = $2`

	result, err := p.db.Exec(ctx, query,
		g.ID, string(expectStatus),
		g.RecipientName, string(g.Occasion), nullableTime(g.OccasionDate), g.Scenarios,
		g.SongGenre, g.Photos, g.PhotoAssetIDs, string(g.Plan), g.Message,
		g.Audio, g.AudioAssetID, g.Lyrics,
		string(g.Status), g.SubmittedAt, g.VerifiedAt, g.CompletedAt,
		g.RejectedAt, g.RejectionReason, g.AssignedAt, g.ExpiresAt,
		g.AccessEnabled, g.PermanentlyDeleted, g.DeletedAt,
		string(g.Memory), g.TemplateID)
	if err != nil {
		return fmt.Errorf("failed to update gift: %w", err)
	}

	if result.RowsAffected() == 0 {
		// Distinguish a lost precondition from a missing row.
		var exists bool
		if err := p.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM gifts WHERE id = $1)`, g.ID).Scan(&exists); err != nil {
			return fmt.Errorf("failed to check gift existence: %w", err)
		}
		if !exists {
			return ErrNotFound
		}
		return ErrConflict
	}
	return nil
}

// ExpireGifts performs the auto-expiry sweep as one bulk conditional update.
func (p *postgres) ExpireGifts(ctx context.Context, ownerID string, now time.Time) (int, error) {
	result, err := p.db.Exec(ctx, `
		UPDATE gifts SET access_enabled = FALSE
		WHERE user_id = $1
		  AND NOT permanently_deleted
		  AND access_enabled
		  AND expires_at IS NOT NULL
		  AND expires_at <= $2`, ownerID, now)
	if err != nil {
		return 0, fmt.Errorf("failed to expire gifts: %w", err)
	}
	return int(result.RowsAffected()), nil
}

// scanGift reads one gift row, translating nullable columns to Go zero/nil
// values.
func scanGift(row pgx.Row) (*model.Gift, error) {
	var g model.Gift
	var occasion, planStr, memoryStr, status string
	var occasionDate *time.Time

	err := row.Scan(
		&g.ID, &g.UserID, &g.RecipientName, &occasion, &occasionDate, &g.Scenarios,
		&g.SongGenre, &g.Photos, &g.PhotoAssetIDs, &planStr, &g.Message,
		&g.Audio, &g.AudioAssetID, &g.Lyrics,
		&status, &g.SubmittedAt, &g.VerifiedAt, &g.CompletedAt, &g.RejectedAt,
		&g.RejectionReason, &g.AssignedAt, &g.ExpiresAt, &g.AccessEnabled,
		&g.PermanentlyDeleted, &g.DeletedAt, &memoryStr, &g.TemplateID)
	if err != nil {
		return nil, err
	}

	g.Status = model.Status(status)
	g.Occasion = model.Occasion(occasion)
	g.Plan = model.Plan(planStr)
	g.Memory = model.Occasion(memoryStr)
	if occasionDate != nil {
		g.OccasionDate = *occasionDate
	}
	return &g, nil
}

// nullableTime maps the zero time to NULL.
func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

// isUniqueViolation reports whether err is a PostgreSQL unique violation.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

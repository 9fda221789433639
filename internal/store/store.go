package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"github.com/yangwenmai/storyteller/internal/model"
)

// Verify at compile time that Store implements all interfaces.
var (
	_ MomentReader     = (*Store)(nil)
	_ MomentWriter     = (*Store)(nil)
	_ MomentRepository = (*Store)(nil)
)

// timeLayout is fixed-width so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// DefaultListLimit caps ListMoments when the filter sets no limit.
const DefaultListLimit = 100

// Store provides data access to the SQLite database.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// New creates a new Store and initialises the schema.
func New(db *sql.DB) (*Store, error) {
	s := &Store{db: db, now: time.Now}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// currentSchemaVersion is bumped whenever the schema changes.
// Add a new migration function in the migrations slice below.
const currentSchemaVersion = 2

func (s *Store) migrate() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL)`); err != nil {
		return fmt.Errorf("create schema_version table: %w", err)
	}

	var version int
	err := s.db.QueryRow(`SELECT version FROM schema_version LIMIT 1`).Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		if _, err := s.db.Exec(`INSERT INTO schema_version (version) VALUES (0)`); err != nil {
			return fmt.Errorf("init schema version: %w", err)
		}
		version = 0
	} else if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}

	// Index 0 = migration from v0 to v1, etc.
	migrations := []func() error{
		s.migrateV1, // v0 → v1: moments and their photos
		s.migrateV2, // v1 → v2: location lookup index
	}

	for i := version; i < len(migrations); i++ {
		if err := migrations[i](); err != nil {
			return fmt.Errorf("migration v%d→v%d: %w", i, i+1, err)
		}
		if _, err := s.db.Exec(`UPDATE schema_version SET version = ?`, i+1); err != nil {
			return fmt.Errorf("update schema version to %d: %w", i+1, err)
		}
	}
	return nil
}

// migrateV1 creates the initial schema (v0 → v1).
func (s *Store) migrateV1() error {
	_, err := s.db.Exec(`
	CREATE TABLE IF NOT EXISTS moments (
		id               TEXT PRIMARY KEY,
		title            TEXT NOT NULL,
		story            TEXT NOT NULL,
		primary_location TEXT NOT NULL DEFAULT '',
		people           TEXT NOT NULL DEFAULT '[]',
		activities       TEXT NOT NULL DEFAULT '[]',
		header_preview   TEXT NOT NULL,
		photo_count      INTEGER NOT NULL,
		tier             TEXT NOT NULL,
		pinned           INTEGER NOT NULL DEFAULT 0,
		created_at       TEXT NOT NULL,
		updated_at       TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_moments_pinned ON moments(pinned, created_at DESC);

	CREATE TABLE IF NOT EXISTS moment_photos (
		moment_id TEXT NOT NULL REFERENCES moments(id) ON DELETE CASCADE,
		position  INTEGER NOT NULL,
		preview   TEXT NOT NULL,
		PRIMARY KEY (moment_id, position)
	);
	`)
	return err
}

// migrateV2 indexes the location filter (v1 → v2).
func (s *Store) migrateV2() error {
	_, err := s.db.Exec(`CREATE INDEX IF NOT EXISTS idx_moments_location ON moments(primary_location COLLATE NOCASE)`)
	return err
}

// ---------------------------------------------------------------------------
// Moments
// ---------------------------------------------------------------------------

// CommitMoment persists a draft as a new, unpinned moment and returns its ID.
func (s *Store) CommitMoment(ctx context.Context, tier model.Tier, draft model.MomentDraft) (string, error) {
	m := model.NewMoment(uuid.NewString(), tier, draft)
	m.CreatedAt = s.now().UTC().Format(timeLayout)

	people, err := encodeList(m.People)
	if err != nil {
		return "", err
	}
	activities, err := encodeList(m.Activities)
	if err != nil {
		return "", err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO moments (id, title, story, primary_location, people, activities, header_preview, photo_count, tier, pinned, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?, ?)`,
		m.ID, m.Title, m.Story, m.PrimaryLocation, people, activities,
		m.ImagePreview, m.PhotoCount, string(m.Tier), m.CreatedAt, m.CreatedAt,
	); err != nil {
		return "", fmt.Errorf("insert moment: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO moment_photos (moment_id, position, preview) VALUES (?, ?, ?)`)
	if err != nil {
		return "", fmt.Errorf("prepare photo insert: %w", err)
	}
	defer stmt.Close()
	for i, preview := range m.ImagePreviews {
		if _, err := stmt.ExecContext(ctx, m.ID, i, preview); err != nil {
			return "", fmt.Errorf("insert photo %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", err
	}
	return m.ID, nil
}

// GetMoment returns a moment with all of its photo previews.
func (s *Store) GetMoment(ctx context.Context, id string) (*model.Moment, error) {
	query, args, err := selectMoments().Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return nil, err
	}
	m, err := scanMoment(s.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		return nil, err
	}

	previews, err := s.listPhotos(ctx, id)
	if err != nil {
		return nil, err
	}
	m.ImagePreviews = previews
	return m, nil
}

// ListMoments returns moments matching f, pinned first, newest first.
// Photo previews other than the header are not loaded.
func (s *Store) ListMoments(ctx context.Context, f model.MomentFilter) ([]model.Moment, error) {
	q := selectMoments().OrderBy("pinned DESC", "created_at DESC")
	if f.Location != "" {
		q = q.Where("primary_location = ? COLLATE NOCASE", f.Location)
	}
	if f.Person != "" {
		q = q.Where("EXISTS (SELECT 1 FROM json_each(moments.people) WHERE json_each.value = ? COLLATE NOCASE)", f.Person)
	}
	if f.Pinned != nil {
		q = q.Where(sq.Eq{"pinned": boolToInt(*f.Pinned)})
	}
	limit := f.Limit
	if limit == 0 {
		limit = DefaultListLimit
	}
	q = q.Limit(limit)

	query, args, err := q.ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var moments []model.Moment
	for rows.Next() {
		m, err := scanMoment(rows)
		if err != nil {
			return nil, err
		}
		moments = append(moments, *m)
	}
	return moments, rows.Err()
}

// SetPinned pins or unpins a moment. It returns sql.ErrNoRows for an unknown id.
func (s *Store) SetPinned(ctx context.Context, id string, pinned bool) error {
	now := s.now().UTC().Format(timeLayout)
	res, err := s.db.ExecContext(ctx, `UPDATE moments SET pinned = ?, updated_at = ? WHERE id = ?`, boolToInt(pinned), now, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// DeleteMoment removes a moment and its photos.
func (s *Store) DeleteMoment(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM moment_photos WHERE moment_id = ?`, id); err != nil {
		return fmt.Errorf("delete photos: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM moments WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete moment: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return tx.Commit()
}

// CountMoments returns the number of moments and how many are pinned.
func (s *Store) CountMoments(ctx context.Context) (MomentCounts, error) {
	var counts MomentCounts
	row := s.db.QueryRowContext(ctx, `SELECT COUNT(*), COALESCE(SUM(pinned), 0) FROM moments`)
	if err := row.Scan(&counts.Total, &counts.Pinned); err != nil {
		return counts, err
	}
	return counts, nil
}

func (s *Store) listPhotos(ctx context.Context, momentID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT preview FROM moment_photos WHERE moment_id = ? ORDER BY position ASC`, momentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var previews []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		previews = append(previews, p)
	}
	return previews, rows.Err()
}

// ---------------------------------------------------------------------------
// helpers
// ---------------------------------------------------------------------------

func selectMoments() sq.SelectBuilder {
	return sq.Select("id", "title", "story", "primary_location", "people", "activities",
		"header_preview", "photo_count", "tier", "pinned", "created_at").From("moments")
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanMoment(row scanner) (*model.Moment, error) {
	var (
		m                  model.Moment
		people, activities string
		tier               string
		pinned             int
	)
	err := row.Scan(&m.ID, &m.Title, &m.Story, &m.PrimaryLocation, &people, &activities,
		&m.ImagePreview, &m.PhotoCount, &tier, &pinned, &m.CreatedAt)
	if err != nil {
		return nil, err
	}
	m.Tier = model.Tier(tier)
	m.Pinned = pinned != 0
	if err := json.Unmarshal([]byte(people), &m.People); err != nil {
		return nil, fmt.Errorf("decode people: %w", err)
	}
	if err := json.Unmarshal([]byte(activities), &m.Activities); err != nil {
		return nil, fmt.Errorf("decode activities: %w", err)
	}
	return &m, nil
}

func encodeList(values []string) (string, error) {
	if values == nil {
		values = []string{}
	}
	b, err := json.Marshal(values)
	if err != nil {
		return "", fmt.Errorf("encode list: %w", err)
	}
	return string(b), nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

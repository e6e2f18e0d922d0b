package database

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"

	"github.com/franckalain/healthwise/internal/config"
	"github.com/franckalain/healthwise/internal/failure"
	"github.com/franckalain/healthwise/internal/models"
)

//go:embed schema.sql schema_postgres.sql
var schemaFS embed.FS

// Store interface defines the methods the profile and history store implements.
// Every error it returns is a failure.Persistence error.
type Store interface {
	// SaveProfile merges patch into the stored profile and returns the result.
	SaveProfile(ctx context.Context, userID string, patch models.HealthProfilePatch) (models.HealthProfile, error)
	// GetProfile returns the stored profile; found is false when none exists.
	GetProfile(ctx context.Context, userID string) (profile models.HealthProfile, found bool, err error)
	// AppendScan records a finished scan. An empty ID is assigned.
	AppendScan(ctx context.Context, userID string, rec *models.ScanHistoryRecord) error
	// RecentScans returns at most limit records, newest first.
	RecentScans(ctx context.Context, userID string, limit int) ([]models.ScanHistoryRecord, error)
	// ScanStats counts all of the user's scans by verdict.
	ScanStats(ctx context.Context, userID string) (models.HistoryStats, error)
	Health(ctx context.Context) map[string]string
	Close() error
}

// NewStore opens the store selected by cfg.Driver.
func NewStore(ctx context.Context, cfg config.DatabaseConfig) (Store, error) {
	switch cfg.Driver {
	case "", "sqlite":
		return NewSQLiteStore(cfg.Path)
	case "postgres":
		return NewPostgresStore(ctx, cfg.URL)
	}
	return nil, fmt.Errorf("unsupported database driver: %s", cfg.Driver)
}

func checkUser(op, userID string) error {
	if userID == "" {
		return failure.Persistencef(op, nil, "missing user id")
	}
	return nil
}

func prepareRecord(op string, rec *models.ScanHistoryRecord) error {
	if _, err := models.ParseStatus(string(rec.SafetyStatus)); err != nil {
		return failure.Persistencef(op, err, "invalid scan record")
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.ScanDate.IsZero() {
		rec.ScanDate = time.Now()
	}
	// Both stores keep millisecond precision.
	rec.ScanDate = rec.ScanDate.UTC().Truncate(time.Millisecond)
	return nil
}

// SQLiteStore implements Store on an embedded SQLite file.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite database connection
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}
	// A single connection serializes writers and keeps :memory: databases shared.
	db.SetMaxOpenConns(1)

	// Enable foreign keys and WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("error enabling foreign keys: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("error enabling WAL mode: %w", err)
	}

	if err := initializeSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("error initializing schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func initializeSchema(db *sql.DB) error {
	schemaBytes, err := schemaFS.ReadFile("schema.sql")
	if err != nil {
		return fmt.Errorf("error reading schema file: %w", err)
	}
	if _, err := db.Exec(string(schemaBytes)); err != nil {
		return fmt.Errorf("error executing schema: %w", err)
	}

	log.Debug().Msg("Database schema initialized")
	return nil
}

// SaveProfile merges the patch inside one transaction.
func (s *SQLiteStore) SaveProfile(ctx context.Context, userID string, patch models.HealthProfilePatch) (models.HealthProfile, error) {
	const op = "database.SaveProfile"
	if err := checkUser(op, userID); err != nil {
		return models.HealthProfile{}, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return models.HealthProfile{}, failure.Persistencef(op, err, "begin transaction")
	}
	defer tx.Rollback()

	current, _, err := getProfile(ctx, tx, userID)
	if err != nil {
		return models.HealthProfile{}, failure.Persistencef(op, err, "load profile")
	}
	merged := patch.Apply(current)

	query := `
		INSERT INTO profiles (
			user_id, name, age, gender, medical_conditions, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			name = excluded.name,
			age = excluded.age,
			gender = excluded.gender,
			medical_conditions = excluded.medical_conditions,
			updated_at = excluded.updated_at
	`
	now := time.Now().UnixMilli()
	if _, err := tx.ExecContext(ctx, query,
		userID, merged.Name, merged.Age, string(merged.Gender), merged.MedicalConditions, now, now,
	); err != nil {
		return models.HealthProfile{}, failure.Persistencef(op, err, "save profile")
	}
	if err := tx.Commit(); err != nil {
		return models.HealthProfile{}, failure.Persistencef(op, err, "commit profile")
	}
	return merged, nil
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getProfile(ctx context.Context, q queryRower, userID string) (models.HealthProfile, bool, error) {
	query := `
		SELECT name, age, gender, medical_conditions
		FROM profiles WHERE user_id = ?
	`
	var (
		p      models.HealthProfile
		gender string
	)
	err := q.QueryRowContext(ctx, query, userID).Scan(&p.Name, &p.Age, &gender, &p.MedicalConditions)
	if errors.Is(err, sql.ErrNoRows) {
		return models.HealthProfile{}, false, nil
	}
	if err != nil {
		return models.HealthProfile{}, false, err
	}
	p.Gender = models.Gender(gender)
	return p, true, nil
}

// GetProfile retrieves the user's profile.
func (s *SQLiteStore) GetProfile(ctx context.Context, userID string) (models.HealthProfile, bool, error) {
	const op = "database.GetProfile"
	if err := checkUser(op, userID); err != nil {
		return models.HealthProfile{}, false, err
	}
	p, found, err := getProfile(ctx, s.db, userID)
	if err != nil {
		return models.HealthProfile{}, false, failure.Persistencef(op, err, "load profile")
	}
	return p, found, nil
}

// AppendScan inserts a history record. Records are never updated.
func (s *SQLiteStore) AppendScan(ctx context.Context, userID string, rec *models.ScanHistoryRecord) error {
	const op = "database.AppendScan"
	if err := checkUser(op, userID); err != nil {
		return err
	}
	if err := prepareRecord(op, rec); err != nil {
		return err
	}

	query := `
		INSERT INTO scan_results (
			id, user_id, product_name, safety_status, scan_date
		) VALUES (?, ?, ?, ?, ?)
	`
	if _, err := s.db.ExecContext(ctx, query,
		rec.ID, userID, rec.ProductName, string(rec.SafetyStatus), rec.ScanDate.UnixMilli(),
	); err != nil {
		return failure.Persistencef(op, err, "save scan")
	}
	return nil
}

// RecentScans retrieves the most recent history entries.
func (s *SQLiteStore) RecentScans(ctx context.Context, userID string, limit int) ([]models.ScanHistoryRecord, error) {
	const op = "database.RecentScans"
	if err := checkUser(op, userID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return []models.ScanHistoryRecord{}, nil
	}

	query := `
		SELECT id, product_name, safety_status, scan_date
		FROM scan_results
		WHERE user_id = ?
		ORDER BY scan_date DESC, rowid DESC
		LIMIT ?
	`
	rows, err := s.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, failure.Persistencef(op, err, "query history")
	}
	defer rows.Close()

	results := make([]models.ScanHistoryRecord, 0, limit)
	for rows.Next() {
		var (
			rec    models.ScanHistoryRecord
			status string
			millis int64
		)
		if err := rows.Scan(&rec.ID, &rec.ProductName, &status, &millis); err != nil {
			return nil, failure.Persistencef(op, err, "scan history row")
		}
		rec.SafetyStatus = models.Status(status)
		rec.ScanDate = time.UnixMilli(millis).UTC()
		results = append(results, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, failure.Persistencef(op, err, "read history")
	}
	return results, nil
}

// ScanStats counts the user's scans by status.
func (s *SQLiteStore) ScanStats(ctx context.Context, userID string) (models.HistoryStats, error) {
	const op = "database.ScanStats"
	var stats models.HistoryStats
	if err := checkUser(op, userID); err != nil {
		return stats, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT safety_status, COUNT(*) FROM scan_results WHERE user_id = ? GROUP BY safety_status`, userID)
	if err != nil {
		return stats, failure.Persistencef(op, err, "query stats")
	}
	defer rows.Close()

	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return stats, failure.Persistencef(op, err, "scan stats row")
		}
		stats.AddN(models.Status(status), n)
	}
	if err := rows.Err(); err != nil {
		return stats, failure.Persistencef(op, err, "read stats")
	}
	return stats, nil
}

// Health pings the database.
func (s *SQLiteStore) Health(ctx context.Context) map[string]string {
	ctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()

	stats := map[string]string{"driver": "sqlite"}
	if err := s.db.PingContext(ctx); err != nil {
		stats["status"] = "down"
		stats["error"] = fmt.Sprintf("db down: %v", err)
		log.Error().Err(err).Msg("Database down")
		return stats
	}
	dbStats := s.db.Stats()
	stats["status"] = "up"
	stats["open_connections"] = strconv.Itoa(dbStats.OpenConnections)
	stats["in_use"] = strconv.Itoa(dbStats.InUse)
	stats["wait_count"] = strconv.FormatInt(dbStats.WaitCount, 10)
	return stats
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

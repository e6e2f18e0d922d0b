package database

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/franckalain/healthwise/internal/failure"
	"github.com/franckalain/healthwise/internal/models"
)

// PostgresStore implements Store on a pgx connection pool.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to url and applies the schema.
func NewPostgresStore(ctx context.Context, url string) (*PostgresStore, error) {
	if url == "" {
		return nil, errors.New("postgres store requires a database url")
	}
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to reach database: %w", err)
	}

	schemaBytes, err := schemaFS.ReadFile("schema_postgres.sql")
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("error reading schema file: %w", err)
	}
	if _, err := pool.Exec(ctx, string(schemaBytes)); err != nil {
		pool.Close()
		return nil, fmt.Errorf("error initializing schema: %w", err)
	}

	log.Debug().Msg("Postgres schema initialized")
	return &PostgresStore{pool: pool}, nil
}

// SaveProfile merges the patch under a row lock.
func (s *PostgresStore) SaveProfile(ctx context.Context, userID string, patch models.HealthProfilePatch) (models.HealthProfile, error) {
	const op = "database.SaveProfile"
	if err := checkUser(op, userID); err != nil {
		return models.HealthProfile{}, err
	}

	var merged models.HealthProfile
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		var (
			current models.HealthProfile
			gender  string
		)
		err := tx.QueryRow(ctx, `
			SELECT name, age, gender, medical_conditions
			FROM profiles WHERE user_id = $1
			FOR UPDATE
		`, userID).Scan(&current.Name, &current.Age, &gender, &current.MedicalConditions)
		if err != nil && !errors.Is(err, pgx.ErrNoRows) {
			return err
		}
		current.Gender = models.Gender(gender)
		merged = patch.Apply(current)

		_, err = tx.Exec(ctx, `
			INSERT INTO profiles (user_id, name, age, gender, medical_conditions)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (user_id) DO UPDATE SET
				name = EXCLUDED.name,
				age = EXCLUDED.age,
				gender = EXCLUDED.gender,
				medical_conditions = EXCLUDED.medical_conditions,
				updated_at = now()
		`, userID, merged.Name, merged.Age, string(merged.Gender), merged.MedicalConditions)
		return err
	})
	if err != nil {
		return models.HealthProfile{}, failure.Persistencef(op, err, "save profile")
	}
	return merged, nil
}

// GetProfile retrieves the user's profile.
func (s *PostgresStore) GetProfile(ctx context.Context, userID string) (models.HealthProfile, bool, error) {
	const op = "database.GetProfile"
	if err := checkUser(op, userID); err != nil {
		return models.HealthProfile{}, false, err
	}

	var (
		p      models.HealthProfile
		gender string
	)
	err := s.pool.QueryRow(ctx, `
		SELECT name, age, gender, medical_conditions
		FROM profiles WHERE user_id = $1
	`, userID).Scan(&p.Name, &p.Age, &gender, &p.MedicalConditions)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.HealthProfile{}, false, nil
	}
	if err != nil {
		return models.HealthProfile{}, false, failure.Persistencef(op, err, "load profile")
	}
	p.Gender = models.Gender(gender)
	return p, true, nil
}

// AppendScan inserts a history record.
func (s *PostgresStore) AppendScan(ctx context.Context, userID string, rec *models.ScanHistoryRecord) error {
	const op = "database.AppendScan"
	if err := checkUser(op, userID); err != nil {
		return err
	}
	if err := prepareRecord(op, rec); err != nil {
		return err
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO scan_results (id, user_id, product_name, safety_status, scan_date)
		VALUES ($1, $2, $3, $4, $5)
	`, rec.ID, userID, rec.ProductName, string(rec.SafetyStatus), rec.ScanDate)
	if err != nil {
		return failure.Persistencef(op, err, "save scan")
	}
	return nil
}

type historyRow struct {
	ID           string    `db:"id"`
	ProductName  string    `db:"product_name"`
	SafetyStatus string    `db:"safety_status"`
	ScanDate     time.Time `db:"scan_date"`
}

// RecentScans retrieves the most recent history entries.
func (s *PostgresStore) RecentScans(ctx context.Context, userID string, limit int) ([]models.ScanHistoryRecord, error) {
	const op = "database.RecentScans"
	if err := checkUser(op, userID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return []models.ScanHistoryRecord{}, nil
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, product_name, safety_status, scan_date
		FROM scan_results
		WHERE user_id = $1
		ORDER BY scan_date DESC, seq DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, failure.Persistencef(op, err, "query history")
	}
	collected, err := pgx.CollectRows(rows, pgx.RowToStructByName[historyRow])
	if err != nil {
		return nil, failure.Persistencef(op, err, "read history")
	}

	results := make([]models.ScanHistoryRecord, 0, len(collected))
	for _, r := range collected {
		results = append(results, models.ScanHistoryRecord{
			ID:           r.ID,
			ProductName:  r.ProductName,
			SafetyStatus: models.Status(r.SafetyStatus),
			ScanDate:     r.ScanDate.UTC(),
		})
	}
	return results, nil
}

// ScanStats counts the user's scans by status.
func (s *PostgresStore) ScanStats(ctx context.Context, userID string) (models.HistoryStats, error) {
	const op = "database.ScanStats"
	var stats models.HistoryStats
	if err := checkUser(op, userID); err != nil {
		return stats, err
	}

	rows, err := s.pool.Query(ctx,
		`SELECT safety_status, COUNT(*) FROM scan_results WHERE user_id = $1 GROUP BY safety_status`, userID)
	if err != nil {
		return stats, failure.Persistencef(op, err, "query stats")
	}
	var (
		status string
		n      int64
	)
	_, err = pgx.ForEachRow(rows, []any{&status, &n}, func() error {
		stats.AddN(models.Status(status), int(n))
		return nil
	})
	if err != nil {
		return stats, failure.Persistencef(op, err, "read stats")
	}
	return stats, nil
}

// Health checks the health of the database connection.
func (s *PostgresStore) Health(ctx context.Context) map[string]string {
	ctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()

	stats := map[string]string{"driver": "postgres"}
	if err := s.pool.Ping(ctx); err != nil {
		stats["status"] = "down"
		stats["error"] = fmt.Sprintf("db down: %v", err)
		log.Error().Err(err).Msg("Database down")
		return stats
	}

	poolStats := s.pool.Stat()
	stats["status"] = "up"
	stats["total_conns"] = strconv.Itoa(int(poolStats.TotalConns()))
	stats["idle_conns"] = strconv.Itoa(int(poolStats.IdleConns()))
	stats["acquired_conns"] = strconv.Itoa(int(poolStats.AcquiredConns()))
	stats["max_conns"] = strconv.Itoa(int(poolStats.MaxConns()))

	if poolStats.AcquiredConns() > (poolStats.MaxConns() * 8 / 10) { // 80% capacity
		stats["message"] = "The database connection pool is experiencing heavy load."
	}
	return stats
}

// Close closes the pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

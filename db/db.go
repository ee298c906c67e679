package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"  // PostgreSQL driver
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/docutag/scout/models"
)

// Supported drivers
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// sqliteBusyTimeout is how long SQLite waits on a locked database
const sqliteBusyTimeout = 5000 // milliseconds

// DB wraps the database connection and provides data access methods
type DB struct {
	conn   *sql.DB
	driver string
}

// Config contains database configuration
type Config struct {
	Driver string // "postgres" or "sqlite"
	DSN    string // PostgreSQL connection string or SQLite file path
}

// DefaultConfig returns a local SQLite configuration
func DefaultConfig() Config {
	return Config{
		Driver: DriverSQLite,
		DSN:    "scout.db",
	}
}

// New opens the database, configures the pool and runs pending migrations
func New(config Config) (*DB, error) {
	driver := config.Driver
	if driver == "" {
		driver = DefaultConfig().Driver
	}
	if driver != DriverPostgres && driver != DriverSQLite {
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
	if strings.TrimSpace(config.DSN) == "" {
		return nil, errors.New("database DSN is required")
	}

	dsn := config.DSN
	if driver == DriverSQLite {
		dsn = sqliteDSN(dsn)
	}

	conn, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Test connection
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// Configure connection pool
	if driver == DriverSQLite {
		// One writer; keeps :memory: databases on a single connection
		conn.SetMaxOpenConns(1)
		conn.SetMaxIdleConns(1)
	} else {
		conn.SetMaxOpenConns(25)
		conn.SetMaxIdleConns(5)
		conn.SetConnMaxLifetime(5 * time.Minute)
	}

	db := &DB{conn: conn, driver: driver}

	if err := Migrate(conn, driver); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return db, nil
}

// sqliteDSN adds the busy timeout pragma unless the DSN already sets pragmas
func sqliteDSN(dsn string) string {
	if strings.Contains(dsn, "_pragma=") {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_pragma=busy_timeout(" + strconv.Itoa(sqliteBusyTimeout) + ")"
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.conn.Close()
}

// DB returns the underlying database connection for metrics collection
func (db *DB) DB() *sql.DB {
	return db.conn
}

// Driver returns the driver name the database was opened with
func (db *DB) Driver() string {
	return db.driver
}

// SaveAnalysis appends record to the analysis history. Existing rows are
// never updated.
func (db *DB) SaveAnalysis(ctx context.Context, record *models.AnalysisRecord) error {
	if record == nil {
		return errors.New("record is nil")
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}

	// Cached describes how a record was served, not what was stored
	stored := *record
	stored.Cached = false

	jsonData, err := json.Marshal(&stored)
	if err != nil {
		return fmt.Errorf("failed to marshal analysis: %w", err)
	}

	query := db.rebind(`
		INSERT INTO analysis_results (record_id, keyword, data, created_at)
		VALUES (?, ?, ?, ?)
	`)

	_, err = db.conn.ExecContext(ctx, query,
		record.ID,
		record.Keyword,
		string(jsonData),
		record.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to save analysis: %w", err)
	}

	return nil
}

// LatestAnalysis returns the newest record for keyword, or nil if none exists
func (db *DB) LatestAnalysis(ctx context.Context, keyword string) (*models.AnalysisRecord, error) {
	var jsonData string
	query := db.rebind(`
		SELECT data FROM analysis_results
		WHERE keyword = ?
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`)

	err := db.conn.QueryRowContext(ctx, query, keyword).Scan(&jsonData)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query analysis: %w", err)
	}

	return decodeRecord(jsonData)
}

// ListAnalyses returns up to limit records for keyword, newest first
func (db *DB) ListAnalyses(ctx context.Context, keyword string, limit int) ([]*models.AnalysisRecord, error) {
	if limit <= 0 {
		limit = 20
	}

	query := db.rebind(`
		SELECT data FROM analysis_results
		WHERE keyword = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`)

	rows, err := db.conn.QueryContext(ctx, query, keyword, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query analyses: %w", err)
	}
	defer rows.Close()

	results := []*models.AnalysisRecord{}
	for rows.Next() {
		var jsonData string
		if err := rows.Scan(&jsonData); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		record, err := decodeRecord(jsonData)
		if err != nil {
			return nil, err
		}
		results = append(results, record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return results, nil
}

// DeleteAnalyses removes every record for keyword and returns how many were deleted
func (db *DB) DeleteAnalyses(ctx context.Context, keyword string) (int64, error) {
	result, err := db.conn.ExecContext(ctx, db.rebind("DELETE FROM analysis_results WHERE keyword = ?"), keyword)
	if err != nil {
		return 0, fmt.Errorf("failed to delete analyses: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get affected rows: %w", err)
	}

	return rows, nil
}

// Count returns the total number of stored analysis records
func (db *DB) Count(ctx context.Context) (int, error) {
	var count int
	err := db.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM analysis_results").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count analyses: %w", err)
	}
	return count, nil
}

func decodeRecord(jsonData string) (*models.AnalysisRecord, error) {
	var record models.AnalysisRecord
	if err := json.Unmarshal([]byte(jsonData), &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal analysis: %w", err)
	}
	return &record, nil
}

func (db *DB) rebind(query string) string {
	return rebind(db.driver, query)
}

// rebind rewrites ? placeholders as $1, $2, ... for PostgreSQL
func rebind(driver, query string) string {
	if driver != DriverPostgres || !strings.Contains(query, "?") {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

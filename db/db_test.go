package db

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/docutag/scout/analysis"
	"github.com/docutag/scout/models"
	"github.com/google/go-cmp/cmp"
	"golang.org/x/sync/errgroup"
)

// The database satisfies the analysis cache contract
var _ analysis.Store = (*DB)(nil)

func setupTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := New(Config{
		Driver: DriverSQLite,
		DSN:    filepath.Join(t.TempDir(), "scout-test.db"),
	})
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	return db
}

func record(keyword, classification string, createdAt time.Time) *models.AnalysisRecord {
	confidence := 80
	return &models.AnalysisRecord{
		ID:             fmt.Sprintf("%s-%d", keyword, createdAt.UnixNano()),
		Keyword:        keyword,
		Level:          models.LevelActive,
		Count:          12,
		Classification: classification,
		Confidence:     &confidence,
		Sources:        12,
		LiveData:       true,
		AIUsed:         true,
		Threads: []models.Thread{
			{ID: "t1", Platform: models.PlatformReddit, Title: "Best mats?", Text: "Looking for a grippy mat", URL: "https://www.reddit.com/r/yoga/1", Engagement: 120},
		},
		CreatedAt: createdAt,
	}
}

func TestSaveAndLatestAnalysis(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	ctx := context.Background()

	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	first := record("yoga mats", "first verdict", base)
	second := record("yoga mats", "second verdict", base.Add(time.Hour))

	for _, r := range []*models.AnalysisRecord{first, second} {
		if err := db.SaveAnalysis(ctx, r); err != nil {
			t.Fatalf("Failed to save analysis: %v", err)
		}
	}

	got, err := db.LatestAnalysis(ctx, "yoga mats")
	if err != nil {
		t.Fatalf("Failed to get latest analysis: %v", err)
	}
	if got == nil {
		t.Fatal("Expected a record")
	}
	if diff := cmp.Diff(second, got); diff != "" {
		t.Errorf("Latest record mismatch (-want +got):\n%s", diff)
	}
}

func TestLatestAnalysisMissing(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	got, err := db.LatestAnalysis(context.Background(), "never analysed")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if got != nil {
		t.Errorf("Expected nil record, got %+v", got)
	}
}

func TestLatestAnalysisOrdering(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	ctx := context.Background()

	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	// Inserted out of order: creation time wins over insertion order
	for _, r := range []*models.AnalysisRecord{
		record("desks", "middle", base.Add(time.Minute)),
		record("desks", "newest", base.Add(2*time.Minute)),
		record("desks", "oldest", base),
	} {
		if err := db.SaveAnalysis(ctx, r); err != nil {
			t.Fatalf("Failed to save analysis: %v", err)
		}
	}

	got, err := db.LatestAnalysis(ctx, "desks")
	if err != nil {
		t.Fatalf("Failed to get latest analysis: %v", err)
	}
	if got.Classification != "newest" {
		t.Errorf("Expected newest record, got %q", got.Classification)
	}

	// Equal creation time: the later insert wins
	tie := base.Add(3 * time.Minute)
	for _, c := range []string{"tie-a", "tie-b"} {
		if err := db.SaveAnalysis(ctx, record("desks", c, tie)); err != nil {
			t.Fatalf("Failed to save analysis: %v", err)
		}
	}
	got, err = db.LatestAnalysis(ctx, "desks")
	if err != nil {
		t.Fatalf("Failed to get latest analysis: %v", err)
	}
	if got.Classification != "tie-b" {
		t.Errorf("Expected last inserted record on a tie, got %q", got.Classification)
	}
}

func TestLatestAnalysisExactKeyword(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	ctx := context.Background()

	if err := db.SaveAnalysis(ctx, record("AI Tools", "upper", time.Now().UTC())); err != nil {
		t.Fatalf("Failed to save analysis: %v", err)
	}

	for _, keyword := range []string{"ai tools", "AI Tools ", "AI"} {
		got, err := db.LatestAnalysis(ctx, keyword)
		if err != nil {
			t.Fatalf("LatestAnalysis(%q) failed: %v", keyword, err)
		}
		if got != nil {
			t.Errorf("LatestAnalysis(%q) matched %q", keyword, got.Keyword)
		}
	}
}

func TestSaveAnalysisIsAppendOnly(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	ctx := context.Background()

	r := record("espresso", "same id", time.Now().UTC())
	for i := 0; i < 3; i++ {
		if err := db.SaveAnalysis(ctx, r); err != nil {
			t.Fatalf("Failed to save analysis: %v", err)
		}
	}

	count, err := db.Count(ctx)
	if err != nil {
		t.Fatalf("Failed to count: %v", err)
	}
	if count != 3 {
		t.Errorf("Expected 3 rows, got %d", count)
	}
}

func TestSaveAnalysisDropsCachedFlag(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	ctx := context.Background()

	r := record("espresso", "served from cache", time.Now().UTC())
	r.Cached = true
	if err := db.SaveAnalysis(ctx, r); err != nil {
		t.Fatalf("Failed to save analysis: %v", err)
	}

	got, err := db.LatestAnalysis(ctx, "espresso")
	if err != nil {
		t.Fatalf("Failed to get latest analysis: %v", err)
	}
	if got.Cached {
		t.Error("Stored record should not be marked cached")
	}
}

func TestLegacyRecordWithoutConfidence(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	ctx := context.Background()

	legacy := `{"keyword":"standing desks","level":"Active","count":31,"classification":"Buyers want honest reviews.","sources":31,"liveData":true,"aiUsed":true,"threads":null,"createdAt":"2024-06-01T10:00:00Z"}`
	_, err := db.DB().ExecContext(ctx,
		"INSERT INTO analysis_results (record_id, keyword, data, created_at) VALUES (?, ?, ?, ?)",
		"", "standing desks", legacy, time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC),
	)
	if err != nil {
		t.Fatalf("Failed to insert legacy row: %v", err)
	}

	got, err := db.LatestAnalysis(ctx, "standing desks")
	if err != nil {
		t.Fatalf("Failed to get latest analysis: %v", err)
	}
	if got.Confidence != nil {
		t.Errorf("Expected missing confidence, got %d", *got.Confidence)
	}
	if got.Count != 31 || got.Level != models.LevelActive {
		t.Errorf("Legacy fields not decoded: %+v", got)
	}
}

func TestListAndDeleteAnalyses(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	ctx := context.Background()

	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		if err := db.SaveAnalysis(ctx, record("chairs", fmt.Sprintf("v%d", i), base.Add(time.Duration(i)*time.Hour))); err != nil {
			t.Fatalf("Failed to save analysis: %v", err)
		}
	}
	if err := db.SaveAnalysis(ctx, record("desks", "other", base)); err != nil {
		t.Fatalf("Failed to save analysis: %v", err)
	}

	list, err := db.ListAnalyses(ctx, "chairs", 3)
	if err != nil {
		t.Fatalf("Failed to list analyses: %v", err)
	}
	var got []string
	for _, r := range list {
		got = append(got, r.Classification)
	}
	if diff := cmp.Diff([]string{"v4", "v3", "v2"}, got); diff != "" {
		t.Errorf("List order mismatch (-want +got):\n%s", diff)
	}

	empty, err := db.ListAnalyses(ctx, "lamps", 3)
	if err != nil {
		t.Fatalf("Failed to list analyses: %v", err)
	}
	if empty == nil || len(empty) != 0 {
		t.Errorf("Expected empty, non-nil list, got %v", empty)
	}

	deleted, err := db.DeleteAnalyses(ctx, "chairs")
	if err != nil {
		t.Fatalf("Failed to delete analyses: %v", err)
	}
	if deleted != 5 {
		t.Errorf("Expected 5 deleted rows, got %d", deleted)
	}

	if got, _ := db.LatestAnalysis(ctx, "chairs"); got != nil {
		t.Error("Expected no records after delete")
	}
	if got, _ := db.LatestAnalysis(ctx, "desks"); got == nil {
		t.Error("Delete removed records for another keyword")
	}
}

func TestConcurrentSaves(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	g, ctx := errgroup.WithContext(context.Background())
	for i := 0; i < 8; i++ {
		g.Go(func() error {
			return db.SaveAnalysis(ctx, record("yoga mats", fmt.Sprintf("writer %d", i), time.Now().UTC()))
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("Concurrent save failed: %v", err)
	}

	count, err := db.Count(context.Background())
	if err != nil {
		t.Fatalf("Failed to count: %v", err)
	}
	if count != 8 {
		t.Errorf("Expected 8 rows, got %d", count)
	}
}

func TestMigrationStatusAndRollback(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	status, err := db.MigrationStatus()
	if err != nil {
		t.Fatalf("Failed to get migration status: %v", err)
	}
	if len(status) != len(sqliteMigrations) {
		t.Fatalf("Expected %d migrations, got %d", len(sqliteMigrations), len(status))
	}
	for _, s := range status {
		if !s.Applied {
			t.Errorf("Migration %d (%s) not applied", s.Version, s.Name)
		}
	}

	if err := db.Rollback(); err != nil {
		t.Fatalf("Rollback failed: %v", err)
	}
	status, err = db.MigrationStatus()
	if err != nil {
		t.Fatalf("Failed to get migration status: %v", err)
	}
	last := status[len(status)-1]
	if last.Applied {
		t.Errorf("Expected migration %d to be rolled back", last.Version)
	}

	// Re-running brings the schema back up to date
	if err := Migrate(db.DB(), DriverSQLite); err != nil {
		t.Fatalf("Migrate failed: %v", err)
	}
	status, _ = db.MigrationStatus()
	if !status[len(status)-1].Applied {
		t.Error("Expected all migrations applied after Migrate")
	}
}

func TestMigrationsMatchAcrossDrivers(t *testing.T) {
	if len(postgresMigrations) != len(sqliteMigrations) {
		t.Fatalf("Driver migration counts differ: postgres=%d sqlite=%d", len(postgresMigrations), len(sqliteMigrations))
	}
	for i := range postgresMigrations {
		pg, lite := postgresMigrations[i], sqliteMigrations[i]
		if pg.Version != lite.Version || pg.Name != lite.Name {
			t.Errorf("Migration %d differs: postgres=%d/%s sqlite=%d/%s", i, pg.Version, pg.Name, lite.Version, lite.Name)
		}
	}
}

func TestRebind(t *testing.T) {
	tests := []struct {
		driver string
		query  string
		want   string
	}{
		{DriverPostgres, "SELECT data FROM t WHERE keyword = ? LIMIT ?", "SELECT data FROM t WHERE keyword = $1 LIMIT $2"},
		{DriverPostgres, "SELECT COUNT(*) FROM t", "SELECT COUNT(*) FROM t"},
		{DriverSQLite, "SELECT data FROM t WHERE keyword = ?", "SELECT data FROM t WHERE keyword = ?"},
	}

	for _, tt := range tests {
		if got := rebind(tt.driver, tt.query); got != tt.want {
			t.Errorf("rebind(%s, %q) = %q, want %q", tt.driver, tt.query, got, tt.want)
		}
	}
}

func TestNewRejectsBadConfig(t *testing.T) {
	tests := []struct {
		name   string
		config Config
	}{
		{"unknown driver", Config{Driver: "mysql", DSN: "x"}},
		{"empty dsn", Config{Driver: DriverSQLite, DSN: "  "}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if db, err := New(tt.config); err == nil {
				db.Close()
				t.Error("Expected an error")
			}
		})
	}
}

func TestSQLiteDSN(t *testing.T) {
	tests := map[string]string{
		"scout.db":                           "scout.db?_pragma=busy_timeout(5000)",
		"file:scout.db?mode=rwc":             "file:scout.db?mode=rwc&_pragma=busy_timeout(5000)",
		"scout.db?_pragma=busy_timeout(100)": "scout.db?_pragma=busy_timeout(100)",
	}
	for in, want := range tests {
		if got := sqliteDSN(in); got != want {
			t.Errorf("sqliteDSN(%q) = %q, want %q", in, got, want)
		}
	}
}

// TestPostgresIntegration runs against a real server when SCOUT_TEST_POSTGRES_DSN is set
func TestPostgresIntegration(t *testing.T) {
	dsn := os.Getenv("SCOUT_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("SCOUT_TEST_POSTGRES_DSN not set")
	}

	db, err := New(Config{Driver: DriverPostgres, DSN: dsn})
	if err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}
	defer db.Close()
	ctx := context.Background()

	keyword := fmt.Sprintf("integration-%d", time.Now().UnixNano())
	defer db.DeleteAnalyses(ctx, keyword)

	base := time.Now().UTC().Truncate(time.Second)
	for i, c := range []string{"older", "newer"} {
		if err := db.SaveAnalysis(ctx, record(keyword, c, base.Add(time.Duration(i)*time.Second))); err != nil {
			t.Fatalf("Failed to save analysis: %v", err)
		}
	}

	got, err := db.LatestAnalysis(ctx, keyword)
	if err != nil {
		t.Fatalf("Failed to get latest analysis: %v", err)
	}
	if got == nil || got.Classification != "newer" {
		t.Errorf("Expected newest record, got %+v", got)
	}
}

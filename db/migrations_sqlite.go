package db

// SQLite migrations, kept schema-compatible with the PostgreSQL ones

var sqliteMigrations = []Migration{
	{
		Version: 1,
		Name:    "create_analysis_results_table",
		Up: `
			CREATE TABLE IF NOT EXISTS analysis_results (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				record_id TEXT NOT NULL DEFAULT '',
				keyword TEXT NOT NULL,
				data TEXT NOT NULL,
				created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
			);
		`,
		Down: `
			DROP TABLE IF EXISTS analysis_results;
		`,
	},
	{
		Version: 2,
		Name:    "add_analysis_results_keyword_index",
		Up: `
			CREATE INDEX IF NOT EXISTS idx_analysis_results_keyword_created
				ON analysis_results(keyword, created_at DESC, id DESC);
		`,
		Down: `
			DROP INDEX IF EXISTS idx_analysis_results_keyword_created;
		`,
	},
	{
		Version: 3,
		Name:    "add_analysis_results_record_id_index",
		Up: `
			CREATE INDEX IF NOT EXISTS idx_analysis_results_record_id ON analysis_results(record_id);
		`,
		Down: `
			DROP INDEX IF EXISTS idx_analysis_results_record_id;
		`,
	},
}

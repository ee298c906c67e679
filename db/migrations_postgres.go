package db

// PostgreSQL-specific migrations

var postgresMigrations = []Migration{
	{
		Version: 1,
		Name:    "create_analysis_results_table",
		Up: `
			CREATE TABLE IF NOT EXISTS analysis_results (
				id BIGSERIAL PRIMARY KEY,
				record_id TEXT NOT NULL DEFAULT '',
				keyword TEXT NOT NULL,
				data TEXT NOT NULL,
				created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
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

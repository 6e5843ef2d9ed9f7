package store

// runMigrations executes all database migrations.
func (s *Store) runMigrations() error {
	migrations := []string{
		// Attempts table - one row per finished capture run
		`CREATE TABLE IF NOT EXISTS attempts (
			id TEXT PRIMARY KEY,
			flow TEXT NOT NULL CHECK(flow IN ('arm', 'face')),
			outcome TEXT NOT NULL CHECK(outcome IN ('success', 'failure')),
			result_text TEXT NOT NULL DEFAULT '',
			response TEXT NOT NULL DEFAULT '',
			error TEXT NOT NULL DEFAULT '',
			frames INTEGER NOT NULL DEFAULT 0,
			started_at DATETIME NOT NULL,
			finished_at DATETIME NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		// Attempt frames table - the encoded stills of an attempt
		`CREATE TABLE IF NOT EXISTS attempt_frames (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			attempt_id TEXT NOT NULL REFERENCES attempts(id) ON DELETE CASCADE,
			sequence INTEGER NOT NULL,
			filename TEXT NOT NULL,
			content_type TEXT NOT NULL,
			width INTEGER NOT NULL,
			height INTEGER NOT NULL,
			data BLOB NOT NULL
		)`,

		// Settings table - stores application settings as key-value pairs
		`CREATE TABLE IF NOT EXISTS settings (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,

		// Indexes for better query performance
		`CREATE INDEX IF NOT EXISTS idx_attempts_flow_finished ON attempts(flow, finished_at)`,
		`CREATE INDEX IF NOT EXISTS idx_attempt_frames_attempt_id ON attempt_frames(attempt_id)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.Exec(migration); err != nil {
			return err
		}
	}

	return nil
}

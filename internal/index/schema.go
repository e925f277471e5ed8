package index

const SchemaVersion = 2

const schemaSQL = `
-- Schema version tracking
CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER PRIMARY KEY
);

-- Indexed records, one per stored artifact
CREATE TABLE IF NOT EXISTS records (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    record_id TEXT UNIQUE NOT NULL,
    task_id TEXT DEFAULT '',
    category TEXT NOT NULL,
    original_path TEXT DEFAULT '',
    file_name TEXT DEFAULT '',
    simplified_path TEXT DEFAULT '',
    description TEXT DEFAULT '',
    user_input TEXT DEFAULT '',
    user_id TEXT NOT NULL,
    agent_id TEXT NOT NULL,
    created_at TEXT NOT NULL,
    job_id TEXT DEFAULT '',
    query TEXT DEFAULT '',
    data_files TEXT DEFAULT '[]',
    output_pdf TEXT DEFAULT '',
    output_tex TEXT DEFAULT '',
    memu_error TEXT DEFAULT '',
    memorize_status TEXT DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_records_owner ON records(user_id, agent_id, created_at);
CREATE INDEX IF NOT EXISTS idx_records_category ON records(user_id, agent_id, category);

-- Download audit trail, append-only
CREATE TABLE IF NOT EXISTS download_log (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    record_id TEXT NOT NULL,
    source_path TEXT NOT NULL,
    saved_path TEXT,
    user_id TEXT,
    downloaded_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_download_log_record ON download_log(record_id);

CREATE TRIGGER IF NOT EXISTS download_log_no_update BEFORE UPDATE ON download_log BEGIN
    SELECT RAISE(ABORT, 'download_log is append-only');
END;

CREATE TRIGGER IF NOT EXISTS download_log_no_delete BEFORE DELETE ON download_log BEGIN
    SELECT RAISE(ABORT, 'download_log is append-only');
END;
`

func GetSchema() string {
	return schemaSQL
}

func GetSchemaVersion() int {
	return SchemaVersion
}

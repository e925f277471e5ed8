package index

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

var ErrDuplicateKey = errors.New("duplicate record id")

// timeLayout is fixed-width so that lexical order of the stored text matches time order.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

const recordColumns = `record_id, task_id, category, original_path, file_name, simplified_path,
	description, user_input, user_id, agent_id, created_at,
	job_id, query, data_files, output_pdf, output_tex, memu_error, memorize_status`

// Store is the durable record index. Writers are serialized by mu while
// WAL mode lets readers proceed against the last committed snapshot.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

func NewStore(dbPath string) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create index dir: %w", err)
	}

	// per-connection pragmas go in the DSN so every pooled connection gets them
	dsn := "file:" + dbPath + "?_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable wal: %w", err)
	}

	store := &Store{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

func (s *Store) initSchema() error {
	schema := GetSchema()

	lines := strings.Split(schema, "\n")
	var cleanLines []string
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if !strings.HasPrefix(trimmed, "--") && trimmed != "" {
			cleanLines = append(cleanLines, line)
		}
	}
	cleanSchema := strings.Join(cleanLines, "\n")

	if _, err := s.db.Exec(cleanSchema); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}

	_, _ = s.db.Exec(`INSERT OR IGNORE INTO schema_version (version) VALUES (?)`, GetSchemaVersion())
	return nil
}

func (s *Store) Close() error {
	// not fatal, the WAL is replayed on next open
	_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	return s.db.Close()
}

func (s *Store) Insert(rec *Record) error {
	if rec == nil || rec.RecordID == "" {
		return fmt.Errorf("insert record: record id is required")
	}
	if rec.Owner.UserID == "" || rec.Owner.AgentID == "" {
		return fmt.Errorf("insert record %s: owner is required", rec.RecordID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var exists bool
	err := s.db.QueryRow("SELECT EXISTS(SELECT 1 FROM records WHERE record_id = ?)", rec.RecordID).Scan(&exists)
	if err == nil && exists {
		return fmt.Errorf("insert record %s: %w", rec.RecordID, ErrDuplicateKey)
	}

	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	dataFiles := rec.DataFiles
	if dataFiles == nil {
		dataFiles = []string{}
	}
	dataFilesJSON, err := json.Marshal(dataFiles)
	if err != nil {
		return fmt.Errorf("encode data files: %w", err)
	}

	_, err = s.db.Exec(`INSERT INTO records (`+recordColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.RecordID, rec.TaskID, string(rec.Category), rec.OriginalPath, rec.FileName, rec.SimplifiedPath,
		rec.Description, rec.UserInput, rec.Owner.UserID, rec.Owner.AgentID, formatTime(rec.CreatedAt),
		rec.JobID, rec.Query, string(dataFilesJSON), rec.OutputPDF, rec.OutputTeX, rec.MemuError, string(rec.MemorizeStatus),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("insert record %s: %w", rec.RecordID, ErrDuplicateKey)
		}
		return fmt.Errorf("insert record %s: %w", rec.RecordID, err)
	}

	return nil
}

// List returns the owner's records newest first. A nil category lists every category.
func (s *Store) List(owner Owner, category *Category, limit int) ([]*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		return []*Record{}, nil
	}

	query := "SELECT " + recordColumns + " FROM records WHERE user_id = ? AND agent_id = ?"
	args := []interface{}{owner.UserID, owner.AgentID}

	if category != nil {
		query += " AND category = ?"
		args = append(args, string(*category))
	}

	query += " ORDER BY created_at DESC, id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	defer rows.Close()

	records := []*Record{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		records = append(records, rec)
	}

	return records, rows.Err()
}

// Get returns nil, nil when the id is unknown or belongs to another owner.
func (s *Store) Get(recordID string, owner Owner) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRow(
		"SELECT "+recordColumns+" FROM records WHERE record_id = ? AND user_id = ? AND agent_id = ?",
		recordID, owner.UserID, owner.AgentID,
	)

	rec, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get record: %w", err)
	}

	return rec, nil
}

// DeleteMany removes the owner's rows among recordIDs and reports how many
// were removed. Ids owned by someone else are skipped without error.
func (s *Store) DeleteMany(recordIDs []string, owner Owner) (int, error) {
	if len(recordIDs) == 0 {
		return 0, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(recordIDs)), ",")
	args := make([]interface{}, 0, len(recordIDs)+2)
	for _, id := range recordIDs {
		args = append(args, id)
	}
	args = append(args, owner.UserID, owner.AgentID)

	result, err := s.db.Exec(
		"DELETE FROM records WHERE record_id IN ("+placeholders+") AND user_id = ? AND agent_id = ?",
		args...,
	)
	if err != nil {
		return 0, fmt.Errorf("delete records: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete records: %w", err)
	}

	return int(n), nil
}

// SetMemorizeOutcome attaches the memorize result to a pending record. It
// reports false when the row is missing, foreign, or already settled.
func (s *Store) SetMemorizeOutcome(recordID string, owner Owner, taskID string, status MemorizeStatus, memuErr string) (bool, error) {
	if !status.Terminal() {
		return false, fmt.Errorf("set memorize outcome: status %q is not terminal", status)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.Exec(`
		UPDATE records SET task_id = ?, memorize_status = ?, memu_error = ?
		WHERE record_id = ? AND user_id = ? AND agent_id = ? AND memorize_status = ?
	`, taskID, string(status), memuErr, recordID, owner.UserID, owner.AgentID, string(MemorizePending))
	if err != nil {
		return false, fmt.Errorf("set memorize outcome: %w", err)
	}

	n, _ := result.RowsAffected()
	return n == 1, nil
}

// SetTaskID records the remote task id of a record still waiting on its
// memorize outcome. It reports false when the row is missing, foreign, or
// already settled.
func (s *Store) SetTaskID(recordID string, owner Owner, taskID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.Exec(`
		UPDATE records SET task_id = ?
		WHERE record_id = ? AND user_id = ? AND agent_id = ? AND memorize_status = ?
	`, taskID, recordID, owner.UserID, owner.AgentID, string(MemorizePending))
	if err != nil {
		return false, fmt.Errorf("set task id: %w", err)
	}

	n, _ := result.RowsAffected()
	return n == 1, nil
}

func (s *Store) LogDownload(recordID, sourcePath, savedPath, userID string) error {
	if savedPath == "" {
		savedPath = sourcePath
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(
		"INSERT INTO download_log (record_id, source_path, saved_path, user_id, downloaded_at) VALUES (?, ?, ?, ?, ?)",
		recordID, sourcePath, savedPath, userID, formatTime(time.Now().UTC()),
	)
	if err != nil {
		return fmt.Errorf("log download: %w", err)
	}

	return nil
}

func (s *Store) Downloads(recordID string) ([]*DownloadLogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT id, record_id, source_path, saved_path, user_id, downloaded_at
		FROM download_log WHERE record_id = ? ORDER BY id ASC
	`, recordID)
	if err != nil {
		return nil, fmt.Errorf("list downloads: %w", err)
	}
	defer rows.Close()

	entries := []*DownloadLogEntry{}
	for rows.Next() {
		entry := &DownloadLogEntry{}
		var savedPath, userID sql.NullString
		var downloadedAt string

		if err := rows.Scan(&entry.ID, &entry.RecordID, &entry.SourcePath, &savedPath, &userID, &downloadedAt); err != nil {
			return nil, fmt.Errorf("scan download: %w", err)
		}

		entry.SavedPath = savedPath.String
		entry.UserID = userID.String
		entry.DownloadedAt = parseTime(downloadedAt)
		entries = append(entries, entry)
	}

	return entries, rows.Err()
}

func (s *Store) Stats() (*Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := &Stats{ByCategory: make(map[Category]int)}

	rows, err := s.db.Query("SELECT category, COUNT(*) FROM records GROUP BY category")
	if err != nil {
		return nil, fmt.Errorf("count records: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var category string
		var count int
		if err := rows.Scan(&category, &count); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		stats.ByCategory[Category(category)] = count
		stats.TotalRecords += count
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := s.db.QueryRow("SELECT COUNT(*) FROM download_log").Scan(&stats.TotalDownloads); err != nil {
		return nil, fmt.Errorf("count downloads: %w", err)
	}

	var last sql.NullString
	if err := s.db.QueryRow("SELECT MAX(created_at) FROM records").Scan(&last); err != nil {
		return nil, fmt.Errorf("last created: %w", err)
	}
	if last.Valid {
		stats.LastCreatedAt = parseTime(last.String)
	}

	return stats, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(row rowScanner) (*Record, error) {
	rec := &Record{}
	var category, createdAt, dataFiles, status string
	var taskID, originalPath, fileName, simplifiedPath, description, userInput sql.NullString
	var jobID, query, outputPDF, outputTeX, memuErr sql.NullString

	err := row.Scan(
		&rec.RecordID, &taskID, &category, &originalPath, &fileName, &simplifiedPath,
		&description, &userInput, &rec.Owner.UserID, &rec.Owner.AgentID, &createdAt,
		&jobID, &query, &dataFiles, &outputPDF, &outputTeX, &memuErr, &status,
	)
	if err != nil {
		return nil, err
	}

	rec.TaskID = taskID.String
	rec.Category = Category(category)
	rec.OriginalPath = originalPath.String
	rec.FileName = fileName.String
	rec.SimplifiedPath = simplifiedPath.String
	rec.Description = description.String
	rec.UserInput = userInput.String
	rec.CreatedAt = parseTime(createdAt)
	rec.JobID = jobID.String
	rec.Query = query.String
	rec.OutputPDF = outputPDF.String
	rec.OutputTeX = outputTeX.String
	rec.MemuError = memuErr.String
	rec.MemorizeStatus = MemorizeStatus(status)

	if dataFiles != "" {
		if err := json.Unmarshal([]byte(dataFiles), &rec.DataFiles); err != nil {
			rec.DataFiles = []string{}
		}
	}

	return rec, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	if t, err := time.Parse(timeLayout, s); err == nil {
		return t
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC()
	}
	// rows written by older producers used local time without zone
	if t, err := time.ParseInLocation("2006-01-02T15:04:05", s, time.Local); err == nil {
		return t.UTC()
	}
	return time.Time{}
}

func isUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

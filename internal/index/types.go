package index

import "time"

type Category string

const (
	CategoryPaper                   Category = "paper"
	CategoryProposal                Category = "proposal"
	CategoryData                    Category = "data"
	CategoryImage                   Category = "image"
	CategoryWritingEvent            Category = "writing_event"
	CategoryParameterRecommendation Category = "parameter_recommendation"
	CategoryOther                   Category = "other"
)

var categories = []Category{
	CategoryPaper,
	CategoryProposal,
	CategoryData,
	CategoryImage,
	CategoryWritingEvent,
	CategoryParameterRecommendation,
	CategoryOther,
}

func Categories() []Category {
	out := make([]Category, len(categories))
	copy(out, categories)
	return out
}

func (c Category) Valid() bool {
	for _, known := range categories {
		if c == known {
			return true
		}
	}
	return false
}

func ParseCategory(s string) (Category, bool) {
	c := Category(s)
	return c, c.Valid()
}

// MemorizeStatus tracks the asynchronous memorize outcome attached to a record.
// The empty value means the record was never submitted.
type MemorizeStatus string

const (
	MemorizeNone    MemorizeStatus = ""
	MemorizePending MemorizeStatus = "PENDING"
	MemorizeSuccess MemorizeStatus = "SUCCESS"
	MemorizeFailed  MemorizeStatus = "FAILED"
	MemorizeTimeout MemorizeStatus = "TIMEOUT"
)

func (s MemorizeStatus) Terminal() bool {
	return s == MemorizeSuccess || s == MemorizeFailed || s == MemorizeTimeout
}

type Owner struct {
	UserID  string `json:"user_id"`
	AgentID string `json:"agent_id"`
}

type Record struct {
	RecordID       string         `json:"record_id"`
	TaskID         string         `json:"task_id,omitempty"`
	Category       Category       `json:"category"`
	OriginalPath   string         `json:"original_path"`
	FileName       string         `json:"file_name"`
	SimplifiedPath string         `json:"simplified_path,omitempty"`
	Description    string         `json:"description"`
	UserInput      string         `json:"user_input,omitempty"`
	Owner          Owner          `json:"owner"`
	CreatedAt      time.Time      `json:"created_at"`
	JobID          string         `json:"job_id,omitempty"`
	Query          string         `json:"query,omitempty"`
	DataFiles      []string       `json:"data_files,omitempty"`
	OutputPDF      string         `json:"output_pdf,omitempty"`
	OutputTeX      string         `json:"output_tex,omitempty"`
	MemuError      string         `json:"memu_error,omitempty"`
	MemorizeStatus MemorizeStatus `json:"memorize_status,omitempty"`
}

type DownloadLogEntry struct {
	ID           int64     `json:"id"`
	RecordID     string    `json:"record_id"`
	SourcePath   string    `json:"source_path"`
	SavedPath    string    `json:"saved_path"`
	UserID       string    `json:"user_id"`
	DownloadedAt time.Time `json:"downloaded_at"`
}

type Stats struct {
	TotalRecords   int              `json:"total_records"`
	ByCategory     map[Category]int `json:"by_category"`
	TotalDownloads int              `json:"total_downloads"`
	LastCreatedAt  time.Time        `json:"last_created_at"`
}

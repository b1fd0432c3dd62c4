package domain

import "time"

// Document is one page of source text.
type Document struct {
	ID        string
	Source    string // URL or local path the document was loaded from
	Path      string // local file holding the raw bytes
	Title     string
	Page      int // 1-based
	PageCount int
	Text      string
	FetchedAt time.Time
}

type Chunk struct {
	ID     string
	DocID  string
	Source string
	Page   int
	Index  int // ordinal within the document
	Tokens []string
	Text   string
}

type ScoredChunk struct {
	Chunk Chunk
	Score float64
}

// Turn is one question/answer exchange in a session.
type Turn struct {
	Question   string    `json:"question"`
	Standalone string    `json:"standalone,omitempty"`
	Answer     string    `json:"answer"`
	At         time.Time `json:"at"`
}

// Session identifies a conversation. History lives in a HistoryStore, keyed by ID.
type Session struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
}

// QueryResult is returned for every chain invocation; it is not persisted.
type QueryResult struct {
	SessionID  string        `json:"session_id"`
	Question   string        `json:"question"`
	Standalone string        `json:"standalone"`
	Answer     string        `json:"answer"`
	Sources    []ScoredChunk `json:"-"`
}

// Feedback is a manual flag raised from the web front end.
type Feedback struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Option    string    `json:"option"`
	Message   string    `json:"message"`
	Answer    string    `json:"answer"`
	CreatedAt time.Time `json:"created_at"`
}

type Posting struct {
	ChunkID string
	TF      int
}

type Stats struct {
	TotalDocs   int
	TotalChunks int
	AvgChunkLen float64
	Embedded    int
	Complete    bool
	BuiltAt     time.Time
}

package storage

import (
	"context"
	"time"
)

// SourceType discriminates how a source's documents are obtained.
type SourceType string

const (
	// SourceTypeLinkManifest is an llms.txt-style outline of links.
	SourceTypeLinkManifest SourceType = "link_manifest"
	// SourceTypeWebCrawl is an asynchronous crawl of a site.
	SourceTypeWebCrawl SourceType = "web_crawl"
)

// Progress status values. An in_progress row may survive a crash and is
// picked up again by a resumed run.
const (
	ProgressInProgress          = "in_progress"
	ProgressCompleted           = "completed"
	ProgressCompletedWithErrors = "completed_with_errors"
)

// SourceOptions carries per-source fetch configuration. Stored as JSON in
// the sources.options column; all fields are optional.
type SourceOptions struct {
	CrawlLimit      int      `json:"crawl_limit,omitempty"`
	IncludeOptional bool     `json:"include_optional,omitempty"`
	IncludePaths    []string `json:"include_paths,omitempty"`
	ExcludePaths    []string `json:"exclude_paths,omitempty"`

	// Description is the legacy location for the source description; older
	// writers stored it here before the dedicated column existed. It is
	// lifted into Source.Description on read and never written back.
	Description string `json:"description,omitempty"`
}

// Source is a registered documentation source.
type Source struct {
	ID             int64
	Name           string
	Type           SourceType
	BaseURL        string
	GroupName      string // empty = not grouped
	Description    string
	Options        *SourceOptions
	LastIngestedAt time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Document is one fetched page of a source. (source_id, url) is unique.
type Document struct {
	ID          int64
	SourceID    int64
	URL         string
	Title       string
	Path        string
	Content     string
	ContentHash string // lowercase hex SHA-256 of Content
	Metadata    map[string]string
	UpdatedAt   time.Time
}

// Chunk is the unit of embedding and retrieval. (document_id, chunk_index)
// is unique; the FTS mirror row shares the chunk's rowid.
type Chunk struct {
	ID         int64
	DocumentID int64
	ChunkIndex int
	Content    string
	Embedding  []float32
	TokenCount int
}

// ChunkHit is a search result at chunk granularity. Distance is cosine
// distance on the vector leg and abs(bm25) on the lexical leg; smaller is
// better on both.
type ChunkHit struct {
	ChunkID    int64
	DocumentID int64
	URL        string
	Content    string
	Distance   float64
}

// SearchFilters narrows vector and lexical search.
type SearchFilters struct {
	Source     string // exact source name
	PathPrefix string // document path prefix
	Section    string // manifest section stored in document metadata
	Limit      int
}

// Progress is one ingestion run's bookkeeping row.
type Progress struct {
	ID               int64
	SourceID         int64
	StartedAt        time.Time
	Total            int
	Processed        int
	Skipped          int
	Failed           int
	Status           string
	LastProcessedURL string
	ErrorMessage     string
}

// Store is the persistence contract. *SQLiteStore is the only production
// implementation; the interface exists so the pipeline, search service and
// MCP layer can be exercised against fakes.
type Store interface {
	// Source operations
	UpsertSource(ctx context.Context, src *Source) error
	GetSource(ctx context.Context, name string) (*Source, error)
	ListSources(ctx context.Context) ([]*Source, error)
	RemoveSource(ctx context.Context, name string) (bool, error)
	UpdateSourceDescription(ctx context.Context, sourceID int64, description string) error
	TouchSourceIngested(ctx context.Context, sourceID int64) error

	// Group operations. A group exists iff at least one source carries the
	// name as group_name and no source has that exact name.
	IsGroup(ctx context.Context, name string) (bool, error)
	SourcesByGroup(ctx context.Context, name string) ([]*Source, error)
	RemoveGroup(ctx context.Context, name string) (bool, error)

	// Document operations
	UpsertDocument(ctx context.Context, doc *Document) error
	GetDocumentByURL(ctx context.Context, sourceID int64, url string) (*Document, error)
	GetDocumentsByIDs(ctx context.Context, ids []int64) ([]*Document, error)
	ListDocumentURLs(ctx context.Context, sourceID int64) ([]string, error)
	CountDocuments(ctx context.Context, sourceID int64) (int, error)

	// Chunk operations
	InsertChunk(ctx context.Context, chunk *Chunk) error
	CountChunks(ctx context.Context, documentID int64) (int, error)

	// Search operations
	VectorSearch(ctx context.Context, embedding []float32, filters SearchFilters) ([]ChunkHit, error)
	LexicalSearch(ctx context.Context, query string, filters SearchFilters) ([]ChunkHit, error)

	// Progress operations
	GetIncompleteProgress(ctx context.Context, sourceID int64) (*Progress, error)
	CreateProgress(ctx context.Context, sourceID int64, total int) (*Progress, error)
	UpdateProgress(ctx context.Context, p *Progress) error
	CompleteProgress(ctx context.Context, p *Progress) error

	Close() error
}

package storage

import "time"

// Chunk is a piece of source text whose ID matches a vector store point ID.
type Chunk struct {
	ID        string // UUID (same as the vector point ID)
	Namespace string // Retrieval partition; empty for the default namespace
	Source    string // Originating document, e.g. a district budget report
	Text      string
	CreatedAt time.Time
}

package models

import "io"

// EmbeddingResult is one vector returned by the embedding API.
type EmbeddingResult struct {
	Object    string    `json:"object"`
	Embedding []float32 `json:"embedding"`
	Index     int       `json:"index"`
}

// LayoutElement is a single text element extracted from a document.
type LayoutElement struct {
	ID       int    `json:"id"`
	Page     int    `json:"page"`
	Category string `json:"category,omitempty"`
	Text     string `json:"text"`
	HTML     string `json:"html,omitempty"`
}

// LayoutAnalysisResult is the parsed structure of a document, elements in reading order.
type LayoutAnalysisResult struct {
	APIVersion string          `json:"api_version,omitempty"`
	Model      string          `json:"model,omitempty"`
	Elements   []LayoutElement `json:"elements"`
}

type EmbeddingContext struct {
	Text string `json:"text"`
}

type EmbeddingContextList struct {
	Context []EmbeddingContext `json:"context"`
}

// Texts returns the passages in retrieval order.
func (l *EmbeddingContextList) Texts() []string {
	if l == nil {
		return nil
	}
	texts := make([]string, 0, len(l.Context))
	for _, c := range l.Context {
		texts = append(texts, c.Text)
	}
	return texts
}

// QueryResult holds one inner list per query vector, nearest first.
type QueryResult struct {
	IDs       [][]string  `json:"ids"`
	Documents [][]string  `json:"documents"`
	Distances [][]float32 `json:"distances"`
}

// Message is a role/content chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

type UploadFile struct {
	Filename string
	Content  io.Reader
}

// Page is a scraped web page.
type Page struct {
	URL      string
	Title    string
	Content  string
	Metadata map[string]interface{}
}

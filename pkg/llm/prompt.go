package llm

import (
	"fmt"
	"strings"

	"github.com/xhad/solar/internal/models"
)

const (
	SystemTemplate  = "You are a helpful assistant with access to the following documents. Answer questions based on this context."
	ContextTemplate = "\nRelevant documents:\n%s\n\nQuestion: %s"
)

// RAGMessages builds a grounded chat turn for query. Without passages the
// question is sent as is.
func RAGMessages(query string, passages []string) []models.Message {
	if len(passages) == 0 {
		return []models.Message{{Role: models.RoleUser, Content: query}}
	}

	var contextBuilder strings.Builder
	for i, p := range passages {
		contextBuilder.WriteString(fmt.Sprintf("[%d] %s\n", i+1, p))
	}

	return []models.Message{
		{Role: models.RoleSystem, Content: SystemTemplate},
		{Role: models.RoleUser, Content: fmt.Sprintf(ContextTemplate, contextBuilder.String(), query)},
	}
}

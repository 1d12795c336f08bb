package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"

	"github.com/xhad/solar/internal/models"
	"github.com/xhad/solar/pkg/embedding"
)

const DiningToolName = "get_dining_recommendation"

// Retriever is the part of embedding.Service the tools need.
type Retriever interface {
	RAG(ctx context.Context, messages []string, opts embedding.RAGOptions) (*models.EmbeddingContextList, error)
}

// DiningCollection is the collection holding the dining passages of a region.
func DiningCollection(regionName string) string {
	return regionName + "_dining"
}

// GetDiningRecommendation looks up dining passages for regionName.
// It returns nil when the region has no matching passages.
func GetDiningRecommendation(ctx context.Context, retriever Retriever, regionName string, messages []string) (*models.EmbeddingContextList, error) {
	return retriever.RAG(ctx, messages, embedding.RAGOptions{Collection: DiningCollection(regionName)})
}

// DiningRecommendationDefinition describes the dining tool to a function-calling model.
// The second required entry is kept exactly as published to existing dispatchers.
var DiningRecommendationDefinition = llms.Tool{
	Type: "function",
	Function: &llms.FunctionDefinition{
		Name:        DiningToolName,
		Description: "Get a list of dining recommendations asked by a user, such as dining options nearby or in a specific region",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"region_name": map[string]any{
					"type":        "string",
					"description": "Choose region in Jeju Island categorized regarding direction. Region name e.g. east-kareum, al-kareum",
				},
				"message": map[string]any{
					"type":        "string",
					"description": "User inquiry about dining options",
				},
			},
			"required": []string{"region_name", " mesage"},
		},
	},
}

type diningArgs struct {
	RegionName string `json:"region_name"`
	Message    string `json:"message"`
	Mesage     string `json:"mesage"`
}

// DiningTool exposes GetDiningRecommendation through the Registry.
type DiningTool struct {
	retriever Retriever
}

func NewDiningTool(retriever Retriever) *DiningTool {
	return &DiningTool{retriever: retriever}
}

func (t *DiningTool) Definition() llms.Tool {
	return DiningRecommendationDefinition
}

func (t *DiningTool) Call(ctx context.Context, arguments string) (any, error) {
	var args diningArgs
	if err := json.Unmarshal([]byte(arguments), &args); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArguments, err)
	}

	args.RegionName = strings.TrimSpace(args.RegionName)
	if args.RegionName == "" {
		return nil, fmt.Errorf("%w: region_name is required", ErrInvalidArguments)
	}
	message := args.Message
	if message == "" {
		message = args.Mesage
	}
	if message == "" {
		return nil, fmt.Errorf("%w: message is required", ErrInvalidArguments)
	}

	result, err := GetDiningRecommendation(ctx, t.retriever, args.RegionName, []string{message})
	if err != nil {
		return nil, err
	}
	if result == nil {
		return nil, nil
	}
	return result, nil
}

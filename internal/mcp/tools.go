package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	mcplib "github.com/mark3labs/mcp-go/mcp"

	"github.com/ashita-ai/hada/internal/model"
	"github.com/ashita-ai/hada/internal/service/analysis"
)

func (s *Server) registerTools() {
	s.mcpServer.AddTool(
		mcplib.NewTool("hada_analyze",
			mcplib.WithDescription(`Look up the safety profile of cosmetic ingredients.

WHEN TO USE: whenever a user asks whether a product, or a list of ingredients,
is suitable for them. Pass one array item per ingredient, spelled as printed on
the label; names are matched case- and whitespace-insensitively. Do not split
names that contain commas, such as "1,2-Hexanediol".

Each result carries health, environmental and suitability attributes. When
concerns are given, every result also carries Concern_Note advisories in a fixed
order. Results whose Source is "API Error" could not be resolved and should be
reported as unknown, not as safe.`),
			mcplib.WithArray("ingredients",
				mcplib.Description(`Ingredient names, one per item, e.g. ["Water", "Glycerin", "1,2-Hexanediol"]`),
				mcplib.Required(),
				mcplib.WithStringItems(),
			),
			mcplib.WithArray("concerns",
				mcplib.Description("Concerns: acne, sensitive_skin, fragrance_free, eco, anti_aging, hyperpigmentation. Unrecognized values are ignored."),
				mcplib.WithStringItems(),
			),
			mcplib.WithString("product_name",
				mcplib.Description("Optional product name, echoed back in the result"),
			),
		),
		s.handleAnalyze,
	)
}

func (s *Server) handleAnalyze(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	args := request.GetArguments()
	ingredients := stringList(args["ingredients"], ingredientSeparators)
	if len(ingredients) == 0 {
		return errorResult("ingredients is required"), nil
	}
	if s.maxBatchSize > 0 && len(ingredients) > s.maxBatchSize {
		return errorResult(fmt.Sprintf("too many ingredients: %d (max %d)", len(ingredients), s.maxBatchSize)), nil
	}
	productName := strings.TrimSpace(request.GetString("product_name", ""))

	results, err := s.analysisSvc.ResolveBatch(ctx, analysis.BatchInput{
		ProductName: productName,
		Ingredients: ingredients,
		Concerns:    stringList(args["concerns"], concernSeparators),
	})
	if err != nil {
		s.logger.Error("mcp: analyze failed", "error", err, "ingredients", len(ingredients))
		return errorResult(fmt.Sprintf("analyze failed: %v", err)), nil
	}

	resultData, err := json.MarshalIndent(model.AnalyzeResponse{
		ProductName: productName,
		Results:     results,
	}, "", "  ")
	if err != nil {
		return errorResult(fmt.Sprintf("encode result: %v", err)), nil
	}

	return &mcplib.CallToolResult{
		Content: []mcplib.Content{
			mcplib.TextContent{Type: "text", Text: string(resultData)},
		},
	}, nil
}

// Separators for arguments sent as one string instead of an array. Commas
// occur inside ingredient names (1,2-Hexanediol) so they only split concerns.
const (
	ingredientSeparators = "\n;"
	concernSeparators    = "\n;,"
)

// stringList reads an array or string argument, trimming items and dropping
// blanks. A string is split on any rune in seps.
func stringList(v any, seps string) []string {
	var items []string
	switch v := v.(type) {
	case []any:
		for _, item := range v {
			if str, ok := item.(string); ok {
				items = append(items, str)
			}
		}
	case []string:
		items = v
	case string:
		items = strings.FieldsFunc(v, func(r rune) bool { return strings.ContainsRune(seps, r) })
	}

	var out []string
	for _, item := range items {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

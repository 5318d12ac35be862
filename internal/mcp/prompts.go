package mcp

import (
	"context"
	"fmt"
	"strings"

	mcplib "github.com/mark3labs/mcp-go/mcp"
)

func (s *Server) registerPrompts() {
	// review-product walks the agent through checking a label against the user's concerns.
	s.mcpServer.AddPrompt(
		mcplib.NewPrompt("review-product",
			mcplib.WithPromptDescription("Review a product's ingredient list against the user's skin concerns"),
			mcplib.WithArgument("ingredients",
				mcplib.ArgumentDescription("The ingredient list as printed on the label"),
				mcplib.RequiredArgument(),
			),
			mcplib.WithArgument("concerns",
				mcplib.ArgumentDescription("Comma-separated concerns (acne, sensitive_skin, fragrance_free, eco, anti_aging, hyperpigmentation)"),
			),
			mcplib.WithArgument("product_name",
				mcplib.ArgumentDescription("The product being reviewed"),
			),
		),
		s.handleReviewProductPrompt,
	)
}

func (s *Server) handleReviewProductPrompt(ctx context.Context, request mcplib.GetPromptRequest) (*mcplib.GetPromptResult, error) {
	ingredients := strings.TrimSpace(request.Params.Arguments["ingredients"])
	if ingredients == "" {
		return nil, fmt.Errorf("ingredients argument is required")
	}
	concerns := strings.TrimSpace(request.Params.Arguments["concerns"])
	product := strings.TrimSpace(request.Params.Arguments["product_name"])
	if product == "" {
		product = "this product"
	}

	concernLine := "The user did not name any concerns; summarize notable risks only."
	if concerns != "" {
		concernLine = fmt.Sprintf(`Pass concerns [%s] so every result carries Concern_Note advisories.`, concerns)
	}

	return &mcplib.GetPromptResult{
		Description: fmt.Sprintf("Review %s", product),
		Messages: []mcplib.PromptMessage{
			{
				Role: mcplib.RoleUser,
				Content: mcplib.TextContent{
					Type: "text",
					Text: fmt.Sprintf(`Review %s for the user.

1. CALL hada_analyze with one ingredients array item per ingredient in this
   label. Commas inside a name such as 1,2-Hexanediol belong to that name.
   Label: %s
   %s

2. READ each result:
   - Concern_Note entries are the advisories to relay, in the order given.
   - A Source of "API Error" means the ingredient could not be looked up.
     Say so plainly; never describe it as safe.
   - Sensitivity_Risk "High" and Fragrance "Yes" deserve a mention even
     without a matching concern.

3. SUMMARIZE: list the ingredients worth flagging first, then give an overall
   verdict. Do not invent properties the results do not contain.`, product, ingredients, concernLine),
				},
			},
		},
	}, nil
}

package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	mcplib "github.com/mark3labs/mcp-go/mcp"

	"github.com/ashita-ai/hada/internal/model"
)

const concernsURI = "hada://concerns"

// concernInfo describes one recognized concern identifier.
type concernInfo struct {
	ID    model.Concern `json:"id"`
	Label string        `json:"label"`
}

func (s *Server) registerResources() {
	// hada://concerns: the concern identifiers hada_analyze understands, in note order.
	s.mcpServer.AddResource(
		mcplib.NewResource(
			concernsURI,
			"Concerns",
			mcplib.WithResourceDescription("Concern identifiers accepted by hada_analyze, in the order their notes are emitted"),
			mcplib.WithMIMEType("application/json"),
		),
		s.handleConcerns,
	)
}

func (s *Server) handleConcerns(ctx context.Context, request mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) {
	concerns := make([]concernInfo, 0, len(model.CanonicalConcerns))
	for _, c := range model.CanonicalConcerns {
		concerns = append(concerns, concernInfo{ID: c, Label: c.Label()})
	}

	data, err := json.MarshalIndent(concerns, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("mcp: marshal concerns: %w", err)
	}

	return []mcplib.ResourceContents{
		mcplib.TextResourceContents{
			URI:      concernsURI,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}

package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/allisson/autoapi/internal/entity"
)

// entitySummary is the JSON output shape of one validated entity-type.
type entitySummary struct {
	Name        string   `json:"name"`
	Kind        string   `json:"kind"`
	RequireAuth bool     `json:"require_auth"`
	Routes      []string `json:"routes"`
}

// RunValidateEntities loads the entity definitions file, validates it, and
// prints the route surface each entity-type generates. Supports text and JSON
// output formats.
func RunValidateEntities(logger *slog.Logger, writer io.Writer, path, format string) error {
	if format != "text" && format != "json" {
		return fmt.Errorf("invalid format: %s (valid options: text, json)", format)
	}

	logger.Info("validating entity definitions", slog.String("path", path))

	registry, err := entity.LoadRegistry(path)
	if err != nil {
		return fmt.Errorf("entity definitions are invalid: %w", err)
	}

	summaries := make([]entitySummary, 0, len(registry.All()))
	for _, def := range registry.All() {
		summaries = append(summaries, summarize(def))
	}

	if format == "json" {
		encoder := json.NewEncoder(writer)
		encoder.SetIndent("", "  ")
		return encoder.Encode(summaries)
	}

	fmt.Fprintf(writer, "entity definitions are valid (%d entity types)\n\n", len(summaries))
	for _, summary := range summaries {
		fmt.Fprintf(writer, "%s (%s, require_auth=%t)\n", summary.Name, summary.Kind, summary.RequireAuth)
		for _, route := range summary.Routes {
			fmt.Fprintf(writer, "  %s\n", route)
		}
		fmt.Fprintln(writer)
	}

	return nil
}

func summarize(def *entity.Definition) entitySummary {
	if def.Login {
		return entitySummary{
			Name:        def.Name,
			Kind:        "login",
			RequireAuth: def.RequireAuth,
			Routes: []string{
				fmt.Sprintf("POST /v1/%s/login", def.Name),
				fmt.Sprintf("POST /v1/%s/logout", def.Name),
			},
		}
	}

	return entitySummary{
		Name:        def.Name,
		Kind:        "crud",
		RequireAuth: def.RequireAuth,
		Routes: []string{
			fmt.Sprintf("GET /v1/%s", def.Name),
			fmt.Sprintf("GET /v1/%s/count", def.Name),
			fmt.Sprintf("GET /v1/%s/:id", def.Name),
			fmt.Sprintf("POST /v1/%s", def.Name),
			fmt.Sprintf("POST /v1/%s/bulk", def.Name),
			fmt.Sprintf("PATCH /v1/%s/:id", def.Name),
			fmt.Sprintf("PATCH /v1/%s/bulk", def.Name),
			fmt.Sprintf("DELETE /v1/%s/:id", def.Name),
			fmt.Sprintf("DELETE /v1/%s/bulk", def.Name),
		},
	}
}

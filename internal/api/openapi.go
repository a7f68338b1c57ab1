package api

import (
	"fmt"

	"github.com/mattjoyce/blockbridge/internal/blocks"
)

// buildOpenAPIDoc returns an OpenAPI 3.1 document with one operation per catalogue block.
func buildOpenAPIDoc(c *blocks.Catalog) map[string]any {
	paths := map[string]any{}
	for _, b := range c.Blocks() {
		paths["/v1/blocks/"+b.Opcode] = map[string]any{
			"post": blockOperation(c, b),
		}
	}

	return map[string]any{
		"openapi": "3.1.0",
		"info": map[string]any{
			"title":   fmt.Sprintf("blockbridge (%s)", c.Name),
			"version": "1.0",
		},
		"paths": paths,
		"components": map[string]any{
			"securitySchemes": map[string]any{
				"BearerAuth": map[string]any{
					"type":   "http",
					"scheme": "bearer",
				},
			},
		},
	}
}

func blockOperation(c *blocks.Catalog, b *blocks.Block) map[string]any {
	return map[string]any{
		"operationId": c.ID + "__" + b.Opcode,
		"summary":     b.Text,
		"tags":        []string{c.ID},
		"requestBody": map[string]any{
			"required": false,
			"content": map[string]any{
				"application/json": map[string]any{
					"schema": map[string]any{
						"type": "object",
						"properties": map[string]any{
							"args": c.ArgumentSchema(b),
							"wait": map[string]any{"type": "boolean"},
						},
						"additionalProperties": false,
					},
				},
			},
		},
		"responses": map[string]any{
			"200": map[string]any{"description": fmt.Sprintf("Dispatched as %s", b.Event)},
			"400": map[string]any{"description": "Invalid arguments"},
			"403": map[string]any{"description": "Insufficient scope"},
		},
		"security": []any{map[string]any{"BearerAuth": []string{}}},
	}
}

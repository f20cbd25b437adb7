package agent

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"

	"github.com/bqchat/bqchat/internal/format"
)

// Tool names form a closed union: the dispatcher handles exactly these two
// and treats anything else as a fault. Keep the loop in Execute exhaustive
// over this list.
const (
	ToolFetchSchema  = "fetchSchema"
	ToolExecuteQuery = "executeQuery"
)

// FetchSchemaInput is the argument schema for the fetchSchema tool.
type FetchSchemaInput struct {
	Table string `json:"table" jsonschema_description:"Table reference: name, dataset.table, or project.dataset.table"`
}

// ExecuteQueryInput is the argument schema for the executeQuery tool.
type ExecuteQueryInput struct {
	SQL string `json:"sql" jsonschema_description:"The SQL query to execute against the warehouse"`
}

// defineTools registers both warehouse tools with Genkit so the model sees
// their declarations. The dispatcher runs requests itself (the handlers exist
// for declaration and direct invocation in tests), which is why Generate is
// called with ReturnToolRequests.
func defineTools(g *genkit.Genkit, wh Warehouse) []ai.Tool {
	fetchSchema := genkit.DefineTool(g, ToolFetchSchema,
		"Fetches the schema of a BigQuery table: column names, types, and nullability. "+
			"Use this before writing queries against an unfamiliar table.",
		func(ctx *ai.ToolContext, input FetchSchemaInput) (string, error) {
			schema, err := wh.TableSchema(ctx, input.Table)
			if err != nil {
				return "", err
			}
			return format.Schema(schema), nil
		})

	executeQuery := genkit.DefineTool(g, ToolExecuteQuery,
		"Executes a SQL query against BigQuery and returns the result rows. "+
			"The warehouse is the sole authority on query correctness.",
		func(ctx *ai.ToolContext, input ExecuteQueryInput) (string, error) {
			rs, err := wh.Query(ctx, input.SQL)
			if err != nil {
				return "", err
			}
			return format.Results(rs), nil
		})

	return []ai.Tool{fetchSchema, executeQuery}
}

// invokeTool dispatches a model tool request against the warehouse adapter.
// Unknown tool names return ErrUnknownTool; adapter failures are returned
// as-is for the caller to fold back into conversational context.
func (a *Agent) invokeTool(ctx context.Context, req *ai.ToolRequest) (string, error) {
	switch req.Name {
	case ToolFetchSchema:
		var input FetchSchemaInput
		if err := decodeInput(req.Input, &input); err != nil {
			return "", err
		}
		schema, err := a.warehouse.TableSchema(ctx, input.Table)
		if err != nil {
			return "", err
		}
		return format.Schema(schema), nil

	case ToolExecuteQuery:
		var input ExecuteQueryInput
		if err := decodeInput(req.Input, &input); err != nil {
			return "", err
		}
		rs, err := a.warehouse.Query(ctx, input.SQL)
		if err != nil {
			return "", err
		}
		return format.Results(rs), nil

	default:
		return "", fmt.Errorf("%q: %w", req.Name, ErrUnknownTool)
	}
}

// decodeInput converts the model-supplied argument map into a typed input
// struct via a JSON round trip.
func decodeInput(input any, out any) error {
	data, err := json.Marshal(input)
	if err != nil {
		return fmt.Errorf("failed to marshal tool input: %w", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("invalid tool input: %w", err)
	}
	return nil
}

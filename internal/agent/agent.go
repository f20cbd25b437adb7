// Package agent implements the dispatcher that routes user prompts between
// the hosted model and the two warehouse tools.
//
// Each user turn runs a bounded loop: the model either answers directly or
// requests a tool invocation; tool results (including tool failures) are
// folded back into the conversation context and the model decides again.
// The loop terminates on a final answer, on an unknown tool name, or when
// the tool-invocation budget is exhausted.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/bqchat/bqchat/internal/store"
	"github.com/bqchat/bqchat/internal/warehouse"
)

const (
	// DefaultMaxToolCalls bounds tool invocations per user turn.
	DefaultMaxToolCalls = 5

	// DefaultModelTimeout bounds a single model round trip.
	DefaultModelTimeout = 120 * time.Second

	// failedTurnMessage is persisted and shown when a turn ends in a
	// dispatcher fault. The fault itself is logged, not displayed.
	failedTurnMessage = "I ran into a problem while answering. Please try again or rephrase your question."
)

// Warehouse is the subset of the warehouse adapter the dispatcher needs.
// Defined here, by the consumer, so tests can substitute a stub.
type Warehouse interface {
	TableSchema(ctx context.Context, table string) (*warehouse.Schema, error)
	Query(ctx context.Context, sql string) (*warehouse.ResultSet, error)
}

// generator abstracts the model call so the dispatch loop can be tested with
// a stubbed model. The production implementation delegates to genkit.Generate.
type generator interface {
	generate(ctx context.Context, msgs []*ai.Message, tools []ai.ToolRef) (*ai.ModelResponse, error)
}

// Config contains all required parameters for the Agent.
type Config struct {
	Genkit    *genkit.Genkit
	Store     *store.Store
	Warehouse Warehouse
	Logger    *slog.Logger

	// ModelName is the model identifier (e.g. "gemini-1.5-pro").
	ModelName string

	// DatasetID names the default dataset, mentioned in the system prompt.
	DatasetID string

	// MaxToolCalls bounds tool invocations per user turn (0 = default).
	MaxToolCalls int

	// ModelTimeout bounds each model round trip (0 = default).
	ModelTimeout time.Duration

	// RateLimiter throttles model calls (nil = default 10 rps, burst 30).
	RateLimiter *rate.Limiter
}

// validate checks that required parameters are present.
func (cfg Config) validate() error {
	if cfg.Genkit == nil {
		return errors.New("genkit instance is required")
	}
	if cfg.Store == nil {
		return errors.New("conversation store is required")
	}
	if cfg.Warehouse == nil {
		return errors.New("warehouse adapter is required")
	}
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	return nil
}

// Response is the result of one dispatched user turn.
type Response struct {
	// FinalText is the model's final answer.
	FinalText string

	// ToolCalls is the number of tool invocations the turn used.
	ToolCalls int
}

// Agent dispatches user prompts. Stateless per invocation: conversation
// state lives in the store, so Agent is safe for concurrent use across
// sessions. Configuration is captured immutably at construction.
type Agent struct {
	g            *genkit.Genkit
	store        *store.Store
	warehouse    Warehouse
	logger       *slog.Logger
	gen          generator
	tools        []ai.ToolRef
	modelName    string
	maxToolCalls int
	modelTimeout time.Duration
	limiter      *rate.Limiter
	system       string
}

// New creates an Agent and registers the warehouse tools with Genkit.
func New(cfg Config) (*Agent, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	maxToolCalls := cfg.MaxToolCalls
	if maxToolCalls <= 0 {
		maxToolCalls = DefaultMaxToolCalls
	}
	modelTimeout := cfg.ModelTimeout
	if modelTimeout <= 0 {
		modelTimeout = DefaultModelTimeout
	}
	limiter := cfg.RateLimiter
	if limiter == nil {
		limiter = rate.NewLimiter(10, 30)
	}

	a := &Agent{
		g:            cfg.Genkit,
		store:        cfg.Store,
		warehouse:    cfg.Warehouse,
		logger:       cfg.Logger,
		modelName:    qualifiedModelName(cfg.ModelName),
		maxToolCalls: maxToolCalls,
		modelTimeout: modelTimeout,
		limiter:      limiter,
		system:       systemPrompt(cfg.DatasetID),
	}

	tools := defineTools(cfg.Genkit, a.warehouse)
	a.tools = make([]ai.ToolRef, len(tools))
	for i, t := range tools {
		a.tools[i] = t
	}

	a.gen = &genkitGenerator{g: cfg.Genkit, modelName: a.modelName, system: a.system}

	a.logger.Info("agent initialized",
		"model", a.modelName,
		"max_tool_calls", maxToolCalls,
	)
	return a, nil
}

// Execute runs one user turn end to end: load history, loop with the model,
// persist the new turns. On a dispatcher fault the turn's failure message is
// appended to the transcript (an append, never a mutation) and the fault is
// returned.
func (a *Agent) Execute(ctx context.Context, sessionID uuid.UUID, input string) (*Response, error) {
	history, err := a.store.History(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("getting history: %w", err)
	}

	msgs := make([]*ai.Message, 0, len(history)+2)
	msgs = append(msgs, history...)
	msgs = append(msgs, ai.NewUserMessage(ai.NewTextPart(input)))

	toolCalls := 0
	for {
		resp, err := a.generateOnce(ctx, msgs)
		if err != nil {
			return nil, fmt.Errorf("model call failed: %w", err)
		}

		requests := resp.ToolRequests()
		if len(requests) == 0 {
			finalText := strings.TrimSpace(resp.Text())
			if finalText == "" {
				a.logger.Warn("model returned empty response", "session_id", sessionID)
			}
			if resp.Message != nil {
				msgs = append(msgs, resp.Message)
			} else {
				msgs = append(msgs, ai.NewModelMessage(ai.NewTextPart(finalText)))
			}

			if err := a.persistNewTurns(ctx, sessionID, msgs[len(history):]); err != nil {
				return nil, err
			}
			return &Response{FinalText: finalText, ToolCalls: toolCalls}, nil
		}

		msgs = append(msgs, resp.Message)

		for i, req := range requests {
			if toolCalls >= a.maxToolCalls {
				a.logger.Error("tool budget exhausted",
					"session_id", sessionID, "budget", a.maxToolCalls)
				msgs = append(msgs, unansweredResponses(requests[i:], failedTurnMessage))
				a.persistFailedTurn(ctx, sessionID, msgs[len(history):])
				return nil, fmt.Errorf("after %d tool calls: %w", toolCalls, ErrLoopLimit)
			}
			toolCalls++

			output, err := a.invokeTool(ctx, req)
			if errors.Is(err, ErrUnknownTool) {
				a.logger.Error("unknown tool requested",
					"session_id", sessionID, "tool", req.Name)
				msgs = append(msgs, unansweredResponses(requests[i:], failedTurnMessage))
				a.persistFailedTurn(ctx, sessionID, msgs[len(history):])
				return nil, err
			}

			// Recovery by delegation: a failed tool call becomes an error
			// tool-result turn, and the model decides whether to correct
			// its arguments or surface the failure.
			var out any = output
			if err != nil {
				a.logger.Debug("tool call failed, folding into context",
					"tool", req.Name, "error", err)
				out = map[string]any{"error": err.Error()}
			}

			msgs = append(msgs, ai.NewMessage(ai.RoleTool, nil,
				ai.NewToolResponsePart(&ai.ToolResponse{
					Name:   req.Name,
					Ref:    req.Ref,
					Output: out,
				})))
		}
	}
}

// generateOnce performs a single rate-limited, timeout-bounded model call.
func (a *Agent) generateOnce(ctx context.Context, msgs []*ai.Message) (*ai.ModelResponse, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, a.modelTimeout)
	defer cancel()

	return a.gen.generate(callCtx, msgs, a.tools)
}

// persistNewTurns appends the turn's new messages to the session log.
// A storage failure is fatal to the request, never to the process.
func (a *Agent) persistNewTurns(ctx context.Context, sessionID uuid.UUID, newMsgs []*ai.Message) error {
	stored := make([]*store.Message, 0, len(newMsgs))
	for _, msg := range newMsgs {
		stored = append(stored, &store.Message{
			Role:    store.AIRoleToStoreRole(msg.Role),
			Content: msg.Content,
		})
	}
	if err := a.store.AppendMessages(ctx, sessionID, stored); err != nil {
		return fmt.Errorf("persisting turns: %w", err)
	}
	return nil
}

// unansweredResponses builds one tool turn carrying an error response for
// every still-pending request. A persisted model message must never carry a
// tool request without a matching response, or replaying the history rejects.
func unansweredResponses(requests []*ai.ToolRequest, msg string) *ai.Message {
	parts := make([]*ai.Part, 0, len(requests))
	for _, req := range requests {
		parts = append(parts, ai.NewToolResponsePart(&ai.ToolResponse{
			Name:   req.Name,
			Ref:    req.Ref,
			Output: map[string]any{"error": msg},
		}))
	}
	return ai.NewMessage(ai.RoleTool, nil, parts...)
}

// persistFailedTurn records a faulted turn: everything exchanged so far plus
// an assistant turn carrying the generic failure message. Best-effort; the
// fault being returned matters more than the transcript of it.
func (a *Agent) persistFailedTurn(ctx context.Context, sessionID uuid.UUID, newMsgs []*ai.Message) {
	withFailure := make([]*ai.Message, 0, len(newMsgs)+1)
	withFailure = append(withFailure, newMsgs...)
	withFailure = append(withFailure, ai.NewModelMessage(ai.NewTextPart(failedTurnMessage)))

	if err := a.persistNewTurns(ctx, sessionID, withFailure); err != nil {
		a.logger.Warn("persisting failed turn", "session_id", sessionID, "error", err)
	}
}

// genkitGenerator is the production model caller.
type genkitGenerator struct {
	g         *genkit.Genkit
	modelName string
	system    string
}

func (gg *genkitGenerator) generate(ctx context.Context, msgs []*ai.Message, tools []ai.ToolRef) (*ai.ModelResponse, error) {
	opts := []ai.GenerateOption{
		ai.WithSystem(gg.system),
		ai.WithMessages(msgs...),
		ai.WithTools(tools...),
		// The dispatch loop, not Genkit, executes tools: the loop bound and
		// the error fold-back depend on seeing every request.
		ai.WithReturnToolRequests(true),
	}
	if gg.modelName != "" {
		opts = append(opts, ai.WithModelName(gg.modelName))
	}
	return genkit.Generate(ctx, gg.g, opts...)
}

// qualifiedModelName returns the provider-qualified model name for Genkit,
// e.g. "gemini-1.5-pro" becomes "googleai/gemini-1.5-pro". Names that already
// carry a provider pass through.
func qualifiedModelName(name string) string {
	if name == "" || strings.Contains(name, "/") {
		return name
	}
	return "googleai/" + name
}

// systemPrompt describes the assistant's role and its two capabilities.
func systemPrompt(datasetID string) string {
	var b strings.Builder
	b.WriteString("You are a data analyst assistant for a BigQuery warehouse. ")
	b.WriteString("Answer questions about the data by inspecting table schemas with fetchSchema ")
	b.WriteString("and running SQL with executeQuery. ")
	b.WriteString("Inspect a table's schema before querying it if you are unsure of its columns. ")
	b.WriteString("When a tool returns an error, correct your arguments and try again, or explain the failure. ")
	b.WriteString("Present tabular results as markdown tables.")
	if datasetID != "" {
		fmt.Fprintf(&b, " The default dataset is %q.", datasetID)
	}
	return b.String()
}

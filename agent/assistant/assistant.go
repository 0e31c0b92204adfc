// Package assistant runs natural-language telecom queries against a chat
// model, with query-level deduplication: concurrent identical questions share
// a single model invocation.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	contractx "github.com/tanpawarit/Camara-Agent-Gateway/agent/contract"
	dedupx "github.com/tanpawarit/Camara-Agent-Gateway/dedup"
	openrouterx "github.com/tanpawarit/Camara-Agent-Gateway/pkg/openrouter"
)

const defaultSystemPrompt = `You are a helpful assistant for CAMARA telecom APIs.
Interpret the user's question, answer conversationally, and explain API errors in user-friendly terms.`

const queryKind = "agent-query"

var _ contractx.Runner = (*Assistant)(nil)

type Assistant struct {
	model        einomodel.ToolCallingChatModel
	modelName    string
	coalescer    *dedupx.Coalescer
	systemPrompt string
	now          func() time.Time
}

func New(ctx context.Context, builder openrouterx.LLMBuilder, modelName string, coalescer *dedupx.Coalescer, systemPrompt string) (*Assistant, error) {
	if builder == nil {
		return nil, errors.New("llm builder is required")
	}
	model, err := builder.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("build chat model: %w", err)
	}
	return NewWithModel(model, modelName, coalescer, systemPrompt)
}

// NewWithModel wires an already-constructed chat model, which is also the
// seam the tests use.
func NewWithModel(model einomodel.ToolCallingChatModel, modelName string, coalescer *dedupx.Coalescer, systemPrompt string) (*Assistant, error) {
	if model == nil {
		return nil, errors.New("chat model is required")
	}
	if coalescer == nil {
		return nil, errors.New("coalescer is required")
	}
	if strings.TrimSpace(systemPrompt) == "" {
		systemPrompt = defaultSystemPrompt
	}

	return &Assistant{
		model:        model,
		modelName:    strings.TrimSpace(modelName),
		coalescer:    coalescer,
		systemPrompt: systemPrompt,
		now:          time.Now,
	}, nil
}

// Answer resolves one query, coalescing onto an in-flight invocation of the
// same normalized query when one exists. The session identifier is
// deliberately excluded from the key: two users asking the same question at
// the same time share one model call.
func (a *Assistant) Answer(ctx context.Context, req contractx.QueryRequest) (contractx.QueryResult, error) {
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return contractx.QueryResult{}, contractx.ErrEmptyQuery
	}

	value, err := a.coalescer.Run(ctx, dedupx.Request{
		Kind: queryKind,
		Key:  strings.ToLower(query),
	}, func(ctx context.Context) (any, error) {
		return a.invoke(ctx, query)
	})
	if err != nil {
		return contractx.QueryResult{}, err
	}

	result, ok := value.(contractx.QueryResult)
	if !ok {
		return contractx.QueryResult{}, fmt.Errorf("%w: unexpected result type %T", dedupx.ErrUpstream, value)
	}
	return result, nil
}

func (a *Assistant) invoke(ctx context.Context, query string) (contractx.QueryResult, error) {
	msg, err := a.model.Generate(ctx, []*schema.Message{
		schema.SystemMessage(a.systemPrompt),
		schema.UserMessage(query),
	})
	if err != nil {
		return contractx.QueryResult{}, fmt.Errorf("%w: %v", contractx.ErrModelInvoke, err)
	}
	if msg == nil || strings.TrimSpace(msg.Content) == "" {
		return contractx.QueryResult{}, contractx.ErrEmptyAnswer
	}

	return contractx.QueryResult{
		Answer:     strings.TrimSpace(msg.Content),
		Model:      a.modelName,
		ResolvedAt: a.now().UTC(),
	}, nil
}

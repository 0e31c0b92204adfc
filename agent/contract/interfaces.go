package contract

import "context"

type Runner interface {
	Answer(ctx context.Context, req QueryRequest) (QueryResult, error)
}

package core

import "context"

// TurnStore keeps the append-only turn history of each agent. Every method
// honours ctx so a slow remote store cannot outlive the run that calls it.
type TurnStore interface {
	Append(ctx context.Context, agent string, turn Turn) error
	List(ctx context.Context, agent string) ([]Turn, error)
	Last(ctx context.Context, agent string, n int) ([]Turn, error)
	Search(ctx context.Context, agent, query string, limit int) ([]Turn, error)
	Clear(ctx context.Context, agent string) error
}

// Package classifier converts free-form message text into structured
// trading-signal candidates via an external chat-completion capability.
package classifier

import (
	"context"
)

// Result is the structured verdict for one message text.
type Result struct {
	IsSignal   bool
	Confidence float64
	Symbol     string
	Direction  string
	Entry      *float64
	Stop       *float64
	Targets    []float64
	Rationale  string
	Model      string
}

// Classifier classifies one message text. Implementations must be safe for
// concurrent calls on distinct messages; failures surface as error returns,
// never panics.
type Classifier interface {
	Classify(ctx context.Context, text string) (*Result, error)
}

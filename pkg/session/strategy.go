package session

import "context"

// stepOutcome classifies how an import step finished. Success ends the
// chain, retryNext hands over to the next strategy, and fatal aborts the
// whole import.
type stepOutcome int

const (
	stepSuccess stepOutcome = iota
	stepRetryNext
	stepFatal
)

// importStep is one strategy in the cookie import chain, tried in order
// until one succeeds or a fatal condition stops the chain.
type importStep struct {
	name string
	run  func(ctx context.Context) stepOutcome
}

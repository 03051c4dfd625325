package ports

import (
	"context"

	"github.com/layer-3/memowallet/core"
)

// ChainClient submits signed calls. SubmitCall resolves to the block hash
// once the call is finalized, or returns a *core.DispatchError.
type ChainClient interface {
	SubmitCall(ctx context.Context, call *core.SignedCall) (string, error)
}

// Relayer hands forward requests to the trusted sponsor
type Relayer interface {
	Forward(ctx context.Context, tx *core.ForwardMetaTx) (*core.RelayReceipt, error)
}

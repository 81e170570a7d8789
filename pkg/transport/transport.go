// Package transport declares the six wire-level service contracts of §6
// ("Transport (wire)") as plain Go interfaces, with no generated gRPC
// stubs. A networked deployment adapts a concrete component
// (pkg/ordering.Service, pkg/yac.Gate, pkg/loader.Loader, pkg/wsv.Store)
// to one of these; cmd/irohad wires single-node logging stubs instead and
// uses none of them, and tests wire the interfaces against in-process
// fakes.
package transport

import (
	"context"

	"github.com/yacbft/irohad-go/pkg/crypto"
	"github.com/yacbft/irohad-go/pkg/model"
)

// TxStatusKind is the user-visible status of a submitted transaction
// (§7's named status list).
type TxStatusKind int

const (
	EnoughSignaturesCollected TxStatusKind = iota
	StatefulValidationFailed
	Committed
	Rejected
	MstExpired
)

// TxStatus is one status update in the stream CommandService.GetStatus
// returns for a submitted transaction hash.
type TxStatus struct {
	Kind TxStatusKind
	Code *model.CommandError // set only for StatefulValidationFailed
}

// CommandService is the client-facing transaction submission surface.
type CommandService interface {
	SubmitTransaction(ctx context.Context, tx *model.Transaction) error
	GetStatus(ctx context.Context, hash crypto.Hash) (<-chan TxStatus, error)
}

// QueryKind distinguishes the small set of read queries this node
// serves; the spec leaves the query language open beyond naming
// GetQueryResponse(Query), so this narrows it to the account/asset
// lookups pkg/wsv already exposes rather than inventing an unbounded
// query DSL.
type QueryKind int

const (
	QueryGetAccountDetail QueryKind = iota
	QueryGetAccountAssetBalance
	QueryGetSignatories
)

// Query is one request to QueryService.GetQueryResponse.
type Query struct {
	Kind      QueryKind
	AccountID string
	AssetID   string
}

// QueryResponse carries the result of a Query, or an error code when the
// query itself is rejected (propagated in-band, never as a raw error
// across the RPC boundary, per §7's propagation policy).
type QueryResponse struct {
	AccountDetail map[string]string
	AssetBalance  string
	Signatories   []crypto.PublicKey
	ErrorCode     string
}

// BlockStream yields blocks from a peer in ascending height order. Next
// returns (nil, false, nil) once the peer reports no more blocks.
type BlockStream interface {
	Next(ctx context.Context) (*model.Block, bool, error)
	Close() error
}

// QueryService is the client-facing read surface.
type QueryService interface {
	GetQueryResponse(ctx context.Context, query Query) (QueryResponse, error)
	GetBlockStream(ctx context.Context, fromHeight uint64) (BlockStream, error)
}

// YacNetwork is the peer-facing surface a YAC state machine's VoteSender
// calls into on a remote peer; pkg/yac.VoteSender narrows this down to
// the two calls one ring-gossip step needs.
type YacNetwork interface {
	SendState(ctx context.Context, peer model.Peer, votes []model.Vote) error
}

// OrderingService is the peer-facing surface over pkg/ordering.Service:
// batch submission and proposal pull, per §4.5/§6. Service's own
// OnBatches and OnRequestProposal take no context, so Service does not
// satisfy this interface directly.
type OrderingService interface {
	OnBatches(ctx context.Context, round model.Round, batches []*model.TransactionBatch) error
	OnRequestProposal(ctx context.Context, round model.Round) (*model.Proposal, error)
}

// BlockLoaderService is the peer-facing surface pkg/loader's
// counterpart RPC client calls into: single-block and ranged retrieval.
type BlockLoaderService interface {
	RetrieveBlock(ctx context.Context, hash crypto.Hash) (*model.Block, error)
	RetrieveBlocks(ctx context.Context, fromHeight uint64) (BlockStream, error)
}

// MstNetwork is the peer-facing MST gossip surface; pkg/mst.Transport is
// this same contract narrowed to the one call the processor makes.
type MstNetwork interface {
	SendState(ctx context.Context, peer model.Peer, state []byte) error
}

// Command irohad is the ledger node's CLI entry point (§6 CLI).
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	dbm "github.com/cometbft/cometbft-db"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/yacbft/irohad-go/pkg/config"
	"github.com/yacbft/irohad-go/pkg/crypto"
	"github.com/yacbft/irohad-go/pkg/genesis"
	"github.com/yacbft/irohad-go/pkg/loader"
	"github.com/yacbft/irohad-go/pkg/metrics"
	"github.com/yacbft/irohad-go/pkg/model"
	"github.com/yacbft/irohad-go/pkg/mst"
	"github.com/yacbft/irohad-go/pkg/ordering"
	"github.com/yacbft/irohad-go/pkg/simulator"
	"github.com/yacbft/irohad-go/pkg/storage"
	"github.com/yacbft/irohad-go/pkg/synchronizer"
	"github.com/yacbft/irohad-go/pkg/validation"
	"github.com/yacbft/irohad-go/pkg/wsv"
	"github.com/yacbft/irohad-go/pkg/yac"
)

// Exit codes per §6 CLI.
const (
	exitOK                = 0
	exitConfigError       = 1
	exitStorageInitFailed = 2
	exitMissingFlag       = 3
)

func main() {
	os.Exit(run())
}

func run() int {
	logger := log.New(os.Stderr, "[irohad] ", log.LstdFlags)

	var (
		configPath      = flag.String("config", "", "path to the JSON configuration file")
		genesisPath     = flag.String("genesis_block", "", "path to the genesis block file")
		keypairName     = flag.String("keypair_name", "", "basename of the node's <name>.pub/<name>.priv keypair files")
		overwriteLedger = flag.Bool("overwrite_ledger", false, "wipe existing block files and world state before starting")
	)
	flag.Parse()

	if *configPath == "" || *genesisPath == "" || *keypairName == "" {
		logger.Println("missing required flag: --config, --genesis_block, and --keypair_name are all required")
		return exitMissingFlag
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Printf("configuration error: %v", err)
		return exitConfigError
	}

	keypair, err := crypto.LoadKeypair(*keypairName)
	if err != nil {
		logger.Printf("configuration error: load keypair: %v", err)
		return exitConfigError
	}

	reg := prometheus.NewRegistry()
	mtr := metrics.New(reg)

	n, err := bootstrap(context.Background(), cfg, keypair, *genesisPath, *overwriteLedger, mtr, logger)
	if err != nil {
		logger.Printf("storage initialization failed: %v", err)
		return exitStorageInitFailed
	}
	defer n.close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	n.start(ctx)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logger.Println("shutting down")
	cancel()
	return exitOK
}

// node holds every wired component of a single running ledger process.
type node struct {
	logger *log.Logger

	blockStore *storage.Store
	wsvStore   *wsv.Store

	orderingGate  *ordering.Gate
	validator     *validation.Validator
	simulator     *simulator.Simulator
	yacStorage    *yac.Storage
	stateMach     *yac.StateMachine
	consensusGate *yac.Gate
	mstProc       *mst.Processor
	loaderSvc     *loader.Loader
	sync          *synchronizer.Synchronizer

	keypair       crypto.Keypair
	proposalDelay time.Duration
	mstEnabled    bool
}

// bootstrap performs the storage-init sequence of §6: open the block
// store, connect and migrate world state, optionally wipe both for
// --overwrite_ledger, and install the genesis block on a fresh ledger.
func bootstrap(ctx context.Context, cfg *config.Config, keypair crypto.Keypair, genesisPath string, overwrite bool, mtr *metrics.Registry, logger *log.Logger) (*node, error) {
	if err := os.MkdirAll(cfg.BlockStorePath, 0o755); err != nil {
		return nil, fmt.Errorf("create block store directory: %w", err)
	}
	blockStore, err := storage.Open(cfg.BlockStorePath)
	if err != nil {
		return nil, fmt.Errorf("open block store: %w", err)
	}

	wsvStore, err := wsv.NewStore(wsv.Config{ConnString: cfg.PgOpt}, log.New(logger.Writer(), "[wsv] ", log.LstdFlags))
	if err != nil {
		return nil, fmt.Errorf("connect world state: %w", err)
	}

	if overwrite {
		if err := blockStore.Clear(); err != nil {
			return nil, fmt.Errorf("clear block store: %w", err)
		}
		if err := wsvStore.Reset(ctx); err != nil {
			return nil, fmt.Errorf("reset world state: %w", err)
		}
	} else if err := wsvStore.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure world state schema: %w", err)
	}

	if _, ok, err := blockStore.TopHeight(); err != nil {
		return nil, fmt.Errorf("read block store top height: %w", err)
	} else if !ok {
		block, err := genesis.Bootstrap(ctx, genesisPath, wsvStore, blockStore)
		if err != nil {
			return nil, fmt.Errorf("genesis bootstrap: %w", err)
		}
		logger.Printf("bootstrapped genesis block at height %d", block.Height)
	}

	replayDB, err := dbm.NewGoLevelDB("replay", cfg.BlockStorePath)
	if err != nil {
		return nil, fmt.Errorf("open replay cache: %w", err)
	}
	replay := ordering.NewReplayCache(replayDB)

	orderingCfg := ordering.Config{TransactionLimit: cfg.MaxProposalSize}
	orderingSvc := ordering.New(orderingCfg, replay)
	orderingSvc.SetMetrics(mtr)

	validator := validation.New(log.New(logger.Writer(), "[validation] ", log.LstdFlags))
	sim := simulator.New(blockSourceAdapter{blockStore}, simulator.StoreOpener{Store: wsvStore}, validator, keypair,
		log.New(logger.Writer(), "[simulator] ", log.LstdFlags))

	yacStorage := yac.NewStorage(yac.DefaultProposalLimit)
	yacStorage.SetMetrics(mtr)
	sm := yac.New(yacStorage, loggingVoteSender{logger}, time.Duration(cfg.VoteDelayMs)*time.Millisecond,
		log.New(logger.Writer(), "[yac] ", log.LstdFlags))
	resultCache := yac.NewMemResultCache()
	consensusGate := yac.NewGate(sm, resultCache, log.New(logger.Writer(), "[yac-gate] ", log.LstdFlags))

	validatorSetSource := validatorSetAdapter{wsvStore}
	chainValidator := synchronizer.NewChainValidator(validatorSetSource)
	loaderSvc := loader.New(resultCache, unsupportedBlockClient{})
	sync := synchronizer.New(wsvStore, blockStore, loaderSvc, chainValidator, log.New(logger.Writer(), "[sync] ", log.LstdFlags))
	sync.SetMetrics(mtr)

	strategy := mst.NewRoundRobinStrategy(nil, time.Now().UnixNano())
	mstProc := mst.NewProcessor(strategy, loggingMstTransport{logger}, 0, 0, log.New(logger.Writer(), "[mst] ", log.LstdFlags))

	topHeight, ok, err := blockStore.TopHeight()
	if err != nil {
		return nil, fmt.Errorf("read block store top height: %w", err)
	}
	startRound := model.NewRound(1)
	if ok {
		startRound = model.NewRound(topHeight + 1)
	}

	validators, err := wsvStore.GetValidatorSet(ctx)
	if err != nil {
		return nil, fmt.Errorf("read validator set: %w", err)
	}
	self := model.Peer{NetworkAddress: fmt.Sprintf(":%d", cfg.InternalPort), PublicKey: keypair.Public}
	proposerOrder := ordering.NewProposerOrder(validators)
	orderingGate := ordering.NewGate(startRound, orderingSvc, proposerOrder, loggingBatchRouter{logger}, self,
		log.New(logger.Writer(), "[ordering-gate] ", log.LstdFlags))

	return &node{
		logger:        logger,
		blockStore:    blockStore,
		wsvStore:      wsvStore,
		orderingGate:  orderingGate,
		validator:     validator,
		simulator:     sim,
		yacStorage:    yacStorage,
		stateMach:     sm,
		consensusGate: consensusGate,
		mstProc:       mstProc,
		loaderSvc:     loaderSvc,
		sync:          sync,
		keypair:       keypair,
		proposalDelay: time.Duration(cfg.ProposalDelayMs) * time.Millisecond,
		mstEnabled:    cfg.MstEnable,
	}, nil
}

func (n *node) close() {
	if err := n.wsvStore.Close(); err != nil {
		n.logger.Printf("close world state: %v", err)
	}
}

// start launches the long-running goroutines that make up the Round
// clock (§4.5, C6): the ordering gate emits a proposal, which this node
// simulates and votes on; the consensus gate's resolved outcome feeds the
// synchronizer, whose own event in turn drives the ordering gate to the
// next round. The chain is closed by runOrderingEvents subscribing to
// n.sync.OnEvents and runConsensusOutcomes subscribing to
// n.consensusGate.OnOutcomes — every event §4.5/§4.13 name a listener for
// has a production subscriber.
func (n *node) start(ctx context.Context) {
	go n.consensusGate.Run(ctx)
	if n.mstEnabled {
		go n.mstProc.Run(ctx)
	}
	go n.runConsensusOutcomes(ctx)
	go n.runOrderingEvents(ctx)
	go n.runProposals(ctx)
}

// runConsensusOutcomes translates every resolved consensus outcome into a
// synchronizer call, the bridge between C12 (Consensus Gate) and C14
// (Synchronizer) named in §4.11/§4.13.
func (n *node) runConsensusOutcomes(ctx context.Context) {
	ch := make(chan *yac.GateOutcome, 4)
	sub := n.consensusGate.OnOutcomes(ch)
	defer sub.Unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return
		case outcome := <-ch:
			n.handleConsensusOutcome(ctx, outcome)
		}
	}
}

func (n *node) handleConsensusOutcome(ctx context.Context, outcome *yac.GateOutcome) {
	validators, err := n.wsvStore.GetValidatorSet(ctx)
	if err != nil {
		n.logger.Printf("round %s: read validator set: %v", outcome.Round, err)
		return
	}
	signatories := make([]model.Peer, 0, len(outcome.CommitSignatures))
	for _, sig := range outcome.CommitSignatures {
		if idx := validators.IndexOf(sig.PublicKey); idx >= 0 {
			signatories = append(signatories, validators[idx])
		}
	}
	n.sync.HandleOutcome(ctx, outcome, outcome.Round, signatories)
}

// runOrderingEvents is the Round clock's advance step (§4.5
// on_collaboration_outcome): every synchronizer event — committed,
// rejected, or nothing — tells the ordering gate to move to the next
// round and emit its proposal.
func (n *node) runOrderingEvents(ctx context.Context) {
	ch := make(chan *synchronizer.SynchronizationEvent, 4)
	sub := n.sync.OnEvents(ch)
	defer sub.Unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return
		case event := <-ch:
			outcome := ordering.OutcomeNothing
			switch event.Kind {
			case synchronizer.EventCommit:
				outcome = ordering.OutcomeCommit
			case synchronizer.EventReject:
				outcome = ordering.OutcomeReject
			}
			n.orderingGate.OnCollaborationOutcome(event.Round, outcome, time.Now().UTC())
		}
	}
}

// runProposals is the Round clock's propose step: it simulates and votes
// on every proposal the ordering gate emits, kicking off the very first
// round once its subscription is active. A round that times out waiting
// for a consensus outcome (no peers, a stalled vote, ...) is nudged
// forward with an empty-outcome advance rather than left to stall
// forever, since nothing else re-drives an event-based clock.
func (n *node) runProposals(ctx context.Context) {
	outcomes := make(chan *yac.GateOutcome, 4)
	sub := n.consensusGate.OnOutcomes(outcomes)
	defer sub.Unsubscribe()

	proposals := make(chan *model.Proposal, 4)
	psub := n.orderingGate.OnProposals(proposals)
	defer psub.Unsubscribe()

	n.orderingGate.Start(time.Now().UTC())

	for {
		select {
		case <-ctx.Done():
			return
		case proposal := <-proposals:
			n.runOneRound(ctx, proposal, outcomes)
		}
	}
}

func (n *node) runOneRound(ctx context.Context, proposal *model.Proposal, outcomes <-chan *yac.GateOutcome) {
	round := n.orderingGate.CurrentRound()

	validators, err := n.wsvStore.GetValidatorSet(ctx)
	if err != nil {
		n.logger.Printf("round %s: read validator set: %v", round, err)
		return
	}

	proposalBytes, err := model.EncodeProposal(proposal)
	if err != nil {
		n.logger.Printf("round %s: encode proposal: %v", round, err)
		return
	}
	proposalHash := crypto.Sum256(proposalBytes)

	block, err := n.simulator.Simulate(ctx, proposal)
	if err != nil {
		n.logger.Printf("round %s: simulate proposal: %v", round, err)
		return
	}
	if block == nil {
		n.logger.Printf("round %s: proposal stale, advancing the round clock", round)
		n.orderingGate.OnCollaborationOutcome(round, ordering.OutcomeNothing, time.Now().UTC())
		return
	}

	if err := n.consensusGate.Vote(ctx, round, validators, proposalHash, block, n.keypair); err != nil {
		n.logger.Printf("round %s: vote: %v", round, err)
		return
	}

	select {
	case <-ctx.Done():
		return
	case <-outcomes:
		// runConsensusOutcomes (subscribed separately) drives the
		// synchronizer from this same outcome; runOrderingEvents then
		// advances the round clock once the synchronizer's event
		// arrives. Draining here only unblocks this goroutine from the
		// timeout path below.
	case <-time.After(n.proposalDelay * 4):
		n.logger.Printf("round %s: timed out waiting for a consensus outcome, advancing the round clock", round)
		n.orderingGate.OnCollaborationOutcome(round, ordering.OutcomeNothing, time.Now().UTC())
	}
}

// blockSourceAdapter adapts *storage.Store to simulator.BlockSource.
type blockSourceAdapter struct {
	store *storage.Store
}

func (a blockSourceAdapter) Top(_ context.Context) (simulator.TopBlock, error) {
	height, ok, err := a.store.TopHeight()
	if err != nil {
		return simulator.TopBlock{}, err
	}
	if !ok {
		return simulator.TopBlock{}, nil
	}
	block, found, err := a.store.Fetch(height)
	if err != nil {
		return simulator.TopBlock{}, err
	}
	if !found {
		return simulator.TopBlock{}, fmt.Errorf("block store: top height %d missing its file", height)
	}
	hash, err := block.PayloadHash()
	if err != nil {
		return simulator.TopBlock{}, err
	}
	return simulator.TopBlock{Height: height, Hash: hash}, nil
}

// validatorSetAdapter adapts *wsv.Store to synchronizer.ValidatorSetSource.
type validatorSetAdapter struct {
	store *wsv.Store
}

func (a validatorSetAdapter) GetValidatorSet(ctx context.Context) (model.ValidatorSet, error) {
	return a.store.GetValidatorSet(ctx)
}

// unsupportedBlockClient is the loader.BlockClient stub for a single-node
// deployment: there are no peers to fetch a block from, so every call
// fails closed. A real deployment plugs a pkg/transport-based client in
// here (§1 Non-goals: no gRPC transport in this exercise).
type unsupportedBlockClient struct{}

func (unsupportedBlockClient) RetrieveBlock(_ context.Context, _ model.Peer, _ crypto.Hash) (*model.Block, error) {
	return nil, fmt.Errorf("irohad: no peer transport configured")
}

func (unsupportedBlockClient) RetrieveBlocks(_ context.Context, _ model.Peer, _ uint64) (loader.BlockStream, error) {
	return nil, fmt.Errorf("irohad: no peer transport configured")
}

// loggingVoteSender is the yac.VoteSender stub for a single-node
// deployment. With one validator, the state machine resolves every
// round from its own seeded vote before this is ever called (§4.10); a
// multi-peer deployment replaces it with a pkg/transport.YacNetwork
// adapter.
type loggingVoteSender struct{ logger *log.Logger }

func (s loggingVoteSender) SendVote(_ context.Context, to model.Peer, _ model.Vote) error {
	s.logger.Printf("no transport configured: dropped vote gossip to %s", to.NetworkAddress)
	return nil
}

func (s loggingVoteSender) SendAnswer(_ context.Context, to model.Peer, _ *yac.Answer) error {
	s.logger.Printf("no transport configured: dropped answer propagation to %s", to.NetworkAddress)
	return nil
}

// loggingMstTransport is the mst.Transport stub for a single-node
// deployment: there are no peers to gossip MST state to.
type loggingMstTransport struct{ logger *log.Logger }

func (t loggingMstTransport) SendState(_ context.Context, to model.Peer, _ *mst.State) error {
	t.logger.Printf("no transport configured: dropped MST gossip to %s", to.NetworkAddress)
	return nil
}

// loggingBatchRouter is the ordering.BatchRouter stub for a single-node
// deployment: with one validator, ProposerOrder always elects this node
// itself, so PropagateBatch admits locally and this router is never
// exercised; a multi-peer deployment replaces it with a
// pkg/transport.OrderingService adapter.
type loggingBatchRouter struct{ logger *log.Logger }

func (r loggingBatchRouter) RouteBatches(_ context.Context, peer model.Peer, round model.Round, _ []*model.TransactionBatch) error {
	r.logger.Printf("no transport configured: dropped batch routing to %s for round %s", peer.NetworkAddress, round)
	return nil
}

// Package config loads the node's JSON configuration file (§6
// Configuration file).
package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// Config is the recognized key set of §6's configuration table.
type Config struct {
	// BlockStorePath is the directory for the append-only block files
	// (pkg/storage.Store).
	BlockStorePath string `json:"block_store_path"`

	// ToriiPort is the client-facing gRPC port (CommandService,
	// QueryService).
	ToriiPort int `json:"torii_port"`

	// InternalPort is the peer-facing gRPC port (YacNetwork,
	// OrderingService, BlockLoader, MstNetwork).
	InternalPort int `json:"internal_port"`

	// PgOpt is the credentials string for the world-state backend
	// (passed to sql.Open("postgres", ...)).
	PgOpt string `json:"pg_opt"`

	// MaxProposalSize is transaction_limit: the most transactions one
	// proposal may pack (pkg/ordering.Config.TransactionLimit).
	MaxProposalSize int `json:"max_proposal_size"`

	// ProposalDelayMs is the number of milliseconds between empty-round
	// proposal synthesis attempts.
	ProposalDelayMs int `json:"proposal_delay"`

	// VoteDelayMs is the number of milliseconds between YAC ring-gossip
	// steps (Load sets DefaultVoteDelayMs when zero).
	VoteDelayMs int `json:"vote_delay"`

	// MstEnable turns the MST processor on or off.
	MstEnable bool `json:"mst_enable"`
}

// Default values applied when a key is absent or zero in the file.
const (
	DefaultToriiPort       = 50051
	DefaultInternalPort    = 10001
	DefaultMaxProposalSize = 500
	DefaultProposalDelayMs = 1000
	DefaultVoteDelayMs     = 2000
)

// Load reads and parses the JSON configuration file at path, applying
// defaults for ports, limits, and delays left at zero, and rejecting a
// file missing a value with no sane default.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	if cfg.ToriiPort == 0 {
		cfg.ToriiPort = DefaultToriiPort
	}
	if cfg.InternalPort == 0 {
		cfg.InternalPort = DefaultInternalPort
	}
	if cfg.MaxProposalSize == 0 {
		cfg.MaxProposalSize = DefaultMaxProposalSize
	}
	if cfg.ProposalDelayMs == 0 {
		cfg.ProposalDelayMs = DefaultProposalDelayMs
	}
	if cfg.VoteDelayMs == 0 {
		cfg.VoteDelayMs = DefaultVoteDelayMs
	}
	if cfg.BlockStorePath == "" {
		return nil, fmt.Errorf("config: %s: block_store_path is required", path)
	}
	if cfg.PgOpt == "" {
		return nil, fmt.Errorf("config: %s: pg_opt is required", path)
	}
	return &cfg, nil
}

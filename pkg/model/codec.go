// Codec implements C2's canonical serialization: every signable object is
// encoded twice (payload-only for hashing, full for transport), command
// ordering is preserved, and framed messages carry a length prefix that is
// checked against the parsed size.
package model

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/rlp"
	"github.com/yacbft/irohad-go/pkg/crypto"
)

// wireCommand is the RLP-friendly envelope for a Command: RLP has no
// native sum type, so the kind tag travels alongside the kind-specific
// payload.
type wireCommand struct {
	Kind string
	Data []byte
}

func encodeCommands(cmds []Command) ([]wireCommand, error) {
	out := make([]wireCommand, len(cmds))
	for i, c := range cmds {
		data, err := rlp.EncodeToBytes(c)
		if err != nil {
			return nil, fmt.Errorf("%w: encode command %s: %v", ErrMalformed, c.CommandName(), err)
		}
		out[i] = wireCommand{Kind: c.CommandName(), Data: data}
	}
	return out, nil
}

func decodeCommands(wire []wireCommand) ([]Command, error) {
	out := make([]Command, len(wire))
	for i, w := range wire {
		cmd, err := newCommand(w.Kind)
		if err != nil {
			return nil, err
		}
		if err := rlp.DecodeBytes(w.Data, cmd); err != nil {
			return nil, fmt.Errorf("%w: decode command %s: %v", ErrMalformed, w.Kind, err)
		}
		out[i] = cmd
	}
	return out, nil
}

type wireSignature struct {
	PublicKey [crypto.PublicKeySize]byte
	Bytes     [crypto.SignatureSize]byte
}

func toWireSignature(sig crypto.Signature) wireSignature {
	return wireSignature{PublicKey: sig.PublicKey, Bytes: sig.Bytes}
}

func fromWireSignature(w wireSignature) crypto.Signature {
	return crypto.Signature{PublicKey: w.PublicKey, Bytes: w.Bytes}
}

// txPayloadWire is the transaction payload excluding signatures, the
// object whose hash is the transaction's identity (§3, §8 property 1).
type txPayloadWire struct {
	CreatorAccountID string
	CreatedTimeUnix  int64
	Quorum           uint32
	Commands         []wireCommand
}

func transactionPayloadWire(tx *Transaction) (txPayloadWire, error) {
	cmds, err := encodeCommands(tx.Commands)
	if err != nil {
		return txPayloadWire{}, err
	}
	return txPayloadWire{
		CreatorAccountID: tx.CreatorAccountID,
		CreatedTimeUnix:  tx.CreatedTime.UnixMilli(),
		Quorum:           tx.Quorum,
		Commands:         cmds,
	}, nil
}

// EncodeTransactionPayload returns the canonical bytes whose hash is the
// transaction's payload hash (signatures excluded).
func EncodeTransactionPayload(tx *Transaction) ([]byte, error) {
	wire, err := transactionPayloadWire(tx)
	if err != nil {
		return nil, err
	}
	b, err := rlp.EncodeToBytes(wire)
	if err != nil {
		return nil, fmt.Errorf("%w: encode transaction payload: %v", ErrMalformed, err)
	}
	return b, nil
}

type txWire struct {
	Payload    txPayloadWire
	Signatures []wireSignature
}

// EncodeTransaction returns the full transport encoding of tx, signatures
// included.
func EncodeTransaction(tx *Transaction) ([]byte, error) {
	payload, err := transactionPayloadWire(tx)
	if err != nil {
		return nil, err
	}
	sigs := make([]wireSignature, len(tx.Signatures))
	for i, s := range tx.Signatures {
		sigs[i] = toWireSignature(s)
	}
	b, err := rlp.EncodeToBytes(txWire{Payload: payload, Signatures: sigs})
	if err != nil {
		return nil, fmt.Errorf("%w: encode transaction: %v", ErrMalformed, err)
	}
	return b, nil
}

// DecodeTransaction parses the full transport encoding of a transaction.
func DecodeTransaction(data []byte) (*Transaction, error) {
	var wire txWire
	if err := rlp.DecodeBytes(data, &wire); err != nil {
		return nil, fmt.Errorf("%w: decode transaction: %v", ErrMalformed, err)
	}
	cmds, err := decodeCommands(wire.Payload.Commands)
	if err != nil {
		return nil, err
	}
	sigs := make([]crypto.Signature, len(wire.Signatures))
	for i, s := range wire.Signatures {
		sigs[i] = fromWireSignature(s)
	}
	return &Transaction{
		CreatorAccountID: wire.Payload.CreatorAccountID,
		CreatedTime:      time.UnixMilli(wire.Payload.CreatedTimeUnix).UTC(),
		Quorum:           wire.Payload.Quorum,
		Commands:         cmds,
		Signatures:       sigs,
	}, nil
}

// blockPayloadWire is the block payload excluding signatures.
type blockPayloadWire struct {
	Height          uint64
	PrevHash        crypto.Hash
	CreatedTimeUnix int64
	Transactions    []txWire
}

func blockPayloadWireFrom(b *Block) (blockPayloadWire, error) {
	txs := make([]txWire, len(b.Transactions))
	for i, tx := range b.Transactions {
		payload, err := transactionPayloadWire(tx)
		if err != nil {
			return blockPayloadWire{}, err
		}
		sigs := make([]wireSignature, len(tx.Signatures))
		for j, s := range tx.Signatures {
			sigs[j] = toWireSignature(s)
		}
		txs[i] = txWire{Payload: payload, Signatures: sigs}
	}
	return blockPayloadWire{
		Height:          b.Height,
		PrevHash:        b.PrevHash,
		CreatedTimeUnix: b.CreatedTime.UnixMilli(),
		Transactions:    txs,
	}, nil
}

// EncodeBlockPayload returns the canonical bytes whose hash is the
// block's payload hash (signatures excluded).
func EncodeBlockPayload(b *Block) ([]byte, error) {
	wire, err := blockPayloadWireFrom(b)
	if err != nil {
		return nil, err
	}
	out, err := rlp.EncodeToBytes(wire)
	if err != nil {
		return nil, fmt.Errorf("%w: encode block payload: %v", ErrMalformed, err)
	}
	return out, nil
}

type blockWire struct {
	Payload    blockPayloadWire
	Signatures []wireSignature
}

// EncodeBlock returns the full transport encoding of b, signatures
// included, preserving transaction order (§4.2 (b)).
func EncodeBlock(b *Block) ([]byte, error) {
	payload, err := blockPayloadWireFrom(b)
	if err != nil {
		return nil, err
	}
	sigs := make([]wireSignature, len(b.Signatures))
	for i, s := range b.Signatures {
		sigs[i] = toWireSignature(s)
	}
	out, err := rlp.EncodeToBytes(blockWire{Payload: payload, Signatures: sigs})
	if err != nil {
		return nil, fmt.Errorf("%w: encode block: %v", ErrMalformed, err)
	}
	return out, nil
}

// DecodeBlock parses the full transport encoding of a block.
func DecodeBlock(data []byte) (*Block, error) {
	var wire blockWire
	if err := rlp.DecodeBytes(data, &wire); err != nil {
		return nil, fmt.Errorf("%w: decode block: %v", ErrMalformed, err)
	}
	txs := make([]*Transaction, len(wire.Payload.Transactions))
	for i, txw := range wire.Payload.Transactions {
		cmds, err := decodeCommands(txw.Payload.Commands)
		if err != nil {
			return nil, err
		}
		sigs := make([]crypto.Signature, len(txw.Signatures))
		for j, s := range txw.Signatures {
			sigs[j] = fromWireSignature(s)
		}
		txs[i] = &Transaction{
			CreatorAccountID: txw.Payload.CreatorAccountID,
			CreatedTime:      time.UnixMilli(txw.Payload.CreatedTimeUnix).UTC(),
			Quorum:           txw.Payload.Quorum,
			Commands:         cmds,
			Signatures:       sigs,
		}
	}
	sigs := make([]crypto.Signature, len(wire.Signatures))
	for i, s := range wire.Signatures {
		sigs[i] = fromWireSignature(s)
	}
	return &Block{
		Height:       wire.Payload.Height,
		PrevHash:     wire.Payload.PrevHash,
		CreatedTime:  time.UnixMilli(wire.Payload.CreatedTimeUnix).UTC(),
		Transactions: txs,
		Signatures:   sigs,
	}, nil
}

// proposalWire mirrors Proposal for transport.
type proposalWire struct {
	Height          uint64
	CreatedTimeUnix int64
	Transactions    []txWire
}

// EncodeProposal returns the transport encoding of a proposal.
func EncodeProposal(p *Proposal) ([]byte, error) {
	txs := make([]txWire, len(p.Transactions))
	for i, tx := range p.Transactions {
		payload, err := transactionPayloadWire(tx)
		if err != nil {
			return nil, err
		}
		sigs := make([]wireSignature, len(tx.Signatures))
		for j, s := range tx.Signatures {
			sigs[j] = toWireSignature(s)
		}
		txs[i] = txWire{Payload: payload, Signatures: sigs}
	}
	out, err := rlp.EncodeToBytes(proposalWire{
		Height:          p.Height,
		CreatedTimeUnix: p.CreatedTime.UnixMilli(),
		Transactions:    txs,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: encode proposal: %v", ErrMalformed, err)
	}
	return out, nil
}

// DecodeProposal parses the transport encoding of a proposal.
func DecodeProposal(data []byte) (*Proposal, error) {
	var wire proposalWire
	if err := rlp.DecodeBytes(data, &wire); err != nil {
		return nil, fmt.Errorf("%w: decode proposal: %v", ErrMalformed, err)
	}
	txs := make([]*Transaction, len(wire.Transactions))
	for i, txw := range wire.Transactions {
		cmds, err := decodeCommands(txw.Payload.Commands)
		if err != nil {
			return nil, err
		}
		sigs := make([]crypto.Signature, len(txw.Signatures))
		for j, s := range txw.Signatures {
			sigs[j] = fromWireSignature(s)
		}
		txs[i] = &Transaction{
			CreatorAccountID: txw.Payload.CreatorAccountID,
			CreatedTime:      time.UnixMilli(txw.Payload.CreatedTimeUnix).UTC(),
			Quorum:           txw.Payload.Quorum,
			Commands:         cmds,
			Signatures:       sigs,
		}
	}
	return &Proposal{
		Height:       wire.Height,
		CreatedTime:  time.UnixMilli(wire.CreatedTimeUnix).UTC(),
		Transactions: txs,
	}, nil
}

// yacHashPayloadWire excludes BlockSignature per YacHash's equality rule.
type yacHashPayloadWire struct {
	BlockRound   uint64
	RejectRound  uint64
	ProposalHash crypto.Hash
	BlockHash    crypto.Hash
}

// EncodeYacHashPayload returns the canonical bytes a vote's signature is
// computed over: the YacHash with BlockSignature excluded.
func EncodeYacHashPayload(h YacHash) ([]byte, error) {
	out, err := rlp.EncodeToBytes(yacHashPayloadWire{
		BlockRound:   h.Round.BlockRound,
		RejectRound:  h.Round.RejectRound,
		ProposalHash: h.ProposalHash,
		BlockHash:    h.BlockHash,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: encode yac hash: %v", ErrMalformed, err)
	}
	return out, nil
}

// batchWire mirrors TransactionBatch for gossip transport.
type batchWire struct {
	Transactions []txWire
	BatchType    string
}

// EncodeBatch returns the transport encoding of a transaction batch,
// including partial signature sets (used by MST gossip, §4.4).
func EncodeBatch(b *TransactionBatch) ([]byte, error) {
	txs := make([]txWire, len(b.Transactions))
	for i, tx := range b.Transactions {
		payload, err := transactionPayloadWire(tx)
		if err != nil {
			return nil, err
		}
		sigs := make([]wireSignature, len(tx.Signatures))
		for j, s := range tx.Signatures {
			sigs[j] = toWireSignature(s)
		}
		txs[i] = txWire{Payload: payload, Signatures: sigs}
	}
	batchType := ""
	if b.BatchMeta != nil {
		batchType = b.BatchMeta.Type
	}
	out, err := rlp.EncodeToBytes(batchWire{Transactions: txs, BatchType: batchType})
	if err != nil {
		return nil, fmt.Errorf("%w: encode batch: %v", ErrMalformed, err)
	}
	return out, nil
}

// DecodeBatch parses the transport encoding of a transaction batch.
func DecodeBatch(data []byte) (*TransactionBatch, error) {
	var wire batchWire
	if err := rlp.DecodeBytes(data, &wire); err != nil {
		return nil, fmt.Errorf("%w: decode batch: %v", ErrMalformed, err)
	}
	txs := make([]*Transaction, len(wire.Transactions))
	for i, txw := range wire.Transactions {
		cmds, err := decodeCommands(txw.Payload.Commands)
		if err != nil {
			return nil, err
		}
		sigs := make([]crypto.Signature, len(txw.Signatures))
		for j, s := range txw.Signatures {
			sigs[j] = fromWireSignature(s)
		}
		txs[i] = &Transaction{
			CreatorAccountID: txw.Payload.CreatorAccountID,
			CreatedTime:      time.UnixMilli(txw.Payload.CreatedTimeUnix).UTC(),
			Quorum:           txw.Payload.Quorum,
			Commands:         cmds,
			Signatures:       sigs,
		}
	}
	var meta *BatchMeta
	if wire.BatchType != "" {
		meta = &BatchMeta{Type: wire.BatchType}
	}
	return &TransactionBatch{Transactions: txs, BatchMeta: meta}, nil
}

// FrameMessage length-prefixes an already-encoded message for transport,
// per §4.2(c): a 4-byte big-endian declared size followed by the payload.
func FrameMessage(payload []byte) []byte {
	out := make([]byte, 4+len(payload))
	binary.BigEndian.PutUint32(out[:4], uint32(len(payload)))
	copy(out[4:], payload)
	return out
}

// UnframeMessage parses a length-prefixed message, rejecting it if the
// declared size does not match the parsed size (§4.2(c)).
func UnframeMessage(framed []byte) ([]byte, error) {
	if len(framed) < 4 {
		return nil, fmt.Errorf("%w: frame too short", ErrMalformed)
	}
	declared := binary.BigEndian.Uint32(framed[:4])
	payload := framed[4:]
	if uint32(len(payload)) != declared {
		return nil, fmt.Errorf("%w: declared size %d does not match parsed size %d", ErrMalformed, declared, len(payload))
	}
	return payload, nil
}

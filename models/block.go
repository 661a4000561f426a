package models

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"time"

	"golang.org/x/crypto/sha3"
)

// Block is one entry of a hash-chained log. Both the authorization gate
// and the vote record ledger persist their history as blocks.
type Block struct {
	Index      uint64 `json:"index"`
	Timestamp  int64  `json:"timestamp"`
	Data       []byte `json:"data"`
	PrevHash   []byte `json:"prev_hash"`
	Hash       []byte `json:"hash"`
	Nonce      uint64 `json:"nonce"`
	Difficulty uint8  `json:"difficulty"` // Number of leading zero bytes required
}

// GenesisHash is the PrevHash of the first block in every chain.
var GenesisHash = make([]byte, 32)

func NewBlock(index uint64, data []byte, prevHash []byte, difficulty uint8) *Block {
	block := &Block{
		Index:      index,
		Timestamp:  time.Now().UnixNano(),
		Data:       data,
		PrevHash:   prevHash,
		Difficulty: difficulty,
	}

	block.Mine()
	return block
}

// NextBlock builds the block that follows the tail of blocks.
func NextBlock(blocks []*Block, data []byte, difficulty uint8) *Block {
	if len(blocks) == 0 {
		return NewBlock(0, data, GenesisHash, difficulty)
	}
	last := blocks[len(blocks)-1]
	block := NewBlock(last.Index+1, data, last.Hash, difficulty)
	if block.Timestamp <= last.Timestamp {
		block.Timestamp = last.Timestamp + 1
		block.Mine()
	}
	return block
}

func (b *Block) Mine() {
	target := make([]byte, b.Difficulty)
	var nonce uint64
	for {
		b.Nonce = nonce
		b.Hash = b.calculateHash()

		if bytes.HasPrefix(b.Hash, target) {
			return
		}
		nonce++
	}
}

func (b *Block) calculateHash() []byte {
	buffer := new(bytes.Buffer)
	binary.Write(buffer, binary.BigEndian, b.Index)
	binary.Write(buffer, binary.BigEndian, b.Timestamp)
	buffer.Write(b.Data)
	buffer.Write(b.PrevHash)
	binary.Write(buffer, binary.BigEndian, b.Nonce)
	binary.Write(buffer, binary.BigEndian, b.Difficulty)

	h := sha3.NewLegacyKeccak256()
	h.Write(buffer.Bytes())
	return h.Sum(nil)
}

func (b *Block) Validate() bool {
	calculatedHash := b.calculateHash()
	if !bytes.Equal(calculatedHash, b.Hash) {
		return false
	}

	target := make([]byte, b.Difficulty)
	return bytes.HasPrefix(calculatedHash, target)
}

// ValidateChain checks hashes, links, indexes and timestamp order of the
// whole chain.
func ValidateChain(blocks []*Block) error {
	for i, block := range blocks {
		if !block.Validate() {
			return fmt.Errorf("block %d has invalid hash", i)
		}
		if i == 0 {
			if block.Index != 0 || !bytes.Equal(block.PrevHash, GenesisHash) {
				return fmt.Errorf("block 0 is not a genesis block")
			}
			continue
		}
		previous := blocks[i-1]
		if !bytes.Equal(block.PrevHash, previous.Hash) {
			return fmt.Errorf("block %d has invalid previous hash link", i)
		}
		if block.Index != previous.Index+1 {
			return fmt.Errorf("block %d has invalid index", i)
		}
		if block.Timestamp <= previous.Timestamp {
			return fmt.Errorf("block %d has invalid timestamp", i)
		}
	}
	return nil
}

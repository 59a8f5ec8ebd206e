package node

import (
	"encoding/json"

	"inferex/internal/chain"
)

// encodeChain/decodeChain serialize the ordered block slice carried on
// chain_update gossip and in Chain request/response bodies.
func encodeChain(blocks []*chain.Block) ([]byte, error) {
	return json.Marshal(blocks)
}

func decodeChain(data []byte) ([]*chain.Block, error) {
	var blocks []*chain.Block
	if err := json.Unmarshal(data, &blocks); err != nil {
		return nil, err
	}
	return blocks, nil
}

package payload

import (
	"encoding/hex"
	"fmt"

	"github.com/ethereum/go-ethereum/crypto"

	"github.com/devblac/indexkit/internal/catalog"
)

// position locates an occurrence inside a chain.
type position struct {
	chainID  uint64
	block    uint64
	txIndex  uint64
	kind     catalog.Kind
	ordinal  uint64
	nameHash string
}

// ID renders fixed-width decimal segments so ids sort by chain, block, transaction
// and position, followed by a short hash of the catalog name. Two names firing on
// the same position (a self-transfer seen as both :from and :to) stay distinct.
func (p position) ID() string {
	return fmt.Sprintf("%020d%020d%010d%d%010d-%s", p.chainID, p.block, p.txIndex, int(p.kind), p.ordinal, p.nameHash)
}

func nameHash(name string) string {
	return hex.EncodeToString(crypto.Keccak256([]byte(name))[:4])
}

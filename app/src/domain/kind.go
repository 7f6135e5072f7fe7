package domain

import (
	"fmt"
	"sort"
)

// DatasetKind selects the query shape a portal expects on its stream endpoint.
type DatasetKind string

const (
	KindEVM                    DatasetKind = "evm"
	KindSolana                 DatasetKind = "solana"
	KindSubstrate              DatasetKind = "substrate"
	KindFuel                   DatasetKind = "fuel"
	KindBitcoin                DatasetKind = "bitcoin"
	KindHyperliquidFills       DatasetKind = "hyperliquid_fills"
	KindHyperliquidReplicaCmds DatasetKind = "hyperliquid_replica_cmds"

	DefaultDatasetKind = KindEVM
)

// wireTypes is the complete set of accepted kinds. Kinds that are not listed here are invalid.
var wireTypes = map[DatasetKind]string{
	KindEVM:                    "evm",
	KindSolana:                 "solana",
	KindSubstrate:              "substrate",
	KindFuel:                   "fuel",
	KindBitcoin:                "bitcoin",
	KindHyperliquidFills:       "hyperliquidFills",
	KindHyperliquidReplicaCmds: "hyperliquidReplicaCmds",
}

// WireType returns the value sent as "type" in stream queries.
func (k DatasetKind) WireType() (string, error) {
	if wire, ok := wireTypes[k]; ok {
		return wire, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownDatasetKind, string(k))
}

// Valid reports whether the kind has a wire mapping.
func (k DatasetKind) Valid() bool {
	_, ok := wireTypes[k]
	return ok
}

// KnownDatasetKinds lists every accepted kind in sorted order.
func KnownDatasetKinds() []DatasetKind {
	kinds := make([]DatasetKind, 0, len(wireTypes))
	for k := range wireTypes {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

package network

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

type Network int

const (
	Base Network = iota
	OPSepolia
)

func (n Network) String() string {
	switch n {
	case Base:
		return "Base"
	case OPSepolia:
		return "OP Sepolia"
	default:
		return "unknown"
	}
}

// Other returns the complementary network of the pair.
func (n Network) Other() Network {
	if n == Base {
		return OPSepolia
	}
	return Base
}

func (n Network) Valid() bool {
	return n == Base || n == OPSepolia
}

func ParseNetwork(s string) (Network, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "base", "base-sepolia", "base_sepolia":
		return Base, nil
	case "op", "op-sepolia", "op_sepolia", "opsepolia", "op sepolia":
		return OPSepolia, nil
	default:
		return 0, fmt.Errorf("unknown network %q", s)
	}
}

// Descriptor carries everything needed to reach one network and its bridge.
type Descriptor struct {
	Network         Network
	RPCURL          string
	ExplorerURL     string
	ContractAddress common.Address
	ChainID         *big.Int
}

func (d Descriptor) TxURL(hash common.Hash) string {
	return d.ExplorerURL + hash.Hex()
}

type Descriptors struct {
	Base      Descriptor
	OPSepolia Descriptor
}

func (d Descriptors) Get(n Network) Descriptor {
	if n == OPSepolia {
		return d.OPSepolia
	}
	return d.Base
}

func DefaultDescriptors() Descriptors {
	return Descriptors{
		Base: Descriptor{
			Network:     Base,
			RPCURL:      "https://sepolia.base.org",
			ExplorerURL: "https://sepolia.basescan.org/tx/",
			ChainID:     big.NewInt(84532),
		},
		OPSepolia: Descriptor{
			Network:     OPSepolia,
			RPCURL:      "https://sepolia.optimism.io",
			ExplorerURL: "https://sepolia-optimism.etherscan.io/tx/",
			ChainID:     big.NewInt(11155420),
		},
	}
}

// Direction is the bridge route taken when sending from a network.
type Direction int

const (
	BaseToOP Direction = iota
	OPToBase
)

func DirectionFrom(n Network) Direction {
	if n == OPSepolia {
		return OPToBase
	}
	return BaseToOP
}

func (d Direction) Source() Network {
	if d == OPToBase {
		return OPSepolia
	}
	return Base
}

func (d Direction) String() string {
	switch d {
	case BaseToOP:
		return "Base - OP Sepolia"
	case OPToBase:
		return "OP - Base"
	default:
		return "unknown"
	}
}

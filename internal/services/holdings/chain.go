package holdings

import (
	"context"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// ChainReader read-only subset of ethclient.Client.
type ChainReader interface {
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	BlockNumber(ctx context.Context) (uint64, error)
}

const erc20ABIJSON = `[
  {"constant":true,"inputs":[{"name":"account","type":"address"}],"name":"balanceOf",
   "outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"}
]`

const lendingPoolABIJSON = `[
  {"inputs":[{"name":"user","type":"address"}],"name":"getUserAccountData",
   "outputs":[
     {"name":"totalCollateralBase","type":"uint256"},
     {"name":"totalDebtBase","type":"uint256"},
     {"name":"availableBorrowsBase","type":"uint256"},
     {"name":"currentLiquidationThreshold","type":"uint256"},
     {"name":"ltv","type":"uint256"},
     {"name":"healthFactor","type":"uint256"}
   ],"stateMutability":"view","type":"function"}
]`

// healthFactorDecimals scale of getUserAccountData.healthFactor.
const healthFactorDecimals = 18

var (
	erc20ABI       = mustParseABI(erc20ABIJSON)
	lendingPoolABI = mustParseABI(lendingPoolABIJSON)
)

func mustParseABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(err)
	}
	return parsed
}

// tokenBalance calls balanceOf(holder) on token.
func tokenBalance(ctx context.Context, chain ChainReader, token, holder common.Address) (*big.Int, error) {
	data, err := erc20ABI.Pack("balanceOf", holder)
	if err != nil {
		return nil, errors.Wrap(err, "pack balanceOf")
	}

	out, err := chain.CallContract(ctx, ethereum.CallMsg{To: &token, Data: data}, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "balanceOf %s", token.Hex())
	}

	values, err := erc20ABI.Unpack("balanceOf", out)
	if err != nil {
		return nil, errors.Wrapf(err, "unpack balanceOf %s", token.Hex())
	}
	if len(values) != 1 {
		return nil, errors.Errorf("balanceOf %s returned %d values", token.Hex(), len(values))
	}
	balance, ok := values[0].(*big.Int)
	if !ok {
		return nil, errors.Errorf("balanceOf %s returned %T", token.Hex(), values[0])
	}
	return balance, nil
}

func scaled(amount *big.Int, decimals int32) decimal.Decimal {
	return decimal.NewFromBigInt(amount, -decimals)
}

func validAddress(field, addr string) (common.Address, error) {
	if !common.IsHexAddress(addr) {
		return common.Address{}, errors.Errorf("invalid %s address %q", field, addr)
	}
	return common.HexToAddress(addr), nil
}

package feeds

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

const aggregatorABI = `[
  {"inputs":[],"name":"latestRoundData","outputs":[
    {"internalType":"uint80","name":"roundId","type":"uint80"},
    {"internalType":"int256","name":"answer","type":"int256"},
    {"internalType":"uint256","name":"startedAt","type":"uint256"},
    {"internalType":"uint256","name":"updatedAt","type":"uint256"},
    {"internalType":"uint80","name":"answeredInRound","type":"uint80"}],
   "stateMutability":"view","type":"function"}
]`

var errMalformedRound = errors.New("feeds: malformed latestRoundData response")

// ContractCaller is the subset of ethclient.Client used to read aggregators.
type ContractCaller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// Chainlink reads quotes from Chainlink-style aggregators through
// latestRoundData. Only the answer is consumed.
type Chainlink struct {
	caller  ContractCaller
	abi     abi.ABI
	timeout time.Duration
}

func NewChainlink(caller ContractCaller) (*Chainlink, error) {
	if caller == nil {
		return nil, errors.New("feeds: contract caller required")
	}
	parsed, err := abi.JSON(strings.NewReader(aggregatorABI))
	if err != nil {
		return nil, fmt.Errorf("feeds: parse aggregator abi: %w", err)
	}
	return &Chainlink{caller: caller, abi: parsed}, nil
}

// WithTimeout bounds each aggregator call. Zero leaves calls bounded only by
// the caller's context.
func (c *Chainlink) WithTimeout(d time.Duration) *Chainlink {
	c.timeout = d
	return c
}

func (c *Chainlink) LatestQuote(ctx context.Context, feed common.Address) (*big.Int, error) {
	data, err := c.abi.Pack("latestRoundData")
	if err != nil {
		return nil, err
	}
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	out, err := c.caller.CallContract(ctx, ethereum.CallMsg{To: &feed, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("feeds: call %s: %w", feed.Hex(), err)
	}
	values, err := c.abi.Unpack("latestRoundData", out)
	if err != nil {
		return nil, fmt.Errorf("feeds: decode %s: %w", feed.Hex(), err)
	}
	if len(values) != 5 {
		return nil, errMalformedRound
	}
	answer, ok := values[1].(*big.Int)
	if !ok || answer == nil {
		return nil, errMalformedRound
	}
	return answer, nil
}

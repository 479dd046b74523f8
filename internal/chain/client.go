package chain

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/ethclient/gethclient"
	"github.com/ethereum/go-ethereum/event"
	"github.com/ethereum/go-ethereum/rpc"

	"dexwatch/internal/model"
)

// Client wraps a go-ethereum websocket RPC connection.
type Client struct {
	rpcClient  *rpc.Client
	ethClient  *ethclient.Client
	gethClient *gethclient.Client
}

// NewClient dials the node. connectTimeout bounds connection establishment only.
func NewClient(ctx context.Context, rpcURL string, connectTimeout time.Duration) (*Client, error) {
	if connectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, connectTimeout)
		defer cancel()
	}

	rpcClient, err := rpc.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial node: %w", err)
	}

	return &Client{
		rpcClient:  rpcClient,
		ethClient:  ethclient.NewClient(rpcClient),
		gethClient: gethclient.New(rpcClient),
	}, nil
}

// Close closes the underlying RPC client.
func (c *Client) Close() {
	if c.rpcClient != nil {
		c.rpcClient.Close()
	}
}

// GetChainID returns the chain ID.
func (c *Client) GetChainID(ctx context.Context) (*big.Int, error) {
	return c.ethClient.ChainID(ctx)
}

// SubscribeBlockHashes streams the hash of every new chain head.
func (c *Client) SubscribeBlockHashes(ctx context.Context, ch chan<- common.Hash) (event.Subscription, error) {
	headers := make(chan *types.Header, cap(ch))
	sub, err := c.ethClient.SubscribeNewHead(ctx, headers)
	if err != nil {
		return nil, fmt.Errorf("subscribe new heads: %w", err)
	}

	return event.NewSubscription(func(quit <-chan struct{}) error {
		defer sub.Unsubscribe()
		for {
			select {
			case <-quit:
				return nil
			case err := <-sub.Err():
				return err
			case header := <-headers:
				select {
				case ch <- header.Hash():
				case <-quit:
					return nil
				}
			}
		}
	}), nil
}

// SubscribePendingTransactions streams the hash of every transaction entering the node's pool.
func (c *Client) SubscribePendingTransactions(ctx context.Context, ch chan<- common.Hash) (event.Subscription, error) {
	sub, err := c.gethClient.SubscribePendingTransactions(ctx, ch)
	if err != nil {
		return nil, fmt.Errorf("subscribe pending transactions: %w", err)
	}
	return sub, nil
}

// BlockByHash returns the full block. A missing block yields ethereum.NotFound.
func (c *Client) BlockByHash(ctx context.Context, hash common.Hash) (model.Block, error) {
	block, err := c.ethClient.BlockByHash(ctx, hash)
	if err != nil {
		return model.Block{}, err
	}
	return buildBlock(block), nil
}

// TransactionByHash returns the transaction. A transaction no longer known to
// the node yields ethereum.NotFound.
func (c *Client) TransactionByHash(ctx context.Context, hash common.Hash) (model.Transaction, error) {
	tx, _, err := c.ethClient.TransactionByHash(ctx, hash)
	if err != nil {
		return model.Transaction{}, err
	}
	return buildTransaction(tx), nil
}

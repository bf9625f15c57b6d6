// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

package rpc

import (
	"encoding/json"
	"fmt"

	"github.com/btcsuite/btcd/rpcclient"
	"github.com/commerceblock/guardnode/guard"
)

const (
	methodListUnspent           = "listunspent"
	methodListTransactions      = "listtransactions"
	methodGetBlockCount         = "getblockcount"
	methodGetBlockHash          = "getblockhash"
	methodGetBlock              = "getblock"
	methodGetRawTransaction     = "getrawtransaction"
	methodDecodeRawTransaction  = "decoderawtransaction"
	methodCreateRawTransaction  = "createrawtransaction"
	methodCreateRawBidTx        = "createrawbidtx"
	methodSignRawTransaction    = "signrawtransaction"
	methodSendRawTransaction    = "sendrawtransaction"
	methodFundRawTransaction    = "fundrawtransaction"
	methodEstimateSmartFee      = "estimatesmartfee"
	methodValidateAddress       = "validateaddress"
	methodDumpPrivKey           = "dumpprivkey"
	methodImportPrivKey         = "importprivkey"
	methodImportAddress         = "importaddress"
	methodGetNewAddress         = "getnewaddress"
	methodSignMessage           = "signmessage"
	methodGetRequests           = "getrequests"
	methodGetRequestBids        = "getrequestbids"
)

// RawRequester is for sending raw JSON-RPC requests. It is satisfied by
// *rpcclient.Client, and by stubs in tests. The returned error should carry
// the node's error message for rejected commands.
type RawRequester interface {
	RawRequest(method string, params []json.RawMessage) (json.RawMessage, error)
}

// Config is the connection configuration for one chain node.
type Config struct {
	Host string
	User string
	Pass string
}

// Client is an Ocean-compatible node RPC client that uses the
// rpcclient.Client's RawRequest for all calls, wallet-related and otherwise.
type Client struct {
	requester RawRequester
	log       guard.Logger
}

// New creates a Client around an existing RawRequester. Used directly in
// tests; production code connects with Connect.
func New(requester RawRequester, log guard.Logger) *Client {
	return &Client{requester: requester, log: log}
}

// Connect dials the configured node over HTTP POST JSON-RPC and verifies
// connectivity with a getblockcount round trip. Connectivity failure here is
// fatal to startup, so the error is returned rather than retried.
func Connect(cfg *Config, log guard.Logger) (*Client, error) {
	requester, err := rpcclient.New(&rpcclient.ConnConfig{
		HTTPPostMode: true,
		DisableTLS:   true,
		Host:         cfg.Host,
		User:         cfg.User,
		Pass:         cfg.Pass,
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("error creating RPC client for %s: %w", cfg.Host, err)
	}
	c := New(requester, log)
	height, err := c.GetBlockCount()
	if err != nil {
		return nil, fmt.Errorf("error connecting to node %s: %w", cfg.Host, err)
	}
	log.Infof("Connected to node %s at height %d", cfg.Host, height)
	return c, nil
}

// anylist is a list of RPC parameters to be converted to []json.RawMessage
// and sent via RawRequest.
type anylist []any

// call is used internally to marshal parameters and send requests to the RPC
// server via RawRequest. If thing is non-nil, the result will be unmarshaled
// into thing.
func (c *Client) call(method string, args anylist, thing any) error {
	params := make([]json.RawMessage, 0, len(args))
	for i := range args {
		p, err := json.Marshal(args[i])
		if err != nil {
			return err
		}
		params = append(params, p)
	}
	b, err := c.requester.RawRequest(method, params)
	if err != nil {
		return fmt.Errorf("%s error: %w", method, err)
	}
	if thing != nil {
		return json.Unmarshal(b, thing)
	}
	return nil
}

// GetBlockCount returns the height of the best block.
func (c *Client) GetBlockCount() (int64, error) {
	var height int64
	return height, c.call(methodGetBlockCount, nil, &height)
}

// GetBlockHash returns the hash of the block at the given height.
func (c *Client) GetBlockHash(height int64) (string, error) {
	var hash string
	return hash, c.call(methodGetBlockHash, anylist{height}, &hash)
}

// GetBlock returns the verbose block, with transactions as txid strings.
func (c *Client) GetBlock(hash string) (*GetBlockResult, error) {
	blk := new(GetBlockResult)
	return blk, c.call(methodGetBlock, anylist{hash, true}, blk)
}

// ListUnspent retrieves the wallet's unspent outputs of the given asset,
// including watched-only (unsolvable) ones.
func (c *Client) ListUnspent(minConf, maxConf int64, asset string) ([]*ListUnspentResult, error) {
	unspents := make([]*ListUnspentResult, 0)
	return unspents, c.call(methodListUnspent,
		anylist{minConf, maxConf, []string{}, true, asset}, &unspents)
}

// ListTransactions retrieves count wallet transactions, skipping skip,
// including watched-only entries.
func (c *Client) ListTransactions(count, skip int) ([]*WalletTxResult, error) {
	txs := make([]*WalletTxResult, 0)
	return txs, c.call(methodListTransactions, anylist{"*", count, skip, true}, &txs)
}

// GetRawTransactionVerbose retrieves the verbose tx information.
func (c *Client) GetRawTransactionVerbose(txid string) (*RawTransactionResult, error) {
	res := new(RawTransactionResult)
	return res, c.call(methodGetRawTransaction, anylist{txid, 1}, res)
}

// GetRawTransaction retrieves the serialized tx hex.
func (c *Client) GetRawTransaction(txid string) (string, error) {
	var txHex string
	return txHex, c.call(methodGetRawTransaction, anylist{txid}, &txHex)
}

// DecodeRawTransaction decodes the serialized tx hex.
func (c *Client) DecodeRawTransaction(txHex string) (*RawTransactionResult, error) {
	res := new(RawTransactionResult)
	return res, c.call(methodDecodeRawTransaction, anylist{txHex}, res)
}

// CreateRawTransaction constructs an unsigned transaction spending the
// inputs to the address:amount outputs. Used as the skeleton for
// fundrawtransaction when selection falls through to wallet funding.
func (c *Client) CreateRawTransaction(inputs []*Outpoint, outputs map[string]float64) (string, error) {
	if inputs == nil {
		inputs = []*Outpoint{}
	}
	var txHex string
	return txHex, c.call(methodCreateRawTransaction, anylist{inputs, outputs}, &txHex)
}

// CreateRawBidTx constructs an unsigned bid transaction spending the inputs
// into the protocol's bid output set.
func (c *Client) CreateRawBidTx(inputs []*Outpoint, outputs *BidOutputs) (string, error) {
	var txHex string
	return txHex, c.call(methodCreateRawBidTx, anylist{inputs, outputs}, &txHex)
}

// SignRawTransaction attempts to have the wallet sign the transaction.
func (c *Client) SignRawTransaction(txHex string) (*SignRawTransactionResult, error) {
	res := new(SignRawTransactionResult)
	return res, c.call(methodSignRawTransaction, anylist{txHex}, res)
}

// SendRawTransaction submits the signed transaction to the node, which will
// relay it to the network.
func (c *Client) SendRawTransaction(txHex string) (string, error) {
	var txid string
	return txid, c.call(methodSendRawTransaction, anylist{txHex}, &txid)
}

// FundRawTransaction asks the wallet to add inputs (and a change output as
// needed) until the transaction's outputs are funded.
func (c *Client) FundRawTransaction(txHex string) (*FundRawTransactionResult, error) {
	res := new(FundRawTransactionResult)
	return res, c.call(methodFundRawTransaction, anylist{txHex}, res)
}

// EstimateSmartFee requests a fee rate estimate targeting confirmation
// within target blocks. The resulting rate is negative when the node has no
// estimate to give.
func (c *Client) EstimateSmartFee(target int64) (*EstimateSmartFeeResult, error) {
	res := new(EstimateSmartFeeResult)
	return res, c.call(methodEstimateSmartFee, anylist{target}, res)
}

// ValidateAddress returns node info about the address, including wallet
// ownership and the associated public key.
func (c *Client) ValidateAddress(addr string) (*ValidateAddressResult, error) {
	res := new(ValidateAddressResult)
	return res, c.call(methodValidateAddress, anylist{addr}, res)
}

// DumpPrivKey retrieves the WIF private key for the wallet address.
func (c *Client) DumpPrivKey(addr string) (string, error) {
	var wif string
	return wif, c.call(methodDumpPrivKey, anylist{addr}, &wif)
}

// ImportPrivKey imports the WIF private key into the wallet without
// triggering a rescan.
func (c *Client) ImportPrivKey(wif string) error {
	return c.call(methodImportPrivKey, anylist{wif, "", false}, nil)
}

// ImportAddress imports the address or script (in hex) as watch-only, so its
// outputs appear in listunspent. No rescan.
func (c *Client) ImportAddress(scriptOrAddr string) error {
	return c.call(methodImportAddress, anylist{scriptOrAddr, "", false}, nil)
}

// GetNewAddress gets a new external address from the wallet.
func (c *Client) GetNewAddress() (string, error) {
	var addr string
	return addr, c.call(methodGetNewAddress, nil, &addr)
}

// SignMessage signs a message with the private key of the wallet address.
func (c *Client) SignMessage(addr, message string) (string, error) {
	var sig string
	return sig, c.call(methodSignMessage, anylist{addr, message}, &sig)
}

// GetRequests lists the active service requests, optionally filtered by the
// client chain genesis hash.
func (c *Client) GetRequests(genesis string) ([]*Request, error) {
	requests := make([]*Request, 0)
	if genesis == "" {
		return requests, c.call(methodGetRequests, nil, &requests)
	}
	return requests, c.call(methodGetRequests, anylist{genesis}, &requests)
}

// GetRequestBids lists the bids placed for the request.
func (c *Client) GetRequestBids(requestTxid string) (*RequestBidsResult, error) {
	res := new(RequestBidsResult)
	return res, c.call(methodGetRequestBids, anylist{requestTxid}, res)
}

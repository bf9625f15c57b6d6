// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

package rpc

// Request is an entry from the getrequests RPC: an active service-slot
// auction on the service chain. AuctionPrice decays with chain height, so a
// cached Request must not be used for bidding decisions across polls.
type Request struct {
	TxID             string  `json:"txid"`
	GenesisBlock     string  `json:"genesisBlock"`
	StartBlockHeight int64   `json:"startBlockHeight"`
	EndBlockHeight   int64   `json:"endBlockHeight"`
	NumTickets       int64   `json:"numTickets"`
	DecayConst       int64   `json:"decayConst"`
	StartPrice       float64 `json:"startPrice"`
	AuctionPrice     float64 `json:"auctionPrice"`
	FeePercentage    int64   `json:"feePercentage"`
}

// Bid is an entry from the getrequestbids RPC bid list.
type Bid struct {
	TxID      string `json:"txid"`
	FeePubKey string `json:"feePubKey"`
}

// RequestBidsResult models the getrequestbids RPC result.
type RequestBidsResult struct {
	RequestTxID string `json:"txid"`
	Bids        []*Bid `json:"bids"`
}

// Outpoint is a transaction input reference, as passed to createrawbidtx and
// returned in decoded transaction vins.
type Outpoint struct {
	TxID string `json:"txid"`
	Vout uint32 `json:"vout"`
}

// ListUnspentResult models an entry of the listunspent RPC result. Solvable
// is false for watched-only outputs, which on the service chain marks
// TX_LOCKED_MULTISIG collateral imported after a previous bid.
type ListUnspentResult struct {
	TxID          string  `json:"txid"`
	Vout          uint32  `json:"vout"`
	Address       string  `json:"address"`
	Asset         string  `json:"asset"`
	ScriptPubKey  string  `json:"scriptPubKey"`
	Amount        float64 `json:"amount"`
	Confirmations int64   `json:"confirmations"`
	Spendable     bool    `json:"spendable"`
	Solvable      bool    `json:"solvable"`
}

// BidOutputs is the outputs object of the createrawbidtx RPC.
type BidOutputs struct {
	Value          float64 `json:"value"`
	Change         float64 `json:"change"`
	ChangeAddress  string  `json:"changeAddress"`
	Fee            float64 `json:"fee"`
	EndBlockHeight int64   `json:"endBlockHeight"`
	RequestTxID    string  `json:"requestTxid"`
	PubKey         string  `json:"pubkey"`
	FeePubKey      string  `json:"feePubkey"`
}

// SignRawTransactionError is an entry of the errors array of a
// signrawtransaction result.
type SignRawTransactionError struct {
	TxID      string `json:"txid"`
	Vout      uint32 `json:"vout"`
	ScriptSig string `json:"scriptSig"`
	Sequence  uint32 `json:"sequence"`
	Error     string `json:"error"`
}

// SignRawTransactionResult models the signrawtransaction RPC result.
type SignRawTransactionResult struct {
	Hex      string                     `json:"hex"`
	Complete bool                       `json:"complete"`
	Errors   []*SignRawTransactionError `json:"errors"`
}

// FundRawTransactionResult models the fundrawtransaction RPC result.
type FundRawTransactionResult struct {
	Hex       string  `json:"hex"`
	Fee       float64 `json:"fee"`
	ChangePos int     `json:"changepos"`
}

// ScriptPubKeyResult models the scriptPubKey field of a decoded output.
type ScriptPubKeyResult struct {
	Asm       string   `json:"asm"`
	Hex       string   `json:"hex"`
	Type      string   `json:"type"`
	ReqSigs   int32    `json:"reqSigs,omitempty"`
	Addresses []string `json:"addresses,omitempty"`
}

// Vin models a decoded transaction input.
type Vin struct {
	TxID     string `json:"txid"`
	Vout     uint32 `json:"vout"`
	Sequence uint32 `json:"sequence"`
}

// Vout models a decoded transaction output. Asset carries the output's asset
// identifier on asset-aware chains.
type Vout struct {
	Value        float64            `json:"value"`
	N            uint32             `json:"n"`
	Asset        string             `json:"asset,omitempty"`
	AssetLabel   string             `json:"assetlabel,omitempty"`
	ScriptPubKey ScriptPubKeyResult `json:"scriptPubKey"`
}

// RawTransactionResult models a verbose getrawtransaction or a
// decoderawtransaction result.
type RawTransactionResult struct {
	TxID          string  `json:"txid"`
	Hex           string  `json:"hex,omitempty"`
	Version       int32   `json:"version"`
	LockTime      uint32  `json:"locktime"`
	Vin           []*Vin  `json:"vin"`
	Vout          []*Vout `json:"vout"`
	BlockHash     string  `json:"blockhash,omitempty"`
	Confirmations int64   `json:"confirmations,omitempty"`
}

// GetBlockResult models a verbose getblock result, with transactions as
// txid strings.
type GetBlockResult struct {
	Hash   string   `json:"hash"`
	Height int64    `json:"height"`
	Tx     []string `json:"tx"`
}

// ValidateAddressResult models the validateaddress RPC result.
type ValidateAddressResult struct {
	IsValid bool   `json:"isvalid"`
	Address string `json:"address"`
	IsMine  bool   `json:"ismine"`
	PubKey  string `json:"pubkey"`
}

// EstimateSmartFeeResult models the estimatesmartfee RPC result. FeeRate is
// in coin units per 1000 bytes, and is negative when the node cannot produce
// an estimate.
type EstimateSmartFeeResult struct {
	FeeRate float64 `json:"feerate"`
	Blocks  int64   `json:"blocks"`
}

// WalletTxResult models an entry of the listtransactions RPC result.
type WalletTxResult struct {
	TxID          string  `json:"txid"`
	Category      string  `json:"category"`
	Amount        float64 `json:"amount"`
	Confirmations int64   `json:"confirmations"`
	BlockHash     string  `json:"blockhash,omitempty"`
	Time          int64   `json:"time"`
}

// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

package bidder

import (
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/commerceblock/guardnode/guard"
	"github.com/commerceblock/guardnode/rpc"
)

const (
	// ErrInsufficientFunds is returned by Select when neither the locked
	// collateral outputs nor the wallet's own funding facility can cover the
	// target amount. Not fatal; the caller skips bidding this cycle.
	ErrInsufficientFunds = guard.ErrorKind("insufficient funds")

	// ErrFeeUnavailable is returned by Estimate when the node's fee oracle
	// has no estimate to give. The caller keeps its previous working fee.
	ErrFeeUnavailable = guard.ErrorKind("fee estimate unavailable")

	// ErrFeeDrift is returned when a broadcast is rejected on fee grounds,
	// meaning the fee market moved between estimation and submission. The
	// bid is rebuilt from a fresh coin selection exactly once.
	ErrFeeDrift = guard.ErrorKind("fee drift broadcast rejection")
)

// DefaultBidFee is the working fee used until the fee oracle produces an
// estimate.
const DefaultBidFee = btcutil.Amount(10000) // 0.0001

// ChainClient is the node query/command surface the bid engine consumes. It
// is satisfied by *rpc.Client, and by stubs in tests.
type ChainClient interface {
	GetBlockCount() (int64, error)
	ListUnspent(minConf, maxConf int64, asset string) ([]*rpc.ListUnspentResult, error)
	GetRawTransactionVerbose(txid string) (*rpc.RawTransactionResult, error)
	DecodeRawTransaction(txHex string) (*rpc.RawTransactionResult, error)
	CreateRawTransaction(inputs []*rpc.Outpoint, outputs map[string]float64) (string, error)
	CreateRawBidTx(inputs []*rpc.Outpoint, outputs *rpc.BidOutputs) (string, error)
	SignRawTransaction(txHex string) (*rpc.SignRawTransactionResult, error)
	SendRawTransaction(txHex string) (string, error)
	FundRawTransaction(txHex string) (*rpc.FundRawTransactionResult, error)
	EstimateSmartFee(target int64) (*rpc.EstimateSmartFeeResult, error)
	GetNewAddress() (string, error)
	ValidateAddress(addr string) (*rpc.ValidateAddressResult, error)
	ImportAddress(scriptOrAddr string) error
}

// Session is the per-bid state threaded through the lifecycle controller and
// the bid builder: the active fee pubkey, its signing key, the current bid,
// and the last working fee. BidTxID is empty until a bid is freshly placed
// or recovered from chain data.
type Session struct {
	FeePubKey  string // hex-encoded compressed pubkey
	SigningKey *btcec.PrivateKey
	BidTxID    string
	Fee        btcutil.Amount
}

// NewSession creates a Session with the default working fee.
func NewSession() *Session {
	return &Session{Fee: DefaultBidFee}
}

// HasBid is true when a bid has been placed or recovered for the active
// request.
func (s *Session) HasBid() bool {
	return s.BidTxID != ""
}

// ClearBid drops the bid state when the active request ends. The fee pubkey
// and working fee survive for the next request.
func (s *Session) ClearBid() {
	s.BidTxID = ""
}

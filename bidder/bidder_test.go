// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

package bidder

import (
	"fmt"
	"os"
	"testing"

	"github.com/commerceblock/guardnode/guard"
	"github.com/commerceblock/guardnode/rpc"
	"github.com/decred/slog"
)

var tLogger = guard.StdOutLogger("TEST", slog.LevelTrace, false, os.Stdout)

func TestMain(m *testing.M) {
	os.Exit(m.Run())
}

// tNode is a stub ChainClient with canned responses and call recording.
type tNode struct {
	height      int64
	heightErr   error
	unspent     []*rpc.ListUnspentResult
	unspentErr  error
	verboseTxs  map[string]*rpc.RawTransactionResult
	decoded     map[string]*rpc.RawTransactionResult
	decodeErr   error
	createdHex  string
	createErr   error
	createCalls int
	bidHex      string
	bidErr      error
	bidInputs   []*rpc.Outpoint
	bidOutputs  *rpc.BidOutputs
	bidCalls    int
	signRes     *rpc.SignRawTransactionResult
	signErr     error
	sendTxid    string
	sendErrs    []error
	sendCalls   int
	funded      *rpc.FundRawTransactionResult
	fundErr     error
	fundCalls   int
	feeRes      *rpc.EstimateSmartFeeResult
	feeErr      error
	newAddr     string
	newAddrErr  error
	validateRes *rpc.ValidateAddressResult
	imported    []string
}

func (n *tNode) GetBlockCount() (int64, error) {
	return n.height, n.heightErr
}

func (n *tNode) ListUnspent(minConf, maxConf int64, asset string) ([]*rpc.ListUnspentResult, error) {
	return n.unspent, n.unspentErr
}

func (n *tNode) GetRawTransactionVerbose(txid string) (*rpc.RawTransactionResult, error) {
	tx, found := n.verboseTxs[txid]
	if !found {
		return nil, fmt.Errorf("no canned tx %s", txid)
	}
	return tx, nil
}

func (n *tNode) DecodeRawTransaction(txHex string) (*rpc.RawTransactionResult, error) {
	if n.decodeErr != nil {
		return nil, n.decodeErr
	}
	tx, found := n.decoded[txHex]
	if !found {
		return nil, fmt.Errorf("no canned decode for %q", txHex)
	}
	return tx, nil
}

func (n *tNode) CreateRawTransaction(inputs []*rpc.Outpoint, outputs map[string]float64) (string, error) {
	n.createCalls++
	return n.createdHex, n.createErr
}

func (n *tNode) CreateRawBidTx(inputs []*rpc.Outpoint, outputs *rpc.BidOutputs) (string, error) {
	n.bidCalls++
	n.bidInputs = inputs
	cp := *outputs
	n.bidOutputs = &cp
	return n.bidHex, n.bidErr
}

func (n *tNode) SignRawTransaction(txHex string) (*rpc.SignRawTransactionResult, error) {
	return n.signRes, n.signErr
}

func (n *tNode) SendRawTransaction(txHex string) (string, error) {
	n.sendCalls++
	if len(n.sendErrs) > 0 {
		err := n.sendErrs[0]
		n.sendErrs = n.sendErrs[1:]
		if err != nil {
			return "", err
		}
	}
	return n.sendTxid, nil
}

func (n *tNode) FundRawTransaction(txHex string) (*rpc.FundRawTransactionResult, error) {
	n.fundCalls++
	return n.funded, n.fundErr
}

func (n *tNode) EstimateSmartFee(target int64) (*rpc.EstimateSmartFeeResult, error) {
	return n.feeRes, n.feeErr
}

func (n *tNode) GetNewAddress() (string, error) {
	return n.newAddr, n.newAddrErr
}

func (n *tNode) ValidateAddress(addr string) (*rpc.ValidateAddressResult, error) {
	return n.validateRes, nil
}

func (n *tNode) ImportAddress(scriptOrAddr string) error {
	n.imported = append(n.imported, scriptOrAddr)
	return nil
}

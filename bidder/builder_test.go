// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

package bidder

import (
	"errors"
	"strings"
	"testing"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/commerceblock/guardnode/rpc"
)

const tSignedHex = "00000000000000000000000000000000000000000000000000" +
	"00000000000000000000000000000000000000000000000000" +
	"00000000000000000000000000000000000000000000000000" +
	"00000000000000000000000000000000000000000000000000" // 100 bytes

func tBuilderSetup() (*tNode, *Builder, *Session, *rpc.Request) {
	node := &tNode{
		height: 100,
		unspent: []*rpc.ListUnspentResult{
			{TxID: "aa", Vout: 0, Amount: 10, Solvable: false},
		},
		verboseTxs: map[string]*rpc.RawTransactionResult{
			"aa": lockedTx("90"),
		},
		feeRes:  &rpc.EstimateSmartFeeResult{FeeRate: 0.0001},
		newAddr: "addr1",
		validateRes: &rpc.ValidateAddressResult{
			IsValid: true,
			PubKey:  "02aabb",
		},
		bidHex:   "rawbid",
		signRes:  &rpc.SignRawTransactionResult{Hex: tSignedHex, Complete: true},
		sendTxid: "bidtx01",
		decoded: map[string]*rpc.RawTransactionResult{
			tSignedHex: {Vout: []*rpc.Vout{{ScriptPubKey: rpc.ScriptPubKeyResult{Hex: "51aa"}}}},
		},
	}
	b := NewBuilder(node, NewSelector(node, tAsset, tLogger), NewEstimator(node, tLogger), amt(15), tLogger)
	session := NewSession()
	session.FeePubKey = "03feed"
	request := &rpc.Request{
		TxID:             "req1",
		StartBlockHeight: 105,
		EndBlockHeight:   200,
		NumTickets:       5,
		AuctionPrice:     5,
	}
	return node, b, session, request
}

func TestPlaceBid(t *testing.T) {
	node, b, session, request := tBuilderSetup()

	txid, err := b.PlaceBid(request, session)
	if err != nil {
		t.Fatalf("PlaceBid error: %v", err)
	}
	if txid != "bidtx01" {
		t.Fatalf("wrong txid %q", txid)
	}

	// One locked input, change output: 12 + (41+74) + (44+109) + 44 + (44+25)
	// bytes at 10 satoshi per byte.
	wantFee := btcutil.Amount(3930)
	if session.Fee != wantFee {
		t.Fatalf("working fee = %v, want %v", session.Fee, wantFee)
	}

	out := node.bidOutputs
	if out == nil {
		t.Fatal("no bid outputs recorded")
	}
	if out.Value != amt(5).ToBTC() {
		t.Fatalf("bid value = %f", out.Value)
	}
	if out.Fee != wantFee.ToBTC() {
		t.Fatalf("bid fee = %f", out.Fee)
	}
	if wantChange := (amt(10) - amt(5) - wantFee).ToBTC(); out.Change != wantChange {
		t.Fatalf("change = %f, want %f", out.Change, wantChange)
	}
	if out.RequestTxID != "req1" || out.EndBlockHeight != 200 {
		t.Fatalf("request binding wrong: %+v", out)
	}
	if out.FeePubKey != "03feed" || out.PubKey != "02aabb" {
		t.Fatalf("pubkeys wrong: %+v", out)
	}
	if len(node.bidInputs) != 1 || node.bidInputs[0].TxID != "aa" {
		t.Fatalf("wrong bid inputs: %+v", node.bidInputs)
	}
	// The new collateral script gets imported for the next bid's selection.
	if len(node.imported) != 1 || node.imported[0] != "51aa" {
		t.Fatalf("collateral script not imported: %+v", node.imported)
	}
}

func TestPlaceBidTooLate(t *testing.T) {
	node, b, session, request := tBuilderSetup()
	node.height = 200 // service already started

	txid, err := b.PlaceBid(request, session)
	if err != nil || txid != "" {
		t.Fatalf("expected a silent skip, got txid %q, err %v", txid, err)
	}
	if node.bidCalls != 0 {
		t.Fatal("bid built despite the window being closed")
	}
}

func TestPlaceBidPriceTooHigh(t *testing.T) {
	node, b, session, request := tBuilderSetup()
	request.AuctionPrice = 16 // limit is 15

	txid, err := b.PlaceBid(request, session)
	if err != nil || txid != "" {
		t.Fatalf("expected a silent skip, got txid %q, err %v", txid, err)
	}
	if node.bidCalls != 0 {
		t.Fatal("bid built despite the price exceeding the limit")
	}
}

func TestPlaceBidInsufficientFunds(t *testing.T) {
	node, b, session, request := tBuilderSetup()
	node.unspent = nil
	node.createdHex = "c0"
	node.fundErr = errors.New("Insufficient funds")

	txid, err := b.PlaceBid(request, session)
	if err != nil || txid != "" {
		t.Fatalf("expected a silent skip, got txid %q, err %v", txid, err)
	}
}

func TestPlaceBidFeeDriftRetry(t *testing.T) {
	node, b, session, request := tBuilderSetup()
	node.sendErrs = []error{errors.New("66: min relay fee not met"), nil}

	txid, err := b.PlaceBid(request, session)
	if err != nil {
		t.Fatalf("PlaceBid error after drift retry: %v", err)
	}
	if txid != "bidtx01" {
		t.Fatalf("wrong txid %q", txid)
	}
	if node.sendCalls != 2 {
		t.Fatalf("expected 2 broadcast attempts, got %d", node.sendCalls)
	}
}

func TestPlaceBidFeeDriftTwice(t *testing.T) {
	node, b, session, request := tBuilderSetup()
	node.sendErrs = []error{
		errors.New("66: min relay fee not met"),
		errors.New("66: min relay fee not met"),
	}

	if _, err := b.PlaceBid(request, session); !errors.Is(err, ErrFeeDrift) {
		t.Fatalf("expected ErrFeeDrift after two rejections, got %v", err)
	}
	if node.sendCalls != 2 {
		t.Fatalf("expected exactly 2 broadcast attempts, got %d", node.sendCalls)
	}
}

func TestPlaceBidIncompleteSigning(t *testing.T) {
	node, b, session, request := tBuilderSetup()
	node.signRes = &rpc.SignRawTransactionResult{
		Hex:      tSignedHex,
		Complete: false,
		Errors:   []*rpc.SignRawTransactionError{{Error: "missing key"}},
	}

	_, err := b.PlaceBid(request, session)
	if err == nil || !strings.Contains(err.Error(), "missing key") {
		t.Fatalf("expected a signing error, got %v", err)
	}
	if node.sendCalls != 0 {
		t.Fatal("incomplete transaction was broadcast")
	}
}

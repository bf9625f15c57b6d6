// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

package rpc

import (
	"encoding/json"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/commerceblock/guardnode/guard"
	"github.com/decred/slog"
)

var tLogger = guard.StdOutLogger("TEST", slog.LevelTrace, false, os.Stdout)

// tRequester is a stub RawRequester recording the last request.
type tRequester struct {
	method string
	params []json.RawMessage
	res    json.RawMessage
	err    error
}

func (r *tRequester) RawRequest(method string, params []json.RawMessage) (json.RawMessage, error) {
	r.method = method
	r.params = params
	return r.res, r.err
}

func (r *tRequester) param(t *testing.T, i int) string {
	t.Helper()
	if i >= len(r.params) {
		t.Fatalf("no param %d, only %d sent", i, len(r.params))
	}
	return string(r.params[i])
}

func TestListUnspent(t *testing.T) {
	req := &tRequester{res: json.RawMessage(`[{"txid":"aa","vout":1,"amount":1.5,"solvable":false}]`)}
	c := New(req, tLogger)

	unspent, err := c.ListUnspent(1, 9999999, "CBT")
	if err != nil {
		t.Fatalf("ListUnspent error: %v", err)
	}
	if req.method != "listunspent" {
		t.Fatalf("wrong method %q", req.method)
	}
	// Watch-only outputs must be included and the set filtered by asset.
	if len(req.params) != 5 || req.param(t, 2) != "[]" ||
		req.param(t, 3) != "true" || req.param(t, 4) != `"CBT"` {
		t.Fatalf("wrong params: %v", req.params)
	}
	if len(unspent) != 1 || unspent[0].TxID != "aa" || unspent[0].Solvable {
		t.Fatalf("wrong result: %+v", unspent)
	}
}

func TestGetRequests(t *testing.T) {
	req := &tRequester{res: json.RawMessage(`[{"txid":"r1","auctionPrice":2.5,"numTickets":3}]`)}
	c := New(req, tLogger)

	requests, err := c.GetRequests("g0")
	if err != nil {
		t.Fatalf("GetRequests error: %v", err)
	}
	if req.method != "getrequests" || req.param(t, 0) != `"g0"` {
		t.Fatalf("wrong request: %s %v", req.method, req.params)
	}
	if len(requests) != 1 || requests[0].TxID != "r1" ||
		requests[0].AuctionPrice != 2.5 || requests[0].NumTickets != 3 {
		t.Fatalf("wrong result: %+v", requests[0])
	}

	// Without a genesis filter, no params are sent.
	if _, err = c.GetRequests(""); err != nil {
		t.Fatalf("GetRequests error: %v", err)
	}
	if len(req.params) != 0 {
		t.Fatalf("unexpected params: %v", req.params)
	}
}

func TestCreateRawBidTx(t *testing.T) {
	req := &tRequester{res: json.RawMessage(`"deadbeef"`)}
	c := New(req, tLogger)

	inputs := []*Outpoint{{TxID: "aa", Vout: 1}}
	outputs := &BidOutputs{
		Value:          5,
		Change:         4.9,
		ChangeAddress:  "chg",
		Fee:            0.1,
		EndBlockHeight: 200,
		RequestTxID:    "req1",
		PubKey:         "02aa",
		FeePubKey:      "02bb",
	}
	txHex, err := c.CreateRawBidTx(inputs, outputs)
	if err != nil {
		t.Fatalf("CreateRawBidTx error: %v", err)
	}
	if txHex != "deadbeef" {
		t.Fatalf("wrong hex %q", txHex)
	}
	if req.method != "createrawbidtx" {
		t.Fatalf("wrong method %q", req.method)
	}
	var sentOutputs map[string]any
	if err := json.Unmarshal(req.params[1], &sentOutputs); err != nil {
		t.Fatalf("outputs param is not an object: %v", err)
	}
	for _, key := range []string{"value", "change", "changeAddress", "fee",
		"endBlockHeight", "requestTxid", "pubkey", "feePubkey"} {
		if _, found := sentOutputs[key]; !found {
			t.Fatalf("outputs param missing %q: %v", key, sentOutputs)
		}
	}
}

func TestCallError(t *testing.T) {
	nodeErr := errors.New("-26: absurdly-high-fee")
	req := &tRequester{err: nodeErr}
	c := New(req, tLogger)

	_, err := c.SendRawTransaction("00")
	if !errors.Is(err, nodeErr) {
		t.Fatalf("node error not wrapped: %v", err)
	}
	if !strings.Contains(err.Error(), "sendrawtransaction") {
		t.Fatalf("method name missing from error: %v", err)
	}
}

// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

package bidder

import (
	"errors"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/commerceblock/guardnode/guard"
	"github.com/commerceblock/guardnode/rpc"
)

// Builder composes the Selector and Estimator into the single place-a-bid
// operation against one request.
type Builder struct {
	node      ChainClient
	selector  *Selector
	estimator *Estimator
	bidLimit  btcutil.Amount
	log       guard.Logger
}

// NewBuilder creates a Builder. bidLimit is the configured ceiling on the
// auction price this guardnode is willing to pay.
func NewBuilder(node ChainClient, selector *Selector, estimator *Estimator,
	bidLimit btcutil.Amount, log guard.Logger) *Builder {

	return &Builder{
		node:      node,
		selector:  selector,
		estimator: estimator,
		bidLimit:  bidLimit,
		log:       log,
	}
}

// PlaceBid attempts to place a bid for the request using the session's fee
// pubkey and working fee. A violated precondition or an unfundable selection
// is a logged skip, returning an empty txid and no error; the caller retries
// on the next request poll. A broadcast rejected on fee grounds is rebuilt
// from a fresh coin selection exactly once before the failure is surfaced.
func (b *Builder) PlaceBid(request *rpc.Request, session *Session) (string, error) {
	height, err := b.node.GetBlockCount()
	if err != nil {
		return "", err
	}
	if request.StartBlockHeight <= height {
		b.log.Warnf("Too late to bid for request %s; service already started", request.TxID)
		return "", nil
	}
	price, err := btcutil.NewAmount(request.AuctionPrice)
	if err != nil {
		return "", fmt.Errorf("bad auction price %f: %w", request.AuctionPrice, err)
	}
	if price > b.bidLimit {
		b.log.Warnf("Auction price %v too high for guardnode bid limit %v", price, b.bidLimit)
		return "", nil
	}

	inputs, sum, err := b.fund(price, session)
	if err != nil {
		if errors.Is(err, ErrInsufficientFunds) {
			return "", nil
		}
		return "", err
	}

	var bidTxid string
	attempt := func() error {
		var err error
		bidTxid, err = b.buildAndSend(request, session, inputs, sum, price)
		return err
	}
	// Fee drift between estimation and broadcast gets one fresh selection
	// and rebuild; a second rejection is the caller's problem.
	err = guard.RetryOnce(func() error {
		return attempt()
	}, func(err error) bool {
		if !errors.Is(err, ErrFeeDrift) {
			return false
		}
		b.log.Warnf("Bid for request %s rejected on fee grounds, rebuilding once: %v", request.TxID, err)
		var ferr error
		inputs, sum, ferr = b.fund(price, session)
		return ferr == nil
	})
	if err != nil {
		return "", err
	}

	b.log.Infof("Bid %s placed for request %s at price %v (fee %v)",
		bidTxid, request.TxID, price, session.Fee)
	return bidTxid, nil
}

// fund selects inputs covering price plus the working fee, adopting a fresh
// fee estimate when the oracle has one and re-selecting once if the adopted
// fee pushed the target above the selected sum.
func (b *Builder) fund(price btcutil.Amount, session *Session) ([]*rpc.Outpoint, btcutil.Amount, error) {
	inputs, sum, err := b.selector.Select(price + session.Fee)
	if err != nil {
		return nil, 0, err
	}

	hasChange := sum != price+session.Fee
	fee, err := b.estimator.Estimate(inputs, hasChange)
	switch {
	case errors.Is(err, ErrFeeUnavailable):
		b.log.Debugf("No fee estimate available, keeping working fee %v", session.Fee)
	case err != nil:
		return nil, 0, err
	default:
		session.Fee = fee
	}

	if sum < price+session.Fee {
		inputs, sum, err = b.selector.Select(price + session.Fee)
		if err != nil {
			return nil, 0, err
		}
	}
	return inputs, sum, nil
}

// buildAndSend constructs, signs and broadcasts the bid. After signing, the
// fee is re-checked against the actual transaction size; a materially larger
// actual fee triggers one rebuild before broadcast.
func (b *Builder) buildAndSend(request *rpc.Request, session *Session,
	inputs []*rpc.Outpoint, sum, price btcutil.Amount) (string, error) {

	outputs, err := b.bidOutputs(request, session, sum, price)
	if err != nil {
		return "", err
	}
	signed, err := b.createAndSign(inputs, outputs)
	if err != nil {
		return "", err
	}

	// Re-estimate against the actual signed size. Only an under-estimate is
	// rebuilt; over-payment within the allowance is accepted.
	actualSize := len(signed.Hex)/2 + 1
	if actualFee, err := b.estimator.FeeForSize(actualSize); err == nil && actualFee > session.Fee {
		b.log.Debugf("Estimated fee %v below actual-size fee %v, rebuilding bid", session.Fee, actualFee)
		session.Fee = actualFee
		if sum < price+session.Fee {
			return "", guard.NewError(ErrFeeDrift, "selected inputs no longer cover price plus fee")
		}
		outputs.Fee = session.Fee.ToBTC()
		outputs.Change = (sum - price - session.Fee).ToBTC()
		if signed, err = b.createAndSign(inputs, outputs); err != nil {
			return "", err
		}
	}

	txid, err := b.node.SendRawTransaction(signed.Hex)
	if err != nil {
		if feeRejection(err) {
			return "", guard.NewError(ErrFeeDrift, err.Error())
		}
		return "", err
	}

	// Import the new TX_LOCKED_MULTISIG output's script so it is selectable
	// as collateral for a future bid.
	decoded, err := b.node.DecodeRawTransaction(signed.Hex)
	if err == nil && len(decoded.Vout) > 0 {
		if err := b.node.ImportAddress(decoded.Vout[0].ScriptPubKey.Hex); err != nil {
			b.log.Warnf("Failed to import bid collateral script: %v", err)
		}
	}
	return txid, nil
}

// bidOutputs assembles the createrawbidtx output set for the request.
func (b *Builder) bidOutputs(request *rpc.Request, session *Session,
	sum, price btcutil.Amount) (*rpc.BidOutputs, error) {

	selfAddr, err := b.node.GetNewAddress()
	if err != nil {
		return nil, err
	}
	validated, err := b.node.ValidateAddress(selfAddr)
	if err != nil {
		return nil, err
	}
	changeAddr, err := b.node.GetNewAddress()
	if err != nil {
		return nil, err
	}
	return &rpc.BidOutputs{
		Value:          price.ToBTC(),
		Change:         (sum - price - session.Fee).ToBTC(),
		ChangeAddress:  changeAddr,
		Fee:            session.Fee.ToBTC(),
		EndBlockHeight: request.EndBlockHeight,
		RequestTxID:    request.TxID,
		PubKey:         validated.PubKey,
		FeePubKey:      session.FeePubKey,
	}, nil
}

// createAndSign runs createrawbidtx and signrawtransaction, requiring a
// complete signature set.
func (b *Builder) createAndSign(inputs []*rpc.Outpoint, outputs *rpc.BidOutputs) (*rpc.SignRawTransactionResult, error) {
	raw, err := b.node.CreateRawBidTx(inputs, outputs)
	if err != nil {
		return nil, err
	}
	signed, err := b.node.SignRawTransaction(raw)
	if err != nil {
		return nil, err
	}
	if !signed.Complete {
		msgs := make([]string, 0, len(signed.Errors))
		for _, e := range signed.Errors {
			msgs = append(msgs, e.Error)
		}
		return nil, fmt.Errorf("bid signing incomplete: %s", strings.Join(msgs, "; "))
	}
	return signed, nil
}

// feeRejection matches node reject messages caused by the fee moving between
// estimation and broadcast.
func feeRejection(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "fee") || strings.Contains(msg, "bad-txns")
}

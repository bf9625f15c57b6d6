// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

package bidder

import (
	"fmt"
	"math"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/commerceblock/guardnode/guard"
	"github.com/commerceblock/guardnode/rpc"
)

// Transaction size table for the bid fee estimate. Input allowances are
// worst-case signature sizes keyed on the previous output's script shape; an
// unrecognized shape gets a deliberate over-estimate, since an under-funded
// fee means broadcast rejection.
const (
	baseTxSize = 12

	inputBaseSize         = 41
	p2pkhSigAllowance     = 110
	lockedMultisigSigSize = 74
	unknownInputAllowance = 150

	outputBaseSize     = 44
	lockedOutputScript = 109
	changeOutputScript = 25

	p2pkhScriptLen       = 25
	lockedScriptLenLower = 107
	lockedScriptLenUpper = 110

	feeEstimateTargetBlocks = 2
)

// Estimator derives the fee of a not-yet-built bid transaction from the
// node's fee oracle and the candidate inputs' script types.
type Estimator struct {
	node ChainClient
	log  guard.Logger
}

// NewEstimator creates an Estimator.
func NewEstimator(node ChainClient, log guard.Logger) *Estimator {
	return &Estimator{node: node, log: log}
}

// Estimate computes the fee for a bid spending the inputs, with a change
// output when hasChange is set. ErrFeeUnavailable means the oracle has no
// quote and the caller should keep its previous working fee.
func (e *Estimator) Estimate(inputs []*rpc.Outpoint, hasChange bool) (btcutil.Amount, error) {
	rate, err := e.feeRate()
	if err != nil {
		return 0, err
	}

	size := baseTxSize
	for _, op := range inputs {
		prev, err := e.node.GetRawTransactionVerbose(op.TxID)
		if err != nil {
			return 0, err
		}
		if int(op.Vout) >= len(prev.Vout) {
			return 0, fmt.Errorf("input %s:%d refers to a missing output", op.TxID, op.Vout)
		}
		scriptLen := len(prev.Vout[op.Vout].ScriptPubKey.Hex) / 2
		switch {
		case scriptLen == p2pkhScriptLen:
			size += inputBaseSize + p2pkhSigAllowance
		case scriptLen >= lockedScriptLenLower && scriptLen <= lockedScriptLenUpper:
			size += inputBaseSize + lockedMultisigSigSize
		default:
			size += unknownInputAllowance
		}
	}
	size += outputBaseSize + lockedOutputScript // bid payment output
	size += outputBaseSize                      // protocol fee output
	if hasChange {
		size += outputBaseSize + changeOutputScript
	}
	return feeForSize(rate, size), nil
}

// FeeForSize computes the fee for an actual transaction byte size, used to
// check the estimate against the signed transaction.
func (e *Estimator) FeeForSize(size int) (btcutil.Amount, error) {
	rate, err := e.feeRate()
	if err != nil {
		return 0, err
	}
	return feeForSize(rate, size), nil
}

// feeRate fetches a rate quote in value per 1000 bytes. A non-positive rate
// from the node means no estimate is available.
func (e *Estimator) feeRate() (btcutil.Amount, error) {
	est, err := e.node.EstimateSmartFee(feeEstimateTargetBlocks)
	if err != nil {
		return 0, err
	}
	if est.FeeRate <= 0 {
		return 0, ErrFeeUnavailable
	}
	return btcutil.NewAmount(est.FeeRate)
}

// feeForSize is rate × size / 1000 at the chain's 8-decimal value precision.
func feeForSize(rate btcutil.Amount, size int) btcutil.Amount {
	return btcutil.Amount(int64(math.Round(float64(rate) * float64(size) / 1000)))
}

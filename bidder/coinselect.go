// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

package bidder

import (
	"strconv"
	"strings"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/commerceblock/guardnode/guard"
	"github.com/commerceblock/guardnode/rpc"
)

// Confirmation bounds for listunspent. Everything with at least one
// confirmation is a candidate.
const (
	minUnspentConf = 1
	maxUnspentConf = 9999999
)

// Selector picks bid funding inputs under a two-tier policy: previously
// created locked-collateral outputs whose locktime has elapsed are consumed
// first, and any residual is delegated to the wallet's own coin selection
// via fundrawtransaction.
type Selector struct {
	node  ChainClient
	asset string
	log   guard.Logger
}

// NewSelector creates a Selector for the given domain asset.
func NewSelector(node ChainClient, asset string, log guard.Logger) *Selector {
	return &Selector{
		node:  node,
		asset: asset,
		log:   log,
	}
}

// Select returns inputs whose summed value covers target, along with that
// sum. Outputs are never selected twice. ErrInsufficientFunds means the
// wallet cannot cover the target this cycle; the caller skips bidding and
// retries on the next poll.
func (s *Selector) Select(target btcutil.Amount) ([]*rpc.Outpoint, btcutil.Amount, error) {
	// The chain height is read once per selection pass so the locktime
	// comparison is consistent across candidates.
	height, err := s.node.GetBlockCount()
	if err != nil {
		return nil, 0, err
	}
	unspent, err := s.node.ListUnspent(minUnspentConf, maxUnspentConf, s.asset)
	if err != nil {
		return nil, 0, err
	}

	var sum btcutil.Amount
	var inputs []*rpc.Outpoint
	seen := make(map[rpc.Outpoint]bool)

	// First consume previous TX_LOCKED_MULTISIG outputs with elapsed
	// locktimes, in listing order. The locktime check costs an RPC round
	// trip per candidate, which is why it is bounded to unsolvable outputs
	// rather than the full unspent set.
	for _, utxo := range unspent {
		if utxo.Solvable {
			continue
		}
		op := rpc.Outpoint{TxID: utxo.TxID, Vout: utxo.Vout}
		if seen[op] {
			continue
		}
		spendable, err := s.lockTimeElapsed(utxo.TxID, height)
		if err != nil {
			return nil, 0, err
		}
		if !spendable {
			continue
		}
		amt, err := btcutil.NewAmount(utxo.Amount)
		if err != nil {
			return nil, 0, err
		}
		seen[op] = true
		opCopy := op
		inputs = append(inputs, &opCopy)
		sum += amt
		if sum >= target {
			return inputs, sum, nil
		}
	}

	// Delegate the residual to the wallet's funding facility.
	funded, fundedSum, err := s.fundResidual(inputs, target, seen)
	if err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "insufficient") {
			s.log.Warnf("Not enough %s in wallet to cover target %v (collateral covers %v)",
				s.asset, target, sum)
			return nil, 0, guard.NewError(ErrInsufficientFunds, err.Error())
		}
		return nil, 0, err
	}
	return append(inputs, funded...), sum + fundedSum, nil
}

// fundResidual builds a skeleton transaction spending the already-selected
// collateral inputs to a self address for the full target amount, and asks
// the wallet to fund it. The inputs the wallet appended are read back from
// the funded hex and their values resolved from their previous outputs.
func (s *Selector) fundResidual(existing []*rpc.Outpoint, target btcutil.Amount,
	seen map[rpc.Outpoint]bool) ([]*rpc.Outpoint, btcutil.Amount, error) {

	addr, err := s.node.GetNewAddress()
	if err != nil {
		return nil, 0, err
	}
	skeleton, err := s.node.CreateRawTransaction(existing, map[string]float64{addr: target.ToBTC()})
	if err != nil {
		return nil, 0, err
	}
	funded, err := s.node.FundRawTransaction(skeleton)
	if err != nil {
		return nil, 0, err
	}
	decoded, err := s.node.DecodeRawTransaction(funded.Hex)
	if err != nil {
		return nil, 0, err
	}

	var sum btcutil.Amount
	var appended []*rpc.Outpoint
	for _, vin := range decoded.Vin {
		op := rpc.Outpoint{TxID: vin.TxID, Vout: vin.Vout}
		if seen[op] {
			continue
		}
		prev, err := s.node.GetRawTransactionVerbose(vin.TxID)
		if err != nil {
			return nil, 0, err
		}
		if int(vin.Vout) >= len(prev.Vout) {
			return nil, 0, guard.NewError(guard.ErrorKind("funded input refers to missing output"),
				vin.TxID+":"+strconv.Itoa(int(vin.Vout)))
		}
		amt, err := btcutil.NewAmount(prev.Vout[vin.Vout].Value)
		if err != nil {
			return nil, 0, err
		}
		seen[op] = true
		opCopy := op
		appended = append(appended, &opCopy)
		sum += amt
	}
	return appended, sum, nil
}

// lockTimeElapsed reports whether every OP_CHECKLOCKTIMEVERIFY clause in the
// transaction's outputs refers to a height at or below the current one. A
// transaction with a still-locked clause is not yet spendable collateral.
func (s *Selector) lockTimeElapsed(txid string, height int64) (bool, error) {
	tx, err := s.node.GetRawTransactionVerbose(txid)
	if err != nil {
		return false, err
	}
	for _, vout := range tx.Vout {
		lockHeight, ok := parseLockTime(vout.ScriptPubKey.Asm)
		if ok && lockHeight > height {
			return false, nil
		}
	}
	return true, nil
}

// parseLockTime extracts the height of a leading "<height>
// OP_CHECKLOCKTIMEVERIFY" script clause, reporting false when the script has
// no such clause.
func parseLockTime(asm string) (int64, bool) {
	if !strings.Contains(asm, "OP_CHECKLOCKTIMEVERIFY") {
		return 0, false
	}
	fields := strings.Fields(asm)
	if len(fields) == 0 {
		return 0, false
	}
	height, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil {
		return 0, false
	}
	return height, true
}

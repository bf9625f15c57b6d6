// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

package lifecycle

import (
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/commerceblock/guardnode/responder"
	"github.com/commerceblock/guardnode/rpc"
)

// Asset label the client chain assigns to the challenge asset issuance in
// its genesis block.
const challengeAssetLabel = "CHALLENGE"

// initialize performs the startup identity work: challenge asset discovery,
// fee-key setup and a signing smoke test. Every failure here is fatal — the
// agent must refuse to run rather than operate with an invalid identity.
func (c *Controller) initialize() error {
	genesis, err := c.client.GetBlockHash(0)
	if err != nil {
		return fmt.Errorf("error fetching client chain genesis: %w", err)
	}
	c.genesis = genesis

	asset, err := c.findChallengeAsset(genesis)
	if err != nil {
		return err
	}
	c.challengeAsset = asset
	c.log.Infof("Challenge asset: %s", asset)

	if c.cfg.UniqueBidPubKeys {
		c.log.Infof("Fee pubkey will be freshly generated each bid")
	}
	if c.cfg.BidPubKey != "" {
		if err := c.adoptFeeKey(c.cfg.BidPubKey); err != nil {
			return err
		}
	} else if !c.cfg.UniqueBidPubKeys {
		if err := c.generateFeeKey(); err != nil {
			return err
		}
	}

	if c.session.FeePubKey != "" {
		if err := c.signingSmokeTest(); err != nil {
			return err
		}
	}
	return nil
}

// findChallengeAsset scans the genesis block for the challenge asset
// issuance. No challenge asset means this client chain cannot be served.
func (c *Controller) findChallengeAsset(genesis string) (string, error) {
	blk, err := c.client.GetBlock(genesis)
	if err != nil {
		return "", fmt.Errorf("error fetching client chain genesis block: %w", err)
	}
	for _, txid := range blk.Tx {
		tx, err := c.client.GetRawTransactionVerbose(txid)
		if err != nil {
			return "", fmt.Errorf("error fetching genesis transaction %s: %w", txid, err)
		}
		for _, vout := range tx.Vout {
			if vout.AssetLabel == challengeAssetLabel {
				return vout.Asset, nil
			}
		}
	}
	return "", fmt.Errorf("no challenge asset found in client chain %s", genesis)
}

// adoptFeeKey installs a configured fee pubkey, requiring that the client
// wallet owns the corresponding private key.
func (c *Controller) adoptFeeKey(pubKeyHex string) error {
	if _, err := responder.ParsePubKey(pubKeyHex); err != nil {
		return fmt.Errorf("malformed bid pubkey %q: %w", pubKeyHex, err)
	}
	addr, err := responder.P2PKHAddress(pubKeyHex, c.cfg.ChainParams)
	if err != nil {
		return err
	}
	validated, err := c.client.ValidateAddress(addr)
	if err != nil {
		return fmt.Errorf("error validating fee address %s: %w", addr, err)
	}
	if !validated.IsMine {
		return fmt.Errorf("bid pubkey %s is missing from the wallet", pubKeyHex)
	}
	wif, err := c.client.DumpPrivKey(addr)
	if err != nil {
		return fmt.Errorf("error deriving signing key for %s: %w", addr, err)
	}
	decoded, err := btcutil.DecodeWIF(wif)
	if err != nil {
		return fmt.Errorf("error decoding signing key for %s: %w", addr, err)
	}
	c.session.FeePubKey = pubKeyHex
	c.session.SigningKey = decoded.PrivKey
	c.log.Infof("Fee address: %s and pubkey: %s", addr, pubKeyHex)
	return nil
}

// generateFeeKey creates a fresh fee keypair in the client wallet.
func (c *Controller) generateFeeKey() error {
	addr, err := c.client.GetNewAddress()
	if err != nil {
		return fmt.Errorf("error generating fee address: %w", err)
	}
	validated, err := c.client.ValidateAddress(addr)
	if err != nil {
		return fmt.Errorf("error validating fee address %s: %w", addr, err)
	}
	if validated.PubKey == "" {
		return fmt.Errorf("no pubkey for generated fee address %s", addr)
	}
	wif, err := c.client.DumpPrivKey(addr)
	if err != nil {
		return fmt.Errorf("error deriving signing key for %s: %w", addr, err)
	}
	decoded, err := btcutil.DecodeWIF(wif)
	if err != nil {
		return fmt.Errorf("error decoding signing key for %s: %w", addr, err)
	}
	c.session.FeePubKey = validated.PubKey
	c.session.SigningKey = decoded.PrivKey
	c.log.Infof("Fee address: %s and pubkey: %s", addr, validated.PubKey)
	return nil
}

// signingSmokeTest proves the wallet can sign with the fee address before
// any challenge arrives.
func (c *Controller) signingSmokeTest() error {
	addr, err := responder.P2PKHAddress(c.session.FeePubKey, c.cfg.ChainParams)
	if err != nil {
		return err
	}
	if _, err := c.client.SignMessage(addr, "guardnode startup signing test"); err != nil {
		return fmt.Errorf("signing test for %s failed: %w", addr, err)
	}
	c.log.Infof("Signing test OK")
	return nil
}

// recoverBid reconstructs in-flight bid state from chain data after a
// restart. A wallet transaction matching one of the request's bids means we
// already bid; resume with that bid's fee pubkey instead of double-bidding.
func (c *Controller) recoverBid(request *rpc.Request) error {
	bidsRes, err := c.service.GetRequestBids(request.TxID)
	if err != nil {
		return err
	}
	if len(bidsRes.Bids) == 0 {
		return nil
	}
	walletTxs, err := c.service.ListTransactions(walletTxScanCount, 0)
	if err != nil {
		return err
	}
	owned := make(map[string]bool, len(walletTxs))
	for _, wtx := range walletTxs {
		owned[wtx.TxID] = true
	}
	for _, bid := range bidsRes.Bids {
		if !owned[bid.TxID] {
			continue
		}
		c.log.Infof("Recovered bid %s for request %s", bid.TxID, request.TxID)
		if err := c.recoverFeeKey(bid.FeePubKey); err != nil {
			return err
		}
		c.session.BidTxID = bid.TxID
		c.session.FeePubKey = bid.FeePubKey
		return nil
	}
	return nil
}

// recoverFeeKey re-derives the signing key from a recovered bid's fee
// pubkey. The key may live in the service wallet (it signed the bid), in
// which case it is dumped from there and imported into the client wallet so
// challenge responses can be signed.
func (c *Controller) recoverFeeKey(feePubKey string) error {
	addr, err := responder.P2PKHAddress(feePubKey, c.cfg.ChainParams)
	if err != nil {
		return fmt.Errorf("recovered bid has malformed fee pubkey %q: %w", feePubKey, err)
	}
	wif, err := c.client.DumpPrivKey(addr)
	if err != nil {
		wif, err = c.service.DumpPrivKey(addr)
		if err != nil {
			return fmt.Errorf("fee key for recovered bid (%s) is in neither wallet: %w", addr, err)
		}
		if err := c.client.ImportPrivKey(wif); err != nil {
			return fmt.Errorf("error importing recovered fee key: %w", err)
		}
	}
	decoded, err := btcutil.DecodeWIF(wif)
	if err != nil {
		return fmt.Errorf("error decoding recovered fee key: %w", err)
	}
	c.session.SigningKey = decoded.PrivKey
	return nil
}

// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

package responder

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/commerceblock/guardnode/bidder"
	"github.com/commerceblock/guardnode/guard"
	"github.com/commerceblock/guardnode/guard/gnet"
)

// ChallengeProof is the payload POSTed to the coordinator's challengeproof
// endpoint.
type ChallengeProof struct {
	TxID   string `json:"txid"`
	PubKey string `json:"pubkey"`
	Hash   string `json:"hash"`
	Sig    string `json:"sig"`
}

// Signer produces signed challenge responses with the active bid's fee key
// and submits them to the coordinator.
type Signer struct {
	coordinatorURL string
	log            guard.Logger
}

// New creates a Signer for the coordinator's challengeproof URL.
func New(coordinatorURL string, log guard.Logger) *Signer {
	return &Signer{
		coordinatorURL: coordinatorURL,
		log:            log,
	}
}

// Respond signs the challenge transaction id with the session's signing key
// and POSTs the proof. A rejected or undeliverable proof is logged and
// returned, but a missed challenge window is not recoverable, so the caller
// must not retry.
func (s *Signer) Respond(ctx context.Context, session *bidder.Session, challengeTxid string) error {
	if session.SigningKey == nil {
		return fmt.Errorf("no signing key for challenge %s", challengeTxid)
	}
	sig, err := SignChallenge(session, challengeTxid)
	if err != nil {
		return err
	}
	proof := &ChallengeProof{
		TxID:   session.BidTxID,
		PubKey: session.FeePubKey,
		Hash:   challengeTxid,
		Sig:    sig,
	}
	body, err := json.Marshal(proof)
	if err != nil {
		return err
	}
	err = gnet.Post(ctx, s.coordinatorURL, nil, body,
		gnet.WithRequestHeader("Content-Type", "application/json"))
	if err != nil {
		s.log.Errorf("Challenge proof submission for %s failed: %v", challengeTxid, err)
		return err
	}
	s.log.Infof("Challenge proof for %s submitted (bid %s)", challengeTxid, session.BidTxID)
	return nil
}

// SignChallenge produces a hex-encoded DER signature over the reversed byte
// order of the challenge transaction id.
func SignChallenge(session *bidder.Session, challengeTxid string) (string, error) {
	// NewHashFromStr reverses the display order, giving the digest byte
	// order the coordinator verifies against.
	digest, err := chainhash.NewHashFromStr(challengeTxid)
	if err != nil {
		return "", fmt.Errorf("bad challenge txid %q: %w", challengeTxid, err)
	}
	sig := ecdsa.Sign(session.SigningKey, digest[:])
	return hex.EncodeToString(sig.Serialize()), nil
}

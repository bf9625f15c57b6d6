// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

package responder

import (
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
)

// ChainParams returns address-encoding parameters for a chain with the given
// P2PKH address version byte. Only address encoding fields are meaningful;
// the params are never registered.
func ChainParams(p2pkhPrefix byte) *chaincfg.Params {
	params := chaincfg.MainNetParams
	params.Name = fmt.Sprintf("ocean-p2pkh-%d", p2pkhPrefix)
	params.PubKeyHashAddrID = p2pkhPrefix
	return &params
}

// ParsePubKey decodes and validates a hex-encoded secp256k1 public key.
func ParsePubKey(pubKeyHex string) (*btcec.PublicKey, error) {
	b, err := hex.DecodeString(pubKeyHex)
	if err != nil {
		return nil, err
	}
	return btcec.ParsePubKey(b)
}

// P2PKHAddress derives the pay-to-pubkey-hash address of the hex-encoded
// public key under the given chain parameters.
func P2PKHAddress(pubKeyHex string, params *chaincfg.Params) (string, error) {
	b, err := hex.DecodeString(pubKeyHex)
	if err != nil {
		return "", fmt.Errorf("error decoding pubkey: %w", err)
	}
	if _, err := btcec.ParsePubKey(b); err != nil {
		return "", fmt.Errorf("invalid pubkey: %w", err)
	}
	addr, err := btcutil.NewAddressPubKeyHash(btcutil.Hash160(b), params)
	if err != nil {
		return "", err
	}
	return addr.EncodeAddress(), nil
}

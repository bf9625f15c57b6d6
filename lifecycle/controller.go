// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

package lifecycle

import (
	"context"
	"fmt"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/commerceblock/guardnode/bidder"
	"github.com/commerceblock/guardnode/guard"
	"github.com/commerceblock/guardnode/rpc"
)

// State is the controller's position in the request/challenge lifecycle.
type State string

const (
	// AwaitingRequest means no active request is being served; the service
	// chain is polled for one.
	AwaitingRequest State = "AWAITING_REQUEST"
	// BidPending means an active request was found and a bid is being
	// placed.
	BidPending State = "BID_PENDING"
	// Serving means a bid is in and the client chain is being watched for
	// challenges.
	Serving State = "SERVING"
	// RequestEnded means the active request's window closed; bid state is
	// cleared before returning to AwaitingRequest.
	RequestEnded State = "REQUEST_ENDED"
)

// Number of wallet transactions fetched per recovery scan.
const walletTxScanCount = 100

// Consecutive polling failures tolerated before the tracked genesis is
// re-verified against the chain.
const maxPollFailures = 3

// ClientChain is the client-chain node surface the controller uses for
// challenge detection and fee-key management.
type ClientChain interface {
	GetBlockCount() (int64, error)
	GetBlockHash(height int64) (string, error)
	GetBlock(hash string) (*rpc.GetBlockResult, error)
	GetRawTransactionVerbose(txid string) (*rpc.RawTransactionResult, error)
	GetNewAddress() (string, error)
	ValidateAddress(addr string) (*rpc.ValidateAddressResult, error)
	DumpPrivKey(addr string) (string, error)
	ImportPrivKey(wif string) error
	SignMessage(addr, message string) (string, error)
}

// ServiceChain is the service-chain node surface for request discovery and
// bid recovery.
type ServiceChain interface {
	GetRequests(genesis string) ([]*rpc.Request, error)
	GetRequestBids(requestTxid string) (*rpc.RequestBidsResult, error)
	ListTransactions(count, skip int) ([]*rpc.WalletTxResult, error)
	DumpPrivKey(addr string) (string, error)
}

// BidPlacer places a bid for a request. Satisfied by *bidder.Builder.
type BidPlacer interface {
	PlaceBid(request *rpc.Request, session *bidder.Session) (string, error)
}

// Responder submits a signed challenge proof. Satisfied by
// *responder.Signer.
type Responder interface {
	Respond(ctx context.Context, session *bidder.Session, challengeTxid string) error
}

// Config is the Controller configuration.
type Config struct {
	ClientNode  ClientChain
	ServiceNode ServiceChain
	Builder     BidPlacer
	Responder   Responder
	ChainParams *chaincfg.Params

	// BidPubKey fixes the fee pubkey for every bid. Empty means a key is
	// generated from the client wallet at startup.
	BidPubKey string
	// UniqueBidPubKeys generates a fresh fee pubkey for every bid.
	UniqueBidPubKeys bool
	// BidFee overrides the default starting bid fee when positive. The fee
	// oracle still replaces it once estimates are available.
	BidFee btcutil.Amount

	// ServicePollInterval should match the service chain's block time, and
	// ClientPollInterval the client chain's.
	ServicePollInterval time.Duration
	ClientPollInterval  time.Duration
	// ErrorBackoff is the fixed delay after a transient polling failure.
	ErrorBackoff time.Duration

	Logger guard.Logger
}

// Controller drives the request/challenge lifecycle: request discovery, bid
// placement (with restart recovery), challenge detection and response. All
// in-flight bid state lives in the Session and is rederived from chain data;
// nothing is persisted locally.
type Controller struct {
	cfg     *Config
	client  ClientChain
	service ServiceChain
	log     guard.Logger

	state          State
	session        *bidder.Session
	genesis        string
	challengeAsset string
	pollFailures   int
}

// New creates a Controller. Startup identity checks happen in Run.
func New(cfg *Config) *Controller {
	session := bidder.NewSession()
	if cfg.BidFee > 0 {
		session.Fee = cfg.BidFee
	}
	return &Controller{
		cfg:     cfg,
		client:  cfg.ClientNode,
		service: cfg.ServiceNode,
		log:     cfg.Logger,
		state:   AwaitingRequest,
		session: session,
	}
}

// State returns the controller's current lifecycle state.
func (c *Controller) State() State {
	return c.state
}

// Session exposes the bid session, mostly for tests and status reporting.
func (c *Controller) Session() *bidder.Session {
	return c.session
}

// Run establishes the agent's identity and then drives the lifecycle loop
// until the context is canceled. Identity errors and unrecoverable chain
// state corruption are returned; everything else is logged and retried.
// Satisfies guard.Runner.
func (c *Controller) Run(ctx context.Context) error {
	if err := c.initialize(); err != nil {
		return err
	}
	for {
		if !c.wait(ctx, c.cfg.ServicePollInterval) {
			return nil
		}
		request, err := c.pollRequest()
		if err != nil {
			c.log.Warnf("Request poll failed: %v", err)
			if err := c.notePollFailure(); err != nil {
				return err
			}
			c.wait(ctx, c.cfg.ErrorBackoff)
			continue
		}
		c.pollFailures = 0
		if request == nil {
			c.setState(AwaitingRequest)
			continue
		}

		if !c.session.HasBid() {
			if err := c.recoverBid(request); err != nil {
				c.log.Warnf("Bid recovery scan failed: %v", err)
				continue
			}
		}
		if !c.session.HasBid() {
			ready, err := c.readyForBid(request)
			if err != nil {
				c.log.Warnf("Bid readiness check failed: %v", err)
				continue
			}
			if !ready {
				continue
			}
			c.setState(BidPending)
			if err := c.placeBid(request); err != nil {
				c.log.Errorf("Bid placement for request %s failed: %v", request.TxID, err)
				c.setState(AwaitingRequest)
				continue
			}
		}
		if !c.session.HasBid() {
			// Preconditions produced a logged skip; try again next cycle
			// with a re-fetched auction price.
			c.setState(AwaitingRequest)
			continue
		}

		c.setState(Serving)
		if err := c.serve(ctx, request); err != nil {
			return err
		}
		if ctx.Err() != nil {
			return nil
		}
		c.setState(RequestEnded)
		c.session.ClearBid()
		if c.cfg.UniqueBidPubKeys {
			// Key rotation: next bid gets a fresh fee pubkey.
			c.session.FeePubKey = ""
			c.session.SigningKey = nil
		}
		c.setState(AwaitingRequest)
	}
}

// pollRequest fetches the lowest-indexed active request scoped to the client
// chain's genesis hash, or nil when there is none.
func (c *Controller) pollRequest() (*rpc.Request, error) {
	requests, err := c.service.GetRequests(c.genesis)
	if err != nil {
		return nil, err
	}
	if len(requests) == 0 {
		return nil, nil
	}
	return requests[0], nil
}

// readyForBid reports whether a new bid is warranted: the agent has not bid
// and auction tickets remain.
func (c *Controller) readyForBid(request *rpc.Request) (bool, error) {
	bids, err := c.service.GetRequestBids(request.TxID)
	if err != nil {
		return false, err
	}
	if int64(len(bids.Bids)) >= request.NumTickets {
		c.log.Infof("All %d tickets for request %s are taken", request.NumTickets, request.TxID)
		return false, nil
	}
	return true, nil
}

// placeBid rotates the fee key if configured, then drives the bid builder.
// An empty returned txid is a logged precondition skip, not an error.
func (c *Controller) placeBid(request *rpc.Request) error {
	if c.session.FeePubKey == "" {
		if err := c.generateFeeKey(); err != nil {
			return err
		}
	}
	txid, err := c.cfg.Builder.PlaceBid(request, c.session)
	if err != nil {
		return err
	}
	c.session.BidTxID = txid
	return nil
}

// serve watches the client chain for challenges until the request's end
// height. Per-height idempotence: a height is recorded as observed after its
// first scan, so a challenge is answered at most once per block.
func (c *Controller) serve(ctx context.Context, request *rpc.Request) error {
	c.log.Infof("Serving request %s with bid %s until height %d",
		request.TxID, c.session.BidTxID, request.EndBlockHeight)
	lastHeight, err := c.client.GetBlockCount()
	if err != nil {
		c.log.Warnf("Client chain height poll failed: %v", err)
		lastHeight = request.StartBlockHeight - 1
	}
	for {
		if !c.wait(ctx, c.cfg.ClientPollInterval) {
			return nil
		}
		height, err := c.client.GetBlockCount()
		if err != nil {
			c.log.Warnf("Client chain height poll failed: %v", err)
			if err := c.notePollFailure(); err != nil {
				return err
			}
			c.wait(ctx, c.cfg.ErrorBackoff)
			continue
		}
		c.pollFailures = 0
		if height >= request.EndBlockHeight {
			c.log.Infof("Request %s ended at height %d", request.TxID, height)
			return nil
		}
		if height < request.StartBlockHeight {
			continue // service window not yet open
		}
		for h := lastHeight + 1; h <= height; h++ {
			challengeTxid, err := c.assetInBlock(h)
			if err != nil {
				c.log.Warnf("Challenge scan at height %d failed: %v", h, err)
				break // heights from h on are rescanned next cycle
			}
			if challengeTxid != "" {
				c.log.Infof("Challenge %s detected at height %d", challengeTxid, h)
				if err := c.cfg.Responder.Respond(ctx, c.session, challengeTxid); err != nil {
					// A missed window is not recoverable; log and move on.
					c.log.Errorf("Challenge response for %s failed: %v", challengeTxid, err)
				}
			}
			lastHeight = h
		}
	}
}

// assetInBlock scans the block at the given height for a transaction moving
// the challenge asset, returning its txid or empty.
func (c *Controller) assetInBlock(height int64) (string, error) {
	hash, err := c.client.GetBlockHash(height)
	if err != nil {
		return "", err
	}
	blk, err := c.client.GetBlock(hash)
	if err != nil {
		return "", err
	}
	for _, txid := range blk.Tx {
		tx, err := c.client.GetRawTransactionVerbose(txid)
		if err != nil {
			return "", err
		}
		for _, vout := range tx.Vout {
			if vout.Asset == c.challengeAsset {
				return txid, nil
			}
		}
	}
	return "", nil
}

// notePollFailure counts consecutive transient failures. Repeated failures
// trigger a genesis re-verification; a changed genesis means the tracked
// chain state is invalid and the error is fatal.
func (c *Controller) notePollFailure() error {
	c.pollFailures++
	if c.pollFailures < maxPollFailures {
		return nil
	}
	genesis, err := c.client.GetBlockHash(0)
	if err != nil {
		return nil // node unreachable, still transient
	}
	if genesis != c.genesis {
		return fmt.Errorf("client chain genesis changed from %s to %s; tracked state is invalid",
			c.genesis, genesis)
	}
	c.pollFailures = 0
	return nil
}

// setState transitions the lifecycle state, logging edges only.
func (c *Controller) setState(next State) {
	if c.state == next {
		return
	}
	c.log.Debugf("Lifecycle state %s -> %s", c.state, next)
	c.state = next
}

// wait sleeps for the duration, returning false if the context was canceled
// first. Shutdown is observed at loop-iteration boundaries only.
func (c *Controller) wait(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/commerceblock/guardnode/alerts"
	"github.com/commerceblock/guardnode/app"
	"github.com/commerceblock/guardnode/bidder"
	"github.com/commerceblock/guardnode/guard"
	"github.com/commerceblock/guardnode/lifecycle"
	"github.com/commerceblock/guardnode/responder"
	"github.com/commerceblock/guardnode/rpc"
)

const version = "0.3.0"

// How often the supervisor checks the workers' error flags.
const superviseInterval = 500 * time.Millisecond

func main() {
	// Wrap the actual main so defers run in it.
	err := mainCore()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	os.Exit(0)
}

func mainCore() error {
	cfg := app.DefaultConfig
	if err := app.ParseCLIConfig(&cfg); err != nil {
		return err
	}
	if cfg.ShowVer {
		fmt.Printf("guardnode version %s (go)\n", version)
		return nil
	}
	if err := app.ParseFileConfig(cfg.ConfigPath, &cfg); err != nil {
		return err
	}
	if err := app.ResolveConfig(&cfg); err != nil {
		return err
	}

	logMaker, closeLogger := app.InitLogging(cfg.LogPath, cfg.DebugLevel, !cfg.LocalLogs)
	defer closeLogger()
	log := logMaker.NewLogger("MAIN")
	log.Infof("guardnode version %s (go)", version)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	killChan := make(chan os.Signal, 1)
	signal.Notify(killChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-killChan
		log.Infof("Shutting down...")
		cancel()
	}()

	clientNode, err := rpc.Connect(&rpc.Config{
		Host: cfg.ClientRPCHost,
		User: cfg.ClientRPCUser,
		Pass: cfg.ClientRPCPass,
	}, logMaker.NewLogger("RPC[client]"))
	if err != nil {
		return fmt.Errorf("client chain node: %w", err)
	}
	serviceNode, err := rpc.Connect(&rpc.Config{
		Host: cfg.ServiceRPCHost,
		User: cfg.ServiceRPCUser,
		Pass: cfg.ServiceRPCPass,
	}, logMaker.NewLogger("RPC[service]"))
	if err != nil {
		return fmt.Errorf("service chain node: %w", err)
	}

	bidLimit, err := btcutil.NewAmount(cfg.BidLimit)
	if err != nil {
		return fmt.Errorf("bad bid limit %f: %w", cfg.BidLimit, err)
	}
	var bidFee btcutil.Amount
	if cfg.BidFee > 0 {
		if bidFee, err = btcutil.NewAmount(cfg.BidFee); err != nil {
			return fmt.Errorf("bad bid fee %f: %w", cfg.BidFee, err)
		}
	}

	bidLog := logMaker.NewLogger("BID")
	selector := bidder.NewSelector(serviceNode, cfg.ChainAsset, bidLog)
	estimator := bidder.NewEstimator(serviceNode, bidLog)
	builder := bidder.NewBuilder(serviceNode, selector, estimator, bidLimit, bidLog)
	signer := responder.New(cfg.ChallengeHost+"/challengeproof", logMaker.NewLogger("RESP"))

	controller := lifecycle.New(&lifecycle.Config{
		ClientNode:          clientNode,
		ServiceNode:         serviceNode,
		Builder:             builder,
		Responder:           signer,
		ChainParams:         responder.ChainParams(byte(cfg.AddressPrefix)),
		BidPubKey:           cfg.BidPubKey,
		UniqueBidPubKeys:    cfg.UniqueBidPubKeys,
		BidFee:              bidFee,
		ServicePollInterval: time.Duration(cfg.ServiceBlockTime) * time.Second,
		ClientPollInterval:  time.Duration(cfg.ClientBlockTime) * time.Second,
		ErrorBackoff:        5 * time.Second,
		Logger:              logMaker.NewLogger("LIFE"),
	})

	workers := []*guard.StartStopWaiter{
		guard.NewStartStopWaiter(controller),
	}
	if cfg.NodeLogFile != "" {
		tailer := alerts.New(cfg.NodeLogFile, logMaker.NewLogger("ALRT"))
		workers = append(workers, guard.NewStartStopWaiter(tailer))
	}

	return guard.Supervise(ctx, log, superviseInterval, workers...)
}

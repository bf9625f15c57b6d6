// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

package app

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/jessevdk/go-flags"
)

const (
	defaultClientRPCHost    = "127.0.0.1:5555"
	defaultServiceRPCHost   = "127.0.0.1:5556"
	defaultChallengeHost    = "http://coordinator:3333"
	defaultBidLimit         = 15.0
	defaultServiceBlockTime = 60
	defaultClientBlockTime  = 60
	defaultAddressPrefix    = 235
	defaultChainAsset       = "CBT"
	defaultLogLevel         = "debug"
	configFilename          = "guardnode.conf"
)

var (
	defaultApplicationDirectory = btcutil.AppDataDir("guardnode", false)
	defaultConfigPath           = filepath.Join(defaultApplicationDirectory, configFilename)
)

// RPCConfig is the connection settings for one chain node.
type RPCConfig struct {
	Host string
	User string
	Pass string
}

// Config is the application configuration, populated from the CLI and an
// optional INI file, CLI values taking precedence.
type Config struct {
	ClientRPCHost string `long:"rpchost" description:"Client chain RPC host:port"`
	ClientRPCUser string `long:"rpcuser" description:"Client chain RPC username"`
	ClientRPCPass string `long:"rpcpass" description:"Client chain RPC password"`

	ServiceRPCHost string `long:"servicerpchost" description:"Service chain RPC host:port"`
	ServiceRPCUser string `long:"servicerpcuser" description:"Service chain RPC username"`
	ServiceRPCPass string `long:"servicerpcpass" description:"Service chain RPC password"`

	ChallengeHost string `long:"challengehost" description:"Coordinator base URL receiving challenge proofs"`

	BidLimit         float64 `long:"bidlimit" description:"Maximum auction price to bid"`
	BidFee           float64 `long:"bidfee" description:"Fixed starting bid fee, used until the fee oracle produces estimates"`
	BidPubKey        string  `long:"bidpubkey" description:"Fixed fee pubkey for all bids. Must be owned by the client wallet. Omit to generate one at startup"`
	UniqueBidPubKeys bool    `long:"uniquebidpubkeys" description:"Generate a fresh fee pubkey for every bid"`

	ServiceBlockTime uint   `long:"serviceblocktime" description:"Service chain block time in seconds, sets the request poll interval"`
	ClientBlockTime  uint   `long:"clientblocktime" description:"Client chain block time in seconds, sets the challenge poll interval"`
	AddressPrefix    uint   `long:"addressprefix" description:"Chain P2PKH address prefix"`
	ChainAsset       string `long:"asset" description:"Domain asset used for bid collateral"`
	NodeLogFile      string `long:"nodelogfile" description:"Client node log file to tail for ERROR lines"`

	AppData    string `long:"appdata" description:"Path to application directory"`
	ConfigPath string `long:"config" description:"Path to an INI configuration file"`
	LogPath    string `long:"logpath" description:"A file to save app logs"`
	DebugLevel string `long:"log" description:"Logging level {trace, debug, info, warn, error, critical}"`
	LocalLogs  bool   `long:"loglocal" description:"Use local time zone time stamps in log entries"`
	ShowVer    bool   `short:"V" long:"version" description:"Display version information and exit"`
}

// DefaultConfig is the starting configuration before any parsing.
var DefaultConfig = Config{
	ClientRPCHost:    defaultClientRPCHost,
	ServiceRPCHost:   defaultServiceRPCHost,
	ChallengeHost:    defaultChallengeHost,
	BidLimit:         defaultBidLimit,
	ServiceBlockTime: defaultServiceBlockTime,
	ClientBlockTime:  defaultClientBlockTime,
	AddressPrefix:    defaultAddressPrefix,
	ChainAsset:       defaultChainAsset,
	AppData:          defaultApplicationDirectory,
	ConfigPath:       defaultConfigPath,
	DebugLevel:       defaultLogLevel,
}

// ClientRPC returns the client chain node connection settings.
func (cfg *Config) ClientRPC() *RPCConfig {
	return &RPCConfig{Host: cfg.ClientRPCHost, User: cfg.ClientRPCUser, Pass: cfg.ClientRPCPass}
}

// ServiceRPC returns the service chain node connection settings.
func (cfg *Config) ServiceRPC() *RPCConfig {
	return &RPCConfig{Host: cfg.ServiceRPCHost, User: cfg.ServiceRPCUser, Pass: cfg.ServiceRPCPass}
}

// ParseCLIConfig parses the command-line arguments into the provided struct
// with go-flags tags. If the --help flag has been passed, the struct is
// described back to the terminal and the program exits.
func ParseCLIConfig(cfg any) error {
	preParser := flags.NewParser(cfg, flags.HelpFlag|flags.PassDoubleDash)
	_, flagerr := preParser.Parse()
	if flagerr != nil {
		e, ok := flagerr.(*flags.Error)
		if !ok || e.Type != flags.ErrHelp {
			preParser.WriteHelp(os.Stderr)
		}
		if ok && e.Type == flags.ErrHelp {
			preParser.WriteHelp(os.Stdout)
			os.Exit(0)
		}
		return flagerr
	}
	return nil
}

// ParseFileConfig parses the INI file into the provided struct with go-flags
// tags. The CLI args are then parsed again, and take precedence over the
// file values. A missing file is not an error.
func ParseFileConfig(path string, cfg any) error {
	parser := flags.NewParser(cfg, flags.Default)
	err := flags.NewIniParser(parser).ParseFile(path)
	if err != nil {
		if _, ok := err.(*os.PathError); !ok {
			fmt.Fprintln(os.Stderr, err)
			parser.WriteHelp(os.Stderr)
			return err
		}
	}
	_, err = parser.Parse()
	if err != nil {
		if e, ok := err.(*flags.Error); !ok || e.Type != flags.ErrHelp {
			parser.WriteHelp(os.Stderr)
		}
		return err
	}
	return nil
}

// ResolveConfig fills derivative fields and creates the application
// directory.
func ResolveConfig(cfg *Config) error {
	if cfg.AppData != defaultApplicationDirectory && cfg.ConfigPath == defaultConfigPath {
		cfg.ConfigPath = filepath.Join(cfg.AppData, configFilename)
	}
	if err := os.MkdirAll(cfg.AppData, 0700); err != nil {
		return fmt.Errorf("failed to create application directory: %w", err)
	}
	if cfg.LogPath == "" {
		logDirectory := filepath.Join(cfg.AppData, "logs")
		if err := os.MkdirAll(logDirectory, 0700); err != nil {
			return fmt.Errorf("failed to create log directory: %w", err)
		}
		cfg.LogPath = filepath.Join(logDirectory, "guardnode.log")
	}
	if cfg.AddressPrefix > 255 {
		return fmt.Errorf("address prefix %d out of range", cfg.AddressPrefix)
	}
	return nil
}

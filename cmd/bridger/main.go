package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"t3rn-bridge/pkg/bridger"
	"t3rn-bridge/pkg/network"
	"t3rn-bridge/pkg/shared"

	"github.com/olekukonko/tablewriter"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"
)

var (
	optionConfig = &cli.StringFlag{
		Name:     "config",
		Usage:    "path to bridger config file",
		Required: false, // Can also set config via env vars
		EnvVars:  []string{"BRIDGER_CONFIG"},
	}
	optionNetwork = &cli.StringFlag{
		Name:     "network",
		Usage:    "network whose pending transactions are cancelled (base or op-sepolia)",
		Required: true,
	}
	optionTimeout = &cli.DurationFlag{
		Name:  "timeout",
		Usage: "how long to wait for replacements to be mined",
		Value: 5 * time.Minute,
	}
)

// shutdownWait outlasts bridger.CloseTimeout so a stuck loop is reported.
const shutdownWait = bridger.CloseTimeout + time.Second

func main() {
	app := &cli.App{
		Name:  "t3rn-bridger",
		Usage: "Bridge ether back and forth between Base Sepolia and OP Sepolia",
		Commands: []*cli.Command{
			{
				Name:  "start",
				Usage: "Start the bridge loop",
				Flags: []cli.Flag{
					optionConfig,
				},
				Action: func(c *cli.Context) error {
					return start(c)
				},
			},
			{
				Name:  "balances",
				Usage: "Print every wallet's balance on both networks",
				Flags: []cli.Flag{
					optionConfig,
				},
				Action: func(c *cli.Context) error {
					return balances(c)
				},
			},
			{
				Name:  "cancel-pending",
				Usage: "Replace every pending transaction of each wallet with a self-transfer",
				Flags: []cli.Flag{
					optionConfig,
					optionNetwork,
					optionTimeout,
				},
				Action: func(c *cli.Context) error {
					return cancelPending(c)
				},
			},
		}}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(app.Writer, "==== bridger exited with error ====\n%v\n", err)
		os.Exit(1)
	}
}

func setupLogging(logLevel string) {
	lvl, err := zerolog.ParseLevel(logLevel)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to parse log level")
	}
	zerolog.SetGlobalLevel(lvl)
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.DateTime})
}

// loadConfig layers the config file over env vars, checks the result and
// sets up logging.
func loadConfig(c *cli.Context) (*config, error) {
	cfg, err := loadConfigFromEnv()
	if err != nil {
		return nil, err
	}

	configFilePath := c.String(optionConfig.Name)
	if configFilePath == "" {
		log.Info().Msg("env var config will be used")
	} else {
		log.Info().Str("config_file", configFilePath).Msg(
			"overriding env var config with file")
		if err := loadConfigFromFile(&cfg, configFilePath); err != nil {
			return nil, err
		}
	}

	if err := checkConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	setupLogging(cfg.LogLevel)
	return &cfg, nil
}

func start(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	opts, err := cfg.bridgerOptions()
	if err != nil {
		return err
	}
	b, err := bridger.New(opts)
	if err != nil {
		return err
	}

	log.Info().
		Int("wallets", len(opts.Wallets)).
		Str("initial_network", cfg.InitialNetwork).
		Msg("starting bridge loop")
	done := b.Start(c.Context)

	interruptSigChan := make(chan os.Signal, 1)
	signal.Notify(interruptSigChan, os.Interrupt, syscall.SIGTERM)

	// Block until interrupt signal, the loop exits, or the context is done.
	select {
	case <-interruptSigChan:
		fmt.Fprintf(c.App.Writer, "==== interrupted ====\n")
	case <-done:
		return b.Err()
	case <-c.Done():
	}
	fmt.Fprintf(c.App.Writer, "shutting down...\n")

	closedAllSuccessfully := make(chan struct{})
	go func() {
		defer close(closedAllSuccessfully)

		if err := b.TryCloseAll(); err != nil {
			log.Error().Err(err).Msg("failed to close bridge loop")
		}
	}()
	select {
	case <-closedAllSuccessfully:
		fmt.Fprintf(c.App.Writer, "%d successful transactions\n", b.SuccessfulTxs())
	case <-time.After(shutdownWait):
		log.Error().Msg("failed to close all in time")
	}
	return nil
}

func balances(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	opts, err := cfg.bridgerOptions()
	if err != nil {
		return err
	}
	b, err := bridger.New(opts)
	if err != nil {
		return err
	}

	renderBalances(c.App.Writer, b.Balances(c.Context))
	return nil
}

func renderBalances(w io.Writer, reports []bridger.BalanceReport) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Wallet", "Address", "Chain", "Balance"})
	for _, r := range reports {
		balance := r.Balance.StringFixed(5)
		if r.Err != nil {
			balance = "error: " + r.Err.Error()
		}
		table.Append([]string{r.Label, r.Address.Hex(), r.Chain, balance})
	}
	table.Render()
}

func cancelPending(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	n, err := network.ParseNetwork(c.String(optionNetwork.Name))
	if err != nil {
		return err
	}
	desc := cfg.descriptors().Get(n)
	wallets, err := cfg.loadWallets()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(c.Context)
	defer cancel()
	client, err := shared.Connect(ctx, shared.DialEthClient, desc.RPCURL, cfg.ConnectAttempts, cfg.ConnectBackoff)
	if err != nil {
		return err
	}
	defer client.Close()

	for _, w := range wallets {
		log.Info().Str("wallet", w.Label).Str("network", n.String()).Msg("cancelling pending transactions")
		if err := shared.CancelPendingTxes(ctx, client, w.Signer, desc.ChainID, c.Duration(optionTimeout.Name), 5*time.Second); err != nil {
			return fmt.Errorf("failed to cancel pending transactions of %s: %w", w.Label, err)
		}
	}
	return nil
}

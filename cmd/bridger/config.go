package main

import (
	"fmt"
	"math/big"
	"os"
	"strings"
	"time"

	"t3rn-bridge/pkg/bridger"
	"t3rn-bridge/pkg/metrics"
	"t3rn-bridge/pkg/network"
	"t3rn-bridge/pkg/payload"
	"t3rn-bridge/pkg/shared"
	"t3rn-bridge/pkg/state"
	"t3rn-bridge/pkg/transfer"

	"github.com/ethereum/go-ethereum/common"
	"github.com/kelseyhightower/envconfig"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v2"
)

const envPrefix = "BRIDGER"

type networkConfig struct {
	RPCURL       string `yaml:"rpc_url" envconfig:"RPC_URL"`
	ChainID      int64  `yaml:"chain_id" envconfig:"CHAIN_ID"`
	ContractAddr string `yaml:"contract_addr" envconfig:"CONTRACT_ADDR"`
	ExplorerURL  string `yaml:"explorer_url" envconfig:"EXPLORER_URL"`
}

type networksConfig struct {
	Base      networkConfig `yaml:"base" envconfig:"BASE"`
	OPSepolia networkConfig `yaml:"op_sepolia" envconfig:"OP_SEPOLIA"`
}

type templateConfig struct {
	Data   string `yaml:"data" envconfig:"DATA"`
	Offset int    `yaml:"offset" envconfig:"OFFSET"`
}

type templatesConfig struct {
	BaseToOP templateConfig `yaml:"base_to_op" envconfig:"BASE_TO_OP"`
	OPToBase templateConfig `yaml:"op_to_base" envconfig:"OP_TO_BASE"`
}

type walletConfig struct {
	Label       string `yaml:"label"`
	PrivateKey  string `yaml:"private_key"`
	PrivKeyFile string `yaml:"priv_key_file"`
}

type config struct {
	LogLevel       string `yaml:"log_level" envconfig:"LOG_LEVEL"`
	InitialNetwork string `yaml:"initial_network" envconfig:"INITIAL_NETWORK"`

	MinBalanceETH      string  `yaml:"min_balance_eth" envconfig:"MIN_BALANCE_ETH"`
	AmountETH          string  `yaml:"amount_eth" envconfig:"AMOUNT_ETH"`
	AmountMinETH       string  `yaml:"amount_min_eth" envconfig:"AMOUNT_MIN_ETH"`
	AmountMaxETH       string  `yaml:"amount_max_eth" envconfig:"AMOUNT_MAX_ETH"`
	PriorityFeeGwei    string  `yaml:"priority_fee_gwei" envconfig:"PRIORITY_FEE_GWEI"`
	GasLimitMultiplier float64 `yaml:"gas_limit_multiplier" envconfig:"GAS_LIMIT_MULTIPLIER"`
	GasLimitPad        uint64  `yaml:"gas_limit_pad" envconfig:"GAS_LIMIT_PAD"`

	ConfirmTimeout  time.Duration `yaml:"confirm_timeout" envconfig:"CONFIRM_TIMEOUT"`
	Cooldown        time.Duration `yaml:"cooldown" envconfig:"COOLDOWN"`
	ConnectAttempts int           `yaml:"connect_attempts" envconfig:"CONNECT_ATTEMPTS"`
	ConnectBackoff  time.Duration `yaml:"connect_backoff" envconfig:"CONNECT_BACKOFF"`
	WalletDelayMin  time.Duration `yaml:"wallet_delay_min" envconfig:"WALLET_DELAY_MIN"`
	WalletDelayMax  time.Duration `yaml:"wallet_delay_max" envconfig:"WALLET_DELAY_MAX"`
	RoundDelayMin   time.Duration `yaml:"round_delay_min" envconfig:"ROUND_DELAY_MIN"`
	RoundDelayMax   time.Duration `yaml:"round_delay_max" envconfig:"ROUND_DELAY_MAX"`
	MaxRounds       int           `yaml:"max_rounds" envconfig:"MAX_ROUNDS"`

	Networks  networksConfig  `yaml:"networks" envconfig:"NETWORKS"`
	Templates templatesConfig `yaml:"templates" envconfig:"TEMPLATES"`

	Wallets []walletConfig `yaml:"wallets" ignored:"true"`
	// PrivateKeys is the env-only way to list wallets, comma separated.
	PrivateKeys []string `yaml:"-" envconfig:"PRIVATE_KEYS"`

	B2NRPCURL string `yaml:"b2n_rpc_url" envconfig:"B2N_RPC_URL"`

	DatadogAPIKey string   `yaml:"datadog_api_key" envconfig:"DD_API_KEY"`
	DatadogAppKey string   `yaml:"datadog_app_key" envconfig:"DD_APP_KEY"`
	DatadogTags   []string `yaml:"datadog_tags" envconfig:"DD_TAGS"`
}

// loadConfigFromEnv reads BRIDGER_* variables. DD_API_KEY and DD_APP_KEY are
// also accepted without the prefix.
func loadConfigFromEnv() (config, error) {
	var cfg config
	if err := envconfig.Process(envPrefix, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to process env config: %w", err)
	}
	return cfg, nil
}

func loadConfigFromFile(cfg *config, filePath string) error {
	buf, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("failed to read config file at: %s, %w", filePath, err)
	}
	if err := yaml.Unmarshal(buf, cfg); err != nil {
		return fmt.Errorf("failed to unmarshal config file at: %s, %w", filePath, err)
	}
	return nil
}

// checkConfig fills unset fields with defaults and validates the rest.
func checkConfig(cfg *config) error {
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if _, err := zerolog.ParseLevel(cfg.LogLevel); err != nil {
		return fmt.Errorf("invalid log_level %q", cfg.LogLevel)
	}

	if cfg.InitialNetwork == "" {
		cfg.InitialNetwork = network.Base.String()
	}
	if _, err := network.ParseNetwork(cfg.InitialNetwork); err != nil {
		return fmt.Errorf("invalid initial_network: %w", err)
	}

	defaults := transfer.DefaultOptions()
	defaultBridger := bridger.DefaultOptions()
	defaultDelay := bridger.DefaultDelay()

	setDefault(&cfg.MinBalanceETH, defaultBridger.MinBalance.String())
	setDefault(&cfg.AmountETH, defaults.Amount.String())
	setDefault(&cfg.AmountMinETH, defaults.AmountMin.String())
	setDefault(&cfg.AmountMaxETH, defaults.AmountMax.String())
	setDefault(&cfg.PriorityFeeGwei, shared.WeiToEther(defaults.PriorityFee).Shift(9).String())
	for name, v := range map[string]string{
		"min_balance_eth":   cfg.MinBalanceETH,
		"amount_eth":        cfg.AmountETH,
		"amount_min_eth":    cfg.AmountMinETH,
		"amount_max_eth":    cfg.AmountMaxETH,
		"priority_fee_gwei": cfg.PriorityFeeGwei,
	} {
		d, err := decimal.NewFromString(v)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", name, v, err)
		}
		if d.IsNegative() {
			return fmt.Errorf("%s must not be negative", name)
		}
	}

	if cfg.GasLimitMultiplier == 0 {
		cfg.GasLimitMultiplier = defaults.GasLimitMultiplier
	}
	if cfg.GasLimitMultiplier < 1 {
		return fmt.Errorf("gas_limit_multiplier must be at least 1")
	}

	setDefaultDuration(&cfg.ConfirmTimeout, defaults.ConfirmTimeout)
	setDefaultDuration(&cfg.Cooldown, defaults.Cooldown)
	setDefaultDuration(&cfg.ConnectBackoff, defaultBridger.ConnectBackoff)
	setDefaultDuration(&cfg.WalletDelayMin, defaultDelay.WalletMin)
	setDefaultDuration(&cfg.WalletDelayMax, defaultDelay.WalletMax)
	setDefaultDuration(&cfg.RoundDelayMin, defaultDelay.RoundMin)
	setDefaultDuration(&cfg.RoundDelayMax, defaultDelay.RoundMax)
	if cfg.ConfirmTimeout < 0 || cfg.Cooldown < 0 || cfg.ConnectBackoff < 0 {
		return fmt.Errorf("durations must not be negative")
	}
	if cfg.WalletDelayMin < 0 || cfg.WalletDelayMax < cfg.WalletDelayMin {
		return fmt.Errorf("wallet_delay_min must be in [0, wallet_delay_max]")
	}
	if cfg.RoundDelayMin < 0 || cfg.RoundDelayMax < cfg.RoundDelayMin {
		return fmt.Errorf("round_delay_min must be in [0, round_delay_max]")
	}

	if cfg.ConnectAttempts == 0 {
		cfg.ConnectAttempts = defaultBridger.ConnectAttempts
	}
	if cfg.ConnectAttempts < 0 {
		return fmt.Errorf("connect_attempts must be positive")
	}
	if cfg.MaxRounds < 0 {
		return fmt.Errorf("max_rounds must not be negative")
	}

	defaultNetworks := network.DefaultDescriptors()
	if err := checkNetwork("base", &cfg.Networks.Base, defaultNetworks.Base); err != nil {
		return err
	}
	if err := checkNetwork("op_sepolia", &cfg.Networks.OPSepolia, defaultNetworks.OPSepolia); err != nil {
		return err
	}

	if err := checkTemplate("base_to_op", cfg.Templates.BaseToOP); err != nil {
		return err
	}
	if err := checkTemplate("op_to_base", cfg.Templates.OPToBase); err != nil {
		return err
	}

	for _, k := range cfg.PrivateKeys {
		if k = strings.TrimSpace(k); k != "" {
			cfg.Wallets = append(cfg.Wallets, walletConfig{PrivateKey: k})
		}
	}
	cfg.PrivateKeys = nil
	if len(cfg.Wallets) == 0 {
		return fmt.Errorf("at least one wallet is required")
	}
	for i := range cfg.Wallets {
		w := &cfg.Wallets[i]
		if w.PrivateKey == "" && w.PrivKeyFile == "" {
			return fmt.Errorf("wallet %d: private_key or priv_key_file is required", i+1)
		}
		if w.Label == "" {
			w.Label = fmt.Sprintf("wallet-%d", i+1)
		}
	}

	if cfg.DatadogAPIKey != "" && cfg.DatadogAppKey == "" {
		return fmt.Errorf("datadog_app_key is required when datadog_api_key is set")
	}
	return nil
}

func setDefault(field *string, v string) {
	if *field == "" {
		*field = v
	}
}

func setDefaultDuration(field *time.Duration, v time.Duration) {
	if *field == 0 {
		*field = v
	}
}

func checkNetwork(name string, n *networkConfig, def network.Descriptor) error {
	setDefault(&n.RPCURL, def.RPCURL)
	setDefault(&n.ExplorerURL, def.ExplorerURL)
	if n.ChainID == 0 {
		n.ChainID = def.ChainID.Int64()
	}
	if n.ChainID < 0 {
		return fmt.Errorf("networks.%s.chain_id must be positive", name)
	}
	if n.ContractAddr == "" {
		return fmt.Errorf("networks.%s.contract_addr is required", name)
	}
	if !common.IsHexAddress(n.ContractAddr) || common.HexToAddress(n.ContractAddr) == (common.Address{}) {
		return fmt.Errorf("networks.%s.contract_addr %q is not a valid address", name, n.ContractAddr)
	}
	return nil
}

func checkTemplate(name string, t templateConfig) error {
	if t.Data == "" {
		return fmt.Errorf("templates.%s.data is required", name)
	}
	if !strings.HasPrefix(t.Data, "0x") && !strings.HasPrefix(t.Data, "0X") {
		return fmt.Errorf("templates.%s.data must be 0x prefixed hex", name)
	}
	if !payload.IsWordAligned(t.Offset) {
		return fmt.Errorf("templates.%s.offset %d is not at the start of an argument word", name, t.Offset)
	}
	if _, err := payload.Patch(t.Data, common.Address{}.Hex(), t.Offset); err != nil {
		return fmt.Errorf("templates.%s: %w", name, err)
	}
	return nil
}

func (c *config) descriptors() network.Descriptors {
	desc := func(n network.Network, nc networkConfig) network.Descriptor {
		return network.Descriptor{
			Network:         n,
			RPCURL:          nc.RPCURL,
			ExplorerURL:     nc.ExplorerURL,
			ContractAddress: common.HexToAddress(nc.ContractAddr),
			ChainID:         big.NewInt(nc.ChainID),
		}
	}
	return network.Descriptors{
		Base:      desc(network.Base, c.Networks.Base),
		OPSepolia: desc(network.OPSepolia, c.Networks.OPSepolia),
	}
}

func (c *config) transferOptions() transfer.Options {
	opts := transfer.DefaultOptions()
	opts.Amount = decimal.RequireFromString(c.AmountETH)
	opts.AmountMin = decimal.RequireFromString(c.AmountMinETH)
	opts.AmountMax = decimal.RequireFromString(c.AmountMaxETH)
	opts.PriorityFee = shared.GweiToWei(decimal.RequireFromString(c.PriorityFeeGwei))
	opts.GasLimitMultiplier = c.GasLimitMultiplier
	opts.GasLimitPad = c.GasLimitPad
	opts.Cooldown = c.Cooldown
	opts.ConfirmTimeout = c.ConfirmTimeout
	return opts
}

func (c *config) loadWallets() ([]bridger.Wallet, error) {
	wallets := make([]bridger.Wallet, 0, len(c.Wallets))
	for _, w := range c.Wallets {
		key, err := shared.LoadKey(w.PrivateKey, w.PrivKeyFile)
		if err != nil {
			return nil, fmt.Errorf("wallet %s: %w", w.Label, err)
		}
		wallets = append(wallets, bridger.Wallet{Label: w.Label, Signer: shared.NewKeySigner(key)})
	}
	return wallets, nil
}

// bridgerOptions assembles the loop's dependencies from a checked config.
func (c *config) bridgerOptions() (*bridger.Options, error) {
	wallets, err := c.loadWallets()
	if err != nil {
		return nil, err
	}
	addrs := make([]common.Address, 0, len(wallets))
	for _, w := range wallets {
		addrs = append(addrs, w.Signer.Address())
	}
	initial, err := network.ParseNetwork(c.InitialNetwork)
	if err != nil {
		return nil, err
	}
	tracker := state.NewTracker(addrs, initial)

	submitter, err := transfer.NewSubmitter(c.transferOptions(), tracker)
	if err != nil {
		return nil, err
	}

	opts := bridger.DefaultOptions()
	opts.Wallets = wallets
	opts.Networks = c.descriptors()
	opts.Templates = map[network.Direction]payload.Template{
		network.BaseToOP: {Data: c.Templates.BaseToOP.Data, Offset: c.Templates.BaseToOP.Offset},
		network.OPToBase: {Data: c.Templates.OPToBase.Data, Offset: c.Templates.OPToBase.Offset},
	}
	opts.Tracker = tracker
	opts.Submitter = submitter
	opts.MinBalance = decimal.RequireFromString(c.MinBalanceETH)
	opts.ConnectAttempts = c.ConnectAttempts
	opts.ConnectBackoff = c.ConnectBackoff
	opts.Delay = bridger.NewRandomDelay(c.WalletDelayMin, c.WalletDelayMax, c.RoundDelayMin, c.RoundDelayMax)
	opts.SideChainRPCURL = c.B2NRPCURL
	opts.MaxRounds = c.MaxRounds
	if c.DatadogAPIKey != "" {
		opts.Metrics = metrics.NewDatadog(c.DatadogAPIKey, c.DatadogAppKey, c.DatadogTags)
	}
	return &opts, nil
}

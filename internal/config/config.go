package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds the YAML configuration.
type Config struct {
	Version   int                    `yaml:"version"`
	Global    GlobalConfig           `yaml:"global"`
	Chains    map[string]Chain       `yaml:"chains"`
	Contracts map[string]Contract    `yaml:"contracts"`
	Accounts  map[string]Account     `yaml:"accounts"`
	Blocks    map[string]BlockSource `yaml:"blocks"`
	Routes    []Route                `yaml:"routes"`
	Sinks     []Sink                 `yaml:"sinks"`

	// Dir is the directory the config was loaded from. Relative abi paths resolve against it.
	Dir string `yaml:"-"`
}

type GlobalConfig struct {
	Database Database `yaml:"database"`
}

// Database selects the store behind the handler context db handle.
type Database struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

type Chain struct {
	ID                uint64 `yaml:"id"`
	RPC               string `yaml:"rpc"`
	RequestsPerSecond int    `yaml:"requests_per_second"`
}

type Contract struct {
	ABI                        InterfaceSource `yaml:"abi"`
	ABIOpaque                  bool            `yaml:"abi_opaque"`
	Chain                      ChainBinding    `yaml:"chain"`
	Address                    string          `yaml:"address"`
	StartBlock                 uint64          `yaml:"start_block"`
	EndBlock                   *uint64         `yaml:"end_block"`
	IncludeTransactionReceipts bool            `yaml:"include_transaction_receipts"`
	IncludeCallTraces          bool            `yaml:"include_call_traces"`
}

type Account struct {
	Address    string       `yaml:"address"`
	Chain      ChainBinding `yaml:"chain"`
	StartBlock uint64       `yaml:"start_block"`
	EndBlock   *uint64      `yaml:"end_block"`
}

type BlockSource struct {
	Interval   uint64       `yaml:"interval"`
	StartBlock uint64       `yaml:"start_block"`
	EndBlock   *uint64      `yaml:"end_block"`
	Chain      ChainBinding `yaml:"chain"`
}

type Dedupe struct {
	Key string `yaml:"key"`
	TTL string `yaml:"ttl"`
}

// Route forwards occurrences of one catalog event to sinks.
type Route struct {
	ID     string   `yaml:"id"`
	Event  string   `yaml:"event"`
	Where  []string `yaml:"where"`
	Sinks  []string `yaml:"sinks"`
	Dedupe *Dedupe  `yaml:"dedupe,omitempty"`
}

type Sink struct {
	ID         string `yaml:"id"`
	Type       string `yaml:"type"`
	WebhookURL string `yaml:"webhook_url"`
	Template   string `yaml:"template"`
	URL        string `yaml:"url"`
	Method     string `yaml:"method"`
}

var envPattern = regexp.MustCompile(`\${([A-Za-z_][A-Za-z0-9_]*)}`)

// Load reads, interpolates env vars, parses YAML, and validates.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is required")
	}

	if err := loadDotEnv(path); err != nil {
		return nil, err
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg, err := Parse(raw)
	if err != nil {
		return nil, err
	}
	cfg.Dir = filepath.Dir(path)
	return cfg, nil
}

// Parse interpolates env vars in raw YAML, decodes and validates it.
func Parse(raw []byte) (*Config, error) {
	interpolated, err := interpolateEnv(string(raw))
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal([]byte(interpolated), &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func loadDotEnv(configPath string) error {
	envPath := filepath.Join(filepath.Dir(configPath), ".env")
	if _, err := os.Stat(envPath); err == nil {
		if err := godotenv.Load(envPath); err != nil {
			return fmt.Errorf("load .env: %w", err)
		}
	}
	return nil
}

// interpolateEnv expands ${VAR} references and reports every unset one at once.
func interpolateEnv(input string) (string, error) {
	unset := map[string]struct{}{}
	out := envPattern.ReplaceAllStringFunc(input, func(ref string) string {
		name := ref[2 : len(ref)-1]
		val, ok := os.LookupEnv(name)
		if !ok {
			unset[name] = struct{}{}
			return ref
		}
		return val
	})
	if len(unset) > 0 {
		return "", fmt.Errorf("missing environment variables: %s", strings.Join(sortedKeys(unset), ", "))
	}
	return out, nil
}

// Validate performs structural checks. Chain references are resolved later by the normalizer.
func (c *Config) Validate() error {
	if c.Version == 0 {
		return errors.New("version is required")
	}
	if len(c.Chains) == 0 {
		return errors.New("at least one chain is required")
	}
	if len(c.Contracts)+len(c.Accounts)+len(c.Blocks) == 0 {
		return errors.New("at least one contract, account, or block source is required")
	}
	if err := c.Global.Database.Validate(); err != nil {
		return fmt.Errorf("global.database: %w", err)
	}

	chainIDs := map[uint64]string{}
	for _, name := range sortedKeys(c.Chains) {
		ch := c.Chains[name]
		if err := validateName(name); err != nil {
			return fmt.Errorf("chain %q: %w", name, err)
		}
		if ch.ID == 0 {
			return fmt.Errorf("chain %s: id is required", name)
		}
		if other, exists := chainIDs[ch.ID]; exists {
			return fmt.Errorf("chain %s: id %d already used by chain %s", name, ch.ID, other)
		}
		chainIDs[ch.ID] = name
		if ch.RequestsPerSecond < 0 {
			return fmt.Errorf("chain %s: requests_per_second must not be negative", name)
		}
	}

	for _, name := range sortedKeys(c.Contracts) {
		ct := c.Contracts[name]
		if err := ct.Validate(name); err != nil {
			return fmt.Errorf("contract %s: %w", name, err)
		}
	}
	for _, name := range sortedKeys(c.Accounts) {
		a := c.Accounts[name]
		if err := a.Validate(name); err != nil {
			return fmt.Errorf("account %s: %w", name, err)
		}
	}
	for _, name := range sortedKeys(c.Blocks) {
		b := c.Blocks[name]
		if err := b.Validate(name); err != nil {
			return fmt.Errorf("block source %s: %w", name, err)
		}
	}

	sinkIDs := map[string]*Sink{}
	for i := range c.Sinks {
		s := &c.Sinks[i]
		if _, exists := sinkIDs[s.ID]; exists {
			return fmt.Errorf("duplicate sink id: %s", s.ID)
		}
		sinkIDs[s.ID] = s
		if err := s.Validate(); err != nil {
			return fmt.Errorf("sink %s: %w", s.ID, err)
		}
	}

	routeIDs := map[string]struct{}{}
	for _, r := range c.Routes {
		if _, exists := routeIDs[r.ID]; exists {
			return fmt.Errorf("duplicate route id: %s", r.ID)
		}
		routeIDs[r.ID] = struct{}{}
		if err := r.Validate(sinkIDs); err != nil {
			return fmt.Errorf("route %s: %w", r.ID, err)
		}
	}

	return nil
}

func (d *Database) Validate() error {
	switch strings.ToLower(d.Driver) {
	case "", "sqlite":
		return nil
	case "postgres":
		if d.DSN == "" {
			return errors.New("dsn is required for postgres")
		}
		return nil
	default:
		return fmt.Errorf("unsupported driver: %s", d.Driver)
	}
}

func (c *Contract) Validate(name string) error {
	if err := validateName(name); err != nil {
		return err
	}
	switch {
	case c.ABIOpaque && !c.ABI.IsZero():
		return errors.New("abi and abi_opaque are mutually exclusive")
	case !c.ABIOpaque && c.ABI.IsZero():
		return errors.New("abi is required")
	}
	if err := validateAddresses(c.Address, c.Chain); err != nil {
		return err
	}
	return validateWindow(c.StartBlock, c.EndBlock)
}

func (a *Account) Validate(name string) error {
	if err := validateName(name); err != nil {
		return err
	}
	if err := validateAddresses(a.Address, a.Chain); err != nil {
		return err
	}
	return validateWindow(a.StartBlock, a.EndBlock)
}

func (b *BlockSource) Validate(name string) error {
	if err := validateName(name); err != nil {
		return err
	}
	if b.Interval == 0 {
		return errors.New("interval must be positive")
	}
	for chain, o := range b.Chain.Overrides {
		if o.Interval != nil && *o.Interval == 0 {
			return fmt.Errorf("chain %s: interval must be positive", chain)
		}
	}
	return validateWindow(b.StartBlock, b.EndBlock)
}

func (r *Route) Validate(sinkIDs map[string]*Sink) error {
	if r.ID == "" {
		return errors.New("id is required")
	}
	if r.Event == "" {
		return errors.New("event is required")
	}
	if len(r.Sinks) == 0 {
		return errors.New("at least one sink is required")
	}
	for _, sinkID := range r.Sinks {
		if _, ok := sinkIDs[sinkID]; !ok {
			return fmt.Errorf("unknown sink: %s", sinkID)
		}
	}
	if r.Dedupe != nil {
		if r.Dedupe.Key == "" || r.Dedupe.TTL == "" {
			return errors.New("dedupe.key and dedupe.ttl are required when dedupe is set")
		}
		if _, err := time.ParseDuration(r.Dedupe.TTL); err != nil {
			return fmt.Errorf("dedupe.ttl: %w", err)
		}
	}
	return nil
}

// sinkTargets maps each sink type to the field holding its endpoint.
var sinkTargets = map[string]struct {
	field string
	url   func(*Sink) string
}{
	"slack":   {"webhook_url", func(s *Sink) string { return s.WebhookURL }},
	"teams":   {"webhook_url", func(s *Sink) string { return s.WebhookURL }},
	"webhook": {"url", func(s *Sink) string { return s.URL }},
}

func (s *Sink) Validate() error {
	if s.ID == "" {
		return errors.New("id is required")
	}
	if s.Type == "" {
		return errors.New("type is required")
	}
	kind := strings.ToLower(s.Type)
	target, ok := sinkTargets[kind]
	if !ok {
		return fmt.Errorf("unsupported sink type: %s", s.Type)
	}
	if target.url(s) == "" {
		return fmt.Errorf("%s is required for %s sinks", target.field, kind)
	}
	if kind == "webhook" && s.Method == "" {
		s.Method = "POST"
	}
	return nil
}

// validateName rejects names that would make catalog names ambiguous.
func validateName(name string) error {
	if name == "" {
		return errors.New("name is required")
	}
	if strings.ContainsAny(name, ":.() \t\n") {
		return fmt.Errorf("name %q must not contain ':', '.', parentheses or whitespace", name)
	}
	return nil
}

// validateAddresses requires a usable address for every bound chain.
func validateAddresses(global string, binding ChainBinding) error {
	if global != "" && !common.IsHexAddress(global) {
		return fmt.Errorf("invalid address: %s", global)
	}
	for chain, o := range binding.Overrides {
		if o.Address == nil {
			if global == "" {
				return fmt.Errorf("chain %s: address is required", chain)
			}
			continue
		}
		if !common.IsHexAddress(*o.Address) {
			return fmt.Errorf("chain %s: invalid address: %s", chain, *o.Address)
		}
	}
	if global == "" && len(binding.Overrides) == 0 {
		return errors.New("address is required")
	}
	return nil
}

func validateWindow(start uint64, end *uint64) error {
	if end != nil && *end < start {
		return fmt.Errorf("end_block %d is before start_block %d", *end, start)
	}
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

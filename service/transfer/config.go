package transfer

import (
	"fmt"
	"strings"
	"time"

	"github.com/brojonat/tronsend/service/network"
	"github.com/brojonat/tronsend/service/tron"
)

// Policy defaults. Tron produces a block every 3 seconds and a transaction is
// solidified roughly 19 blocks later.
const (
	DefaultMaxBroadcastAttempts = 3
	DefaultBaseBackoff          = time.Second
	DefaultMaxBackoff           = 8 * time.Second
	DefaultPollInterval         = 3 * time.Second
	DefaultMaxWait              = 90 * time.Second
)

// Config is everything one orchestration run needs. It is passed explicitly
// to New; nothing is read from process-wide state.
type Config struct {
	Network     string
	SigningKey  string       // hex private key; may be empty for build-only runs
	Signer      *tron.Signer // takes precedence over SigningKey; runs sharing it sign one at a time
	FromAddress string
	ToAddress   string
	Amount      uint64 // in SUN
	APIKey      string // TronGrid key, required for mainnet

	// DryRun builds and signs but never broadcasts.
	DryRun bool
	// BuildOnly stops after the remote has built the transaction; nothing is signed.
	BuildOnly bool
	// SkipConfirmation returns right after a successful broadcast.
	SkipConfirmation bool

	MaxBroadcastAttempts int
	BaseBackoff          time.Duration
	MaxBackoff           time.Duration
	PollInterval         time.Duration
	MaxWait              time.Duration
}

// WithDefaults returns a copy with zero policy values replaced by defaults.
func (c Config) WithDefaults() Config {
	if c.MaxBroadcastAttempts == 0 {
		c.MaxBroadcastAttempts = DefaultMaxBroadcastAttempts
	}
	if c.BaseBackoff == 0 {
		c.BaseBackoff = DefaultBaseBackoff
	}
	if c.MaxBackoff == 0 {
		c.MaxBackoff = DefaultMaxBackoff
	}
	if c.PollInterval == 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.MaxWait == 0 {
		c.MaxWait = DefaultMaxWait
	}
	return c
}

// Validate checks the config for completeness. It performs no I/O.
// All problems are reported together.
func (c Config) Validate() error {
	var problems []string

	if strings.TrimSpace(c.Network) == "" {
		problems = append(problems, "network is required")
	}
	if c.SigningKey == "" && c.Signer == nil && !c.BuildOnly {
		problems = append(problems, "signing key is required")
	}
	if c.FromAddress == "" {
		problems = append(problems, "from address is required")
	}
	if c.ToAddress == "" {
		problems = append(problems, "to address is required")
	}
	if c.Amount == 0 {
		problems = append(problems, "amount must be positive")
	}
	if n, err := network.ParseName(c.Network); err == nil && n == network.Mainnet && c.APIKey == "" {
		problems = append(problems, "api key is required for mainnet")
	}

	if c.MaxBroadcastAttempts < 1 {
		problems = append(problems, "max broadcast attempts must be at least 1")
	}
	if c.BaseBackoff <= 0 {
		problems = append(problems, "base backoff must be positive")
	}
	if c.MaxBackoff < c.BaseBackoff {
		problems = append(problems, "max backoff cannot be less than base backoff")
	}
	if c.PollInterval <= 0 {
		problems = append(problems, "poll interval must be positive")
	}
	if c.MaxWait < 0 {
		problems = append(problems, "max wait cannot be negative")
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrConfigurationIncomplete, strings.Join(problems, "; "))
	}
	return nil
}

// Redacted returns a copy safe to log or print.
func (c Config) Redacted() Config {
	if c.SigningKey != "" {
		c.SigningKey = "<redacted>"
	}
	if c.APIKey != "" {
		c.APIKey = "<redacted>"
	}
	c.Signer = nil
	return c
}

package seel

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/seelmesh/seel/internal/constants"
)

// ParentSelectionMode selects how a SNODE picks among competing
// beacons within one cycle (spec section 4.7.1).
type ParentSelectionMode string

const (
	SelFirstBroadcast ParentSelectionMode = "first_broadcast"
	SelImmediateRSSI  ParentSelectionMode = "immediate_rssi"
	SelPathRSSI       ParentSelectionMode = "path_rssi"
)

// GateMode selects the transmit gate's collision-avoidance strategy.
type GateMode string

const (
	GateTDMA               GateMode = "tdma"
	GateExponentialBackoff GateMode = "backoff"
)

// RadioConfig configures the physical layer. SEEL never negotiates
// these on the wire; every node in a network must agree out of band.
type RadioConfig struct {
	FrequencyHz     float64
	SpreadingFactor int // [7, 12]
	BandwidthHz     float64
	TXPowerDbm      int // [2, 20]
	CodingRate      int // [5, 8]
	CRCEnabled      bool
}

// FrameConfig sizes the wire frame.
type FrameConfig struct {
	UserSize  int
	DupWindow int
}

// NetworkConfig bounds the SNODE id space and liveness tolerance.
type NetworkConfig struct {
	MaxNodes       int
	MaxCycleMisses int
}

// SyncConfig configures beacon timing, the watchdog-drift estimator,
// and the transmit gate's slot sizing input.
type SyncConfig struct {
	CyclePeriod              time.Duration
	SNodeAwakeSecs           uint32
	TransmissionUpperBoundMs uint32
	InitialWatchdogEstimateMs uint32
	WatchdogTickMs           int
	EarlyWakeMs              uint32
}

// ForceSleepConfig configures the Force-Sleep escape hatch for a
// SNODE that stays awake too long without hearing a beacon.
type ForceSleepConfig struct {
	AwakeMult     uint32
	DurationScale uint32
	ResetCount    int // 0 disables Force-Sleep entirely
}

// GateConfig configures the transmit gate. Exactly one of the two
// sub-configs is consulted, selected by Mode.
type GateConfig struct {
	Mode GateMode

	TDMASlots      int
	TDMABufferMs   uint32
	TDMASingleSend bool

	EBInitMs uint32
	EBMinMs  uint32
	EBScale  uint32
}

// ParentSelectionConfig configures how a SNODE chooses among
// competing beacons.
type ParentSelectionConfig struct {
	Mode       ParentSelectionMode
	DurationMs uint32
}

// AssertionConfig configures the assertion log.
type AssertionConfig struct {
	Enabled    bool
	NVMEnabled bool
}

// Config is the full set of compile-time SEEL parameters (spec
// section 6). DefaultConfig returns sane values for a single-hop test
// network; production deployments override fields from a file or
// environment via LoadConfig.
type Config struct {
	Radio        RadioConfig
	Frame        FrameConfig
	Network      NetworkConfig
	Sync         SyncConfig
	ForceSleep   ForceSleepConfig
	Gate         GateConfig
	ParentSelect ParentSelectionConfig
	Assertion    AssertionConfig
}

// DefaultConfig returns the module's built-in defaults, all traceable
// to internal/constants.
func DefaultConfig() *Config {
	return &Config{
		Radio: RadioConfig{
			FrequencyHz:     915_000_000,
			SpreadingFactor: 9,
			BandwidthHz:     125_000,
			TXPowerDbm:      14,
			CodingRate:      5,
			CRCEnabled:      true,
		},
		Frame: FrameConfig{
			UserSize:  constants.DefaultUserSize,
			DupWindow: constants.DefaultDupWindow,
		},
		Network: NetworkConfig{
			MaxNodes:       constants.MaxNodes,
			MaxCycleMisses: constants.MaxCycleMisses,
		},
		Sync: SyncConfig{
			CyclePeriod:               constants.DefaultCyclePeriod,
			SNodeAwakeSecs:            constants.DefaultSNodeAwakeSecs,
			TransmissionUpperBoundMs:  constants.DefaultTransmissionUpperBoundMs,
			InitialWatchdogEstimateMs: constants.DefaultWatchdogEstimateMs,
			WatchdogTickMs:            constants.WatchdogTickMs,
			EarlyWakeMs:               constants.DefaultEarlyWakeMs,
		},
		ForceSleep: ForceSleepConfig{
			AwakeMult:     constants.DefaultForceSleepAwakeMult,
			DurationScale: constants.DefaultForceSleepDurationScale,
			ResetCount:    constants.DefaultForceSleepResetCount,
		},
		Gate: GateConfig{
			Mode:           GateTDMA,
			TDMASlots:      constants.DefaultTDMASlots,
			TDMABufferMs:   constants.DefaultTDMABufferMs,
			TDMASingleSend: true,
			EBInitMs:       constants.DefaultEBInitMs,
			EBMinMs:        constants.DefaultEBMinMs,
			EBScale:        constants.DefaultEBScale,
		},
		ParentSelect: ParentSelectionConfig{
			Mode:       SelPathRSSI,
			DurationMs: constants.DefaultPSelDurationMs,
		},
		Assertion: AssertionConfig{
			Enabled:    true,
			NVMEnabled: true,
		},
	}
}

// DataSize returns the full payload size (MiscSize + UserSize) this
// config's frames carry.
func (c *Config) DataSize() int {
	return constants.MiscSize + c.Frame.UserSize
}

// Validate rejects configurations that would violate a spec section 6
// or 3 invariant before any node is constructed from it.
func (c *Config) Validate() error {
	if c.Radio.SpreadingFactor < 7 || c.Radio.SpreadingFactor > 12 {
		return fmt.Errorf("seel: spreading factor %d out of [7,12]", c.Radio.SpreadingFactor)
	}
	if c.Radio.TXPowerDbm < 2 || c.Radio.TXPowerDbm > 20 {
		return fmt.Errorf("seel: tx power %d dBm out of [2,20]", c.Radio.TXPowerDbm)
	}
	if c.Radio.CodingRate < 5 || c.Radio.CodingRate > 8 {
		return fmt.Errorf("seel: coding rate %d out of [5,8]", c.Radio.CodingRate)
	}
	if c.Network.MaxNodes <= 0 || c.Network.MaxNodes > 256 {
		return fmt.Errorf("seel: max_nodes %d out of (0,256]", c.Network.MaxNodes)
	}
	if c.Network.MaxCycleMisses < 0 || c.Network.MaxCycleMisses > 127 {
		return fmt.Errorf("seel: max_cycle_misses %d out of [0,127]", c.Network.MaxCycleMisses)
	}
	if cycleSecs := uint32(c.Sync.CyclePeriod / time.Second); c.Sync.SNodeAwakeSecs == 0 || c.Sync.SNodeAwakeSecs >= cycleSecs {
		return fmt.Errorf("seel: sync.snode_awake_secs %d must be in (0,%d)", c.Sync.SNodeAwakeSecs, cycleSecs)
	}
	if c.ForceSleep.DurationScale <= 1 {
		return fmt.Errorf("seel: force_sleep duration_scale must be > 1, got %d", c.ForceSleep.DurationScale)
	}
	if c.ForceSleep.AwakeMult < 1 {
		return fmt.Errorf("seel: force_sleep awake_mult must be >= 1, got %d", c.ForceSleep.AwakeMult)
	}
	if c.Gate.Mode != GateTDMA && c.Gate.Mode != GateExponentialBackoff {
		return fmt.Errorf("seel: unknown gate mode %q", c.Gate.Mode)
	}
	return nil
}

// LoadConfig reads a SEEL config from path (any format viper
// understands: YAML, TOML, JSON) layered over DefaultConfig, and
// environment variables prefixed SEEL_ override any key.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	v := viper.New()
	v.SetEnvPrefix("seel")
	v.AutomaticEnv()
	bindDefaults(v, cfg)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("seel: reading config %s: %w", path, err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("seel: decoding config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func bindDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("radio", cfg.Radio)
	v.SetDefault("frame", cfg.Frame)
	v.SetDefault("network", cfg.Network)
	v.SetDefault("sync", cfg.Sync)
	v.SetDefault("forcesleep", cfg.ForceSleep)
	v.SetDefault("gate", cfg.Gate)
	v.SetDefault("parentselect", cfg.ParentSelect)
	v.SetDefault("assertion", cfg.Assertion)
}

package seel

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultConfigValidates(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())
}

func TestValidateRejectsOutOfRangeSpreadingFactor(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Radio.SpreadingFactor = 13
	require.Error(t, cfg.Validate())
}

func TestValidateRejectsOutOfRangeTXPower(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Radio.TXPowerDbm = 1
	require.Error(t, cfg.Validate())
}

func TestValidateRejectsTooManyMaxNodes(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Network.MaxNodes = 300
	require.Error(t, cfg.Validate())
}

func TestValidateRejectsForceSleepScaleNotGreaterThanOne(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ForceSleep.DurationScale = 1
	require.Error(t, cfg.Validate())
}

func TestValidateRejectsUnknownGateMode(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Gate.Mode = "carrier_sense"
	require.Error(t, cfg.Validate())
}

func TestValidateRejectsZeroSNodeAwakeSecs(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Sync.SNodeAwakeSecs = 0
	require.Error(t, cfg.Validate())
}

func TestValidateRejectsSNodeAwakeSecsNotLessThanCyclePeriod(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Sync.SNodeAwakeSecs = uint32(cfg.Sync.CyclePeriod.Seconds())
	require.Error(t, cfg.Validate())
}

func TestDataSizeIsMiscPlusUserSize(t *testing.T) {
	cfg := DefaultConfig()
	require.Equal(t, 16+cfg.Frame.UserSize, cfg.DataSize())
}

func TestLoadConfigWithoutPathReturnsDefaults(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)
	require.Equal(t, DefaultConfig().Gate.Mode, cfg.Gate.Mode)
}

func TestLoadConfigOverridesFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "seel.yaml")
	require.NoError(t, os.WriteFile(path, []byte("network:\n  maxnodes: 40\nradio:\n  spreadingfactor: 11\n"), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, 40, cfg.Network.MaxNodes)
	require.Equal(t, 11, cfg.Radio.SpreadingFactor)
}

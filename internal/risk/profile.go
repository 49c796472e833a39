package risk

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ProfileName identifies one of the built-in risk profiles.
type ProfileName string

const (
	ProfileConservative ProfileName = "conservative"
	ProfileModerate     ProfileName = "moderate"
	ProfileAggressive   ProfileName = "aggressive"
)

// Profile bundles the exit and entry thresholds applied per decision cycle.
// All percentage fields are expressed in percent, not fractions.
type Profile struct {
	StopLossPct     float64 `yaml:"stop_loss_pct"`
	TrailingDropPct float64 `yaml:"trailing_drop_pct"`
	MinProfitPct    float64 `yaml:"min_profit_pct"`
	MinScore        float64 `yaml:"min_score"`
	RSIBuy          float64 `yaml:"rsi_buy"`
}

var profiles = map[ProfileName]Profile{
	ProfileConservative: {StopLossPct: 1.0, TrailingDropPct: 0.2, MinProfitPct: 0.1, MinScore: 8, RSIBuy: 30},
	ProfileModerate:     {StopLossPct: 1.5, TrailingDropPct: 0.5, MinProfitPct: 0.2, MinScore: 6, RSIBuy: 35},
	ProfileAggressive:   {StopLossPct: 3.0, TrailingDropPct: 1.0, MinProfitPct: 0.4, MinScore: 5, RSIBuy: 45},
}

// ParseName validates a profile name coming from config or the store.
func ParseName(s string) (ProfileName, error) {
	switch ProfileName(s) {
	case ProfileConservative, ProfileModerate, ProfileAggressive:
		return ProfileName(s), nil
	}
	return "", fmt.Errorf("unknown risk profile %q", s)
}

// Lookup returns the thresholds for a profile name. Unknown names fall back
// to moderate so a corrupted store value cannot disable stops entirely.
func Lookup(name ProfileName) Profile {
	if p, ok := profiles[name]; ok {
		return p
	}
	return profiles[ProfileModerate]
}

// profileFile is the YAML override structure.
type profileFile struct {
	Profiles map[string]Profile `yaml:"profiles"`
}

// LoadOverrides replaces built-in profile thresholds from a YAML file. Only
// known profile names may be overridden; call before the trading loops start.
func LoadOverrides(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var file profileFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parse profile file: %w", err)
	}

	for name, p := range file.Profiles {
		parsed, err := ParseName(name)
		if err != nil {
			return err
		}
		profiles[parsed] = p
	}
	return nil
}

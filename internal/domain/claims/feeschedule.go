package claims

import (
	"fmt"
	"math"
	"strings"

	"github.com/spf13/viper"
)

// FeeSchedule maps a procedure code to its contracted allowed amount per unit.
type FeeSchedule map[string]float64

// DefaultFeeSchedule is the built-in schedule used when no file is configured.
func DefaultFeeSchedule() FeeSchedule {
	return FeeSchedule{
		"99213": 125.00,
		"99214": 185.00,
		"99215": 250.00,
		"99203": 165.00,
		"99204": 245.00,
		"99205": 325.00,
		"99281": 85.00,
		"99282": 140.00,
		"99283": 220.00,
		"99284": 360.00,
		"99285": 520.00,
		"27447": 1850.00,
		"43239": 950.00,
		"70553": 425.00,
		"71046": 65.00,
		"73721": 385.00,
		"90834": 110.00,
		"90837": 155.00,
	}
}

// Lookup returns the scheduled amount for code.
func (f FeeSchedule) Lookup(code string) (float64, bool) {
	amt, ok := f[code]
	return amt, ok
}

// LoadFeeSchedule reads a YAML, JSON or TOML file with a top-level "fees"
// table of procedure code to amount. Codes are upper-cased since viper
// lower-cases keys.
func LoadFeeSchedule(path string) (FeeSchedule, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read fee schedule %s: %w", path, err)
	}

	raw := map[string]float64{}
	if err := v.UnmarshalKey("fees", &raw); err != nil {
		return nil, fmt.Errorf("decode fee schedule %s: %w", path, err)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("fee schedule %s has no entries under \"fees\"", path)
	}

	fs := make(FeeSchedule, len(raw))
	for code, amt := range raw {
		if amt <= 0 || math.IsNaN(amt) || math.IsInf(amt, 0) {
			return nil, fmt.Errorf("fee schedule %s: invalid amount %v for %s", path, amt, code)
		}
		fs[strings.ToUpper(strings.TrimSpace(code))] = amt
	}
	return fs, nil
}

package models

import (
	"fmt"
	"strings"
)

// DaysPerMonth is the average month length used to turn monthly volumes into daily rates
const DaysPerMonth = 30.44

// BcfPerUnit returns how many Bcf one unit of the given volume unit holds.
// An empty unit is treated as MMcf, the unit of EIA monthly LNG exports.
func BcfPerUnit(unit string) (float64, error) {
	switch strings.ToLower(strings.TrimSpace(unit)) {
	case "", "mmcf":
		return 1.0 / 1000.0, nil
	case "bcf":
		return 1.0, nil
	case "mcf":
		return 1.0 / 1e6, nil
	case "tcf":
		return 1000.0, nil
	default:
		return 0, fmt.Errorf("unknown volume unit: %q", unit)
	}
}

// Package device models the current-measured equipment of an autoclave as a
// closed variant: the circulation fan, or one of the heaters.
package device

import (
	"fmt"
	"strconv"
	"strings"

	"curewatch/internal/faults"
)

type family int

const (
	familyFan family = iota
	familyHeater
)

// Kind is either Fan() or Heater(id). The zero value is the fan.
type Kind struct {
	family family
	heater int
}

// Target channels shared by every device.
var targets = []string{"value_0", "value_10", "value_20"}

// Fan returns the fan device.
func Fan() Kind { return Kind{family: familyFan} }

// Heater returns heater id; 0 is the combined heater file, 1 and 2 the
// individual heater banks.
func Heater(id int) Kind { return Kind{family: familyHeater, heater: id} }

// Parse accepts fan, heater, heater1, heater2 and heater-1 style names. When
// name is "heater", heaterID selects the bank.
func Parse(name string, heaterID int) (Kind, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	var k Kind
	switch {
	case n == "fan":
		return Fan(), nil
	case n == "heater":
		k = Heater(heaterID)
	case strings.HasPrefix(n, "heater"):
		id, err := strconv.Atoi(strings.TrimPrefix(strings.TrimPrefix(n, "heater"), "-"))
		if err != nil {
			return Kind{}, faults.Wrap(faults.ErrValidation, "device", "parse", fmt.Sprintf("unknown device %q", name), nil)
		}
		k = Heater(id)
	default:
		return Kind{}, faults.Wrap(faults.ErrValidation, "device", "parse", fmt.Sprintf("unknown device %q", name), nil)
	}
	if k.heater < 0 || k.heater > 2 {
		return Kind{}, faults.Wrap(faults.ErrValidation, "device", "parse", fmt.Sprintf("heater id %d out of range 0-2", k.heater), nil)
	}
	return k, nil
}

// IsHeater reports whether k is a heater.
func (k Kind) IsHeater() bool { return k.family == familyHeater }

// HeaterID returns the heater bank, 0 for the fan.
func (k Kind) HeaterID() int { return k.heater }

// String returns the store label: fan, heater, heater1, heater2.
func (k Kind) String() string {
	switch k.family {
	case familyFan:
		return "fan"
	case familyHeater:
		return "heater" + k.GroupSuffix()
	}
	panic("device: unknown family")
}

// GroupSuffix is appended to model group keys ("RECIPE" + "1").
func (k Kind) GroupSuffix() string {
	switch k.family {
	case familyFan:
		return ""
	case familyHeater:
		if k.heater == 0 {
			return ""
		}
		return strconv.Itoa(k.heater)
	}
	panic("device: unknown family")
}

// CurrentFile is the per-run current sensor file for the device.
func (k Kind) CurrentFile() string {
	switch k.family {
	case familyFan:
		return "current_fan.csv"
	case familyHeater:
		return "current_heater" + k.GroupSuffix() + ".csv"
	}
	panic("device: unknown family")
}

// Features returns the regression input columns.
func (k Kind) Features() []string {
	switch k.family {
	case familyFan:
		return []string{"PMV", "AMV"}
	case familyHeater:
		return []string{"PMV", "AMV", "AMV_slope"}
	}
	panic("device: unknown family")
}

// Targets returns the regression output columns.
func (k Kind) Targets() []string {
	return append([]string(nil), targets...)
}

// DropsZeros reports whether raw zero current samples are discarded. A
// heater reading zero is switched off, which is not a modeling target.
func (k Kind) DropsZeros() bool {
	switch k.family {
	case familyFan:
		return false
	case familyHeater:
		return true
	}
	panic("device: unknown family")
}

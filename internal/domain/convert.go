package domain

import "fmt"

const kgToLb = 2.2046226218

// ConvertWeight converts a weight value between "kg" and "lb".
// Returns v unchanged if from == to or if the units are unrecognised.
func ConvertWeight(v float64, from, to string) float64 {
	if from == to {
		return v
	}
	if from == "kg" && to == "lb" {
		return v * kgToLb
	}
	if from == "lb" && to == "kg" {
		return v / kgToLb
	}
	return v
}

// ToKilograms normalises a sample to the kilogram value stored in a Body.
// An empty unit means kilograms.
func ToKilograms(v float64, unit string) (float32, error) {
	switch unit {
	case "", "kg":
		return float32(v), nil
	case "lb":
		return float32(ConvertWeight(v, "lb", "kg")), nil
	default:
		return 0, fmt.Errorf("unit must be \"kg\" or \"lb\", got %q", unit)
	}
}

package program

import "fmt"

// PredictionType is the direction a trader bets on.
type PredictionType uint8

const (
	PredictionUp PredictionType = iota
	PredictionDown
)

func (t PredictionType) String() string {
	switch t {
	case PredictionUp:
		return "up"
	case PredictionDown:
		return "down"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(t))
	}
}

// Valid reports whether t is Up or Down.
func (t PredictionType) Valid() bool {
	return t == PredictionUp || t == PredictionDown
}

// ParsePredictionType accepts "up" or "down".
func ParsePredictionType(s string) (PredictionType, error) {
	switch s {
	case "up", "Up", "UP":
		return PredictionUp, nil
	case "down", "Down", "DOWN":
		return PredictionDown, nil
	}
	return 0, ErrInvalidPredictionType
}

// IsWinning evaluates a prediction. A price that did not move counts as Up.
func IsWinning(t PredictionType, startPrice, endPrice uint64) bool {
	switch t {
	case PredictionUp:
		return endPrice >= startPrice
	case PredictionDown:
		return endPrice < startPrice
	default:
		return false
	}
}

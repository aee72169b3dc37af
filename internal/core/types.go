package core

import "fmt"

// Interval is a supported bar interval
type Interval string

const (
	Interval1h Interval = "1h"
	Interval4h Interval = "4h"
	Interval1d Interval = "1d"
)

const secondsPerYear = 365 * 86400

// ParseInterval converts a config string into an Interval
func ParseInterval(s string) (Interval, error) {
	switch Interval(s) {
	case Interval1h, Interval4h, Interval1d:
		return Interval(s), nil
	}
	return "", WrapError(ErrUnknownInterval, fmt.Errorf("%q (want 1h, 4h or 1d)", s))
}

// Seconds returns the bar width in seconds, 0 for an unknown interval
func (i Interval) Seconds() int64 {
	switch i {
	case Interval1h:
		return 3600
	case Interval4h:
		return 14400
	case Interval1d:
		return 86400
	}
	return 0
}

// BarsPerYear returns how many bars of this interval fit in a 365-day year
func (i Interval) BarsPerYear() float64 {
	s := i.Seconds()
	if s == 0 {
		return 0
	}
	return float64(secondsPerYear) / float64(s)
}

// Direction is the side of an open position
type Direction string

const (
	Long  Direction = "long"
	Short Direction = "short"
)

// Valid reports whether d is a known direction
func (d Direction) Valid() bool {
	return d == Long || d == Short
}

// ExitReason records why a position was closed
type ExitReason string

const (
	ExitSignal         ExitReason = "signal"
	ExitStopLoss       ExitReason = "stop_loss"
	ExitTakeProfit     ExitReason = "take_profit"
	ExitTrailingStop   ExitReason = "trailing_stop"
	ExitCircuitBreaker ExitReason = "circuit_breaker"
	ExitEndOfData      ExitReason = "end_of_data"
)

// ExitReasons lists every exit reason in report order
var ExitReasons = []ExitReason{
	ExitSignal,
	ExitStopLoss,
	ExitTakeProfit,
	ExitTrailingStop,
	ExitCircuitBreaker,
	ExitEndOfData,
}

// Token identifies a tradable asset
type Token struct {
	ID     string // identifier understood by the price source
	Symbol string // display symbol
}

// PricePoint is a raw observation from a price source
type PricePoint struct {
	Timestamp int64 // unix seconds
	Price     float64
}

// PriceBar is one resampled bar. Timestamps are strictly increasing per token.
type PriceBar struct {
	Timestamp int64
	Price     float64
}

// IsValid checks if the bar can be traded against
func (b PriceBar) IsValid() bool {
	return b.Price > 0
}

// Level is an optional price level. The zero value is absent.
type Level struct {
	value float64
	set   bool
}

// SomeLevel returns a present level
func SomeLevel(v float64) Level {
	return Level{value: v, set: true}
}

// Get returns the level and whether it is present
func (l Level) Get() (float64, bool) {
	return l.value, l.set
}

// IsSet reports whether the level is present
func (l Level) IsSet() bool {
	return l.set
}

// SignalResult is the signal generator output for one token on one bar
type SignalResult struct {
	LongScore  float64 // 0-100
	ShortScore float64 // 0-100
	Indicators map[string]float64
	ATR        float64
}

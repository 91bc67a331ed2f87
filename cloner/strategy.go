package cloner

import "fmt"

// Strategy names a time-slot allocation policy for spreading cloned emails
// across a day.
type Strategy string

const (
	StrategyMorning   Strategy = "morning"
	StrategyAfternoon Strategy = "afternoon"
	StrategySmart     Strategy = "smart"
	StrategyCustom    Strategy = "custom"
)

const (
	morningHour   = 9
	afternoonHour = 14

	// slotInterval is the default cadence between slots within a tier.
	slotInterval = 5

	// smartOverflowIndex is where the smart strategy spills from the
	// morning tier into the afternoon tier.
	smartOverflowIndex = 12

	// customBandEndHour bounds the custom strategy's morning band at noon.
	customBandEndHour = 12
)

// CustomSlots configures the custom strategy: slots start at
// StartHour:StartMinute and advance by IntervalMinutes until the morning
// band is exhausted, then continue in the afternoon at the same cadence.
type CustomSlots struct {
	StartHour       int
	StartMinute     int
	IntervalMinutes int
}

func (c CustomSlots) interval() int {
	if c.IntervalMinutes <= 0 {
		return slotInterval
	}
	return c.IntervalMinutes
}

// bandCapacity is how many slots fit between the start time and noon.
func (c CustomSlots) bandCapacity() int {
	width := (customBandEndHour-c.StartHour)*60 - c.StartMinute
	if width <= 0 {
		return 0
	}
	return width / c.interval()
}

// ParseStrategy validates a strategy name.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case StrategyMorning, StrategyAfternoon, StrategySmart, StrategyCustom:
		return Strategy(s), nil
	}
	return "", fmt.Errorf("unknown strategy %q", s)
}

// Slot computes the hour and minute for the idx-th email of a day. Minutes
// past the hour roll over into the hour.
func (s Strategy) Slot(idx int, custom CustomSlots) (hour, minute int, err error) {
	switch s {
	case StrategyMorning:
		hour, minute = morningHour, idx*slotInterval
	case StrategyAfternoon:
		hour, minute = afternoonHour, idx*slotInterval
	case StrategySmart:
		if idx < smartOverflowIndex {
			hour, minute = morningHour, idx*slotInterval
		} else {
			hour, minute = afternoonHour, (idx-smartOverflowIndex)*slotInterval
		}
	case StrategyCustom:
		if capacity := custom.bandCapacity(); idx < capacity {
			hour, minute = custom.StartHour, custom.StartMinute+idx*custom.interval()
		} else {
			hour, minute = afternoonHour, (idx-custom.bandCapacity())*custom.interval()
		}
	default:
		return 0, 0, fmt.Errorf("unknown strategy %q", s)
	}
	hour += minute / 60
	minute %= 60
	return hour, minute, nil
}

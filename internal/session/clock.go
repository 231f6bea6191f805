// Package session classifies wall-clock time into trading-session phases.
//
// The exchange day is divided into four windows:
//
//	08:45:00-08:55:00  pre-market order entry (place/cancel allowed)
//	08:55:00-09:02:00  order freeze (no modifications, matching only)
//	09:02:00-12:30:00  continuous trading
//	otherwise          closed
//
// Boundaries are configuration, not constants; the defaults match the Tehran
// Stock Exchange.
package session

import (
	"fmt"
	"time"
)

// Phase is the current market phase derived from time of day.
type Phase int

const (
	PhaseClosed Phase = iota
	PhasePreMarket
	PhaseOrderFreeze
	PhaseTrading
)

func (p Phase) String() string {
	switch p {
	case PhasePreMarket:
		return "PREMARKET"
	case PhaseOrderFreeze:
		return "ORDER_FREEZE"
	case PhaseTrading:
		return "TRADING"
	default:
		return "CLOSED"
	}
}

// CanModify returns true if orders may be placed, cancelled or modified
// during this phase.
func (p Phase) CanModify() bool {
	return p == PhasePreMarket || p == PhaseTrading
}

// TimeOfDay is a wall-clock time within a day, location-independent.
type TimeOfDay struct {
	Hour, Minute, Second int
}

// ParseTimeOfDay parses "HH:MM:SS".
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	var t TimeOfDay
	if _, err := fmt.Sscanf(s, "%d:%d:%d", &t.Hour, &t.Minute, &t.Second); err != nil {
		return TimeOfDay{}, fmt.Errorf("parse time of day %q: %w", s, err)
	}
	if t.Hour < 0 || t.Hour > 23 || t.Minute < 0 || t.Minute > 59 || t.Second < 0 || t.Second > 59 {
		return TimeOfDay{}, fmt.Errorf("time of day %q out of range", s)
	}
	return t, nil
}

func (t TimeOfDay) seconds() int {
	return t.Hour*3600 + t.Minute*60 + t.Second
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d:%02d", t.Hour, t.Minute, t.Second)
}

// Boundaries holds the four phase boundaries of a trading day.
// FreezeEnd doubles as the trading start.
type Boundaries struct {
	PreMarketStart TimeOfDay
	FreezeStart    TimeOfDay
	FreezeEnd      TimeOfDay
	TradingEnd     TimeOfDay
}

// DefaultBoundaries returns the Tehran Stock Exchange session boundaries.
func DefaultBoundaries() Boundaries {
	return Boundaries{
		PreMarketStart: TimeOfDay{8, 45, 0},
		FreezeStart:    TimeOfDay{8, 55, 0},
		FreezeEnd:      TimeOfDay{9, 2, 0},
		TradingEnd:     TimeOfDay{12, 30, 0},
	}
}

// Validate checks that the boundaries are strictly ordered.
func (b Boundaries) Validate() error {
	if !(b.PreMarketStart.seconds() < b.FreezeStart.seconds() &&
		b.FreezeStart.seconds() < b.FreezeEnd.seconds() &&
		b.FreezeEnd.seconds() < b.TradingEnd.seconds()) {
		return fmt.Errorf("session boundaries must be strictly ordered: %s < %s < %s < %s",
			b.PreMarketStart, b.FreezeStart, b.FreezeEnd, b.TradingEnd)
	}
	return nil
}

// Clock maps instants to session phases.
type Clock struct {
	boundaries Boundaries
	loc        *time.Location
	now        func() time.Time
}

// Option configures a Clock.
type Option func(*Clock)

// WithNow overrides the time source, for tests.
func WithNow(now func() time.Time) Option {
	return func(c *Clock) { c.now = now }
}

// NewClock creates a session clock. A nil location defaults to time.Local.
func NewClock(b Boundaries, loc *time.Location, opts ...Option) *Clock {
	if loc == nil {
		loc = time.Local
	}
	c := &Clock{boundaries: b, loc: loc, now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Now returns the current time in the clock's location.
func (c *Clock) Now() time.Time {
	return c.now().In(c.loc)
}

// Phase returns the session phase for the current time.
func (c *Clock) Phase() Phase {
	return c.PhaseAt(c.Now())
}

// PhaseAt returns the session phase at t. Pure and total: every instant
// classifies to exactly one phase.
func (c *Clock) PhaseAt(t time.Time) Phase {
	t = t.In(c.loc)
	s := t.Hour()*3600 + t.Minute()*60 + t.Second()
	b := c.boundaries

	switch {
	case s >= b.PreMarketStart.seconds() && s < b.FreezeStart.seconds():
		return PhasePreMarket
	case s >= b.FreezeStart.seconds() && s < b.FreezeEnd.seconds():
		return PhaseOrderFreeze
	case s >= b.FreezeEnd.seconds() && s <= b.TradingEnd.seconds():
		return PhaseTrading
	default:
		return PhaseClosed
	}
}

// UntilModifiable returns how long until orders may be modified again,
// zero if modification is already allowed or the session is over for the day.
func (c *Clock) UntilModifiable(t time.Time) time.Duration {
	if c.PhaseAt(t).CanModify() {
		return 0
	}
	t = t.In(c.loc)
	s := t.Hour()*3600 + t.Minute()*60 + t.Second()
	end := c.boundaries.FreezeEnd.seconds()
	if s < end && s >= c.boundaries.FreezeStart.seconds() {
		return time.Duration(end-s) * time.Second
	}
	return 0
}

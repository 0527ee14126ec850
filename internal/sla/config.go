package sla

import (
	"fmt"
	"time"
)

// Config holds the escalation windows and the time of day a deadline
// expires.
type Config struct {
	WarningWindow  time.Duration `yaml:"warning_window"`
	CriticalWindow time.Duration `yaml:"critical_window"`
	// Cutoff is the offset from midnight, in the intake date's location, at
	// which the last business day ends.
	Cutoff time.Duration `yaml:"cutoff"`
}

// DefaultConfig escalates to Warning inside 24h and Critical inside 4h of a
// deadline that expires at 23:59:59.
func DefaultConfig() Config {
	return Config{
		WarningWindow:  24 * time.Hour,
		CriticalWindow: 4 * time.Hour,
		Cutoff:         23*time.Hour + 59*time.Minute + 59*time.Second,
	}
}

func (c Config) Validate() error {
	if c.CriticalWindow <= 0 || c.WarningWindow <= c.CriticalWindow {
		return fmt.Errorf("sla windows must satisfy 0 < critical (%s) < warning (%s)", c.CriticalWindow, c.WarningWindow)
	}
	if c.Cutoff < 0 || c.Cutoff >= 24*time.Hour {
		return fmt.Errorf("sla cutoff %s must be within a day", c.Cutoff)
	}
	return nil
}

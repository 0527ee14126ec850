package identity

import (
	"fmt"

	"concilia/internal/domain"
)

// CompositeMode selects how the two name similarity signals combine.
type CompositeMode string

const (
	// CompositeMax takes the larger of the two signals. Spanish names move
	// tokens around far more often than they drift in spelling, so neither
	// signal alone is a fair judge.
	CompositeMax CompositeMode = "max"
	// CompositeWeighted takes TokenWeight*tokenSort + JaroWeight*jaroWinkler.
	CompositeWeighted CompositeMode = "weighted"
)

// Config carries the tunable thresholds. A new Resolver must be built to
// apply a changed Config.
type Config struct {
	AutoAccept      float64       `yaml:"auto_accept"`
	ReviewThreshold float64       `yaml:"review_threshold"`
	Composite       CompositeMode `yaml:"composite"`
	TokenWeight     float64       `yaml:"token_weight"`
	JaroWeight      float64       `yaml:"jaro_weight"`
	// Aliases lists known regional spellings of the same name token. A pair
	// only lifts a borderline score into auto-accept, never a low one.
	Aliases [][]string `yaml:"aliases"`
	// Precedence picks the canonical name and CURP among merged records.
	Precedence domain.Precedence `yaml:"-"`
}

// DefaultConfig returns 0.95 / 0.80 thresholds with the max composite.
func DefaultConfig() Config {
	return Config{
		AutoAccept:      0.95,
		ReviewThreshold: 0.80,
		Composite:       CompositeMax,
		TokenWeight:     0.5,
		JaroWeight:      0.5,
		Aliases: [][]string{
			{"jimenez", "ximenez"},
			{"gonzalez", "gonzales"},
			{"hernandez", "hernandes"},
			{"rodriguez", "rodrigues"},
			{"martinez", "martines"},
			{"sanchez", "sanches"},
			{"vazquez", "vasquez"},
			{"javier", "xavier"},
			{"mejia", "mexia"},
			{"maria", "ma"},
			{"jose", "jse"},
		},
		Precedence: domain.DefaultPrecedence(),
	}
}

// Validate checks the thresholds are ordered and inside [0,1].
func (c Config) Validate() error {
	if c.ReviewThreshold < 0 || c.AutoAccept > 1 || c.ReviewThreshold > c.AutoAccept {
		return fmt.Errorf("identity thresholds must satisfy 0 <= review (%v) <= auto (%v) <= 1", c.ReviewThreshold, c.AutoAccept)
	}
	switch c.Composite {
	case CompositeMax, "":
	case CompositeWeighted:
		if c.TokenWeight < 0 || c.JaroWeight < 0 || c.TokenWeight+c.JaroWeight == 0 {
			return fmt.Errorf("weighted composite needs non-negative weights with a positive sum")
		}
	default:
		return fmt.Errorf("unknown composite mode %q", c.Composite)
	}
	for _, pair := range c.Aliases {
		if len(pair) < 2 {
			return fmt.Errorf("alias group %v needs at least two spellings", pair)
		}
	}
	return nil
}

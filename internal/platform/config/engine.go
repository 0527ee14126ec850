package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"concilia/internal/classify"
	"concilia/internal/domain"
	"concilia/internal/identity"
	"concilia/internal/matching"
	"concilia/internal/sla"
	"concilia/internal/validation"
)

// Engine is the tunable part of the reconciliation engine. Components take
// their slice of it at construction; a reload builds new components.
type Engine struct {
	Precedence    []domain.SourceOrigin `yaml:"precedence"`
	CompactFields []string              `yaml:"compact_fields"`
	Identity      identity.Config       `yaml:"identity"`
	Classifier    classify.Config       `yaml:"classifier"`
	SLA           sla.Config            `yaml:"sla"`
	Holidays      []string              `yaml:"holidays"`
	Validation    validation.Config     `yaml:"validation"`
}

// DefaultEngine returns the built-in defaults of every component.
func DefaultEngine() Engine {
	m := matching.DefaultConfig()
	return Engine{
		Precedence:    m.Precedence,
		CompactFields: m.CompactFields,
		Identity:      identity.DefaultConfig(),
		Classifier:    classify.DefaultConfig(),
		SLA:           sla.DefaultConfig(),
		Validation:    validation.DefaultConfig(),
	}
}

// LoadEngine reads a YAML engine file. Keys absent from the file keep their
// defaults; unknown keys are rejected. An empty path returns the defaults.
func LoadEngine(path string) (Engine, error) {
	cfg := DefaultEngine()
	if path == "" {
		return cfg, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return Engine{}, fmt.Errorf("read engine config: %w", err)
	}
	return ParseEngine(raw)
}

// ParseEngine decodes YAML over the defaults and validates the result.
func ParseEngine(raw []byte) (Engine, error) {
	cfg := DefaultEngine()
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Engine{}, fmt.Errorf("decode engine config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Engine{}, err
	}
	return cfg, nil
}

func (e Engine) Validate() error {
	seen := make(map[domain.SourceOrigin]struct{}, len(e.Precedence))
	for _, o := range e.Precedence {
		if _, err := domain.ParseSourceOrigin(string(o)); err != nil {
			return fmt.Errorf("precedence: %w", err)
		}
		if _, dup := seen[o]; dup {
			return fmt.Errorf("precedence: %q listed twice", o)
		}
		seen[o] = struct{}{}
	}
	if err := e.Identity.Validate(); err != nil {
		return fmt.Errorf("identity: %w", err)
	}
	if err := e.Classifier.Validate(); err != nil {
		return fmt.Errorf("classifier: %w", err)
	}
	if err := e.SLA.Validate(); err != nil {
		return fmt.Errorf("sla: %w", err)
	}
	if _, err := sla.NewStaticCalendar(e.Holidays); err != nil {
		return fmt.Errorf("holidays: %w", err)
	}
	return nil
}

// PrecedenceOrder returns the configured precedence, or the default one
// when the list is empty.
func (e Engine) PrecedenceOrder() domain.Precedence {
	if len(e.Precedence) == 0 {
		return domain.DefaultPrecedence()
	}
	return domain.Precedence(e.Precedence)
}

func (e Engine) Matching() matching.Config {
	return matching.Config{Precedence: e.PrecedenceOrder(), CompactFields: e.CompactFields}
}

func (e Engine) IdentityConfig() identity.Config {
	cfg := e.Identity
	cfg.Precedence = e.PrecedenceOrder()
	return cfg
}

// Calendar returns the holiday calendar; weekends only when no holidays
// are listed.
func (e Engine) Calendar() (sla.Calendar, error) {
	if len(e.Holidays) == 0 {
		return sla.WeekendOnly{}, nil
	}
	return sla.NewStaticCalendar(e.Holidays)
}

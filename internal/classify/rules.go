package classify

import (
	"fmt"

	"concilia/internal/domain"
)

// Rule maps legal phrases onto one action kind. Phrases are compared after
// normalization on whole-word boundaries.
type Rule struct {
	Kind     domain.ActionKind `yaml:"kind"`
	Phrases  []string          `yaml:"phrases"`
	Priority int               `yaml:"priority"`
}

// Config is the rule table. A changed table takes effect by building a new
// Classifier.
type Config struct {
	Rules []Rule `yaml:"rules"`
}

// DefaultConfig carries the regulator's usual vocabulary, with regional
// phrasings as aliases of the same kind.
func DefaultConfig() Config {
	return Config{Rules: []Rule{
		{Kind: domain.ActionBlock, Priority: 10, Phrases: []string{
			"aseguramiento", "asegurar", "embargo", "embargar", "bloqueo", "bloquear",
			"inmovilizacion", "inmovilizar", "congelamiento", "congelar",
		}},
		{Kind: domain.ActionUnblock, Priority: 20, Phrases: []string{
			"desbloqueo", "desbloquear", "desembargo", "levantamiento del aseguramiento",
			"levantar el aseguramiento", "levantamiento del embargo", "liberacion de fondos",
			"liberar los recursos",
		}},
		{Kind: domain.ActionTransfer, Priority: 30, Phrases: []string{
			"transferencia", "transferir", "poner a disposicion", "billete de deposito",
			"cheque de caja",
		}},
		{Kind: domain.ActionDocument, Priority: 5, Phrases: []string{
			"copia certificada", "copias certificadas", "estados de cuenta", "estado de cuenta",
			"documentacion", "contrato de apertura",
		}},
		{Kind: domain.ActionInformation, Priority: 1, Phrases: []string{
			"solicitud de informacion", "requerimiento de informacion", "informe", "informar",
			"saldo", "saldos",
		}},
		{Kind: domain.ActionIgnore, Priority: 40, Phrases: []string{
			"sin efectos", "queda sin efecto", "para conocimiento", "unicamente para su conocimiento",
		}},
		{Kind: domain.ActionOther, Priority: 0, Phrases: []string{
			"comparecencia", "citatorio", "comparecer",
		}},
	}}
}

// Validate rejects rules that could never match or would coerce text into
// Unknown.
func (c Config) Validate() error {
	for i, r := range c.Rules {
		switch r.Kind {
		case domain.ActionBlock, domain.ActionUnblock, domain.ActionDocument, domain.ActionTransfer,
			domain.ActionInformation, domain.ActionIgnore, domain.ActionOther:
		default:
			return fmt.Errorf("rule %d: kind %q cannot be produced by a phrase", i, r.Kind)
		}
		if len(r.Phrases) == 0 {
			return fmt.Errorf("rule %d (%s): no phrases", i, r.Kind)
		}
	}
	return nil
}

package domain

import (
	"time"

	"github.com/google/uuid"
)

// Canonical field names of the case header and the measure. Extraction
// adapters emit FieldValues under these names.
const (
	FieldNumeroExpediente = "NumeroExpediente"
	FieldNumeroOficio     = "NumeroOficio"
	FieldAutoridad        = "AutoridadNombre"
	FieldFundamentoLegal  = "FundamentoLegal"
	FieldMedioEnvio       = "MedioEnvio"
	FieldSubdivision      = "Subdivision"
	FieldFechaRecepcion   = "FechaRecepcion"
	FieldDiasPlazo        = "DiasPlazo"
	FieldMedida           = "Medida"
	FieldCuenta           = "Cuenta"
	FieldMonto            = "Monto"
	FieldProducto         = "Producto"
)

// Names used in ValidationState for values that are not plain fields.
const (
	MissingMeasure     = "Measure"
	MissingCuenta      = "Cuenta"
	MissingMonto       = "Monto"
	MissingDueDate     = "FechaLimite"
	MissingPersonaRFC  = "Persona.RFC"
	MissingPersona     = "Persona"
	MissingPersonaName = "Nombre"
	MissingSLA         = "SLA"
)

// ReviewKind classifies why an item needs a human.
type ReviewKind string

const (
	ReviewMissing      ReviewKind = "missing"
	ReviewConflict     ReviewKind = "conflict"
	ReviewUnresolved   ReviewKind = "unresolved_classification"
	ReviewIdentityFlag ReviewKind = "identity"
)

// ReviewItem is one thing the reviewer must look at, with enough detail to
// act on it without opening the sources.
type ReviewItem struct {
	Kind   ReviewKind                `json:"kind"`
	Target string                    `json:"target"`
	Detail string                    `json:"detail,omitempty"`
	Values map[SourceOrigin][]string `json:"values,omitempty"`
}

// UnifiedMetadataRecord is the aggregate root of one reconciliation pass.
// A pass never mutates a stored record; it appends a new revision that
// supersedes the previous one.
type UnifiedMetadataRecord struct {
	ID           uuid.UUID          `json:"id"`
	CaseID       string             `json:"case_id"`
	Revision     int                `json:"revision"`
	SupersedesID uuid.UUID          `json:"supersedes_id,omitzero"`
	CreatedAt    time.Time          `json:"created_at"`
	Fields       MatchedFields      `json:"fields"`
	Identities   []ResolvedIdentity `json:"identities"`
	Actions      []ComplianceAction `json:"actions"`
	SLA          SLAStatus          `json:"sla"`
	Validation   ValidationState    `json:"validation"`
	ReviewItems  []ReviewItem       `json:"review_items"`
}

// HasUnresolvedAction reports whether any action is Unknown or Other.
func (r *UnifiedMetadataRecord) HasUnresolvedAction() bool {
	for _, a := range r.Actions {
		if !a.Kind.IsResolved() {
			return true
		}
	}
	return false
}

package reconcile

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"concilia/internal/classify"
	"concilia/internal/domain"
	"concilia/internal/identity"
	"concilia/internal/matching"
	"concilia/internal/sla"
	"concilia/internal/validation"
)

var intakeLayouts = []string{"2006-01-02", "02/01/2006", "2006/01/02", time.RFC3339}

// Orchestrator composes the engine into one reconciliation pass. It is the
// only component that knows the order of the stages, and it never stops
// early: every stage runs and records its gaps in a ValidationState.
type Orchestrator struct {
	matcher    *matching.Matcher
	resolver   *identity.Resolver
	classifier *classify.Classifier
	enforcer   *sla.Enforcer
	aggregator *validation.Aggregator
	precedence domain.Precedence
}

func NewOrchestrator(
	matcher *matching.Matcher,
	resolver *identity.Resolver,
	classifier *classify.Classifier,
	enforcer *sla.Enforcer,
	aggregator *validation.Aggregator,
	precedence domain.Precedence,
) *Orchestrator {
	if len(precedence) == 0 {
		precedence = domain.DefaultPrecedence()
	}
	return &Orchestrator{
		matcher:    matcher,
		resolver:   resolver,
		classifier: classifier,
		enforcer:   enforcer,
		aggregator: aggregator,
		precedence: precedence,
	}
}

// Pass is the input of one run. Previous and Status are the stored state of
// the case, nil on first intake.
type Pass struct {
	ID       uuid.UUID
	Input    CaseInput
	Previous *domain.UnifiedMetadataRecord
	Status   *domain.SLAStatus
	Now      time.Time
}

// Reconcile runs matching, identity resolution, classification, SLA and
// validation in that order and returns the new revision of the record.
func (o *Orchestrator) Reconcile(p Pass) *domain.UnifiedMetadataRecord {
	var root domain.ValidationState
	in := p.Input

	values, personas, legalText := o.collect(in, &root)

	fields := o.matcher.MatchAll(values, o.aggregator.RequiredFields())
	for _, name := range fields.ConflictingFields {
		root.AddWarning("conflict on " + name)
	}

	identities := o.resolver.Resolve(personas)

	status := o.status(in.CaseID, fields, p.Status, p.Now, &root)

	directives := in.Directives
	if len(directives) == 0 {
		directives = []string{legalText}
	}
	actions := make([]domain.ComplianceAction, 0, len(directives))
	for _, d := range directives {
		action := o.classifier.Classify(d, fields)
		if !status.IsZero() {
			action.DueDate = status.Deadline
			action.Origins = appendOrigin(action.Origins, domain.OriginDerived)
		}
		actions = append(actions, action)
	}

	record := &domain.UnifiedMetadataRecord{
		ID:         p.ID,
		CaseID:     in.CaseID,
		Revision:   1,
		CreatedAt:  p.Now,
		Fields:     fields,
		Identities: identities,
		Actions:    actions,
		SLA:        status,
		Validation: root,
	}
	if p.Previous != nil {
		record.Revision = p.Previous.Revision + 1
		record.SupersedesID = p.Previous.ID
	}
	record.Validation = o.aggregator.Aggregate(record)
	record.ReviewItems = o.aggregator.ReviewItems(record)
	return record
}

// collect flattens the renditions into field values and personas, stamping
// each with its rendition's origin. The variant set is closed, so each
// origin is handled explicitly.
func (o *Orchestrator) collect(in CaseInput, root *domain.ValidationState) ([]domain.FieldValue, []domain.PersonData, string) {
	var (
		values    []domain.FieldValue
		personas  []domain.PersonData
		legalText string
		textRank  = len(o.precedence) + 1
	)
	for _, src := range in.Sources {
		switch src.Origin {
		case domain.OriginXML, domain.OriginDocx, domain.OriginPdf, domain.OriginOcr:
		default:
			root.AddNote(fmt.Sprintf("source with origin %q ignored", src.Origin))
			continue
		}
		if src.Error != "" {
			root.AddNote(fmt.Sprintf("%s extraction failed: %s", src.Origin, src.Error))
			continue
		}
		for _, fv := range src.Fields {
			if fv.FieldName == "" {
				root.AddNote(fmt.Sprintf("%s value without field name dropped", src.Origin))
				continue
			}
			values = append(values, domain.NewFieldValue(fv.FieldName, fv.RawValue, src.Origin, fv.ExtractionConfidence))
		}
		for _, person := range src.Personas {
			person.Origin = src.Origin
			if person.CaseID == "" {
				person.CaseID = in.CaseID
			}
			personas = append(personas, person)
		}
		if t := strings.TrimSpace(src.LegalText); t != "" {
			if rank := o.precedence.Rank(src.Origin); rank < textRank {
				legalText, textRank = t, rank
			}
		}
	}
	for _, ov := range in.Overrides {
		values = append(values, domain.NewFieldValue(ov.FieldName, ov.Value, domain.OriginManual, 100))
	}
	return values, personas, legalText
}

// status derives the SLA from FechaRecepcion and DiasPlazo. A malformed value
// is recorded as missing plus a note and never aborts the pass.
func (o *Orchestrator) status(caseID string, fields domain.MatchedFields, existing *domain.SLAStatus, now time.Time, root *domain.ValidationState) domain.SLAStatus {
	intake, intakeOK := parseIntake(fields.Value(domain.FieldFechaRecepcion))
	if raw := fields.Value(domain.FieldFechaRecepcion); raw != "" && !intakeOK {
		root.AddMissing(domain.FieldFechaRecepcion)
		root.AddNote(fmt.Sprintf("%s: unparsable date %q", domain.FieldFechaRecepcion, raw))
	}
	days, daysErr := strconv.Atoi(strings.TrimSpace(fields.Value(domain.FieldDiasPlazo)))
	if raw := fields.Value(domain.FieldDiasPlazo); raw != "" && daysErr != nil {
		root.AddMissing(domain.FieldDiasPlazo)
		root.AddNote(fmt.Sprintf("%s: not a whole number %q", domain.FieldDiasPlazo, raw))
	}

	if !intakeOK || daysErr != nil {
		if existing != nil {
			next, _ := o.enforcer.Advance(*existing, now)
			return next
		}
		s := domain.SLAStatus{CaseID: caseID}
		if !intakeOK {
			s.Validation.AddMissing("IntakeDate")
		}
		if daysErr != nil {
			s.Validation.AddMissing("DaysPlazo")
		}
		return s
	}

	var (
		s   domain.SLAStatus
		err error
	)
	if existing != nil {
		s, err = o.enforcer.Reopen(*existing, intake, days, now)
	} else {
		s, err = o.enforcer.Open(caseID, intake, days, now)
	}
	if err != nil {
		root.AddMissing(domain.FieldDiasPlazo)
		root.AddNote(fmt.Sprintf("SLA: %v", err))
		return domain.SLAStatus{CaseID: caseID}
	}
	return s
}

func parseIntake(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	for _, layout := range intakeLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func appendOrigin(list []domain.SourceOrigin, o domain.SourceOrigin) []domain.SourceOrigin {
	for _, existing := range list {
		if existing == o {
			return list
		}
	}
	return append(list, o)
}

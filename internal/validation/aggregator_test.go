package validation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"concilia/internal/domain"
	"concilia/internal/matching"
)

type AggregatorSuite struct {
	suite.Suite
	aggregator *Aggregator
	matcher    *matching.Matcher
}

func TestAggregatorSuite(t *testing.T) {
	suite.Run(t, new(AggregatorSuite))
}

func (s *AggregatorSuite) SetupTest() {
	s.aggregator = New(DefaultConfig())
	s.matcher = matching.New(matching.DefaultConfig())
}

func (s *AggregatorSuite) completeRecord() *domain.UnifiedMetadataRecord {
	var values []domain.FieldValue
	for name, v := range map[string]string{
		domain.FieldFundamentoLegal:  "Articulo 142 LIC",
		domain.FieldMedioEnvio:       "SIARA",
		domain.FieldSubdivision:      "Aseguramiento",
		domain.FieldFechaRecepcion:   "2025-06-06",
		domain.FieldDiasPlazo:        "2",
		domain.FieldNumeroExpediente: "EXP-1",
		domain.FieldNumeroOficio:     "OF-1",
	} {
		values = append(values, domain.NewFieldValue(name, v, domain.OriginXML, 100))
	}
	return &domain.UnifiedMetadataRecord{
		CaseID: "EXP-1",
		Fields: s.matcher.MatchAll(values, s.aggregator.RequiredFields()),
		Identities: []domain.ResolvedIdentity{{
			CanonicalName: "Juan Perez",
			RFCVariants:   []domain.RfcVariant{{Value: "ABC850101XXX", SourceTag: "xml"}},
		}},
		Actions: []domain.ComplianceAction{{
			Kind:    domain.ActionBlock,
			Cuenta:  "0012345678",
			DueDate: time.Date(2025, time.June, 10, 23, 59, 59, 0, time.UTC),
		}},
		SLA: domain.SLAStatus{CaseID: "EXP-1", Deadline: time.Date(2025, time.June, 10, 23, 59, 59, 0, time.UTC)},
	}
}

// =============================================================================
// Aggregate
// =============================================================================

func (s *AggregatorSuite) TestCompleteRecordIsValid() {
	record := s.completeRecord()

	state := s.aggregator.Aggregate(record)

	s.True(state.IsValid(), "missing: %v", state.MissingFields)
}

func (s *AggregatorSuite) TestChecklist() {
	s.Run("absent header fields are named", func() {
		record := s.completeRecord()
		delete(record.Fields.Fields, domain.FieldSubdivision)

		state := s.aggregator.Aggregate(record)

		s.Equal([]string{domain.FieldSubdivision}, state.MissingFields)
	})

	s.Run("at least one persona needs an RFC", func() {
		record := s.completeRecord()
		record.Identities[0].RFCVariants = nil
		record.Identities[0].Validation.AddMissing("RFC")

		state := s.aggregator.Aggregate(record)

		s.True(state.HasMissing(domain.MissingPersonaRFC))
		s.True(state.HasMissing("ResolvedIdentity[0].RFC"))
	})

	s.Run("missing SLA is named", func() {
		record := s.completeRecord()
		record.SLA = domain.SLAStatus{}

		state := s.aggregator.Aggregate(record)

		s.True(state.HasMissing(domain.MissingSLA))
	})
}

func (s *AggregatorSuite) TestUnresolvedActionsCountAsMissing() {
	for _, kind := range []domain.ActionKind{domain.ActionUnknown, domain.ActionOther} {
		s.Run(string(kind), func() {
			record := s.completeRecord()
			record.Actions[0].Kind = kind

			state := s.aggregator.Aggregate(record)

			s.True(state.HasMissing("ComplianceAction[0].Measure"))
			s.False(state.IsValid())
		})
	}
}

func (s *AggregatorSuite) TestActionValidationRollsUp() {
	record := s.completeRecord()
	record.Actions[0].Cuenta = ""
	record.Actions[0].Validation.AddMissing(domain.MissingCuenta)

	state := s.aggregator.Aggregate(record)

	s.Equal([]string{"ComplianceAction[0].Cuenta"}, state.MissingFields)
}

func (s *AggregatorSuite) TestAggregateIsIdempotent() {
	record := s.completeRecord()
	record.Actions[0].Kind = domain.ActionUnknown

	record.Validation = s.aggregator.Aggregate(record)
	again := s.aggregator.Aggregate(record)

	s.Equal(record.Validation, again)
}

// =============================================================================
// Export gate
// =============================================================================

func (s *AggregatorSuite) TestExportDecision() {
	s.Run("complete record is allowed", func() {
		decision := s.aggregator.ExportDecision(s.completeRecord())

		s.True(decision.Allowed)
		s.Empty(decision.Reasons)
	})

	s.Run("unknown action blocks export", func() {
		record := s.completeRecord()
		record.Actions[0].Kind = domain.ActionUnknown
		record.Actions[0].RequiresReview = true

		decision := s.aggregator.ExportDecision(record)

		s.False(decision.Allowed)
		s.Contains(decision.Reasons, "ComplianceAction[0] is unknown")
		s.Contains(decision.Reasons, "missing ComplianceAction[0].Measure")
	})

	s.Run("conflict on a checklist field blocks export", func() {
		record := s.completeRecord()
		values := []domain.FieldValue{
			domain.NewFieldValue(domain.FieldMedioEnvio, "SIARA", domain.OriginXML, 100),
			domain.NewFieldValue(domain.FieldMedioEnvio, "Fisico", domain.OriginPdf, 80),
		}
		record.Fields.Fields[domain.FieldMedioEnvio] = s.matcher.Match(domain.FieldMedioEnvio, values)
		record.Fields.ConflictingFields = []string{domain.FieldMedioEnvio}
		record.Validation = s.aggregator.Aggregate(record)

		decision := s.aggregator.ExportDecision(record)

		s.False(decision.Allowed)
		s.Equal([]string{"conflict on " + domain.FieldMedioEnvio}, decision.Reasons)
		s.Require().Len(decision.Items, 1)
		s.Equal(domain.ReviewConflict, decision.Items[0].Kind)
		s.Equal([]string{"Fisico"}, decision.Items[0].Values[domain.OriginPdf])
	})

	s.Run("identity review flags do not block export", func() {
		record := s.completeRecord()
		record.Identities[0].Validation.AddWarning("name matched at 0.90")
		record.Validation = s.aggregator.Aggregate(record)

		decision := s.aggregator.ExportDecision(record)

		s.True(decision.Allowed)
		s.Require().Len(decision.Items, 1)
		s.Equal(domain.ReviewIdentityFlag, decision.Items[0].Kind)
	})
}

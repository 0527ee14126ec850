package identity

import (
	"testing"

	"github.com/stretchr/testify/suite"

	"concilia/internal/domain"
)

type ResolverSuite struct {
	suite.Suite
	resolver *Resolver
}

func TestResolverSuite(t *testing.T) {
	suite.Run(t, new(ResolverSuite))
}

func (s *ResolverSuite) SetupTest() {
	r, err := New(DefaultConfig())
	s.Require().NoError(err)
	s.resolver = r
}

func (s *ResolverSuite) fixedScore(score float64) {
	s.resolver.score = func(string, string) float64 { return score }
}

func person(name, rfc string, origin domain.SourceOrigin) domain.PersonData {
	return domain.PersonData{Name: name, RFC: rfc, Origin: origin, CaseID: "EXP-1"}
}

// =============================================================================
// RFC rules
// =============================================================================

func (s *ResolverSuite) TestIdenticalRFCMergesAcrossSources() {
	ocr := person("JUAN PEREZ LOPEZ", "abc-850101-xxx", domain.OriginOcr)
	ocr.CURP = "PELJ850101HDFRPN09"
	xml := person("Juan Pérez López", "ABC850101XXX", domain.OriginXML)

	ids := s.resolver.Resolve([]domain.PersonData{ocr, xml})

	s.Require().Len(ids, 1)
	id := ids[0]
	s.Require().Len(id.RFCVariants, 1)
	s.Equal("ABC850101XXX", id.RFCVariants[0].Value)
	s.Equal("xml+ocr", id.RFCVariants[0].SourceTag)
	s.Equal("PELJ850101HDFRPN09", id.CURP)
	s.Equal([]domain.SourceOrigin{domain.OriginXML, domain.OriginOcr}, id.Origins)
	s.Equal("Juan Pérez López", id.CanonicalName)
	s.Equal(1.0, id.MatchConfidence)
	s.True(id.Validation.IsValid())
	s.False(id.HasConflict)
}

func (s *ResolverSuite) TestIdenticalRFCIgnoresNameScore() {
	s.fixedScore(0.1)
	ids := s.resolver.Resolve([]domain.PersonData{
		person("Juan Perez", "ABC850101XXX", domain.OriginXML),
		person("J. P.", "ABC850101XXX", domain.OriginPdf),
	})

	s.Len(ids, 1)
}

func (s *ResolverSuite) TestDifferingRFC() {
	s.Run("high name score keeps both RFCs under one flagged identity", func() {
		s.fixedScore(0.97)
		ids := s.resolver.Resolve([]domain.PersonData{
			person("Juan Perez Lopez", "ABC850101XXX", domain.OriginXML),
			person("Juan Perez Lopez", "ABD850101XXX", domain.OriginPdf),
		})

		s.Require().Len(ids, 1)
		s.Len(ids[0].RFCVariants, 2)
		s.True(ids[0].HasConflict)
		s.True(ids[0].Validation.NeedsReview())
	})

	s.Run("borderline name score without a secondary signal stays distinct", func() {
		s.fixedScore(0.85)
		ids := s.resolver.Resolve([]domain.PersonData{
			person("Juan Perez Lopez", "ABC850101XXX", domain.OriginXML),
			person("Juan Peres Lopes", "XYZ900101AAA", domain.OriginPdf),
		})

		s.Len(ids, 2)
	})

	s.Run("borderline name score merges on shared address", func() {
		s.fixedScore(0.85)
		a := person("Juan Perez Lopez", "ABC850101XXX", domain.OriginXML)
		b := person("Juan Peres Lopes", "XYZ900101AAA", domain.OriginPdf)
		a.Address = "Av. Reforma 10, CDMX"
		b.Address = "AV. REFORMA 10, cdmx"
		ids := s.resolver.Resolve([]domain.PersonData{a, b})

		s.Require().Len(ids, 1)
		s.Len(ids[0].RFCVariants, 2)
		s.NotEmpty(ids[0].Validation.Warnings)
	})

	s.Run("OCR-confusable RFC counts as a secondary signal", func() {
		s.fixedScore(0.85)
		ids := s.resolver.Resolve([]domain.PersonData{
			person("Juan Perez Lopez", "ABC850101XXX", domain.OriginXML),
			person("Juan Peres Lopez", "ABC85O1O1XXX", domain.OriginOcr),
		})

		s.Require().Len(ids, 1)
		s.Len(ids[0].RFCVariants, 2)
		s.True(ids[0].HasConflict)
	})

	s.Run("record without RFC does not bridge two distinct RFCs", func() {
		s.fixedScore(0.85)
		ids := s.resolver.Resolve([]domain.PersonData{
			person("Juan Perez Lopez", "PELJ850101AB1", domain.OriginXML),
			person("Juan Peres Lopes", "", domain.OriginDocx),
			person("Juan Perez Lopes", "GOMA900505XY2", domain.OriginPdf),
		})

		s.Require().Len(ids, 2)
		for _, id := range ids {
			s.LessOrEqual(len(id.RFCVariants), 1)
		}
	})

	s.Run("record sharing a member RFC joins despite another RFC in the cluster", func() {
		s.fixedScore(0.97)
		ids := s.resolver.Resolve([]domain.PersonData{
			person("Juan Perez Lopez", "ABC850101XXX", domain.OriginXML),
			person("Juan Perez Lopez", "ABD850101XXX", domain.OriginDocx),
			person("J. Perez", "ABD850101XXX", domain.OriginPdf),
		})

		s.Require().Len(ids, 1)
		s.Len(ids[0].RFCVariants, 2)
	})
}

// =============================================================================
// Name thresholds
// =============================================================================

func (s *ResolverSuite) TestThresholdBoundaries() {
	s.Run("exactly auto-accept merges without review", func() {
		s.fixedScore(0.95)
		ids := s.resolver.Resolve([]domain.PersonData{
			person("Juan Perez", "", domain.OriginXML),
			person("Juan Peres", "", domain.OriginPdf),
		})

		s.Require().Len(ids, 1)
		s.Empty(ids[0].Validation.Warnings)
		s.Equal(0.95, ids[0].MatchConfidence)
	})

	s.Run("just below auto-accept merges with a review flag", func() {
		s.fixedScore(0.9499)
		ids := s.resolver.Resolve([]domain.PersonData{
			person("Juan Perez", "", domain.OriginXML),
			person("Juan Peres", "", domain.OriginPdf),
		})

		s.Require().Len(ids, 1)
		s.NotEmpty(ids[0].Validation.Warnings)
	})

	s.Run("below review threshold never merges", func() {
		s.fixedScore(0.7999)
		ids := s.resolver.Resolve([]domain.PersonData{
			person("Juan Perez", "", domain.OriginXML),
			person("Juan Peres", "", domain.OriginPdf),
		})

		s.Len(ids, 2)
	})

	s.Equal(AutoMerge, s.resolver.Decide(0.95))
	s.Equal(MergeWithReview, s.resolver.Decide(0.9499))
	s.Equal(MergeWithReview, s.resolver.Decide(0.80))
	s.Equal(Distinct, s.resolver.Decide(0.7999))
}

func (s *ResolverSuite) TestAliasDictionary() {
	s.Run("known pair lifts a borderline score to auto-accept", func() {
		s.fixedScore(0.85)
		ids := s.resolver.Resolve([]domain.PersonData{
			person("Maria Jimenez Ruiz", "", domain.OriginXML),
			person("Maria Ximenez Ruiz", "", domain.OriginOcr),
		})

		s.Require().Len(ids, 1)
		s.Empty(ids[0].Validation.Warnings)
		s.Equal([]string{"Maria Jimenez Ruiz", "Maria Ximenez Ruiz"}, ids[0].NameVariants)
	})

	s.Run("known pair never rescues a low score", func() {
		s.fixedScore(0.70)
		ids := s.resolver.Resolve([]domain.PersonData{
			person("Maria Jimenez Ruiz", "", domain.OriginXML),
			person("Maria Ximenez Ruiz", "", domain.OriginOcr),
		})

		s.Len(ids, 2)
	})
}

func (s *ResolverSuite) TestRealScores() {
	s.Run("token reordering scores as identical", func() {
		s.InDelta(1.0, s.resolver.NameScore("Lopez Perez Juan", "Juan López Pérez"), 1e-9)
	})

	s.Run("unrelated names stay apart", func() {
		ids := s.resolver.Resolve([]domain.PersonData{
			person("Juan Perez Lopez", "", domain.OriginXML),
			person("Maria Gonzalez Ruiz", "", domain.OriginXML),
		})
		s.Len(ids, 2)
	})
}

// =============================================================================
// Partial results and identifiers
// =============================================================================

func (s *ResolverSuite) TestMissingDataIsFlaggedNotFatal() {
	ids := s.resolver.Resolve([]domain.PersonData{
		{Origin: domain.OriginOcr},
		person("Juan Perez", "", domain.OriginXML),
	})

	s.Require().Len(ids, 2)
	for _, id := range ids {
		s.True(id.Validation.HasMissing("RFC"))
	}
	s.True(ids[1].Validation.HasMissing(domain.MissingPersonaName))
}

func (s *ResolverSuite) TestPersonaIDIsStable() {
	in := []domain.PersonData{person("Juan Perez", "ABC850101XXX", domain.OriginXML)}

	first := s.resolver.Resolve(in)
	second := s.resolver.Resolve(in)

	s.Equal(first[0].PersonaID, second[0].PersonaID)
	s.NotEmpty(first[0].PersonaID)
}

func (s *ResolverSuite) TestFindVariants() {
	s.resolver.score = func(a, b string) float64 {
		if a == b {
			return 0.97
		}
		return 0.1
	}
	ids := s.resolver.Resolve([]domain.PersonData{
		person("Juan Perez Lopez", "ABC850101XXX", domain.OriginXML),
		person("Juan Perez Lopez", "ABD850101XXX", domain.OriginPdf),
		person("Otro", "ZZZ010101AAA", domain.OriginXML),
	})

	variants := FindVariants("abc-850101-xxx", ids)
	s.Len(variants, 2)

	s.Len(FindVariants("ABC85O1O1XXX", ids), 2)
	s.Empty(FindVariants("", ids))
	s.Empty(FindVariants("QQQ000000QQQ", ids))
}

func TestOCRConfusable(t *testing.T) {
	cases := []struct {
		a, b string
		want bool
	}{
		{"ABC850101XXX", "ABC85O1O1XXX", true},
		{"PELJ850101AB1", "PELJ8S0I01AB1", true},
		{"ABC850101XXX", "ABC850101XXX", false},
		{"ABC850101XXX", "ABD850101XXX", false},
		{"ABC850101XXX", "ABC850102XXX", false},
		{"SHORT", "SH0RT", false},
	}
	for _, tc := range cases {
		t.Run(tc.a+"_"+tc.b, func(t *testing.T) {
			if got := OCRConfusable(tc.a, tc.b); got != tc.want {
				t.Fatalf("OCRConfusable(%q, %q) = %v, want %v", tc.a, tc.b, got, tc.want)
			}
		})
	}
}

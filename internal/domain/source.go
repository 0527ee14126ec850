package domain

import (
	"fmt"
	"strings"
)

// SourceOrigin names the rendition or process a value came from.
type SourceOrigin string

const (
	OriginXML     SourceOrigin = "xml"
	OriginDocx    SourceOrigin = "docx"
	OriginPdf     SourceOrigin = "pdf"
	OriginOcr     SourceOrigin = "ocr"
	OriginDerived SourceOrigin = "derived"
	OriginManual  SourceOrigin = "manual"
)

var knownOrigins = map[SourceOrigin]struct{}{
	OriginXML:     {},
	OriginDocx:    {},
	OriginPdf:     {},
	OriginOcr:     {},
	OriginDerived: {},
	OriginManual:  {},
}

// ParseSourceOrigin accepts the lower- or upper-case origin name.
func ParseSourceOrigin(raw string) (SourceOrigin, error) {
	o := SourceOrigin(strings.ToLower(strings.TrimSpace(raw)))
	if _, ok := knownOrigins[o]; !ok {
		return "", fmt.Errorf("unknown source origin %q", raw)
	}
	return o, nil
}

// IsDocument reports whether o is one of the extracted renditions, as
// opposed to an engine- or reviewer-produced value.
func (o SourceOrigin) IsDocument() bool {
	switch o {
	case OriginXML, OriginDocx, OriginPdf, OriginOcr:
		return true
	}
	return false
}

// JoinOrigins renders a trace as "xml+ocr".
func JoinOrigins(origins []SourceOrigin) string {
	parts := make([]string, len(origins))
	for i, o := range origins {
		parts[i] = string(o)
	}
	return strings.Join(parts, "+")
}

// Precedence orders origins from most to least structurally reliable.
// Origins missing from the list rank after every listed one.
type Precedence []SourceOrigin

// Rank returns the position of o, lower is more reliable.
func (p Precedence) Rank(o SourceOrigin) int {
	for i, candidate := range p {
		if candidate == o {
			return i
		}
	}
	return len(p)
}

// DefaultPrecedence puts reviewer corrections first, then the structured
// renditions, and engine-derived values last.
func DefaultPrecedence() Precedence {
	return Precedence{OriginManual, OriginXML, OriginDocx, OriginPdf, OriginOcr, OriginDerived}
}

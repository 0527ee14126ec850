package identity

import (
	"strings"

	"concilia/pkg/platform/text"
)

// An RFC is 12 (legal entity) or 13 (individual) characters ending in a
// six-digit YYMMDD segment followed by a three-character homoclave.
const (
	rfcHomoclaveLen = 3
	rfcDateLen      = 6
)

var ocrDigitFold = strings.NewReplacer(
	"O", "0",
	"I", "1",
	"L", "1",
	"S", "5",
	"B", "8",
	"Z", "2",
)

// NormalizeRFC upper-cases and strips every separator.
func NormalizeRFC(rfc string) string {
	return text.Identifier(rfc)
}

// OCRConfusable reports whether a and b differ only by letters OCR commonly
// reads in place of digits inside the date segment.
func OCRConfusable(a, b string) bool {
	a, b = NormalizeRFC(a), NormalizeRFC(b)
	if a == b || len(a) != len(b) || (len(a) != 12 && len(a) != 13) {
		return false
	}
	return foldDate(a) == foldDate(b)
}

func foldDate(rfc string) string {
	end := len(rfc) - rfcHomoclaveLen
	start := end - rfcDateLen
	return rfc[:start] + ocrDigitFold.Replace(rfc[start:end]) + rfc[end:]
}

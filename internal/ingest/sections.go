package ingest

import (
	"regexp"
	"strings"

	"github.com/minasoft/ris-listener/internal/hl7"
)

// Section names used as ReportSections keys.
const (
	SectionImpression      = "impression"
	SectionFindings        = "findings"
	SectionTechnique       = "technique"
	SectionClinicalHistory = "clinicalHistory"
)

// Confidence tells callers how the sections were obtained.
type Confidence int

const (
	// Sectioned: sections came from OBX identifiers.
	Sectioned Confidence = iota
	// Fallback: OBX identifiers matched nothing and sections were guessed
	// from the report text.
	Fallback
)

func (c Confidence) String() string {
	if c == Sectioned {
		return "sectioned"
	}
	return "fallback"
}

// ReportSections is the report text split into named sections.
type ReportSections struct {
	Confidence Confidence
	Sections   map[string]string
	Text       string
}

func (r ReportSections) Get(name string) string { return r.Sections[name] }

// sectionMarkers is checked in order; the first keyword contained in the
// observation identifier wins.
var sectionMarkers = []struct {
	keyword string
	section string
}{
	{"impression", SectionImpression},
	{"finding", SectionFindings},
	{"technique", SectionTechnique},
	{"history", SectionClinicalHistory},
	{"clinical", SectionClinicalHistory},
}

func sectionFor(identifier string) string {
	id := strings.ToLower(identifier)
	for _, m := range sectionMarkers {
		if strings.Contains(id, m.keyword) {
			return m.section
		}
	}
	return ""
}

// ExtractSections folds OBX segments into report sections using OBX-3 as the
// section marker and OBX-5 as the text.
func ExtractSections(observations []hl7.Segment) ReportSections {
	sections := make(map[string]string)
	var all []string

	for _, obx := range observations {
		value := decodeText(obx.Field(5))
		if strings.TrimSpace(value) == "" {
			continue
		}
		all = append(all, value)

		name := sectionFor(obx.Field(3))
		if name == "" {
			continue
		}
		if prev, ok := sections[name]; ok {
			sections[name] = prev + "\n" + value
		} else {
			sections[name] = value
		}
	}

	text := strings.Join(all, "\n")
	if len(sections) > 0 {
		return ReportSections{Confidence: Sectioned, Sections: sections, Text: text}
	}
	return ReportSections{Confidence: Fallback, Sections: fallbackSections(text), Text: text}
}

var (
	inlineHeader = regexp.MustCompile(`(?i)\b(impression|findings?|technique|clinical history|history)\s*:`)
	sentenceEnd  = regexp.MustCompile(`[.!?]+(\s+|$)|\n+`)
)

var indicativeTerms = []string{
	"fracture", "normal", "no evidence", "unremarkable", "lesion", "mass",
	"effusion", "opacity", "consolidation", "pneumothorax", "hemorrhage",
}

// fallbackSections guesses sections from unstructured report text. Inline
// "HEADER:" labels are used when present; otherwise sentences containing
// indicative terms become findings and the last meaningful sentence becomes
// the impression.
func fallbackSections(text string) map[string]string {
	sections := make(map[string]string)
	if strings.TrimSpace(text) == "" {
		return sections
	}

	if locs := inlineHeader.FindAllStringSubmatchIndex(text, -1); len(locs) > 0 {
		for i, loc := range locs {
			end := len(text)
			if i+1 < len(locs) {
				end = locs[i+1][0]
			}
			body := strings.TrimSpace(text[loc[1]:end])
			name := sectionFor(text[loc[2]:loc[3]])
			if body == "" || name == "" {
				continue
			}
			if prev, ok := sections[name]; ok {
				body = prev + "\n" + body
			}
			sections[name] = body
		}
		if len(sections) > 0 {
			return sections
		}
	}

	var findings []string
	impression := ""
	for _, sentence := range splitSentences(text) {
		if isIndicative(sentence) {
			findings = append(findings, sentence)
		}
		if len(strings.Fields(sentence)) >= 3 {
			impression = sentence
		}
	}
	if len(findings) > 0 {
		sections[SectionFindings] = strings.Join(findings, " ")
	}
	if impression != "" {
		sections[SectionImpression] = impression
	}
	return sections
}

func splitSentences(text string) []string {
	var out []string
	last := 0
	for _, loc := range sentenceEnd.FindAllStringIndex(text, -1) {
		if s := strings.TrimSpace(text[last:loc[1]]); s != "" {
			out = append(out, s)
		}
		last = loc[1]
	}
	if s := strings.TrimSpace(text[last:]); s != "" {
		out = append(out, s)
	}
	return out
}

func isIndicative(sentence string) bool {
	lower := strings.ToLower(sentence)
	for _, term := range indicativeTerms {
		if strings.Contains(lower, term) {
			return true
		}
	}
	return false
}

// decodeText turns HL7 formatted text escapes into plain text.
func decodeText(s string) string {
	return strings.NewReplacer(
		`\.br\`, "\n",
		`\F\`, "|",
		`\S\`, "^",
		`\R\`, "~",
		`\T\`, "&",
		`\E\`, `\`,
		"~", "\n",
	).Replace(s)
}

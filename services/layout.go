package services

import (
	"regexp"
	"strings"

	"myevidence/providers"
)

// Obergrenzen für die Element-Aufbereitung, damit die Modell-Batches
// handhabbar bleiben.
const (
	elementMaxChars = 4500
	candidateMax    = 250
)

var (
	listItemRe = regexp.MustCompile(`^\s*(?:[-*+]|(?:\d+[.)]))\s+`)
	tableSepRe = regexp.MustCompile(`^\s*\|?\s*:?-{2,}:?\s*(\|\s*:?-{2,}:?\s*)+\|?\s*$`)
	headingRe  = regexp.MustCompile(`^#+\s*`)

	recoHintRe = regexp.MustCompile(`(?i)\b(recommend|recommended|should|we suggest|we recommend|is indicated|are indicated|is not recommended|do not|avoid|consider)\b`)
	loeHintRe  = regexp.MustCompile(`(?i)\b(level of evidence|loe|class\b|grade\b|grading\b|certainty|strong recommendation|conditional recommendation)\b`)
	recoLeadRe = regexp.MustCompile(`(?i)^\s*(recommendation|statement|key recommendation)\b`)
)

// SplitMarkdownElements zerlegt das Azure-DI-Markdown in Layout-Elemente
// (heading, list_item, table_row, text) und hängt jedem Element die nächste
// vorangehende Überschrift als Section an.
func SplitMarkdownElements(md string) []providers.Element {
	text := strings.TrimSpace(strings.ReplaceAll(strings.ReplaceAll(md, "\r\n", "\n"), "\r", "\n"))
	if text == "" {
		return nil
	}

	lines := strings.Split(text, "\n")
	var out []providers.Element
	var buf []string
	section := ""

	flush := func() {
		var parts []string
		for _, b := range buf {
			if s := strings.TrimSpace(b); s != "" {
				parts = append(parts, s)
			}
		}
		buf = nil
		if len(parts) > 0 {
			out = append(out, providers.Element{Section: section, Kind: "text", Content: strings.Join(parts, " ")})
		}
	}

	i := 0
	for i < len(lines) {
		ln := lines[i]

		if strings.TrimSpace(ln) == "" {
			flush()
			i++
			continue
		}

		if strings.HasPrefix(strings.TrimSpace(ln), "#") {
			flush()
			section = headingRe.ReplaceAllString(strings.TrimSpace(ln), "")
			out = append(out, providers.Element{Section: section, Kind: "heading", Content: section})
			i++
			continue
		}

		// Azure DI rendert Boxen/Callouts als Blockquotes.
		if strings.HasPrefix(strings.TrimSpace(ln), ">") {
			flush()
			var q []string
			for i < len(lines) && strings.HasPrefix(strings.TrimSpace(lines[i]), ">") {
				s := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(lines[i]), ">"))
				if s != "" {
					q = append(q, s)
				}
				i++
			}
			if len(q) > 0 {
				out = append(out, providers.Element{Section: section, Kind: "text", Content: strings.Join(q, " ")})
			}
			continue
		}

		// Tabelle: Headerzeile + Trennzeile, danach eine Zeile pro Row.
		if strings.Contains(ln, "|") && i+1 < len(lines) && tableSepRe.MatchString(lines[i+1]) {
			flush()
			header := strings.TrimSpace(ln)
			i += 2
			for i < len(lines) && strings.TrimSpace(lines[i]) != "" && strings.Contains(lines[i], "|") {
				out = append(out, providers.Element{
					Section: section,
					Kind:    "table_row",
					Content: "TABLE HEADER: " + header + "\nTABLE ROW: " + strings.TrimSpace(lines[i]),
				})
				i++
			}
			continue
		}

		if listItemRe.MatchString(ln) {
			flush()
			base := strings.TrimSpace(listItemRe.ReplaceAllString(ln, ""))
			var cont []string
			i++
			for i < len(lines) {
				nxt := lines[i]
				if strings.TrimSpace(nxt) == "" || strings.HasPrefix(strings.TrimSpace(nxt), "#") || listItemRe.MatchString(nxt) {
					break
				}
				if strings.Contains(nxt, "|") && i+1 < len(lines) && tableSepRe.MatchString(lines[i+1]) {
					break
				}
				// Fortsetzungszeilen nur, wenn eingerückt.
				if strings.HasPrefix(nxt, "  ") || strings.HasPrefix(nxt, "\t") {
					cont = append(cont, strings.TrimSpace(nxt))
					i++
					continue
				}
				break
			}
			full := strings.TrimSpace(strings.Join(append([]string{base}, cont...), " "))
			if full != "" {
				out = append(out, providers.Element{Section: section, Kind: "list_item", Content: full})
			}
			continue
		}

		buf = append(buf, ln)
		i++
	}
	flush()

	return boundElements(out)
}

// boundElements teilt überlange Inhalte in Stücke von elementMaxChars.
func boundElements(els []providers.Element) []providers.Element {
	var bounded []providers.Element
	for _, el := range els {
		c := strings.TrimSpace(el.Content)
		if c == "" {
			continue
		}
		for start := 0; start < len(c); start += elementMaxChars {
			end := start + elementMaxChars
			if end > len(c) {
				end = len(c)
			}
			bounded = append(bounded, providers.Element{Section: el.Section, Kind: el.Kind, Content: c[start:end]})
		}
	}
	return bounded
}

// IsCandidateRecommendation entscheidet per Hint-Regex, ob ein Element
// überhaupt an das Modell geschickt wird.
func IsCandidateRecommendation(text string) bool {
	s := strings.TrimSpace(text)
	if len(s) < 25 {
		return false
	}
	return recoHintRe.MatchString(s) || loeHintRe.MatchString(s) || recoLeadRe.MatchString(s)
}

// CandidateElements filtert die Layout-Elemente auf plausible Kandidaten,
// gedeckelt auf candidateMax Stück, Dokumentreihenfolge bleibt erhalten.
func CandidateElements(els []providers.Element) []providers.Element {
	var cands []providers.Element
	for _, el := range els {
		if el.Kind == "heading" {
			continue
		}
		if !IsCandidateRecommendation(el.Content) {
			continue
		}
		cands = append(cands, el)
		if len(cands) >= candidateMax {
			break
		}
	}
	return cands
}

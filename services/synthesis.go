package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"myevidence/models"
	"myevidence/providers"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Obergrenzen fürs Packen der Quellenblöcke.
const (
	synthesisMaxSources      = 25
	synthesisMaxCharsPerItem = 10000
)

const synthesisParagraphPrompt = `You are helping a clinician synthesize multiple saved evidence sources (PubMed studies and guideline recommendations).
Write ONE paragraph of high-yield interpretive thoughts across the set.
Hard rules:
- Use ONLY information in the provided source blocks. Do not invent details.
- Do NOT claim a formal meta-analysis; this is a qualitative synthesis.
- If sources conflict or are too heterogeneous/unclear, say so plainly.
- Mention key limitations that are explicitly apparent without overreaching.
- If a focus question is provided, orient the synthesis around it.
- Output must be a single paragraph (no bullets, no headings).`

const synthesisAnswerPrompt = `You are helping a clinician answer a focused clinical question from saved evidence sources (PubMed studies and guideline recommendations).
Hard rules:
- Use ONLY information in the provided source blocks. Do not invent details.
- Answer the focus question directly first, then give the supporting evidence.
- Reference sources as STUDY n / GUIDELINE n.
- If the sources do not answer the question, say so plainly.
- Keep it concise.`

// SynthesisService packt Studien- und Leitlinienblöcke und lässt das Modell
// eine qualitative Synthese schreiben.
type SynthesisService struct {
	db        *gorm.DB
	extractor providers.FieldExtractor
	curation  *CurationService
	log       *zap.Logger
}

func NewSynthesisService(db *gorm.DB, extractor providers.FieldExtractor, curation *CurationService, log *zap.Logger) *SynthesisService {
	return &SynthesisService{db: db, extractor: extractor, curation: curation, log: log}
}

// SynthesisInput wählt die Quellen und den Modus.
type SynthesisInput struct {
	PMIDs           string `json:"pmids"`            // kommasepariert
	GuidelineIDs    string `json:"guideline_ids"`    // kommasepariert
	Mode            string `json:"mode"`             // paragraph | answer
	Question        string `json:"question"`
	IncludeAbstract bool   `json:"include_abstract"` // Abstract statt PICO-Felder senden
}

// Generate baut die Quellenblöcke und ruft das Modell. Unbekannte IDs werden
// still übersprungen; ganz ohne nutzbare Quelle kommt ein leerer Text zurück.
func (s *SynthesisService) Generate(ctx context.Context, in SynthesisInput) (string, error) {
	var blocks []string

	idx := 0
	for _, pmid := range splitCSV(in.PMIDs) {
		if idx >= synthesisMaxSources {
			break
		}
		var paper models.Paper
		if err := s.db.First(&paper, "pmid = ?", pmid).Error; err != nil {
			continue
		}
		idx++
		blocks = append(blocks, packStudyBlock(&paper, idx, in.IncludeAbstract))
	}

	gIdx := 0
	for _, gid := range splitCSV(in.GuidelineIDs) {
		if idx+gIdx >= synthesisMaxSources {
			break
		}
		var guideline models.Guideline
		if err := s.db.First(&guideline, "id = ?", gid).Error; err != nil {
			continue
		}
		recs, err := s.curation.List(gid, models.RecStatusRelevant)
		if err != nil {
			return "", err
		}
		gIdx++
		blocks = append(blocks, packGuidelineBlock(&guideline, recs, gIdx))
	}

	if len(blocks) == 0 {
		return "", nil
	}

	fqLine := "Focus question: (none provided)"
	if q := strings.TrimSpace(in.Question); q != "" {
		fqLine = "Focus question: " + q
	}

	instructions := synthesisParagraphPrompt
	if in.Mode == "answer" {
		instructions = synthesisAnswerPrompt
	}

	input := fqLine + "\n\nSOURCES:\n" + strings.Join(blocks, "\n\n") + "\n\nNow write the synthesis."
	out, err := s.extractor.Synthesize(ctx, instructions, input)
	if err != nil {
		return "", fmt.Errorf("synthesis: %w (%v)", ErrUpstreamFailure, err)
	}
	s.log.Info("Synthese erzeugt",
		zap.Int("studies", idx), zap.Int("guidelines", gIdx), zap.String("mode", in.Mode))
	return strings.TrimSpace(out), nil
}

// packStudyBlock rendert ein Paper als nummerierten STUDY-Block. Entweder
// der rohe Abstract oder die extrahierten Felder, nie beides.
func packStudyBlock(paper *models.Paper, idx int, includeAbstract bool) string {
	header := fmt.Sprintf("STUDY %d: %s", idx, firstNonEmpty(paper.Title, "(no title)"))
	var bits []string
	if paper.Journal != "" {
		bits = append(bits, paper.Journal)
	}
	if paper.Year != "" {
		bits = append(bits, paper.Year)
	}
	if len(bits) > 0 {
		header += " (" + strings.Join(bits, ", ") + ")"
	}
	header += " | PMID " + paper.PMID

	lines := []string{header}

	if includeAbstract && strings.TrimSpace(paper.Abstract) != "" {
		lines = append(lines, "- Abstract (truncated):", truncateRunes(paper.Abstract, synthesisMaxCharsPerItem))
		return truncateRunes(strings.Join(lines, "\n"), synthesisMaxCharsPerItem)
	}

	if paper.PatientN != nil && *paper.PatientN > 0 {
		lines = append(lines, fmt.Sprintf("- N: %d", *paper.PatientN))
	}
	if tags := decodeTags(paper.DesignTags); len(tags) > 0 {
		lines = append(lines, "- Design/setting tags: "+strings.Join(tags, ", "))
	}
	lines = appendBulletSection(lines, "- Population:", paper.PatientDetails)
	lines = appendBulletSection(lines, "- Intervention/comparator:", paper.InterventionComparison)
	lines = appendBulletSection(lines, "- Results:", paper.Results)
	if c := strings.TrimSpace(paper.AuthorsConclusions); c != "" {
		lines = append(lines, "- Authors' conclusion (from abstract): "+c)
	}
	return truncateRunes(strings.Join(lines, "\n"), synthesisMaxCharsPerItem)
}

// packGuidelineBlock rendert eine Leitlinie samt ihrer als relevant
// kuratierten Empfehlungen.
func packGuidelineBlock(g *models.Guideline, recs []models.Recommendation, idx int) string {
	header := fmt.Sprintf("GUIDELINE %d: %s", idx, firstNonEmpty(g.Name, g.Filename))
	var bits []string
	if g.PubYear != "" {
		bits = append(bits, g.PubYear)
	}
	if g.Specialty != "" {
		bits = append(bits, g.Specialty)
	}
	if len(bits) > 0 {
		header += " (" + strings.Join(bits, ", ") + ")"
	}

	lines := []string{header}
	if len(recs) == 0 {
		lines = append(lines, "- (no curated recommendations)")
	}
	for _, rec := range recs {
		line := "- " + DisplayText(&rec)
		var grading []string
		if rec.Strength != "" {
			grading = append(grading, rec.Strength)
		}
		if rec.Evidence != "" {
			grading = append(grading, rec.Evidence)
		}
		if len(grading) > 0 {
			line += " [" + strings.Join(grading, "; ") + "]"
		}
		lines = append(lines, line)
	}
	return truncateRunes(strings.Join(lines, "\n"), synthesisMaxCharsPerItem)
}

func appendBulletSection(lines []string, label, body string) []string {
	body = strings.TrimSpace(body)
	if body == "" {
		return lines
	}
	lines = append(lines, label)
	for _, ln := range strings.Split(body, "\n") {
		ln = strings.TrimSpace(ln)
		if ln == "" {
			continue
		}
		if !strings.HasPrefix(ln, "- ") {
			ln = "- " + ln
		}
		lines = append(lines, "  "+ln)
	}
	return lines
}

func splitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func decodeTags(raw []byte) []string {
	if len(raw) == 0 {
		return nil
	}
	var tags []string
	if err := json.Unmarshal(raw, &tags); err != nil {
		return nil
	}
	return tags
}

func firstNonEmpty(a, b string) string {
	if strings.TrimSpace(a) != "" {
		return a
	}
	return b
}

func truncateRunes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

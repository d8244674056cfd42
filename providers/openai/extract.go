package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"myevidence/providers"

	"go.uber.org/zap"
)

var (
	digitRe    = regexp.MustCompile(`\d+`)
	jsonBlobRe = regexp.MustCompile(`(?s)\{.*\}`)
)

const patientNPrompt = `You extract the total integer number of human patients/participants studied from a PubMed abstract.
Rules:
- Output MUST be a single integer on one line, with no other text.
- If multiple groups are reported (e.g., randomized arms), output the total enrolled/analyzed participants across all groups.
- If the abstract is not a human patient/participant study, or the total is not stated/derivable, output 0.
- Do not output words, units, punctuation, or explanations.`

const designTagsPrompt = `You extract study design descriptors from a PubMed abstract.
Return a comma-separated list of short tags (no extra text).
Only include tags that are explicitly stated or very strongly implied by the abstract.
If unclear, return an empty string.

Include BOTH:
1) study design tags (trial/observational/review etc)
2) setting/geography tags when stated (country/region, ICU/ED/inpatient/outpatient, multicenter, multinational)

Output rules:
- Output MUST be ONLY the comma-separated tags, on one line.
- Do NOT explain.
- Do NOT invent tags not supported by the abstract.`

const specialtyPrompt = `You extract medical specialty labels from a PubMed title+abstract.
Return a comma-separated list of specialty names (or an empty string if unclear).
Rules:
- Output MUST be ONLY the comma-separated specialties on one line (no extra text).
- Do not invent specialties; use only what is explicitly stated or strongly implied.
- Keep it concise (prefer 1-3; max 5).`

const patientDetailsPrompt = `You extract patient population details from a PubMed abstract.
Return ONLY bullet lines, each starting with '- ' (or return an empty string).
Hard rules:
- Use ONLY information explicitly stated in the abstract. Do not invent or infer beyond what's stated.
- Do NOT include any headers, labels, or subheadings.
- Do NOT repeat the total patient count or any study design descriptors/tags.
- Prioritize eligibility criteria and baseline characteristics.
- Keep it concise and high-yield. Prefer 3-10 bullets when possible.
- If the abstract does not state meaningful eligibility/baseline details, return an empty string.`

const interventionPrompt = `You extract the intervention and the comparison from a PubMed abstract.
Return ONLY bullet lines, each starting with '- ' (or return an empty string).
Hard rules:
- Use ONLY information explicitly stated in the abstract. Do not invent or infer beyond what's stated.
- Do NOT include any headers, labels, or subheadings.
- Do NOT repeat patient count, study design tags, or patient population details.
- Capture: intervention/exposure, comparator/control/reference, dosing/intensity, timing, duration, co-interventions if stated.
- If no clear intervention/comparator is described, return an empty string.
- Keep it concise (prefer 2-8 bullets).`

const resultsPrompt = `Extract the RESULTS from a PubMed abstract.
Return ONLY bullet lines, each starting with '- '. No headers, no labels.
Make ONE bullet per distinct reported result.
Rules:
- Use ONLY information explicitly stated in the abstract. Do not invent.
- Avoid repeating patient count, study design tags, patient details, and intervention/comparison descriptions.
- If a confidence interval (CI) is provided for a result, do NOT include a p-value for that same result.
- Prefer including: outcome name, time horizon (if stated), effect estimate (RR/OR/HR/MD/etc), and CI when stated.
- If results are not clearly stated, return an empty string.
- Keep it concise; prefer 2-12 bullets.`

const conclusionsPrompt = `Extract the authors' conclusion statement from a PubMed abstract.
Output MUST be plain text only (no bullets, no labels, no quotes), ideally 1-2 sentences.
Be as close to verbatim as possible from the abstract text (prefer the Conclusions sentence if present).
Do NOT include any numbers (no digits), and avoid statistics.
If no clear conclusion statement exists, return an empty string.`

const guidelineMetaPrompt = `You extract metadata from a clinical guideline document excerpt.
Return ONLY valid JSON (no markdown) with this exact shape:
{"guideline_name":"...","pub_year":"...","specialty":"..."}
Rules:
- Use ONLY what is explicitly present in the text.
- guideline_name: the most official/primary guideline title as shown.
- pub_year: a 4-digit year ONLY if explicitly stated as the publication year; else empty string.
- specialty: comma-separated medical specialties the guideline belongs to; else empty string.
- If multiple years appear, choose the one most clearly tied to publication.
- Strings only; never null; no extra keys.`

const recommendationsPrompt = `You extract clinical guideline recommendations with HIGH precision and balanced recall.
Input is a JSON array of candidate snippets from a guideline PDF.
Each candidate has: idx (identifier), kind (list_item/table_row/heading/text), section (nearest heading), text.

A recommendation is an *actionable clinical directive* intended as guidance (for clinicians/patients).
Prefer TRUE recommendations; skip narrative evidence summaries.

Strong signals (any one can be sufficient):
- kind is list_item or table_row.
- The section heading suggests recommendations/guidance/statements/algorithm/summary.
- The text contains directive language (e.g., should, must, we recommend, do not, avoid, consider, offer, use, initiate, administer, discontinue).
- Explicit labels (Recommendation/Statement/Practice Point) or grading (Class/Level/LOE/GRADE/etc.).

For kind='text' (plain paragraph): extract only when it contains clear directive language AND is
under a recommendation-like section heading, explicitly labeled/graded, or short and directive.
If a paragraph mixes rationale + recommendation, extract ONLY the recommendation sentence(s).

Do NOT extract:
- Background, rationale-only discussion, evidence summaries, methods.
- 'Recommended daily allowance' / nutrition RDAs, reporting checklists, or 'recommended for future research'.
- Vague non-directive statements unless clearly framed as guidance.

Return ONLY valid JSON with this exact shape:
{ "items": [ {"idx":123, "recommendation_text":"...", "strength_raw":"...", "evidence_raw":"..."}, ... ] }

Rules:
- Use ONLY what is explicitly present in the provided text; never infer.
- idx MUST be one of the provided idx values.
- recommendation_text: include the full actionable recommendation sentence(s).
- strength_raw / evidence_raw: include only if explicitly stated; else empty string.
- Strings only (no nulls). If none qualify, return {"items":[]}`

// ExtractStudyFields füllt die strukturierten Felder Schritt für Schritt.
// Einzelne fehlgeschlagene Teilabfragen werden geloggt, nicht propagiert;
// nur wenn keine einzige Abfrage durchkommt, gibt es einen Fehler.
func (c *Client) ExtractStudyFields(ctx context.Context, title, abstract string) (*providers.StudyFields, error) {
	title = strings.TrimSpace(title)
	abstract = strings.TrimSpace(abstract)
	if abstract == "" {
		return &providers.StudyFields{}, nil
	}

	base := fmt.Sprintf("TITLE:\n%s\n\nABSTRACT:\n%s", title, abstract)
	fields := &providers.StudyFields{}
	failures := 0

	if out, err := c.chat(ctx, patientNPrompt, base+"\n\nReturn the total number of patients studied.", 16); err != nil {
		c.logger.Warn("Extraktion patient_n fehlgeschlagen", zap.Error(err))
		failures++
	} else if n, ok := parseNonnegInt(out); ok && n > 0 {
		fields.PatientN = &n
	}

	if out, err := c.chat(ctx, designTagsPrompt, base+"\n\nReturn the study design + setting/geography tags.", 72); err != nil {
		c.logger.Warn("Extraktion design_tags fehlgeschlagen", zap.Error(err))
		failures++
	} else {
		fields.DesignTags = parseTagList(out)
	}

	if out, err := c.chat(ctx, specialtyPrompt, base+"\n\nReturn the specialty list.", 48); err != nil {
		c.logger.Warn("Extraktion specialty fehlgeschlagen", zap.Error(err))
		failures++
	} else {
		fields.Specialty = strings.Join(parseTagList(out), ", ")
	}

	// Die Folgeprompts bekommen die schon extrahierten Felder mit, damit
	// nichts doppelt auftaucht.
	already := fmt.Sprintf("ALREADY EXTRACTED (do not repeat):\n- Patient count: %d\n- Study design tags: %s",
		derefInt(fields.PatientN), strings.Join(fields.DesignTags, ", "))

	if out, err := c.chat(ctx, patientDetailsPrompt,
		fmt.Sprintf("TITLE:\n%s\n\n%s\n\nABSTRACT:\n%s\n\nReturn the bullet list.", title, already, abstract), 350); err != nil {
		c.logger.Warn("Extraktion patient_details fehlgeschlagen", zap.Error(err))
		failures++
	} else {
		fields.PatientDetails = normalizeBullets(out)
	}

	if out, err := c.chat(ctx, interventionPrompt,
		fmt.Sprintf("TITLE:\n%s\n\n%s\n- Patient details:\n%s\n\nABSTRACT:\n%s\n\nReturn the bullet list.",
			title, already, fields.PatientDetails, abstract), 320); err != nil {
		c.logger.Warn("Extraktion intervention_comparison fehlgeschlagen", zap.Error(err))
		failures++
	} else {
		fields.InterventionComparison = normalizeBullets(out)
	}

	if out, err := c.chat(ctx, resultsPrompt,
		fmt.Sprintf("TITLE:\n%s\n\n%s\n- Intervention/comparison:\n%s\n\nABSTRACT:\n%s\n\nReturn the results bullet list.",
			title, already, fields.InterventionComparison, abstract), 520); err != nil {
		c.logger.Warn("Extraktion results fehlgeschlagen", zap.Error(err))
		failures++
	} else {
		fields.Results = normalizeBullets(out)
	}

	if out, err := c.chat(ctx, conclusionsPrompt,
		fmt.Sprintf("TITLE:\n%s\n\nABSTRACT:\n%s\n\nReturn the authors' conclusion statement.", title, abstract), 160); err != nil {
		c.logger.Warn("Extraktion authors_conclusions fehlgeschlagen", zap.Error(err))
		failures++
	} else {
		fields.AuthorsConclusions = stripDigits(strings.TrimSpace(out))
	}

	if failures == 7 {
		return nil, fmt.Errorf("all field extractions failed")
	}
	return fields, nil
}

type guidelineMetaResponse struct {
	GuidelineName string `json:"guideline_name"`
	PubYear       string `json:"pub_year"`
	Specialty     string `json:"specialty"`
}

// ExtractGuidelineMeta rät Titel, Jahr und Fachgebiet aus dem Textanfang.
func (c *Client) ExtractGuidelineMeta(ctx context.Context, filename, snippet string) (*providers.GuidelineMeta, error) {
	snippet = strings.TrimSpace(snippet)
	if snippet == "" {
		return &providers.GuidelineMeta{}, nil
	}

	input := fmt.Sprintf("FILENAME:\n%s\n\nTEXT EXCERPT:\n%s\n\nReturn JSON now.", strings.TrimSpace(filename), snippet)
	out, err := c.chat(ctx, guidelineMetaPrompt, input, 220)
	if err != nil {
		c.logger.Error("Extraktion Leitlinien-Metadaten fehlgeschlagen", zap.Error(err))
		return nil, err
	}

	var parsed guidelineMetaResponse
	if err := decodeJSONObject(out, &parsed); err != nil {
		c.logger.Warn("Leitlinien-Metadaten nicht parsbar", zap.String("raw", truncate(out, 200)))
		return &providers.GuidelineMeta{}, nil
	}
	return &providers.GuidelineMeta{
		Name:      strings.TrimSpace(parsed.GuidelineName),
		PubYear:   yearOrEmpty(parsed.PubYear),
		Specialty: strings.TrimSpace(parsed.Specialty),
	}, nil
}

type recoCandidate struct {
	Idx     int    `json:"idx"`
	Kind    string `json:"kind"`
	Section string `json:"section"`
	Text    string `json:"text"`
}

type recoResponse struct {
	Items []struct {
		Idx                int    `json:"idx"`
		RecommendationText string `json:"recommendation_text"`
		StrengthRaw        string `json:"strength_raw"`
		EvidenceRaw        string `json:"evidence_raw"`
	} `json:"items"`
}

const recoBatchSize = 24

// ExtractRecommendations schickt die Layout-Elemente in Batches an das Modell
// und sammelt die bestätigten Empfehlungen in Dokumentreihenfolge ein.
func (c *Client) ExtractRecommendations(ctx context.Context, elements []providers.Element) ([]providers.RecommendationCandidate, error) {
	cands := make([]recoCandidate, 0, len(elements))
	for i, el := range elements {
		if el.Kind == "heading" || strings.TrimSpace(el.Content) == "" {
			continue
		}
		cands = append(cands, recoCandidate{Idx: i, Kind: el.Kind, Section: el.Section, Text: el.Content})
	}
	if len(cands) == 0 {
		return nil, nil
	}

	var out []providers.RecommendationCandidate
	for start := 0; start < len(cands); start += recoBatchSize {
		end := start + recoBatchSize
		if end > len(cands) {
			end = len(cands)
		}
		batch := cands[start:end]

		payload, err := json.Marshal(batch)
		if err != nil {
			return nil, err
		}
		raw, err := c.chat(ctx, recommendationsPrompt, "CANDIDATES_JSON:\n"+string(payload)+"\n\nReturn JSON now.", 1400)
		if err != nil {
			c.logger.Error("Empfehlungs-Extraktion fehlgeschlagen",
				zap.Int("batch_start", start), zap.Error(err))
			return nil, err
		}

		var parsed recoResponse
		if err := decodeJSONObject(raw, &parsed); err != nil {
			c.logger.Warn("Empfehlungs-JSON nicht parsbar", zap.Int("batch_start", start))
			continue
		}
		for _, it := range parsed.Items {
			text := strings.TrimSpace(it.RecommendationText)
			if text == "" || it.Idx < 0 || it.Idx >= len(elements) {
				continue
			}
			out = append(out, providers.RecommendationCandidate{
				Section:  elements[it.Idx].Section,
				Text:     text,
				Strength: strings.TrimSpace(it.StrengthRaw),
				Evidence: strings.TrimSpace(it.EvidenceRaw),
			})
		}
	}
	return out, nil
}

// parseTagList zerlegt eine kommaseparierte Modellantwort in saubere Tags.
func parseTagList(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	var tags []string
	seen := map[string]bool{}
	for _, part := range strings.Split(raw, ",") {
		t := strings.TrimSpace(strings.Trim(part, ".;"))
		if t == "" {
			continue
		}
		key := strings.ToLower(t)
		if seen[key] {
			continue
		}
		seen[key] = true
		tags = append(tags, t)
	}
	return tags
}

// normalizeBullets behält nur Zeilen, die als '- ' Bullet formatiert sind
// (bzw. formatiert naheliegende Varianten um).
func normalizeBullets(raw string) string {
	var lines []string
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || line == "-" || line == "*" || line == "•" {
			continue
		}
		switch {
		case strings.HasPrefix(line, "- "):
		case strings.HasPrefix(line, "* "):
			line = "- " + strings.TrimSpace(line[2:])
		case strings.HasPrefix(line, "• "):
			line = "- " + strings.TrimSpace(strings.TrimPrefix(line, "• "))
		default:
			line = "- " + line
		}
		if line != "-" && line != "- " {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}

func stripDigits(s string) string {
	s = digitRe.ReplaceAllString(s, "")
	return strings.Join(strings.Fields(s), " ")
}

func parseNonnegInt(raw string) (int, bool) {
	m := digitRe.FindString(strings.TrimSpace(raw))
	if m == "" {
		return 0, false
	}
	n, err := strconv.Atoi(m)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// decodeJSONObject parst die Antwort als JSON; bei umgebendem Text wird das
// erste {...}-Blob extrahiert.
func decodeJSONObject(raw string, v interface{}) error {
	raw = strings.TrimSpace(raw)
	if err := json.Unmarshal([]byte(raw), v); err == nil {
		return nil
	}
	blob := jsonBlobRe.FindString(raw)
	if blob == "" {
		return fmt.Errorf("no json object in response")
	}
	return json.Unmarshal([]byte(blob), v)
}

var yearRe = regexp.MustCompile(`^(19|20)\d{2}$`)

func yearOrEmpty(s string) string {
	s = strings.TrimSpace(s)
	if yearRe.MatchString(s) {
		return s
	}
	return ""
}

func derefInt(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

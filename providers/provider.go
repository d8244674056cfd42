package providers

import (
	"context"
	"errors"
)

// ErrNotFound signalisiert, dass die angefragte PMID bei PubMed nicht existiert.
var ErrNotFound = errors.New("pmid not found")

// AbstractRecord sind die geparsten PubMed-Metadaten für eine PMID.
type AbstractRecord struct {
	PMID     string `json:"pmid"`
	Title    string `json:"title"`
	Journal  string `json:"journal"`
	Year     string `json:"year"`
	Abstract string `json:"abstract"`
}

// SliceQuery beschreibt einen Such-Slice (siehe SearchLedgerEntry).
type SliceQuery struct {
	Year      int    `json:"year"`
	Month     int    `json:"month"`
	Specialty string `json:"specialty"`
	Journal   string `json:"journal"`
	StudyType string `json:"study_type"`
}

// SearchResult ist ein einzelner Treffer in PubMed-Reihenfolge.
type SearchResult struct {
	PMID  string `json:"pmid"`
	Title string `json:"title"`
}

// StudyFields ist das Ergebnis der strukturierten Extraktion über einem
// Abstract. Felder können leer bleiben (best-effort, kein Fehler).
type StudyFields struct {
	PatientN               *int     `json:"patient_n,omitempty"`
	DesignTags             []string `json:"design_tags,omitempty"`
	PatientDetails         string   `json:"patient_details,omitempty"`
	InterventionComparison string   `json:"intervention_comparison,omitempty"`
	Results                string   `json:"results,omitempty"`
	AuthorsConclusions     string   `json:"authors_conclusions,omitempty"`
	Specialty              string   `json:"specialty,omitempty"`
}

// GuidelineMeta sind die aus dem Leitlinientext geratenen Metadaten.
type GuidelineMeta struct {
	Name      string `json:"guideline_name"`
	PubYear   string `json:"pub_year"`
	Specialty string `json:"specialty"`
}

// Element ist ein Layout-Element aus dem extrahierten Leitlinien-Markdown.
type Element struct {
	Section string `json:"section"`
	Kind    string `json:"kind"` // heading, list_item, table_row, text
	Content string `json:"content"`
}

// RecommendationCandidate ist eine extrahierte Empfehlung in Originalreihenfolge.
type RecommendationCandidate struct {
	Section  string `json:"section"`
	Text     string `json:"text"`
	Strength string `json:"strength,omitempty"`
	Evidence string `json:"evidence,omitempty"`
}

// AbstractSource liefert PubMed-Daten (efetch + esearch/esummary).
type AbstractSource interface {
	FetchAbstract(ctx context.Context, pmid string) (*AbstractRecord, error)
	SearchSlice(ctx context.Context, q SliceQuery) ([]SearchResult, error)
}

// LayoutExtractor wandelt PDF-Bytes in Text um (Azure Document Intelligence).
type LayoutExtractor interface {
	ExtractPDFText(ctx context.Context, pdf []byte) (string, error)
}

// FieldExtractor kapselt alle LLM-gestützten Extraktions- und Synthese-Aufrufe.
// Partielle Ergebnisse sind zulässig; nur Transport-/API-Fehler werden gemeldet.
type FieldExtractor interface {
	ExtractStudyFields(ctx context.Context, title, abstract string) (*StudyFields, error)
	ExtractGuidelineMeta(ctx context.Context, filename, snippet string) (*GuidelineMeta, error)
	ExtractRecommendations(ctx context.Context, elements []Element) ([]RecommendationCandidate, error)
	Synthesize(ctx context.Context, instructions, input string) (string, error)
}

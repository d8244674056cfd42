package pubmed

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"myevidence/config"
	"myevidence/providers"

	"go.uber.org/zap"
)

var (
	httpClient = &http.Client{Timeout: 30 * time.Second}
	yearRegex  = regexp.MustCompile(`\b(19\d{2}|20\d{2})\b`)
)

const esummaryBatchSize = 50

// Fetcher kapselt die Interaktion mit den NCBI E-utilities.
type Fetcher struct {
	Config *config.Config
	Logger *zap.Logger
}

// NewFetcher erstellt eine neue Instanz des PubMed-Fetchers.
func NewFetcher(cfg *config.Config, logger *zap.Logger) *Fetcher {
	return &Fetcher{Config: cfg, Logger: logger}
}

// FetchAbstract holt Titel, Journal, Jahr und Abstract für eine einzelne PMID via EFetch.
func (f *Fetcher) FetchAbstract(ctx context.Context, pmid string) (*providers.AbstractRecord, error) {
	log := f.Logger.With(zap.String("pmid", pmid))
	log.Info("Hole Abstract für PMID.")

	params := f.baseParams()
	params.Set("db", "pubmed")
	params.Set("id", pmid)
	params.Set("retmode", "xml")

	efetchURL := fmt.Sprintf("%s/efetch.fcgi?%s", f.Config.PubMedBaseURL, params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, efetchURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		log.Error("EFetch-Anfrage fehlgeschlagen", zap.Error(err))
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("efetch failed: status %d", resp.StatusCode)
	}

	var articleSet PubmedArticleSet
	if err := xml.NewDecoder(resp.Body).Decode(&articleSet); err != nil {
		log.Error("Fehler beim Parsen der EFetch-XML-Antwort", zap.Error(err))
		return nil, err
	}

	if len(articleSet.PubmedArticle) == 0 {
		return nil, providers.ErrNotFound
	}

	return mapArticleToRecord(&articleSet.PubmedArticle[0]), nil
}

// SearchSlice führt eine ESearch-Abfrage für einen Such-Slice aus und reichert
// die Treffer via ESummary mit Titeln an. Reihenfolge = PubMed-Reihenfolge.
func (f *Fetcher) SearchSlice(ctx context.Context, q providers.SliceQuery) ([]providers.SearchResult, error) {
	term := BuildSliceTerm(q)
	log := f.Logger.With(zap.String("term", term))
	log.Info("Starte PubMed ESearch für Slice.")

	ids, err := f.searchIDs(ctx, term, q)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		log.Info("ESearch ohne Treffer.")
		return nil, nil
	}

	titles, err := f.fetchTitles(ctx, ids)
	if err != nil {
		// Titel sind nice-to-have; Treffer ohne Titel bleiben nutzbar.
		log.Warn("ESummary fehlgeschlagen, liefere Treffer ohne Titel", zap.Error(err))
		titles = map[string]string{}
	}

	results := make([]providers.SearchResult, 0, len(ids))
	for _, id := range ids {
		results = append(results, providers.SearchResult{PMID: id, Title: titles[id]})
	}
	log.Info("PubMed Slice-Suche abgeschlossen", zap.Int("count", len(results)))
	return results, nil
}

// searchIDs pagt durch ESearch, bis alle IDs für den Term eingesammelt sind.
func (f *Fetcher) searchIDs(ctx context.Context, term string, q providers.SliceQuery) ([]string, error) {
	retmax := f.Config.PubMedRetMax
	if retmax <= 0 {
		retmax = 100
	}

	first, last := monthBounds(q.Year, q.Month)

	var allIDs []string
	for offset := 0; ; offset += retmax {
		params := f.baseParams()
		params.Set("db", "pubmed")
		params.Set("term", term)
		params.Set("retmode", "json")
		params.Set("retmax", fmt.Sprintf("%d", retmax))
		params.Set("retstart", fmt.Sprintf("%d", offset))
		params.Set("datetype", "pdat")
		params.Set("mindate", first)
		params.Set("maxdate", last)

		searchURL := fmt.Sprintf("%s/esearch.fcgi?%s", f.Config.PubMedBaseURL, params.Encode())
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL, nil)
		if err != nil {
			return nil, err
		}
		resp, err := httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return nil, fmt.Errorf("esearch failed: status %d", resp.StatusCode)
		}

		var esearchResp ESearchResponse
		err = json.NewDecoder(resp.Body).Decode(&esearchResp)
		resp.Body.Close()
		if err != nil {
			return nil, err
		}

		ids := esearchResp.ESearchResult.IdList
		if len(ids) == 0 {
			break
		}
		allIDs = append(allIDs, ids...)
		if len(ids) < retmax {
			break
		}
	}
	return allIDs, nil
}

// fetchTitles holt Titel für die IDs in ESummary-Batches.
func (f *Fetcher) fetchTitles(ctx context.Context, ids []string) (map[string]string, error) {
	titles := make(map[string]string, len(ids))
	for start := 0; start < len(ids); start += esummaryBatchSize {
		end := start + esummaryBatchSize
		if end > len(ids) {
			end = len(ids)
		}

		params := f.baseParams()
		params.Set("db", "pubmed")
		params.Set("id", strings.Join(ids[start:end], ","))
		params.Set("retmode", "xml")

		summaryURL := fmt.Sprintf("%s/esummary.fcgi?%s", f.Config.PubMedBaseURL, params.Encode())
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, summaryURL, nil)
		if err != nil {
			return nil, err
		}
		resp, err := httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return nil, fmt.Errorf("esummary failed: status %d", resp.StatusCode)
		}

		var result ESummaryResult
		err = xml.NewDecoder(resp.Body).Decode(&result)
		resp.Body.Close()
		if err != nil {
			return nil, err
		}

		for _, ds := range result.DocSums {
			for _, item := range ds.Items {
				if item.Name == "Title" {
					titles[strings.TrimSpace(ds.ID)] = strings.TrimSpace(item.Value)
					break
				}
			}
		}
	}
	return titles, nil
}

// baseParams liefert tool/email/api_key, wie von NCBI für alle Aufrufe gewünscht.
func (f *Fetcher) baseParams() url.Values {
	params := url.Values{}
	params.Set("tool", f.Config.PubMedTool)
	if f.Config.PubMedEmail != "" {
		params.Set("email", f.Config.PubMedEmail)
	}
	if f.Config.PubMedAPIKey != "" {
		params.Set("api_key", f.Config.PubMedAPIKey)
	}
	return params
}

// BuildSliceTerm baut den ESearch-Term aus Journal, Studientyp und Specialty.
// Der Datumsanteil läuft über mindate/maxdate (datetype=pdat).
func BuildSliceTerm(q providers.SliceQuery) string {
	var parts []string
	if j := strings.TrimSpace(q.Journal); j != "" {
		parts = append(parts, fmt.Sprintf("%q[jour]", j))
	}
	if st := strings.TrimSpace(q.StudyType); st != "" {
		parts = append(parts, fmt.Sprintf("%q[Publication Type]", st))
	}
	if sp := strings.TrimSpace(q.Specialty); sp != "" {
		parts = append(parts, fmt.Sprintf("%q[MeSH Terms]", sp))
	}
	if len(parts) == 0 {
		return "all[sb]"
	}
	return strings.Join(parts, " AND ")
}

// monthBounds liefert ersten und letzten Tag des Monats im PubMed-Datumsformat.
func monthBounds(year, month int) (string, string) {
	first := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	last := first.AddDate(0, 1, -1)
	return first.Format("2006/01/02"), last.Format("2006/01/02")
}

// mapArticleToRecord wandelt ein XML-Article-Objekt in unseren AbstractRecord um.
func mapArticleToRecord(article *PubmedArticle) *providers.AbstractRecord {
	rec := &providers.AbstractRecord{
		PMID:     strings.TrimSpace(article.MedlineCitation.PMID),
		Title:    strings.TrimSpace(article.MedlineCitation.Article.Title),
		Journal:  strings.TrimSpace(article.MedlineCitation.Article.Journal.Title),
		Year:     parseYear(article),
		Abstract: joinAbstract(article.MedlineCitation.Article.Abstract.Text),
	}
	return rec
}

// joinAbstract fügt gelabelte Abstract-Abschnitte zu einem Text zusammen.
func joinAbstract(parts []AbstractText) string {
	var out []string
	for _, p := range parts {
		txt := strings.TrimSpace(p.Value)
		if txt == "" {
			continue
		}
		label := strings.TrimSpace(p.Label)
		if label == "" {
			label = strings.TrimSpace(p.NlmCategory)
		}
		if label != "" {
			out = append(out, fmt.Sprintf("%s: %s", label, txt))
		} else {
			out = append(out, txt)
		}
	}
	return strings.Join(out, "\n\n")
}

// parseYear versucht PubDate/Year, dann MedlineDate, dann ArticleDate.
func parseYear(article *PubmedArticle) string {
	pubDate := article.MedlineCitation.Article.Journal.PubDate
	if y := strings.TrimSpace(pubDate.Year); y != "" {
		return y
	}
	if m := yearRegex.FindString(pubDate.MedlineDate); m != "" {
		return m
	}
	return strings.TrimSpace(article.MedlineCitation.Article.ArticleDate.Year)
}

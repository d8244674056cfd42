// Package pubmed enthält die Logik für die Interaktion mit der PubMed E-utilities API.
package pubmed

import (
	"encoding/xml"
)

// ESearchResponse repräsentiert die JSON-Antwort von ESearch für die ID-Suche.
type ESearchResponse struct {
	ESearchResult struct {
		Count  string   `json:"count"`
		IdList []string `json:"idlist"`
	} `json:"esearchresult"`
}

// PubmedArticleSet repräsentiert das gesamte XML-Dokument von EFetch.
type PubmedArticleSet struct {
	XMLName       xml.Name        `xml:"PubmedArticleSet"`
	PubmedArticle []PubmedArticle `xml:"PubmedArticle"`
}

// AbstractText ist ein (ggf. gelabelter) Abschnitt des Abstracts.
type AbstractText struct {
	Label       string `xml:"Label,attr"`
	NlmCategory string `xml:"NlmCategory,attr"`
	Value       string `xml:",chardata"`
}

// PubmedArticle repräsentiert einen einzelnen Artikel in der XML-Antwort.
type PubmedArticle struct {
	MedlineCitation struct {
		PMID    string `xml:"PMID"`
		Article struct {
			Title    string `xml:"ArticleTitle"`
			Abstract struct {
				Text []AbstractText `xml:"AbstractText"`
			} `xml:"Abstract"`
			Journal struct {
				Title   string `xml:"Title"`
				PubDate struct {
					Year        string `xml:"Year"`
					Month       string `xml:"Month"`
					MedlineDate string `xml:"MedlineDate"`
				} `xml:"JournalIssue>PubDate"`
			} `xml:"Journal"`
			ArticleDate struct {
				Year string `xml:"Year"`
			} `xml:"ArticleDate"`
		} `xml:"Article"`
	} `xml:"MedlineCitation"`
}

// ESummaryResult repräsentiert die XML-Antwort von ESummary (Titel pro PMID).
type ESummaryResult struct {
	XMLName xml.Name `xml:"eSummaryResult"`
	DocSums []DocSum `xml:"DocSum"`
}

// DocSum ist die Zusammenfassung eines einzelnen Artikels.
type DocSum struct {
	ID    string       `xml:"Id"`
	Items []DocSumItem `xml:"Item"`
}

// DocSumItem ist ein benanntes Feld innerhalb eines DocSum.
type DocSumItem struct {
	Name  string `xml:"Name,attr"`
	Value string `xml:",chardata"`
}

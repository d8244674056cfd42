// Package azuredi spricht die Azure Document Intelligence REST API an
// (prebuilt-layout, Markdown-Ausgabe). Es wird nur der extrahierte Text
// weitergereicht; die PDF-Bytes verlassen den Request nie Richtung Storage.
package azuredi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"myevidence/config"

	"go.uber.org/zap"
)

const (
	apiVersion   = "2024-07-31-preview"
	pollInterval = 2 * time.Second
	pollMax      = 60 // ~2 Minuten
)

var httpClient = &http.Client{Timeout: 60 * time.Second}

// Client kapselt Endpoint und Key für Azure Document Intelligence.
type Client struct {
	Config *config.Config
	Logger *zap.Logger
}

// NewClient erstellt einen neuen Azure-DI-Client.
func NewClient(cfg *config.Config, logger *zap.Logger) *Client {
	return &Client{Config: cfg, Logger: logger}
}

type analyzeResponse struct {
	Status        string `json:"status"`
	Error         *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
	AnalyzeResult struct {
		Content string `json:"content"`
	} `json:"analyzeResult"`
}

// ExtractPDFText schickt die PDF-Bytes an prebuilt-layout und pollt das
// Ergebnis, bis die Analyse abgeschlossen ist. Rückgabe ist Markdown.
func (c *Client) ExtractPDFText(ctx context.Context, pdf []byte) (string, error) {
	if len(pdf) == 0 {
		return "", fmt.Errorf("empty pdf bytes")
	}

	analyzeURL := fmt.Sprintf(
		"%s/documentintelligence/documentModels/prebuilt-layout:analyze?api-version=%s&outputContentFormat=markdown",
		strings.TrimRight(c.Config.AzureDIEndpoint, "/"), apiVersion,
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, analyzeURL, bytes.NewReader(pdf))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/pdf")
	req.Header.Set("Ocp-Apim-Subscription-Key", c.Config.AzureDIKey)

	resp, err := httpClient.Do(req)
	if err != nil {
		c.Logger.Error("Azure DI Analyze-Anfrage fehlgeschlagen", zap.Error(err))
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		return "", fmt.Errorf("azure di analyze failed: status %d", resp.StatusCode)
	}

	opLocation := resp.Header.Get("Operation-Location")
	if opLocation == "" {
		return "", fmt.Errorf("azure di analyze: missing Operation-Location header")
	}

	c.Logger.Debug("Azure DI Analyse gestartet, beginne Polling", zap.Int("pdf_bytes", len(pdf)))
	return c.pollResult(ctx, opLocation)
}

// pollResult fragt die Operation-Location ab, bis succeeded/failed.
func (c *Client) pollResult(ctx context.Context, opLocation string) (string, error) {
	for i := 0; i < pollMax; i++ {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(pollInterval):
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, opLocation, nil)
		if err != nil {
			return "", err
		}
		req.Header.Set("Ocp-Apim-Subscription-Key", c.Config.AzureDIKey)

		resp, err := httpClient.Do(req)
		if err != nil {
			return "", err
		}

		var out analyzeResponse
		err = json.NewDecoder(resp.Body).Decode(&out)
		resp.Body.Close()
		if err != nil {
			return "", err
		}

		switch out.Status {
		case "succeeded":
			content := strings.TrimSpace(out.AnalyzeResult.Content)
			if content == "" {
				return "", fmt.Errorf("azure di: no text extracted")
			}
			return content, nil
		case "failed":
			msg := "unknown"
			if out.Error != nil {
				msg = out.Error.Message
			}
			return "", fmt.Errorf("azure di analyze failed: %s", msg)
		}
		// running / notStarted: weiter pollen
	}
	return "", fmt.Errorf("azure di analyze: timed out waiting for result")
}

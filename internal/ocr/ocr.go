package ocr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/maltedev/amazon-label-extractor/internal/config"
	"github.com/maltedev/amazon-label-extractor/internal/models"
)

// FailurePrefix starts the text reported for an image that could not be read.
const FailurePrefix = "OCR failed: "

// Recognizer turns product images into text, one entry per image in input order.
type Recognizer interface {
	Recognize(ctx context.Context, imageURLs []string) []string
}

type request struct {
	ImageURL string `json:"image_url"`
}

type response struct {
	Text  string `json:"text"`
	Error string `json:"error,omitempty"`
}

// Client calls an OCR service over HTTP, one image at a time.
type Client struct {
	endpoint   string
	httpClient *http.Client
	logger     *slog.Logger
}

func NewClient(cfg config.OCRConfig, logger *slog.Logger) *Client {
	return &Client{
		endpoint:   strings.TrimRight(cfg.ServiceURL, "/") + "/ocr",
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger.With("component", "ocr"),
	}
}

// Recognize never fails as a whole. An image that cannot be read yields
// FailurePrefix followed by the reason.
func (c *Client) Recognize(ctx context.Context, imageURLs []string) []string {
	texts := make([]string, 0, len(imageURLs))
	for _, u := range imageURLs {
		start := time.Now()
		text, err := c.recognize(ctx, u)
		if err != nil {
			c.logger.Warn("ocr failed", "image_url", u, "error", err)
			texts = append(texts, FailurePrefix+err.Error())
			continue
		}
		c.logger.Debug("ocr complete", "image_url", u, "chars", len(text), "duration", time.Since(start))
		texts = append(texts, text)
	}
	return texts
}

func (c *Client) recognize(ctx context.Context, imageURL string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	payload, err := json.Marshal(request{ImageURL: imageURL})
	if err != nil {
		return "", fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	var out response
	if resp.StatusCode != http.StatusOK {
		if json.Unmarshal(body, &out) == nil && out.Error != "" {
			return "", fmt.Errorf("service returned %d: %s", resp.StatusCode, out.Error)
		}
		return "", fmt.Errorf("service returned %d", resp.StatusCode)
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	if out.Error != "" {
		return "", fmt.Errorf("%s", out.Error)
	}

	return out.Text, nil
}

// PriceFinder pulls a normalized price out of free text.
type PriceFinder interface {
	PriceFromText(texts []string) (string, bool)
}

// Enricher runs OCR over a record's images and fills a missing MRP from the
// recognized text.
type Enricher struct {
	recognizer Recognizer
	prices     PriceFinder
}

func NewEnricher(r Recognizer, prices PriceFinder) *Enricher {
	return &Enricher{recognizer: r, prices: prices}
}

// Enrich returns the OCR texts and a record with mrp filled when the images
// carry one. rec itself is not modified.
func (e *Enricher) Enrich(ctx context.Context, rec *models.ProductRecord) (*models.ProductRecord, []string) {
	if rec == nil || len(rec.ImageURLs) == 0 {
		return rec, []string{}
	}

	texts := e.recognizer.Recognize(ctx, rec.ImageURLs)
	if rec.MRP != nil {
		return rec, texts
	}

	readable := make([]string, 0, len(texts))
	for _, t := range texts {
		if !strings.HasPrefix(t, FailurePrefix) {
			readable = append(readable, t)
		}
	}

	price, ok := e.prices.PriceFromText(readable)
	if !ok {
		return rec, texts
	}

	out := rec.Clone()
	out.MRP = models.StringPtr(price)
	out.UpdateConfidence()
	return out, texts
}

package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/maltedev/amazon-label-extractor/internal/models"
	"github.com/maltedev/amazon-label-extractor/internal/scraper"
	"github.com/maltedev/amazon-label-extractor/internal/storage"
)

const maxRequestBody = 1 << 20

// Enricher adds OCR text to an extracted record.
type Enricher interface {
	Enrich(ctx context.Context, rec *models.ProductRecord) (*models.ProductRecord, []string)
}

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Handlers struct {
	extractor scraper.Extractor
	store     storage.ProductStore
	ocr       Enricher
	logger    *slog.Logger
}

// NewHandlers wires the HTTP handlers. ocr may be nil when OCR is disabled.
func NewHandlers(extractor scraper.Extractor, store storage.ProductStore, ocr Enricher, logger *slog.Logger) *Handlers {
	return &Handlers{
		extractor: extractor,
		store:     store,
		ocr:       ocr,
		logger:    logger.With("component", "api"),
	}
}

// ExtractRequest is the body of POST /extract.
type ExtractRequest struct {
	URL string `json:"url"`
}

// ExtractResponse is a record, plus the OCR texts of its images when OCR is enabled.
type ExtractResponse struct {
	models.ProductRecord
	OCRText *[]string `json:"ocr_text,omitempty"`
}

// ErrorResponse is returned for every failed request.
type ErrorResponse struct {
	Error     string           `json:"error"`
	Kind      models.ErrorKind `json:"kind,omitempty"`
	Status    int              `json:"upstream_status,omitempty"`
	Retryable bool             `json:"retryable"`
}

// CreateProductResponse is the body returned by POST /products.
type CreateProductResponse struct {
	Success bool                     `json:"success"`
	Product *models.SubmittedProduct `json:"product"`
}

// Extract handles POST /extract.
func (h *Handlers) Extract(w http.ResponseWriter, r *http.Request) {
	var req ExtractRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	req.URL = strings.TrimSpace(req.URL)
	if req.URL == "" {
		h.respondError(w, http.StatusBadRequest, "No URL provided")
		return
	}

	rec, err := h.extractor.Extract(r.Context(), req.URL)
	if err != nil {
		h.respondExtractError(w, err)
		return
	}

	resp := ExtractResponse{}
	if h.ocr != nil {
		enriched, texts := h.ocr.Enrich(r.Context(), rec)
		rec = enriched
		resp.OCRText = &texts
	}
	resp.ProductRecord = *rec

	h.respondJSON(w, http.StatusOK, resp)
}

// ListProducts handles GET /products.
func (h *Handlers) ListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.store.List(r.Context())
	if err != nil {
		h.logger.Error("failed to list products", "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to list products")
		return
	}

	h.respondJSON(w, http.StatusOK, products)
}

// CreateProduct handles POST /products.
func (h *Handlers) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var p models.SubmittedProduct
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(&p); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	// Client supplied values are not trusted for identity or confidence.
	p.ID = ""
	p.CreatedAt = time.Time{}
	p.UpdateConfidence()

	if err := h.store.Add(r.Context(), &p); err != nil {
		h.logger.Error("failed to store product", "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to store product")
		return
	}

	h.logger.Info("product stored", "id", p.ID, "source_url", p.SourceURL)
	h.respondJSON(w, http.StatusCreated, CreateProductResponse{Success: true, Product: &p})
}

// GetProduct handles GET /products/{productID}.
func (h *Handlers) GetProduct(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "productID")
	if id == "" {
		h.respondError(w, http.StatusBadRequest, "product ID is required")
		return
	}

	p, err := h.store.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			h.respondError(w, http.StatusNotFound, "product not found")
			return
		}
		h.logger.Error("failed to get product", "error", err, "id", id)
		h.respondError(w, http.StatusInternalServerError, "failed to get product")
		return
	}

	h.respondJSON(w, http.StatusOK, p)
}

// Health handles GET /health.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	health := map[string]interface{}{
		"status":      "ok",
		"ocr_enabled": h.ocr != nil,
	}

	status := http.StatusOK
	if p, ok := h.store.(Pinger); ok {
		if err := p.Ping(r.Context()); err != nil {
			h.logger.Warn("store health check failed", "error", err)
			health["status"] = "error"
			health["message"] = "product store unreachable"
			status = http.StatusServiceUnavailable
		}
	}

	h.respondJSON(w, status, health)
}

func (h *Handlers) respondExtractError(w http.ResponseWriter, err error) {
	ee := models.AsExtractError(err)
	status := ee.Kind.HTTPStatus()
	if status >= http.StatusInternalServerError {
		h.logger.Error("extraction failed", "kind", ee.Kind, "error", err)
	}

	h.respondJSON(w, status, ErrorResponse{
		Error:     ee.Message,
		Kind:      ee.Kind,
		Status:    ee.Status,
		Retryable: ee.Kind.Retryable(),
	})
}

// Helper methods
func (h *Handlers) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handlers) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, ErrorResponse{Error: message})
}

package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/maltedev/amazon-label-extractor/internal/models"
	"github.com/maltedev/amazon-label-extractor/internal/storage"
)

const productsSchema = `
	CREATE TABLE IF NOT EXISTS submitted_products (
		id                   UUID PRIMARY KEY,
		name                 TEXT,
		manufacturer_address TEXT,
		net_quantity         TEXT,
		mrp                  TEXT,
		consumer_care        TEXT,
		date_of_manufacture  TEXT,
		country_of_origin    TEXT,
		image_urls           JSONB NOT NULL DEFAULT '[]',
		confidence           DOUBLE PRECISION NOT NULL DEFAULT 0,
		source_url           TEXT NOT NULL DEFAULT '',
		ocr_text             JSONB,
		created_at           TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_submitted_products_created_at ON submitted_products (created_at);`

const insertColumns = `id, name, manufacturer_address, net_quantity, mrp, consumer_care,
	date_of_manufacture, country_of_origin, image_urls, confidence, source_url, ocr_text, created_at`

const selectColumns = `id::text, name, manufacturer_address, net_quantity, mrp, consumer_care,
	date_of_manufacture, country_of_origin, image_urls, confidence, source_url, ocr_text, created_at`

// ProductRepository is the postgres ProductStore.
type ProductRepository struct {
	db *DB
}

func NewProductRepository(db *DB) *ProductRepository {
	return &ProductRepository{db: db}
}

func (r *ProductRepository) Ping(ctx context.Context) error {
	return r.db.Ping(ctx)
}

func (r *ProductRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, productsSchema); err != nil {
		return fmt.Errorf("failed to create submitted_products: %w", err)
	}
	return nil
}

func (r *ProductRepository) Add(ctx context.Context, p *models.SubmittedProduct) error {
	storage.Prepare(p)

	imageURLs, err := json.Marshal(p.ImageURLs)
	if err != nil {
		return fmt.Errorf("failed to marshal image urls: %w", err)
	}
	var ocrText []byte
	if p.OCRText != nil {
		if ocrText, err = json.Marshal(p.OCRText); err != nil {
			return fmt.Errorf("failed to marshal ocr text: %w", err)
		}
	}

	query := `
		INSERT INTO submitted_products (` + insertColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	_, err = r.db.Exec(ctx, query,
		p.ID, p.Name, p.ManufacturerAddress, p.NetQuantity, p.MRP, p.ConsumerCare,
		p.DateOfManufacture, p.CountryOfOrigin, imageURLs, p.Confidence, p.SourceURL,
		ocrText, p.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert product: %w", err)
	}

	return nil
}

func (r *ProductRepository) List(ctx context.Context) ([]models.SubmittedProduct, error) {
	rows, err := r.db.Query(ctx, `SELECT `+selectColumns+` FROM submitted_products ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	defer rows.Close()

	products := []models.SubmittedProduct{}
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate products: %w", err)
	}

	return products, nil
}

func (r *ProductRepository) Get(ctx context.Context, id string) (*models.SubmittedProduct, error) {
	row := r.db.QueryRow(ctx, `SELECT `+selectColumns+` FROM submitted_products WHERE id::text = $1`, id)

	p, err := scanProduct(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", storage.ErrNotFound, id)
	}
	return p, err
}

func scanProduct(row pgx.Row) (*models.SubmittedProduct, error) {
	var p models.SubmittedProduct
	var imageURLs, ocrText []byte

	err := row.Scan(
		&p.ID, &p.Name, &p.ManufacturerAddress, &p.NetQuantity, &p.MRP, &p.ConsumerCare,
		&p.DateOfManufacture, &p.CountryOfOrigin, &imageURLs, &p.Confidence, &p.SourceURL,
		&ocrText, &p.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan product: %w", err)
	}

	p.ImageURLs = []string{}
	if len(imageURLs) > 0 {
		if err := json.Unmarshal(imageURLs, &p.ImageURLs); err != nil {
			return nil, fmt.Errorf("failed to decode image urls: %w", err)
		}
	}
	if len(ocrText) > 0 {
		if err := json.Unmarshal(ocrText, &p.OCRText); err != nil {
			return nil, fmt.Errorf("failed to decode ocr text: %w", err)
		}
	}

	return &p, nil
}

// Package stock aggregates the warehouse catalog export into per-article
// stock totals.
//
// The feed is a single XLSX document listing every SKU with its quantity,
// price, and category. SKUs map many-to-one onto catalog articles: the
// article is the substring before the first hyphen. There is no delta
// feed, the document is fetched in full on every stock refresh.
package stock

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"offerboard_backend/platform/config"
	"offerboard_backend/platform/logger"
)

// Total is the aggregated stock for one base article, plus the
// human-readable modification lines used by the detail display.
type Total struct {
	Quantity      int
	Modifications []string
}

// Aggregator fetches and parses the stock feed.
type Aggregator struct {
	httpClient       *http.Client
	feedURL          string
	excludedCategory string
	log              *logger.Logger
}

// New creates a stock aggregator. SKUs in excludedCategory are dropped
// from totals entirely.
func New(cfg config.StockFeedConfig, excludedCategory string, log *logger.Logger) *Aggregator {
	return &Aggregator{
		httpClient:       &http.Client{Timeout: 60 * time.Second},
		feedURL:          cfg.GetStockFeedURL(),
		excludedCategory: excludedCategory,
		log:              log,
	}
}

// Fetch downloads the full catalog export and aggregates it. Parse
// failures are fatal to the stock stage only, never to the pipeline.
func (a *Aggregator) Fetch(ctx context.Context) (map[string]Total, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.feedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch stock feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("stock feed: status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read stock feed: %w", err)
	}

	totals, err := Parse(bytes.NewReader(data), a.excludedCategory)
	if err != nil {
		return nil, err
	}

	a.log.Debug("stock feed aggregated", "articles", len(totals))
	return totals, nil
}

// Parse aggregates the XLSX export. The first sheet must carry a header
// row with at least sku, quantity, and category columns.
func Parse(r io.Reader, excludedCategory string) (map[string]Total, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open stock feed: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("stock feed has no sheets")
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read stock sheet: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("stock feed is empty")
	}

	cols, err := headerIndex(rows[0])
	if err != nil {
		return nil, err
	}

	totals := make(map[string]Total)
	for _, row := range rows[1:] {
		sku := cell(row, cols.sku)
		if sku == "" {
			continue
		}
		if excludedCategory != "" && strings.EqualFold(cell(row, cols.category), excludedCategory) {
			continue
		}

		qty, err := strconv.Atoi(strings.TrimSpace(cell(row, cols.quantity)))
		if err != nil {
			return nil, fmt.Errorf("sku %s: bad quantity %q", sku, cell(row, cols.quantity))
		}

		article := BaseArticle(sku)
		total := totals[article]
		total.Quantity += qty
		if mod := cell(row, cols.modification); mod != "" {
			total.Modifications = append(total.Modifications, fmt.Sprintf("%s: %d", mod, qty))
		}
		totals[article] = total
	}

	return totals, nil
}

// BaseArticle maps a raw SKU onto its catalog article: the substring
// before the first hyphen.
func BaseArticle(sku string) string {
	if i := strings.Index(sku, "-"); i >= 0 {
		return sku[:i]
	}
	return sku
}

type columnIndex struct {
	sku          int
	quantity     int
	category     int
	modification int
}

func headerIndex(header []string) (columnIndex, error) {
	cols := columnIndex{sku: -1, quantity: -1, category: -1, modification: -1}
	for i, name := range header {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "sku", "article":
			cols.sku = i
		case "quantity", "qty":
			cols.quantity = i
		case "category":
			cols.category = i
		case "modification", "variant":
			cols.modification = i
		}
	}
	if cols.sku < 0 || cols.quantity < 0 || cols.category < 0 {
		return cols, fmt.Errorf("stock feed header missing required columns: %v", header)
	}
	return cols, nil
}

func cell(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

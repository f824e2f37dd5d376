package stock

import (
	"bytes"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"
)

func buildFeed(t *testing.T, rows [][]interface{}) *bytes.Reader {
	t.Helper()

	f := excelize.NewFile()
	defer f.Close()

	sheet := f.GetSheetName(0)
	for i, row := range rows {
		cellRef, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			t.Fatalf("cell name: %v", err)
		}
		if err := f.SetSheetRow(sheet, cellRef, &row); err != nil {
			t.Fatalf("set row: %v", err)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatalf("write feed: %v", err)
	}
	return bytes.NewReader(buf.Bytes())
}

func TestParseAggregatesSKUsByBaseArticle(t *testing.T) {
	feed := buildFeed(t, [][]interface{}{
		{"sku", "quantity", "category", "modification"},
		{"A100-red", 3, "gadgets", "red"},
		{"A100-blue", 5, "gadgets", "blue"},
		{"B200", 7, "gadgets", ""},
	})

	totals, err := Parse(feed, "")
	if err != nil {
		t.Fatalf("expected parse to succeed, got %v", err)
	}

	a, ok := totals["A100"]
	if !ok {
		t.Fatal("expected A100 total")
	}
	if a.Quantity != 8 {
		t.Fatalf("expected A100 quantity 8, got %d", a.Quantity)
	}
	if len(a.Modifications) != 2 {
		t.Fatalf("expected 2 modification lines, got %v", a.Modifications)
	}
	if !strings.Contains(a.Modifications[0], "red") {
		t.Fatalf("expected modification line to carry the variant, got %q", a.Modifications[0])
	}

	b, ok := totals["B200"]
	if !ok {
		t.Fatal("expected B200 total")
	}
	if b.Quantity != 7 {
		t.Fatalf("expected B200 quantity 7, got %d", b.Quantity)
	}
	if len(b.Modifications) != 0 {
		t.Fatalf("expected no modification lines for B200, got %v", b.Modifications)
	}
}

func TestParseExcludesCategory(t *testing.T) {
	feed := buildFeed(t, [][]interface{}{
		{"sku", "quantity", "category"},
		{"A100-red", 3, "gadgets"},
		{"A100-setup", 99, "Services"},
	})

	totals, err := Parse(feed, "services")
	if err != nil {
		t.Fatalf("expected parse to succeed, got %v", err)
	}
	if totals["A100"].Quantity != 3 {
		t.Fatalf("expected excluded category dropped, got quantity %d", totals["A100"].Quantity)
	}
}

func TestParseBadQuantityFailsWholeParse(t *testing.T) {
	feed := buildFeed(t, [][]interface{}{
		{"sku", "quantity", "category"},
		{"A100-red", "lots", "gadgets"},
	})

	if _, err := Parse(feed, ""); err == nil {
		t.Fatal("expected error for unparseable quantity")
	}
}

func TestParseMissingRequiredColumns(t *testing.T) {
	feed := buildFeed(t, [][]interface{}{
		{"sku", "price"},
		{"A100-red", 10},
	})

	if _, err := Parse(feed, ""); err == nil {
		t.Fatal("expected error for missing header columns")
	}
}

func TestParseRejectsNonXLSX(t *testing.T) {
	if _, err := Parse(strings.NewReader("not a spreadsheet"), ""); err == nil {
		t.Fatal("expected error for malformed document")
	}
}

func TestBaseArticle(t *testing.T) {
	cases := map[string]string{
		"A100-red":    "A100",
		"A100-red-xl": "A100",
		"B200":        "B200",
		"-leading":    "",
		"C300-":       "C300",
	}
	for sku, want := range cases {
		if got := BaseArticle(sku); got != want {
			t.Fatalf("sku %q: expected %q, got %q", sku, want, got)
		}
	}
}

// Package dataset reads the daily news CSV and writes the processed and
// highlight datasets back out.
package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"headlines/internal/core"
)

// Input column names.
const (
	ColumnTitle   = "Title"
	ColumnSummary = "news_summary"
	ColumnID      = "id"
)

// Derived column names, in the order the pipeline adds them.
var derivedColumns = []string{
	"text",
	"predicted_category",
	"similarity",
	"cluster",
	"cluster_size",
	"title_lc",
	"is_priority",
	"highlight_score",
}

// Dataset is a loaded table of articles.
type Dataset struct {
	Path       string
	Columns    []string // Input columns in file order, excluding derived columns
	HasSummary bool
	Articles   []core.Article
}

// Load reads a raw news CSV. Title is required; news_summary and id are
// optional and an article without an id gets its row ordinal.
func Load(path string) (*Dataset, error) {
	header, rows, err := readCSV(path)
	if err != nil {
		return nil, err
	}

	index := columnIndex(header)
	titleIdx, ok := index[ColumnTitle]
	if !ok {
		return nil, &core.InputDataError{Path: path, Reason: "missing required column \"Title\""}
	}
	if len(rows) == 0 {
		return nil, &core.InputDataError{Path: path, Reason: "dataset has no articles"}
	}
	summaryIdx, hasSummary := index[ColumnSummary]
	idIdx, hasID := index[ColumnID]

	ds := &Dataset{
		Path:       path,
		Columns:    inputColumns(header),
		HasSummary: hasSummary,
		Articles:   make([]core.Article, 0, len(rows)),
	}

	seen := make(map[string]int, len(rows))
	for i, row := range rows {
		a := core.Article{
			ID:    strconv.Itoa(i),
			Title: field(row, titleIdx),
			Extra: make(map[string]string),
		}
		if hasID {
			if id := strings.TrimSpace(field(row, idIdx)); id != "" {
				a.ID = id
			}
		}
		if prev, dup := seen[a.ID]; dup {
			return nil, &core.InputDataError{Path: path, Reason: fmt.Sprintf("duplicate id %q on rows %d and %d", a.ID, prev, i)}
		}
		seen[a.ID] = i

		// Summary keeps the feed's text; only the embedded text loses markup
		if hasSummary {
			a.Summary = core.ScrubSummary(field(row, summaryIdx))
		}
		a.Text = core.CombinedText(a.Title, CleanSummary(a.Summary), hasSummary)

		for col, idx := range index {
			if col == "" || col == ColumnTitle || col == ColumnSummary || col == ColumnID || isDerived(col) {
				continue
			}
			a.Extra[col] = field(row, idx)
		}

		ds.Articles = append(ds.Articles, a)
	}

	return ds, nil
}

// LoadProcessed reads a CSV written by Write, restoring the derived columns.
func LoadProcessed(path string) (*Dataset, error) {
	header, rows, err := readCSV(path)
	if err != nil {
		return nil, err
	}

	index := columnIndex(header)
	if _, ok := index[ColumnTitle]; !ok {
		return nil, &core.InputDataError{Path: path, Reason: "missing required column \"Title\""}
	}
	_, hasSummary := index[ColumnSummary]

	ds := &Dataset{
		Path:       path,
		Columns:    inputColumns(header),
		HasSummary: hasSummary,
		Articles:   make([]core.Article, 0, len(rows)),
	}

	get := func(row []string, col string) string {
		if idx, ok := index[col]; ok {
			return field(row, idx)
		}
		return ""
	}

	for i, row := range rows {
		a := core.Article{
			ID:                get(row, ColumnID),
			Title:             get(row, ColumnTitle),
			Summary:           get(row, ColumnSummary),
			Text:              get(row, "text"),
			PredictedCategory: get(row, "predicted_category"),
			TitleLC:           get(row, "title_lc"),
			Extra:             make(map[string]string),
		}
		if a.ID == "" {
			a.ID = strconv.Itoa(i)
		}
		if a.Text == "" {
			a.Text = core.CombinedText(a.Title, CleanSummary(a.Summary), hasSummary)
		}

		var perr error
		a.Similarity, perr = parseFloat(get(row, "similarity"))
		if perr == nil {
			a.Cluster, perr = parseInt(get(row, "cluster"))
		}
		if perr == nil {
			a.ClusterSize, perr = parseInt(get(row, "cluster_size"))
		}
		if perr == nil {
			a.HighlightScore, perr = parseInt(get(row, "highlight_score"))
		}
		if perr == nil {
			a.IsPriority, perr = parseBool(get(row, "is_priority"))
		}
		if perr != nil {
			return nil, &core.InputDataError{Path: path, Reason: fmt.Sprintf("row %d: %v", i, perr)}
		}

		for _, col := range ds.Columns {
			if col == ColumnTitle || col == ColumnSummary || col == ColumnID {
				continue
			}
			a.Extra[col] = get(row, col)
		}

		ds.Articles = append(ds.Articles, a)
	}

	return ds, nil
}

// Write stores articles as CSV with the input columns followed by every
// derived column. The parent directory is created if needed.
func Write(path string, columns []string, articles []core.Article) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	header := outputColumns(columns)

	// Write to a temporary file first so readers never see a half-written dataset
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer os.Remove(tmp.Name())

	w := csv.NewWriter(tmp)
	if err := w.Write(header); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write header: %w", err)
	}
	for _, a := range articles {
		if err := w.Write(record(header, a)); err != nil {
			tmp.Close()
			return fmt.Errorf("failed to write article %s: %w", a.ID, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to flush %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", path, err)
	}

	return os.Rename(tmp.Name(), path)
}

// markupTag matches an HTML tag, comment or doctype; a bare '<' or '&' in
// prose does not.
var markupTag = regexp.MustCompile(`<[a-zA-Z/!][^>]*>`)

// CleanSummary reduces a summary that contains HTML tags to its text.
// Summaries without tags are returned unchanged.
func CleanSummary(summary string) string {
	if !markupTag.MatchString(summary) {
		return summary
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(summary))
	if err != nil {
		return summary
	}
	doc.Find("script, style").Remove()

	return strings.Join(strings.Fields(doc.Text()), " ")
}

func readCSV(path string) ([]string, [][]string, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil, &core.InputDataError{Path: path, Reason: "file does not exist"}
		}
		return nil, nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer file.Close()

	r := csv.NewReader(file)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	header, err := r.Read()
	if err == io.EOF {
		return nil, nil, &core.InputDataError{Path: path, Reason: "file is empty"}
	}
	if err != nil {
		return nil, nil, &core.InputDataError{Path: path, Reason: fmt.Sprintf("unreadable header: %v", err)}
	}
	for i := range header {
		header[i] = strings.TrimSpace(strings.TrimPrefix(header[i], "\ufeff"))
	}

	var rows [][]string
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, &core.InputDataError{Path: path, Reason: err.Error()}
		}
		if isBlank(row) {
			continue
		}
		rows = append(rows, row)
	}

	return header, rows, nil
}

func columnIndex(header []string) map[string]int {
	index := make(map[string]int, len(header))
	for i, col := range header {
		if _, dup := index[col]; !dup {
			index[col] = i
		}
	}
	return index
}

func inputColumns(header []string) []string {
	cols := make([]string, 0, len(header))
	seen := make(map[string]bool, len(header))
	for _, col := range header {
		if col == "" || isDerived(col) || seen[col] {
			continue
		}
		seen[col] = true
		cols = append(cols, col)
	}
	return cols
}

// outputColumns puts id first when the input had none, then the input
// columns, then the derived columns.
func outputColumns(columns []string) []string {
	header := make([]string, 0, len(columns)+len(derivedColumns)+1)
	hasID := false
	for _, col := range columns {
		if col == ColumnID {
			hasID = true
		}
	}
	if !hasID {
		header = append(header, ColumnID)
	}
	for _, col := range columns {
		if !isDerived(col) {
			header = append(header, col)
		}
	}
	return append(header, derivedColumns...)
}

func record(header []string, a core.Article) []string {
	out := make([]string, len(header))
	for i, col := range header {
		switch col {
		case ColumnID:
			out[i] = a.ID
		case ColumnTitle:
			out[i] = a.Title
		case ColumnSummary:
			out[i] = a.Summary
		case "text":
			out[i] = a.Text
		case "predicted_category":
			out[i] = a.PredictedCategory
		case "similarity":
			out[i] = strconv.FormatFloat(a.Similarity, 'g', -1, 64)
		case "cluster":
			out[i] = strconv.Itoa(a.Cluster)
		case "cluster_size":
			out[i] = strconv.Itoa(a.ClusterSize)
		case "title_lc":
			out[i] = a.TitleLC
		case "is_priority":
			out[i] = strconv.FormatBool(a.IsPriority)
		case "highlight_score":
			out[i] = strconv.Itoa(a.HighlightScore)
		default:
			out[i] = a.Extra[col]
		}
	}
	return out
}

func isDerived(col string) bool {
	for _, d := range derivedColumns {
		if col == d {
			return true
		}
	}
	return false
}

func field(row []string, idx int) string {
	if idx < len(row) {
		return row[idx]
	}
	return ""
}

func isBlank(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

func parseFloat(s string) (float64, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.ParseFloat(s, 64)
}

func parseInt(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	// pandas may write integer columns as floats ("3.0")
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return int(f), nil
	}
	return strconv.Atoi(s)
}

func parseBool(s string) (bool, error) {
	if s == "" {
		return false, nil
	}
	return strconv.ParseBool(s)
}

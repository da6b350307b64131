package ingest

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"reelpipe/internal/queue"
)

const (
	sheetEnqueue = "enqueue"
	sheetReview  = "review"

	manifestPrefix = "job_"
	manifestExt    = ".xlsx"
)

var enqueueHeader = []string{"stage", "priority", "external_key", "filename", "config"}
var reviewHeader = []string{"external_key", "filename", "config"}

// ManifestName returns the workbook filename for a scan taken at ts.
func ManifestName(ts time.Time) string {
	return manifestPrefix + ts.Format("2006-01-02_15-04-05") + manifestExt
}

// IsManifestName reports whether a directory entry looks like a manifest.
func IsManifestName(name string) bool {
	return strings.HasPrefix(name, manifestPrefix) && strings.HasSuffix(name, manifestExt)
}

// WriteManifest writes a two-sheet workbook into dir and returns its path.
// The enqueue sheet feeds the watcher; the review sheet is for operators.
func WriteManifest(dir string, result *ScanResult, ts time.Time) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create jobs directory: %w", err)
	}

	wb := excelize.NewFile()
	defer wb.Close()

	wb.SetSheetName(wb.GetSheetName(0), sheetEnqueue)
	if _, err := wb.NewSheet(sheetReview); err != nil {
		return "", fmt.Errorf("create review sheet: %w", err)
	}

	if err := wb.SetSheetRow(sheetEnqueue, "A1", &enqueueHeader); err != nil {
		return "", err
	}
	for i, job := range result.Jobs {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return "", err
		}
		row := []any{string(job.Stage), job.Priority, job.ExternalKey, job.Filename, job.ConfigJSON}
		if err := wb.SetSheetRow(sheetEnqueue, cell, &row); err != nil {
			return "", err
		}
	}

	if err := wb.SetSheetRow(sheetReview, "A1", &reviewHeader); err != nil {
		return "", err
	}
	for i, entry := range result.Review {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return "", err
		}
		row := []any{entry.ExternalKey, entry.Filename, entry.ConfigJSON}
		if err := wb.SetSheetRow(sheetReview, cell, &row); err != nil {
			return "", err
		}
	}

	path := filepath.Join(dir, ManifestName(ts))
	if err := wb.SaveAs(path); err != nil {
		return "", fmt.Errorf("save manifest: %w", err)
	}
	return path, nil
}

// ReadManifest loads the enqueue sheet of a workbook into jobs ready for
// upsert. Header order is fixed; a workbook without an enqueue sheet is an
// error.
func ReadManifest(path string) ([]queue.NewJob, error) {
	wb, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open manifest %s: %w", filepath.Base(path), err)
	}
	defer wb.Close()

	rows, err := wb.GetRows(sheetEnqueue)
	if err != nil {
		return nil, fmt.Errorf("read enqueue sheet: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	var jobs []queue.NewJob
	for i, row := range rows[1:] {
		if len(row) < len(enqueueHeader) {
			continue
		}
		stage, ok := queue.ParseStage(strings.TrimSpace(row[0]))
		if !ok {
			return nil, fmt.Errorf("row %d: unknown stage %q", i+2, row[0])
		}
		priority, err := strconv.Atoi(strings.TrimSpace(row[1]))
		if err != nil {
			return nil, fmt.Errorf("row %d: bad priority %q", i+2, row[1])
		}
		jobs = append(jobs, queue.NewJob{
			Stage:       stage,
			Priority:    priority,
			ExternalKey: strings.TrimSpace(row[2]),
			Filename:    strings.TrimSpace(row[3]),
			ConfigJSON:  row[4],
		})
	}
	return jobs, nil
}

// newestManifest returns the lexically greatest manifest in dir after marker,
// or "" when none is newer. Timestamped names make lexical order match scan
// order.
func newestManifest(dir, marker string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("read jobs directory: %w", err)
	}
	var names []string
	for _, entry := range entries {
		if entry.IsDir() || !IsManifestName(entry.Name()) {
			continue
		}
		names = append(names, entry.Name())
	}
	if len(names) == 0 {
		return "", nil
	}
	sort.Strings(names)
	newest := names[len(names)-1]
	if marker != "" && newest <= marker {
		return "", nil
	}
	return newest, nil
}

package calendar

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
)

// ErrNoRows is returned when an import contains no valid row.
var ErrNoRows = errors.New("calendar: no valid rows")

// ErrUnsupportedFormat is returned for files that are neither CSV nor XLSX.
var ErrUnsupportedFormat = errors.New("calendar: unsupported file format")

// Row is one raw imported line.
type Row struct {
	Date  string
	Time  string
	Value string
}

var columnAliases = map[string]string{
	"date": "date", "fecha": "date", "dia": "date", "día": "date", "d": "date",
	"time": "time", "hora": "time", "t": "time",
	"value": "value", "valor": "value", "v": "value",
}

// ParseRows builds a calendar from raw rows. Rows with a bad date, time or value are
// skipped and counted.
func ParseRows(rows []Row) (cal *Calendar, skipped int) {
	cal = New()
	for _, r := range rows {
		v, err := parseValue(r.Value)
		if err != nil {
			skipped++
			continue
		}
		if err := cal.Add(r.Date, r.Time, v); err != nil {
			skipped++
		}
	}
	return cal, skipped
}

func parseValue(s string) (float64, error) {
	s = strings.TrimSpace(strings.Replace(s, ",", ".", 1))
	if s == "" {
		return 0, fmt.Errorf("%w: empty value", ErrInvalidInput)
	}
	return strconv.ParseFloat(s, 64)
}

// LoadFile imports a .csv/.txt or .xlsx schedule.
func LoadFile(path string) (*Calendar, int, error) {
	var (
		rows []Row
		err  error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv", ".txt":
		rows, err = readCSVFile(path)
	case ".xlsx", ".xlsm":
		rows, err = readXLSX(path)
	default:
		return nil, 0, fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(path))
	}
	if err != nil {
		return nil, 0, fmt.Errorf("%s: %w", path, err)
	}

	cal, skipped := ParseRows(rows)
	if cal.Len() == 0 {
		return nil, skipped, fmt.Errorf("%s: %w", path, ErrNoRows)
	}
	return cal, skipped, nil
}

// ReadCSV parses a header-led CSV schedule.
func ReadCSV(r io.Reader) ([]Row, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	return mapColumns(records)
}

func readCSVFile(path string) ([]Row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open schedule: %w", err)
	}
	defer f.Close()
	return ReadCSV(f)
}

func readXLSX(path string) ([]Row, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	sheet := f.GetSheetName(0)
	if sheet == "" {
		return nil, errors.New("workbook has no sheets")
	}
	records, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("read sheet %s: %w", sheet, err)
	}
	return mapColumns(records)
}

// mapColumns locates the date, time and value columns in the header row.
func mapColumns(records [][]string) ([]Row, error) {
	if len(records) == 0 {
		return nil, ErrNoRows
	}
	idx := map[string]int{}
	for i, h := range records[0] {
		key := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		if col, ok := columnAliases[key]; ok {
			if _, dup := idx[col]; !dup {
				idx[col] = i
			}
		}
	}
	for _, col := range []string{"date", "time", "value"} {
		if _, ok := idx[col]; !ok {
			return nil, fmt.Errorf("%w: missing %s column", ErrInvalidInput, col)
		}
	}

	rows := make([]Row, 0, len(records)-1)
	for _, rec := range records[1:] {
		rows = append(rows, Row{
			Date:  cell(rec, idx["date"]),
			Time:  cell(rec, idx["time"]),
			Value: cell(rec, idx["value"]),
		})
	}
	return rows, nil
}

func cell(rec []string, i int) string {
	if i < len(rec) {
		return rec[i]
	}
	return ""
}

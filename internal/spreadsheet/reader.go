// Package spreadsheet loads recipient tables from uploaded Excel workbooks.
//
// Only the first worksheet is read. Its first row is the header; every
// following non-blank row becomes one model.Recipient keyed by header name.
package spreadsheet

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/extrame/xls"
	"github.com/samber/lo"
	"github.com/spf13/afero"
	"github.com/xuri/excelize/v2"

	"github.com/mailmerge/mailmerge/internal/model"
)

// Upload errors
var (
	ErrUnsupportedExtension = errors.New("unsupported spreadsheet format")
	ErrUnreadable           = errors.New("spreadsheet cannot be read")
	ErrMissingColumn        = errors.New("required column is missing")
	ErrTooManyRows          = errors.New("spreadsheet has too many rows")
)

// Extensions lists the accepted file extensions
var Extensions = []string{".xlsx", ".xls"}

var zipMagic = []byte("PK\x03\x04")

// SupportedExtension reports whether filename has an accepted extension (case-insensitive)
func SupportedExtension(filename string) bool {
	return lo.Contains(Extensions, strings.ToLower(filepath.Ext(filename)))
}

// Reader parses workbooks stored on a filesystem
type Reader struct {
	fs afero.Fs
}

// NewReader creates a new Reader
func NewReader(fs afero.Fs) *Reader {
	return &Reader{fs: fs}
}

// Load parses the workbook at path and checks that it has an Email column.
// The returned error wraps one of the package sentinels.
func (r *Reader) Load(path string) (*model.RecipientTable, error) {
	if !SupportedExtension(path) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedExtension, filepath.Ext(path))
	}

	f, err := r.fs.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadable, err)
	}
	defer f.Close()

	raw, err := readRows(f)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadable, err)
	}

	table := buildTable(raw)
	if !table.HasColumn(model.EmailColumn) {
		return nil, fmt.Errorf("%w: %q", ErrMissingColumn, model.EmailColumn)
	}
	return table, nil
}

// LoadLimited is Load with an upper bound on the number of recipient rows
func (r *Reader) LoadLimited(path string, maxRows int) (*model.RecipientTable, error) {
	table, err := r.Load(path)
	if err != nil {
		return nil, err
	}
	if maxRows > 0 && table.Len() > maxRows {
		return nil, fmt.Errorf("%w: %d > %d", ErrTooManyRows, table.Len(), maxRows)
	}
	return table, nil
}

// readRows sniffs the content, so an .xls name carrying OOXML data still parses
func readRows(f afero.File) ([][]string, error) {
	head := make([]byte, len(zipMagic))
	n, err := io.ReadFull(f, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, err
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}

	if n == len(zipMagic) && bytes.Equal(head, zipMagic) {
		return readXLSX(f)
	}
	return readXLS(f)
}

func readXLSX(r io.Reader) ([][]string, error) {
	wb, err := excelize.OpenReader(r)
	if err != nil {
		return nil, err
	}
	defer wb.Close()

	sheets := wb.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.New("workbook has no sheets")
	}
	return wb.GetRows(sheets[0])
}

func readXLS(r io.ReadSeeker) (rows [][]string, err error) {
	// the BIFF decoder panics on some malformed files
	defer func() {
		if p := recover(); p != nil {
			rows, err = nil, fmt.Errorf("malformed xls: %v", p)
		}
	}()

	wb, err := xls.OpenReader(r, "utf-8")
	if err != nil {
		return nil, err
	}
	sheet := wb.GetSheet(0)
	if sheet == nil {
		return nil, errors.New("workbook has no sheets")
	}

	for i := 0; i <= int(sheet.MaxRow); i++ {
		row := sheet.Row(i)
		if row == nil {
			rows = append(rows, nil)
			continue
		}
		cells := make([]string, row.LastCol())
		for c := row.FirstCol(); c < row.LastCol(); c++ {
			cells[c] = row.Col(c)
		}
		rows = append(rows, cells)
	}
	return rows, nil
}

// buildTable turns raw rows into a header plus records
func buildTable(raw [][]string) *model.RecipientTable {
	table := &model.RecipientTable{Rows: []model.Recipient{}}
	if len(raw) == 0 {
		return table
	}

	table.Columns = headerNames(raw[0])
	for _, cells := range raw[1:] {
		if blank(cells) {
			continue
		}
		rec := make(model.Recipient, len(table.Columns))
		for i, col := range table.Columns {
			if i < len(cells) {
				rec[col] = cells[i]
			} else {
				rec[col] = ""
			}
		}
		table.Rows = append(table.Rows, rec)
	}
	return table
}

// headerNames names blank headers "Unnamed: N" and suffixes duplicates with ".1", ".2", ...
func headerNames(cells []string) []string {
	names := make([]string, len(cells))
	seen := make(map[string]int, len(cells))
	for i, c := range cells {
		name := c
		if strings.TrimSpace(name) == "" {
			name = "Unnamed: " + strconv.Itoa(i)
		}
		if n, ok := seen[name]; ok {
			seen[name] = n + 1
			name = name + "." + strconv.Itoa(n+1)
		} else {
			seen[name] = 0
		}
		names[i] = name
	}
	return names
}

func blank(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

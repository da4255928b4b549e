package spreadsheet

import (
	"fmt"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/mailmerge/mailmerge/internal/model"
)

func writeWorkbook(t *testing.T, fs afero.Fs, path string, rows [][]interface{}) {
	t.Helper()
	wb := excelize.NewFile()
	defer wb.Close()

	for i, row := range rows {
		row := row
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, wb.SetSheetRow("Sheet1", cell, &row))
	}
	buf, err := wb.WriteToBuffer()
	require.NoError(t, err)
	require.NoError(t, afero.WriteFile(fs, path, buf.Bytes(), 0o644))
}

func TestSupportedExtension(t *testing.T) {
	t.Parallel()
	assert.True(t, SupportedExtension("contacts.xlsx"))
	assert.True(t, SupportedExtension("CONTACTS.XLS"))
	assert.False(t, SupportedExtension("contacts.csv"))
	assert.False(t, SupportedExtension("xlsx"))
}

func TestReader_Load(t *testing.T) {
	t.Parallel()
	fs := afero.NewMemMapFs()
	writeWorkbook(t, fs, "/data/list.xlsx", [][]interface{}{
		{"Name", "Email", "Company"},
		{"Alex", "a@x.com", "Acme"},
		{"", "", ""},
		{"Bo", "not-an-email"},
		{"Cy", "b@x.com", "Initech"},
	})

	table, err := NewReader(fs).Load("/data/list.xlsx")
	require.NoError(t, err)

	assert.Equal(t, []string{"Name", "Email", "Company"}, table.Columns)
	require.Equal(t, 3, table.Len(), "blank rows are skipped")
	assert.Equal(t, model.Recipient{"Name": "Alex", "Email": "a@x.com", "Company": "Acme"}, table.Rows[0])
	assert.Equal(t, "", table.Rows[1]["Company"], "short rows are padded")
	assert.Equal(t, "b@x.com", table.Rows[2].Email())
}

func TestReader_LoadCountsRows(t *testing.T) {
	t.Parallel()
	fs := afero.NewMemMapFs()

	rows := [][]interface{}{{"Email"}}
	for i := 0; i < 25; i++ {
		rows = append(rows, []interface{}{fmt.Sprintf("user%d@example.com", i)})
	}
	writeWorkbook(t, fs, "/data/list.xlsx", rows)

	table, err := NewReader(fs).Load("/data/list.xlsx")
	require.NoError(t, err)
	assert.Equal(t, 25, table.Len())

	_, err = NewReader(fs).LoadLimited("/data/list.xlsx", 10)
	require.ErrorIs(t, err, ErrTooManyRows)
}

func TestReader_MissingEmailColumn(t *testing.T) {
	t.Parallel()
	fs := afero.NewMemMapFs()
	writeWorkbook(t, fs, "/data/list.xlsx", [][]interface{}{
		{"Name", "email"},
		{"Alex", "a@x.com"},
	})

	_, err := NewReader(fs).Load("/data/list.xlsx")
	require.ErrorIs(t, err, ErrMissingColumn)
}

func TestReader_EmptyWorkbook(t *testing.T) {
	t.Parallel()
	fs := afero.NewMemMapFs()
	writeWorkbook(t, fs, "/data/list.xlsx", nil)

	_, err := NewReader(fs).Load("/data/list.xlsx")
	require.ErrorIs(t, err, ErrMissingColumn)
}

func TestReader_XLSNameWithOOXMLContent(t *testing.T) {
	t.Parallel()
	fs := afero.NewMemMapFs()
	writeWorkbook(t, fs, "/data/list.xls", [][]interface{}{
		{"Email"},
		{"a@x.com"},
	})

	table, err := NewReader(fs).Load("/data/list.xls")
	require.NoError(t, err)
	assert.Equal(t, 1, table.Len())
}

func TestReader_Unreadable(t *testing.T) {
	t.Parallel()
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/data/broken.xls", []byte("definitely not a workbook"), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/data/broken.xlsx", []byte("PK\x03\x04garbage"), 0o644))

	_, err := NewReader(fs).Load("/data/broken.xls")
	require.ErrorIs(t, err, ErrUnreadable)

	_, err = NewReader(fs).Load("/data/broken.xlsx")
	require.ErrorIs(t, err, ErrUnreadable)

	_, err = NewReader(fs).Load("/data/missing.xlsx")
	require.ErrorIs(t, err, ErrUnreadable)
}

func TestReader_UnsupportedExtension(t *testing.T) {
	t.Parallel()
	_, err := NewReader(afero.NewMemMapFs()).Load("/data/list.csv")
	require.ErrorIs(t, err, ErrUnsupportedExtension)
}

func TestHeaderNames(t *testing.T) {
	t.Parallel()
	assert.Equal(t,
		[]string{"Email", "Unnamed: 1", "Email.1", "Name", "Email.2"},
		headerNames([]string{"Email", "", "Email", "Name", "Email"}),
	)
}

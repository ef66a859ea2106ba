// Unit tests for CSV source reading: header handling, BOM stripping, and
// stable row ids.
package source

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeCSV(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "export.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestReadCSV(t *testing.T) {
	path := writeCSV(t, "personnelNumber,lastName,firstName\n100,Ivanov,Ivan\n200,Petrov,Petr\n")

	records, err := ReadCSV(path, "personnelNumber")
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, "100", records[0].RowRef.RowID)
	assert.Equal(t, 2, records[0].RowRef.LineNo, "line numbers count the header")
	assert.Equal(t, "Ivanov", records[0].Fields["lastName"])
	assert.Equal(t, "200", records[1].RowRef.RowID)
}

func TestReadCSVStripsBOM(t *testing.T) {
	path := writeCSV(t, "\uFEFFpersonnelNumber,lastName\n100,Ivanov\n")

	records, err := ReadCSV(path, "personnelNumber")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "100", records[0].Fields["personnelNumber"],
		"the BOM must not become part of the first column name")
	assert.Equal(t, "100", records[0].RowRef.RowID)
}

func TestReadCSVRowIDFallbacks(t *testing.T) {
	path := writeCSV(t, "personnelNumber,usrOrgTabNum,lastName\n,T-100,Ivanov\n,,Petrov\n")

	records, err := ReadCSV(path, "personnelNumber", "usrOrgTabNum")
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "T-100", records[0].RowRef.RowID,
		"the first non-empty id column wins")
	assert.Equal(t, "row-3", records[1].RowRef.RowID,
		"rows without any id column fall back to the line number")
}

func TestReadCSVRaggedRows(t *testing.T) {
	path := writeCSV(t, "personnelNumber,lastName,firstName\n100,Ivanov\n")

	records, err := ReadCSV(path, "personnelNumber")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "Ivanov", records[0].Fields["lastName"])
	assert.NotContains(t, records[0].Fields, "firstName",
		"short rows simply omit the trailing columns")
}

func TestReadCSVEmptyFile(t *testing.T) {
	records, err := ReadCSV(writeCSV(t, ""), "personnelNumber")
	require.NoError(t, err)
	assert.Empty(t, records)

	records, err = ReadCSV(writeCSV(t, "personnelNumber,lastName\n"), "personnelNumber")
	require.NoError(t, err)
	assert.Empty(t, records, "a header-only file has no records")
}

func TestReadCSVMissingFile(t *testing.T) {
	_, err := ReadCSV(filepath.Join(t.TempDir(), "nope.csv"))
	assert.Error(t, err)
}

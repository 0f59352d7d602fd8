package export

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestBuildXLSX(t *testing.T) {
	data, err := BuildXLSX(Sheet{
		Name:    "Kayitlar",
		Headers: []string{"E-posta", "Kurs", "İlerleme"},
		Rows: [][]interface{}{
			{"ali@example.com", "Go 101", 42.5},
			{"ayse@example.com", "Docker", 100},
		},
	})
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{"Kayitlar"}, f.GetSheetList())

	rows, err := f.GetRows("Kayitlar")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"E-posta", "Kurs", "İlerleme"}, rows[0])
	assert.Equal(t, "ayse@example.com", rows[2][0])
	assert.Equal(t, "42.5", rows[1][2])
}

func TestBuildXLSX_EmptyRows(t *testing.T) {
	data, err := BuildXLSX(Sheet{Name: "Odemeler", Headers: []string{"ID"}})
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows("Odemeler")
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

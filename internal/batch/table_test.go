package batch

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"credit-prediction/internal/common/errors"
)

func TestReadTable_StripsBOM(t *testing.T) {
	tbl, err := ReadTable(strings.NewReader("\ufeffCustomer_Age,Gender\n45,M\n"))
	require.NoError(t, err)

	assert.Equal(t, 0, tbl.ColumnIndex("Customer_Age"))
	assert.Equal(t, 1, tbl.ColumnIndex("Gender"))
	assert.Equal(t, -1, tbl.ColumnIndex("Card_Category"))
}

func TestReadTable_QuotedCells(t *testing.T) {
	input := "name,Income_Category\n\"Smith, J\",\"$60K - $80K\"\n"
	tbl, err := ReadTable(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, tbl.Rows, 1)
	assert.Equal(t, "Smith, J", tbl.Rows[0][0])

	var out bytes.Buffer
	require.NoError(t, tbl.Write(&out))
	assert.Equal(t, "name,Income_Category\n\"Smith, J\",$60K - $80K\n", out.String())
}

func TestReadTable_HeaderOnly(t *testing.T) {
	tbl, err := ReadTable(strings.NewReader("a,b"))
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, tbl.Header)
	assert.Empty(t, tbl.Rows)
}

func TestReadTable_BlankHeaderIsEmptyUpload(t *testing.T) {
	inputs := map[string]string{
		"bom only":        "\ufeff",
		"bom and newline": "\ufeff\n",
		"whitespace":      "   \n",
		"bom then rows":   "\ufeff\n45,M\n",
		"quoted empty":    "\"\"\n",
		"newlines":        "\n\n",
	}
	for name, in := range inputs {
		t.Run(name, func(t *testing.T) {
			_, err := ReadTable(strings.NewReader(in))
			require.Error(t, err)
			assert.Equal(t, errors.ErrCodeEmptyUpload, errors.CodeOf(err))
		})
	}
}

func TestReadTable_SingleColumnHeaderIsKept(t *testing.T) {
	tbl, err := ReadTable(strings.NewReader("\ufeffCustomer_Age\n45\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"Customer_Age"}, tbl.Header)
	assert.Len(t, tbl.Rows, 1)
}

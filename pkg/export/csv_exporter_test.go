package export

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCSVRenderOrdersColumns(t *testing.T) {
	data := Dataset{
		Columns: []string{"Name", "Role"},
		Rows: []map[string]string{
			{"Name": "Dewi", "Role": "STUDENT"},
			{"Role": "TEACHER"},
		},
	}

	out, err := NewCSVExporter().Render(data)
	require.NoError(t, err)
	assert.Equal(t, "Name,Role\nDewi,STUDENT\n,TEACHER\n", string(out))
}

func TestCSVRenderRequiresColumns(t *testing.T) {
	_, err := NewCSVExporter().Render(Dataset{})
	assert.Error(t, err)
}

func TestPDFRenderProducesDocument(t *testing.T) {
	data := Dataset{
		Columns: []string{"Student", "Status"},
		Rows:    []map[string]string{{"Student": "Dewi", "Status": "completed"}},
	}

	out, err := NewPDFExporter().Render(data, "Task Progress")
	require.NoError(t, err)
	require.NotEmpty(t, out)
	assert.Equal(t, "%PDF", string(out[:4]))
}

func TestPDFRenderRequiresColumns(t *testing.T) {
	_, err := NewPDFExporter().Render(Dataset{}, "empty")
	assert.Error(t, err)
}

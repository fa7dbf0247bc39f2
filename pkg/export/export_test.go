package export

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleDataset() Dataset {
	return Dataset{
		Title:   "Cuotas pendientes",
		Headers: []string{"dni", "cuota", "monto"},
		Rows: []map[string]string{
			{"dni": "12345678", "cuota": "1", "monto": "100.00"},
			{"dni": "87654321", "cuota": "2"},
		},
	}
}

func TestCSVExporterRendersRowsInHeaderOrder(t *testing.T) {
	out, err := NewCSVExporter().Render(sampleDataset())
	require.NoError(t, err)
	assert.Equal(t, "dni,cuota,monto\n12345678,1,100.00\n87654321,2,\n", string(out))
}

func TestExportersRequireHeaders(t *testing.T) {
	_, err := NewCSVExporter().Render(Dataset{})
	assert.Error(t, err)
	_, err = NewPDFExporter().Render(Dataset{})
	assert.Error(t, err)
}

func TestPDFExporterProducesDocument(t *testing.T) {
	var r Renderer = NewPDFExporter()
	out, err := r.Render(sampleDataset())
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF-")))
	assert.Equal(t, "application/pdf", r.ContentType())
	assert.Equal(t, ".pdf", r.Extension())
}

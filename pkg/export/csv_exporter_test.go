package export

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCSVExporterRender(t *testing.T) {
	exporter := NewCSVExporter()
	data := Dataset{
		Headers: []string{"id", "patient", "status"},
		Rows: []map[string]string{
			{"id": "a-1", "patient": "Jane Doe", "status": "completed"},
			{"id": "a-2", "patient": "John, Jr.", "status": "scheduled"},
		},
	}

	out, err := exporter.Render(data)
	require.NoError(t, err)
	require.Equal(t, "id,patient,status\na-1,Jane Doe,completed\na-2,\"John, Jr.\",scheduled\n", string(out))
}

func TestCSVExporterMissingColumnsRenderEmpty(t *testing.T) {
	exporter := NewCSVExporter()
	out, err := exporter.Render(Dataset{
		Headers: []string{"id", "notes"},
		Rows:    []map[string]string{{"id": "a-1"}},
	})
	require.NoError(t, err)
	require.Equal(t, "id,notes\na-1,\n", string(out))
}

func TestCSVExporterRequiresHeaders(t *testing.T) {
	exporter := NewCSVExporter()
	_, err := exporter.Render(Dataset{})
	require.Error(t, err)
}

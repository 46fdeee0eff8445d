package export

import (
	"bytes"
	"encoding/csv"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"carbon-scribe/restoration-portal/internal/projects"
)

func sampleProjects() []projects.Project {
	cft := int64(200)
	footprint := decimal.RequireFromString("20")
	return []projects.Project{
		{
			ID:         "p2",
			Name:       "Mangroves, north bank",
			Status:     "completed",
			AfterImage: &projects.ImageRef{Name: "forest_after.jpg", Size: 10},
			Analysis: &projects.AnalysisResult{
				HasVegetation:   true,
				CarbonRestored:  200,
				BiomassDetected: decimal.RequireFromString("45"),
				Confidence:      decimal.RequireFromString("91.3"),
				AfterImageName:  "forest_after.jpg",
				Timestamp:       time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC),
			},
			CarbonFootprint: &footprint,
			CFTAmount:       &cft,
			IPFSCID:         "QmX1abc",
			NFTTokenID:      "BCX-2025-001",
			CreatedAt:       "2025-04-01T00:00:00Z",
		},
		{ID: "p1", Name: "Pending", Status: "pending", CreatedAt: "2025-03-01T00:00:00Z"},
	}
}

func TestWriteProjectsCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteProjectsCSV(&buf, sampleProjects()))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, ProjectColumns, records[0])

	row := records[1]
	assert.Equal(t, "p2", row[0])
	assert.Equal(t, "Mangroves, north bank", row[1])
	assert.Equal(t, "true", row[4])
	assert.Equal(t, "200", row[5])
	assert.Equal(t, "45.0", row[6])
	assert.Equal(t, "20.00", row[8])
	assert.Equal(t, "BCX-2025-001", row[11])

	assert.Equal(t, "", records[2][5])
}

func TestWriteProjectsExcel(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteProjectsExcel(&buf, sampleProjects()))

	file, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer file.Close()

	rows, err := file.GetRows(ProjectsSheet)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "ID", rows[0][0])
	assert.Equal(t, "p2", rows[1][0])
	assert.Equal(t, "200", rows[1][5])
	assert.Equal(t, "p1", rows[2][0])
}

func TestWriteCertificate(t *testing.T) {
	var buf bytes.Buffer
	opts := DefaultCertificateOptions()
	opts.WalletAddress = "0xabc"
	opts.GeneratedAt = time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, WriteCertificate(&buf, sampleProjects()[0], opts))
	assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("%PDF-")))

	err := WriteCertificate(&buf, sampleProjects()[1], opts)
	assert.Error(t, err)
}

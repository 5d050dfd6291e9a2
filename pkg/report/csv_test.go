package report

import (
	"bytes"
	"encoding/csv"
	"testing"
	"time"

	"social-brand-analyzer/pkg/models"

	"github.com/go-playground/assert/v2"
)

func at(day int) models.Timestamp {
	return models.NewTimestamp(time.Date(2024, 3, day, 12, 0, 0, 0, time.UTC))
}

func sampleBrands() map[string]models.BrandData {
	return map[string]models.BrandData{
		"Tesla": {
			Instagram: models.PlatformData{Posts: []models.Post{
				{ID: "t1", Model: "MODEL Y", Engagement: 9, Timestamp: at(2), Hashtags: []string{"tesla", "ev"}},
			}},
		},
		"BYD": {
			Instagram: models.PlatformData{Posts: []models.Post{
				{ID: "b1", Model: "SEAL", Engagement: 120, Likes: 100, Comments: 20, URL: "https://instagram.com/p/1",
					Caption: "Meet the SEAL, \"fast\"", Timestamp: at(5), ClassificationReason: "Caption names SEAL", ClassificationConfidence: 90},
			}},
			Facebook: models.PlatformData{Posts: []models.Post{
				{ID: "b2", Engagement: 7, Shares: 1, Reactions: 2, Text: "line one\nline two", Timestamp: at(20)},
			}},
		},
	}
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	n, err := WriteCSV(&buf, sampleBrands(), nil)
	assert.Equal(t, nil, err)
	assert.Equal(t, 3, n)

	records, err := csv.NewReader(&buf).ReadAll()
	assert.Equal(t, nil, err)
	assert.Equal(t, 4, len(records))
	assert.Equal(t, Columns, records[0])

	assert.Equal(t, []string{
		"BYD", "instagram", "SEAL", "2024-03-05T12:00:00Z", "120",
		"100", "20", "0", "0",
		"https://instagram.com/p/1", "Meet the SEAL, \"fast\"", "", "", "",
		"Caption names SEAL", "90",
	}, records[1])

	assert.Equal(t, "facebook", records[2][1])
	assert.Equal(t, models.Unclassified, records[2][2])
	assert.Equal(t, "line one\nline two", records[2][11])

	assert.Equal(t, "Tesla", records[3][0])
	assert.Equal(t, "tesla, ev", records[3][12])
}

func TestWriteCSV_Filtered(t *testing.T) {
	filter := &models.TimeFilter{
		Start: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC),
	}

	var buf bytes.Buffer
	n, err := WriteCSV(&buf, sampleBrands(), filter)
	assert.Equal(t, nil, err)
	assert.Equal(t, 2, n)

	records, _ := csv.NewReader(&buf).ReadAll()
	assert.Equal(t, "BYD", records[1][0])
	assert.Equal(t, "Tesla", records[2][0])
}

func TestWriteCSV_Empty(t *testing.T) {
	var buf bytes.Buffer
	n, err := WriteCSV(&buf, nil, nil)
	assert.Equal(t, nil, err)
	assert.Equal(t, 0, n)

	records, _ := csv.NewReader(&buf).ReadAll()
	assert.Equal(t, 1, len(records))
}

func TestFilename(t *testing.T) {
	assert.Equal(t, "social_media_analysis_3f2a9c1d.csv", Filename("3f2a9c1d-1111-2222-3333-444455556666"))
	assert.Equal(t, "social_media_analysis_abc.csv", Filename("abc"))
}

package analysis

import (
	"encoding/json"
	"testing"
	"time"

	"social-brand-analyzer/pkg/models"

	"github.com/go-playground/assert/v2"
)

func stamped(id, ts string) models.Post {
	return models.Post{ID: id, Timestamp: models.TimestampFromString(ts)}
}

func TestFilterPostsByTime(t *testing.T) {
	filter := models.TimeFilter{
		Start: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2024, 6, 30, 23, 59, 59, 0, time.UTC),
	}

	posts := []models.Post{
		stamped("jan", "2024-01-01"),
		stamped("jun15", "2024-06-15"),
		stamped("jul", "2024-07-01"),
		stamped("start", "2024-06-01T00:00:00Z"),
		stamped("end", "2024-06-30T23:59:59Z"),
		stamped("bad", "yesterday"),
		{ID: "none"},
		stamped("offset", "2024-06-10T12:00:00+02:00"),
	}

	kept, stats := FilterPostsByTimeWithStats(posts, filter)

	assert.Equal(t, []string{"jun15", "start", "end", "offset"}, ids(kept))
	assert.Equal(t, FilterStats{Kept: 4, OutOfRange: 2, Unparseable: 2}, stats)
	assert.Equal(t, ids(kept), ids(FilterPostsByTime(posts, filter)))
}

func TestFilterPostsByTime_Empty(t *testing.T) {
	kept := FilterPostsByTime(nil, models.TimeFilter{})
	assert.Equal(t, 0, len(kept))
}

func TestFilterPostsByTime_StoredDocument(t *testing.T) {
	raw := `[
		{"id":"1","timestamp":"2024-06-02T10:00:00"},
		{"id":"2","timestamp":12345},
		{"id":"3","timestamp":null},
		{"id":"4","timestamp":"2024-06-03"}
	]`
	var posts []models.Post
	assert.Equal(t, nil, json.Unmarshal([]byte(raw), &posts))

	filter := models.TimeFilter{
		Start: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2024, 6, 5, 0, 0, 0, 0, time.UTC),
	}
	assert.Equal(t, []string{"1", "4"}, ids(FilterPostsByTime(posts, filter)))
}

func TestParseTimestamp(t *testing.T) {
	tests := []struct {
		input string
		want  time.Time
		ok    bool
	}{
		{"2024-06-01", time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC), true},
		{"2024-06-01T08:30:00Z", time.Date(2024, 6, 1, 8, 30, 0, 0, time.UTC), true},
		{"2024-06-01T08:30:00.123456", time.Date(2024, 6, 1, 8, 30, 0, 123456000, time.UTC), true},
		{"2024-06-01T08:30:00+0000", time.Date(2024, 6, 1, 8, 30, 0, 0, time.UTC), true},
		{"2024-06-01 08:30:00", time.Time{}, false},
		{"June 1st", time.Time{}, false},
		{"", time.Time{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := models.ParseTimestamp(tt.input)
			assert.Equal(t, tt.ok, err == nil)
			assert.Equal(t, true, got.Equal(tt.want))
		})
	}
}

func TestFilterPostsByTime_SubSecondSurvivesJSON(t *testing.T) {
	filter := models.TimeFilter{
		Start: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2024, 6, 30, 23, 59, 59, 0, time.UTC),
	}
	posts := []models.Post{
		{ID: "late", Timestamp: models.NewTimestamp(time.Date(2024, 6, 30, 23, 59, 59, 500_000_000, time.UTC))},
		{ID: "inside", Timestamp: models.NewTimestamp(time.Date(2024, 6, 30, 23, 59, 58, 250_000_000, time.UTC))},
	}

	raw, err := json.Marshal(posts)
	assert.Equal(t, nil, err)

	var decoded []models.Post
	assert.Equal(t, nil, json.Unmarshal(raw, &decoded))

	assert.Equal(t, "2024-06-30T23:59:59.5Z", decoded[0].Timestamp.String())
	assert.Equal(t, []string{"inside"}, ids(FilterPostsByTime(posts, filter)))
	assert.Equal(t, ids(FilterPostsByTime(posts, filter)), ids(FilterPostsByTime(decoded, filter)))
}

package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubjectIDRoundTrip(t *testing.T) {
	tests := []struct {
		in   string
		want SubjectID
		out  string
	}{
		{in: `1`, want: "1", out: `1`},
		{in: `"1"`, want: "1", out: `1`},
		{in: `"abc"`, want: "abc", out: `"abc"`},
		{in: `"007"`, want: "007", out: `"007"`},
		{in: `null`, want: "", out: `""`},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			var id SubjectID
			require.NoError(t, json.Unmarshal([]byte(tt.in), &id))
			assert.Equal(t, tt.want, id)

			b, err := json.Marshal(id)
			require.NoError(t, err)
			assert.Equal(t, tt.out, string(b))
		})
	}
}

func TestSubjectIDRejectsBool(t *testing.T) {
	var id SubjectID
	assert.Error(t, json.Unmarshal([]byte(`true`), &id))
}

func TestCalendarItemJSON(t *testing.T) {
	body := `{"user_id":1,"added_by":2,"title":"Checkup","description":"Doctor visit",` +
		`"startDate":"2024-03-10T09:00:00+01","endDate":"2024-03-10T10:00:00+01"}`

	var item CalendarItem
	require.NoError(t, json.Unmarshal([]byte(body), &item))
	assert.Equal(t, SubjectID("1"), item.UserID)
	assert.Equal(t, SubjectID("2"), item.AddedBy)

	out, err := json.Marshal(item)
	require.NoError(t, err)
	assert.JSONEq(t, body, string(out))
}

func TestParsedDateTimeWraps(t *testing.T) {
	p := ParsedDateTime{Year: 2024, Month: 3, Day: 10, Hour: 25, Minute: 5}
	got := p.Time(time.UTC)
	assert.Equal(t, time.Date(2024, 3, 11, 1, 5, 0, 0, time.UTC), got)
}

func TestValidationErrorIs(t *testing.T) {
	err := fmt.Errorf("save: %w", NewValidationError("no-endpoint", "Subscription must have an endpoint."))
	assert.True(t, errors.Is(err, ErrValidation))
	assert.False(t, errors.Is(err, ErrNotFound))

	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "no-endpoint", verr.Code)
}

package nlu

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"leavebot/internal/model"
)

func TestNormalizeHours(t *testing.T) {
	tests := []struct {
		in        string
		wantLabel string
		wantHours float64
	}{
		{"full day", LabelFullDay, 8},
		{"Бүтэн өдөр", LabelFullDay, 8},
		{"buten udur", LabelFullDay, 8},
		{"8 tsag", LabelFullDay, 8},
		{"8 цаг", LabelFullDay, 8},
		{"half day", LabelHalfDay, 4},
		{"хагас өдөр", LabelHalfDay, 4},
		{"hagas udur", LabelHalfDay, 4},
		{"morning half", LabelMorningHalf, 4},
		{"өглөөний хагас", LabelMorningHalf, 4},
		{"afternoon half", LabelAfternoonHalf, 4},
		{"үдээс хойш", LabelAfternoonHalf, 4},
		{"2 цаг", "2 hour(s)", 2},
		{"2 tsag", "2 hour(s)", 2},
		{"3 hours", "3 hour(s)", 3},
		{"1.5 hours", "1.5 hour(s)", 1.5},
		{"3 honog", "3 day(s)", 24},
		{"2 өдөр", "2 day(s)", 16},
		{"daraa 7 honogiin", "", 0},
		{"10 tsagaas hoish", "", 0},
		{"10 цагаас хойш", "", 0},
		{"10 цагаас хойш 2 цаг", "2 hour(s)", 2},
		{"2 tsagiin chuluu", "2 hour(s)", 2},
		{"a while", "", 0},
		{"", "", 0},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			label, hours := NormalizeHours(tt.in)
			assert.Equal(t, tt.wantLabel, label)
			assert.InDelta(t, tt.wantHours, hours, 0.0001)
		})
	}
}

func TestNormalizeHoursLabelRoundTrip(t *testing.T) {
	for _, label := range []string{
		LabelFullDay, LabelHalfDay, LabelMorningHalf, LabelAfternoonHalf,
		"2 hour(s)", "1.5 hour(s)", "3 day(s)",
	} {
		got, _ := NormalizeHours(label)
		assert.Equal(t, label, got)
	}
}

func TestHoursValue(t *testing.T) {
	assert.InDelta(t, 2.0, HoursValue("2 hour(s)", "2024-01-16", "2024-01-18"), 0.0001)
	assert.InDelta(t, 8.0, HoursValue(LabelFullDay, "2024-01-16", "2024-01-16"), 0.0001)
	assert.InDelta(t, 24.0, HoursValue("", "2024-01-16", "2024-01-18"), 0.0001)
	assert.InDelta(t, 24.0, HoursValue("whenever", "2024-01-16", "2024-01-18"), 0.0001)
	assert.InDelta(t, model.DefaultHours, HoursValue("", "tomorrow", ""), 0.0001)
}

func TestEndForDuration(t *testing.T) {
	assert.Equal(t, "2024-01-18", EndForDuration("2024-01-16", "3 day(s)"))
	assert.Equal(t, "2024-02-01", EndForDuration("2024-01-31", "2 day(s)"))
	assert.Equal(t, "2024-01-16", EndForDuration("2024-01-16", "1 day(s)"))
	assert.Empty(t, EndForDuration("2024-01-16", LabelFullDay))
	assert.Empty(t, EndForDuration("2024-01-16", "2 hour(s)"))
	assert.Empty(t, EndForDuration("margaash", "3 day(s)"))
}

package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTruncateToDay(t *testing.T) {
	kolkata, err := time.LoadLocation("Asia/Kolkata")
	if err != nil {
		t.Skip("tzdata unavailable")
	}

	tests := []struct {
		name string
		in   time.Time
		want time.Time
	}{
		{
			name: "utc afternoon",
			in:   time.Date(2024, 3, 15, 14, 30, 59, 123, time.UTC),
			want: time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC),
		},
		{
			name: "already midnight",
			in:   time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC),
			want: time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC),
		},
		{
			name: "keeps location",
			in:   time.Date(2024, 3, 15, 1, 0, 0, 0, kolkata),
			want: time.Date(2024, 3, 15, 0, 0, 0, 0, kolkata),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := TruncateToDay(tt.in)
			assert.True(t, got.Equal(tt.want), "got %v, want %v", got, tt.want)
			assert.Equal(t, tt.in.Location(), got.Location())
		})
	}
}

func TestAppointmentPaid(t *testing.T) {
	apt := &Appointment{PaymentOnline: 120, PaymentOffline: 80}
	assert.Equal(t, 200.0, apt.Paid())
}

func TestAppointmentStatusBlocking(t *testing.T) {
	assert.True(t, AppointmentStatusScheduled.Blocking())
	assert.True(t, AppointmentStatusConfirmed.Blocking())
	assert.False(t, AppointmentStatusCancelled.Blocking())
	assert.False(t, AppointmentStatusCompleted.Blocking())
	assert.False(t, AppointmentStatusPrescriptionDispensed.Blocking())
}

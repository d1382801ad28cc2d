package feed

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPublishedAt(t *testing.T) {
	t.Parallel()

	tests := []struct {
		raw  string
		want time.Time
		ok   bool
	}{
		{raw: "20240115", want: time.Date(2024, 1, 15, 0, 0, 0, 0, jst), ok: true},
		{raw: "2024-01-15", want: time.Date(2024, 1, 15, 0, 0, 0, 0, jst), ok: true},
		{raw: "202401", want: time.Date(2024, 1, 1, 0, 0, 0, 0, jst), ok: true},
		{raw: "2024-01", want: time.Date(2024, 1, 1, 0, 0, 0, 0, jst), ok: true},
		{raw: " 2024 ", want: time.Date(2024, 1, 1, 0, 0, 0, 0, jst), ok: true},
		{raw: "2024-01-15T10:00:00Z", want: time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC), ok: true},
		{raw: "", ok: false},
		{raw: "未定", ok: false},
	}
	for _, tc := range tests {
		got, ok := BookRecord{PublicationDate: tc.raw}.PublishedAt()
		require.Equal(t, tc.ok, ok, tc.raw)
		if tc.ok {
			require.True(t, tc.want.Equal(got), "%s: got %v want %v", tc.raw, got, tc.want)
		}
	}
}

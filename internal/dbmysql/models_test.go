package dbmysql

import (
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewID_SortsInGenerationOrder(t *testing.T) {
	ids := make([]string, 500)
	for i := range ids {
		id, err := newID()
		require.NoError(t, err)
		ids[i] = id
	}

	assert.True(t, sort.StringsAreSorted(ids))
	assert.Len(t, ids[0], 36)
}

func TestStampClock(t *testing.T) {
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		ticks []time.Time
		want  []time.Time
	}{
		{
			name:  "forward",
			ticks: []time.Time{base, base.Add(time.Millisecond)},
			want:  []time.Time{base, base.Add(time.Millisecond)},
		},
		{
			name:  "same millisecond",
			ticks: []time.Time{base, base},
			want:  []time.Time{base, base},
		},
		{
			name:  "clock steps back",
			ticks: []time.Time{base, base.Add(-time.Second), base.Add(time.Millisecond)},
			want:  []time.Time{base, base, base.Add(time.Millisecond)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			i := 0
			c := &stampClock{now: func() time.Time {
				tick := tt.ticks[i]
				i++
				return tick
			}}

			for _, want := range tt.want {
				assert.Equal(t, want, c.stamp())
			}
		})
	}
}

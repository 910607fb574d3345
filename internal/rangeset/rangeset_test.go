package rangeset

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/archivehq/evm-processor/internal/model"
)

func TestIntersect(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name      string
		r, bound  model.Range
		wantFrom  uint64
		wantTo    *uint64
		wantEmpty bool
	}{
		{
			name:     "bound narrows both ends",
			r:        model.NewRange(100, 200),
			bound:    model.NewRange(150, 180),
			wantFrom: 150,
			wantTo:   ptr(180),
		},
		{
			name:     "r fully inside bound",
			r:        model.NewRange(10, 20),
			bound:    model.OpenRange(0),
			wantFrom: 10,
			wantTo:   ptr(20),
		},
		{
			name:     "open r bounded above",
			r:        model.OpenRange(50),
			bound:    model.NewRange(0, 100),
			wantFrom: 50,
			wantTo:   ptr(100),
		},
		{
			name:     "both open",
			r:        model.OpenRange(5),
			bound:    model.OpenRange(10),
			wantFrom: 10,
			wantTo:   nil,
		},
		{
			name:      "disjoint ranges",
			r:         model.NewRange(0, 10),
			bound:     model.NewRange(20, 30),
			wantEmpty: true,
		},
		{
			name:      "touching but empty after from>end",
			r:         model.NewRange(10, 10),
			bound:     model.NewRange(11, 20),
			wantEmpty: true,
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, ok := Intersect(tc.r, tc.bound)
			if tc.wantEmpty {
				assert.False(t, ok)
				return
			}
			require.True(t, ok)
			assert.Equal(t, tc.wantFrom, got.From)
			if tc.wantTo == nil {
				assert.Nil(t, got.To)
			} else {
				require.NotNil(t, got.To)
				assert.Equal(t, *tc.wantTo, *got.To)
			}
		})
	}
}

func TestApplyBound(t *testing.T) {
	t.Parallel()

	plan := []model.Batch{
		{Range: model.NewRange(0, 99)},
		{Range: model.NewRange(100, 199)},
		{Range: model.OpenRange(200)},
	}

	out := ApplyBound(plan, model.NewRange(50, 250))
	require.Len(t, out, 3)
	assert.Equal(t, uint64(50), out[0].Range.From)
	assert.Equal(t, uint64(99), out[0].Range.End())
	assert.Equal(t, uint64(100), out[1].Range.From)
	assert.Equal(t, uint64(199), out[1].Range.End())
	assert.Equal(t, uint64(200), out[2].Range.From)
	assert.Equal(t, uint64(250), out[2].Range.End())
}

func TestApplyBoundDropsEmptyIntersections(t *testing.T) {
	t.Parallel()

	plan := []model.Batch{
		{Range: model.NewRange(0, 99)},
		{Range: model.NewRange(300, 400)},
	}

	out := ApplyBound(plan, model.NewRange(100, 200))
	assert.Empty(t, out)
}

func ptr(v uint64) *uint64 { return &v }

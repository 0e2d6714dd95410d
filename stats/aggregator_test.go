package stats

import (
	"math"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAggregator_Scenario(t *testing.T) {
	a := New(1, 3)
	base := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)

	for i, v := range []float64{1, 2, 3, 4} {
		require.NoError(t, a.Add([]float64{v}, base.Add(time.Duration(i)*time.Second)))
	}

	s := a.Snapshot()
	assert.Equal(t, 4, s.Count)
	assert.Equal(t, []float64{4}, s.Current)
	assert.Equal(t, []float64{1}, s.Min)
	assert.Equal(t, []float64{4}, s.Max)
	assert.InDelta(t, 2.5, s.Avg[0], 1e-12)
	assert.Equal(t, [][]float64{{2, 3, 4}}, s.History)
	assert.Equal(t, base.Add(3*time.Second), s.Timestamp)
}

func TestAggregator_HistoryIsLastValuesInOrder(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for _, h := range []int{1, 2, 5, 17} {
		a := New(2, h)
		var seen [2][]float64

		for n := 1; n <= 60; n++ {
			v := []float64{rng.NormFloat64() * 10, rng.Float64()*6 - 3}
			require.NoError(t, a.Add(v, time.Now()))
			seen[0] = append(seen[0], v[0])
			seen[1] = append(seen[1], v[1])

			s := a.Snapshot()
			for c := range 2 {
				require.LessOrEqual(t, len(s.History[c]), h)
				want := seen[c][len(seen[c])-min(n, h):]
				require.Equal(t, want, s.History[c], "h=%d n=%d channel=%d", h, n, c)
			}
		}
	}
}

func TestAggregator_Invariants(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	a := New(3, 10)

	var sums [3]float64
	var all [3][]float64
	for n := 1; n <= 200; n++ {
		v := []float64{rng.Float64() * 100, -rng.Float64() * 5, rng.NormFloat64()}
		require.NoError(t, a.Add(v, time.Now()))
		for c := range 3 {
			sums[c] += v[c]
			all[c] = append(all[c], v[c])
		}
	}

	s := a.Snapshot()
	for c := range 3 {
		assert.InDelta(t, sums[c]/float64(s.Count), s.Avg[c], 1e-9)
		assert.InDelta(t, s.Sum[c]/float64(s.Count), s.Avg[c], 1e-9)
		assert.LessOrEqual(t, s.Min[c], s.Current[c])
		assert.GreaterOrEqual(t, s.Max[c], s.Current[c])
		for _, v := range all[c] {
			assert.LessOrEqual(t, s.Min[c], v)
			assert.GreaterOrEqual(t, s.Max[c], v)
		}
	}
}

func TestAggregator_Clear(t *testing.T) {
	a := New(2, 4)
	require.NoError(t, a.Add([]float64{1, 2}, time.Now()))
	require.NoError(t, a.Add([]float64{3, 4}, time.Now()))

	a.Clear()

	for range 3 {
		s := a.Snapshot()
		assert.True(t, s.Empty())
		assert.Equal(t, 0, s.Count)
		assert.Equal(t, []float64{0, 0}, s.Current)
		assert.Equal(t, []float64{0, 0}, s.Sum)
		assert.Equal(t, []float64{0, 0}, s.Avg)
		assert.True(t, math.IsInf(s.Min[0], 1))
		assert.True(t, math.IsInf(s.Max[1], -1))
		assert.Equal(t, [][]float64{{}, {}}, s.History)
		assert.Nil(t, s.Quantiles)
		assert.True(t, s.Timestamp.IsZero())
	}

	// A cleared aggregator starts over.
	require.NoError(t, a.Add([]float64{5, 6}, time.Now()))
	s := a.Snapshot()
	assert.Equal(t, 1, s.Count)
	assert.Equal(t, []float64{5, 6}, s.Min)
	assert.Equal(t, [][]float64{{5}, {6}}, s.History)
}

func TestAggregator_ChannelMismatch(t *testing.T) {
	a := New(3, 4)

	err := a.Add([]float64{1, 2}, time.Now())
	assert.ErrorIs(t, err, ErrChannelMismatch)
	assert.Equal(t, 0, a.Snapshot().Count, "a rejected reading must not be recorded")
}

func TestAggregator_NonFiniteRejected(t *testing.T) {
	a := New(1, 4)

	for _, v := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		assert.ErrorIs(t, a.Add([]float64{v}, time.Now()), ErrNonFinite, "value %v", v)
	}
	require.NoError(t, a.Add([]float64{1}, time.Now()))
	require.NoError(t, a.Add([]float64{2}, time.Now()))

	snap := a.Snapshot()
	assert.Equal(t, 2, snap.Count)
	assert.Equal(t, []float64{1}, snap.Min)
	assert.Equal(t, []float64{2}, snap.Max)
	assert.InDelta(t, 1.5, snap.Avg[0], 1e-9)
	assert.Equal(t, []float64{1, 2}, snap.History[0])
}

func TestAggregator_Quantiles(t *testing.T) {
	a := New(1, 10)
	for i := 1; i <= 1000; i++ {
		require.NoError(t, a.Add([]float64{float64(i)}, time.Now()))
	}

	q := a.Snapshot().Quantiles[0]
	assert.InEpsilon(t, 500, q.P50, 0.03)
	assert.InEpsilon(t, 900, q.P90, 0.03)
	assert.InEpsilon(t, 990, q.P99, 0.03)
}

func TestAggregator_SnapshotIsACopy(t *testing.T) {
	a := New(1, 3)
	require.NoError(t, a.Add([]float64{1}, time.Now()))

	s := a.Snapshot()
	s.Current[0] = 99
	s.History[0][0] = 99

	fresh := a.Snapshot()
	assert.Equal(t, []float64{1}, fresh.Current)
	assert.Equal(t, [][]float64{{1}}, fresh.History)
}

// TestAggregator_ConcurrentSnapshot reads snapshots while a writer adds
// values and checks that no snapshot is torn.
func TestAggregator_ConcurrentSnapshot(t *testing.T) {
	a := New(2, 8)
	done := make(chan struct{})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 1; i <= 2000; i++ {
			v := float64(i)
			_ = a.Add([]float64{v, -v}, time.Now())
		}
		close(done)
	}()

	for {
		s := a.Snapshot()
		if s.Count > 0 {
			// Both channels are written in the same critical section.
			require.Equal(t, s.Current[0], -s.Current[1])
			require.InDelta(t, s.Sum[0]/float64(s.Count), s.Avg[0], 1e-9)
			require.Equal(t, float64(s.Count), s.Current[0])
		}
		select {
		case <-done:
			wg.Wait()
			return
		default:
		}
	}
}

func TestRing(t *testing.T) {
	r := newRing(3)
	assert.Equal(t, 0, r.len())
	assert.Empty(t, r.values())

	for i := 1; i <= 5; i++ {
		r.push(float64(i))
	}
	assert.Equal(t, 3, r.len())
	assert.Equal(t, []float64{3, 4, 5}, r.values())

	r.reset()
	assert.Empty(t, r.values())
	r.push(9)
	assert.Equal(t, []float64{9}, r.values())
}

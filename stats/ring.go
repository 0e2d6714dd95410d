package stats

// ring is a fixed-capacity FIFO that overwrites its oldest value when full.
type ring struct {
	data  []float64
	head  int // next write position
	count int
}

func newRing(capacity int) *ring {
	return &ring{data: make([]float64, capacity)}
}

func (r *ring) push(v float64) {
	r.data[r.head] = v
	r.head = (r.head + 1) % len(r.data)
	if r.count < len(r.data) {
		r.count++
	}
}

func (r *ring) reset() {
	r.head = 0
	r.count = 0
}

func (r *ring) len() int {
	return r.count
}

// values returns the stored values oldest first.
func (r *ring) values() []float64 {
	out := make([]float64, r.count)
	start := (r.head - r.count + len(r.data)) % len(r.data)
	for i := range r.count {
		out[i] = r.data[(start+i)%len(r.data)]
	}
	return out
}

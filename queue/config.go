package queue

// DefaultCapacity is the per-sensor hand-off capacity. At the default
// sampling and drain cadence a healthy writer never gets close to it.
const DefaultCapacity = 4096

// Stats is a point-in-time view of a hand-off queue.
type Stats struct {
	Len       int    `json:"len"`
	Cap       int    `json:"cap"`
	Pushed    uint64 `json:"pushed"`
	Popped    uint64 `json:"popped"`
	HighWater int    `json:"high_water"`
	Closed    bool   `json:"closed"`
}

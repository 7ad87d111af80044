package series

import (
	"time"

	"curewatch/internal/runid"
)

// CuringRun is one parsed run report. It is not modified after loading.
type CuringRun struct {
	ID     runid.ID
	Recipe string
	Frame  *Frame
}

// Start returns the first timestamp of the run.
func (c *CuringRun) Start() time.Time {
	if c.Frame.Len() == 0 {
		return time.Time{}
	}
	return c.Frame.Timestamps[0]
}

// End returns the last timestamp of the run.
func (c *CuringRun) End() time.Time {
	n := c.Frame.Len()
	if n == 0 {
		return time.Time{}
	}
	return c.Frame.Timestamps[n-1]
}

// CurrentSample is a single raw reading from a current sensor. Layer numbers
// readings that share a timestamp and address: 0 for the first occurrence,
// 1 for the second, and so on.
type CurrentSample struct {
	Timestamp time.Time
	Address   int
	Value     float64
	Layer     int
}

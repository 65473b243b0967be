package indicator

// VolumePressure compares the latest volume with the mean of a rolling
// window: 50 means average, 100 means at least double. Uses a preallocated
// circular buffer.
type VolumePressure struct {
	period  int
	buf     []float64
	idx     int
	count   int
	sum     float64
	current float64
}

// NewVolumePressure creates a VolumePressure over the given window (typically 10).
func NewVolumePressure(period int) *VolumePressure {
	return &VolumePressure{
		period:  period,
		buf:     make([]float64, period),
		current: neutralReading,
	}
}

func (v *VolumePressure) Name() string { return "Volume Pressure" }

func (v *VolumePressure) Update(_ float64, volume int64) {
	vol := float64(volume)

	if v.count >= v.period {
		v.sum -= v.buf[v.idx]
	}

	v.buf[v.idx] = vol
	v.sum += vol
	v.idx = (v.idx + 1) % v.period
	v.count++

	if v.count >= v.period && v.sum > 0 {
		avg := v.sum / float64(v.period)
		v.current = clamp(vol/avg*50, 0, 100)
	}
}

func (v *VolumePressure) Value() float64 { return v.current }
func (v *VolumePressure) Ready() bool    { return v.count >= v.period }

// Reset clears the window.
func (v *VolumePressure) Reset() {
	v.idx = 0
	v.count = 0
	v.sum = 0
	v.current = neutralReading
	for i := range v.buf {
		v.buf[i] = 0
	}
}

package capture

import (
	"context"
	"sync"
	"time"
)

// SyntheticSource produces scrolling colour bars. It stands in for a camera
// on headless hosts and in tests.
type SyntheticSource struct {
	// Deny makes RequestStream fail as if permission was refused.
	Deny bool
}

var barColors = [][3]byte{
	{192, 192, 192}, {192, 192, 0}, {0, 192, 192}, {0, 192, 0},
	{192, 0, 192}, {192, 0, 0}, {0, 0, 192},
}

func (s *SyntheticSource) RequestStream(ctx context.Context, c Constraints) (StreamHandle, error) {
	if s.Deny {
		return nil, ErrDeviceAccess
	}
	c = c.WithDefaults()
	h := &syntheticStream{c: c, done: make(chan struct{})}
	h.mb.publish(h.render(0, time.Now()))
	h.wg.Add(1)
	go h.run()
	return h, nil
}

type syntheticStream struct {
	c    Constraints
	mb   mailbox
	done chan struct{}
	once sync.Once
	wg   sync.WaitGroup
}

func (h *syntheticStream) run() {
	defer h.wg.Done()
	t := time.NewTicker(time.Second / time.Duration(h.c.FrameRate))
	defer t.Stop()
	var seq uint64
	for {
		select {
		case <-h.done:
			return
		case now := <-t.C:
			seq++
			h.mb.publish(h.render(seq, now))
		}
	}
}

func (h *syntheticStream) render(seq uint64, now time.Time) *Frame {
	w, ht := h.c.Width, h.c.Height
	data := make([]byte, w*ht*4)
	shift := int(seq) % w
	bar := max(w/len(barColors), 1)
	row := data[:w*4]
	for x := 0; x < w; x++ {
		col := barColors[((x+shift)/bar)%len(barColors)]
		row[x*4], row[x*4+1], row[x*4+2], row[x*4+3] = col[0], col[1], col[2], 255
	}
	for y := 1; y < ht; y++ {
		copy(data[y*w*4:(y+1)*w*4], row)
	}
	return &Frame{Seq: seq + 1, Timestamp: now, Width: w, Height: ht, Data: data}
}

func (h *syntheticStream) Latest() *Frame          { return h.mb.take() }
func (h *syntheticStream) Constraints() Constraints { return h.c }
func (h *syntheticStream) Dropped() uint64          { return h.mb.dropped.Load() }

func (h *syntheticStream) Stop() error {
	h.once.Do(func() { close(h.done) })
	h.wg.Wait()
	return nil
}

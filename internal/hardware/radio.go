package hardware

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/hearth-home/hearth/pkg/models"
	"go.uber.org/zap"
)

// SerialRadio reads raw pulse-width frames from a receiver attached as a
// character device (an Arduino or CUL stick bridging the RF hardware). Each
// line on the device is one frame: comma-separated pulse lengths in
// microseconds. Frames shorter than three pulses are noise and dropped.
type SerialRadio struct {
	band   models.RadioBand
	path   string
	logger *zap.Logger

	cancel context.CancelFunc
}

// NewSerialRadio creates a transport for the given band reading from path.
func NewSerialRadio(band models.RadioBand, path string, logger *zap.Logger) *SerialRadio {
	return &SerialRadio{band: band, path: path, logger: logger}
}

func (r *SerialRadio) Band() models.RadioBand { return r.band }

// Start opens the device and begins delivering frames. A missing device
// means the radio is simply not attached to this hub.
func (r *SerialRadio) Start(ctx context.Context, onFrame func(raw []int)) error {
	f, err := os.Open(r.path)
	if err != nil {
		return fmt.Errorf("open radio device %q: %w", r.path, err)
	}

	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	go func() {
		<-ctx.Done()
		f.Close()
	}()
	go r.readLoop(ctx, f, onFrame)
	return nil
}

// Stop terminates the read loop and closes the device.
func (r *SerialRadio) Stop() error {
	if r.cancel != nil {
		r.cancel()
	}
	return nil
}

func (r *SerialRadio) readLoop(ctx context.Context, f *os.File, onFrame func(raw []int)) {
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		frame, ok := parseFrame(scanner.Text())
		if !ok {
			continue
		}
		onFrame(frame)
	}
	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		r.logger.Warn("radio read loop ended",
			zap.Int("band", int(r.band)),
			zap.Error(err),
		)
	}
}

// parseFrame parses one comma-separated pulse line. Malformed fields void
// the whole frame.
func parseFrame(line string) ([]int, bool) {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil, false
	}
	fields := strings.Split(line, ",")
	if len(fields) < 3 {
		return nil, false
	}
	frame := make([]int, 0, len(fields))
	for _, fld := range fields {
		n, err := strconv.Atoi(strings.TrimSpace(fld))
		if err != nil || n < 0 {
			return nil, false
		}
		frame = append(frame, n)
	}
	return frame, true
}

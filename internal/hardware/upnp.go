package hardware

import (
	"bytes"
	"context"
	"fmt"
	"net"

	"github.com/hearth-home/hearth/pkg/plugin"
	"github.com/huin/goupnp"
	"go.uber.org/zap"
)

var ssdpMulticastAddr = &net.UDPAddr{IP: net.IPv4(239, 255, 255, 250), Port: 1900}

// SsdpTransport implements UpnpTransport: M-SEARCH sweeps via goupnp and a
// multicast listener for unsolicited NOTIFY datagrams.
type SsdpTransport struct {
	logger *zap.Logger

	conn   *net.UDPConn
	cancel context.CancelFunc
}

// NewSsdpTransport creates an idle transport.
func NewSsdpTransport(logger *zap.Logger) *SsdpTransport {
	return &SsdpTransport{logger: logger}
}

// Search performs one blocking SSDP sweep and returns every device that
// answered. Probe errors on individual devices are skipped.
func (t *SsdpTransport) Search(ctx context.Context) ([]plugin.UpnpDeviceDescriptor, error) {
	devices, err := goupnp.DiscoverDevicesCtx(ctx, "ssdp:all")
	if err != nil {
		return nil, fmt.Errorf("ssdp search: %w", err)
	}

	var result []plugin.UpnpDeviceDescriptor
	for i := range devices {
		maybe := &devices[i]
		if maybe.Err != nil || maybe.Root == nil || maybe.Location == nil {
			continue
		}
		dev := &maybe.Root.Device
		server := dev.FriendlyName
		if server == "" {
			server = dev.ModelName
		}
		result = append(result, plugin.UpnpDeviceDescriptor{
			Location: maybe.Location.String(),
			Server:   server,
			USN:      maybe.USN,
			Address:  maybe.Location.Hostname(),
		})
	}
	return result, nil
}

// Listen joins the SSDP multicast group and delivers NOTIFY datagrams until
// Stop.
func (t *SsdpTransport) Listen(ctx context.Context, onNotify func(data []byte)) error {
	conn, err := net.ListenMulticastUDP("udp4", nil, ssdpMulticastAddr)
	if err != nil {
		return fmt.Errorf("join ssdp multicast group: %w", err)
	}
	t.conn = conn

	ctx, cancel := context.WithCancel(ctx)
	t.cancel = cancel
	go func() {
		<-ctx.Done()
		conn.Close()
	}()
	go t.readLoop(ctx, conn, onNotify)
	return nil
}

// Stop leaves the multicast group.
func (t *SsdpTransport) Stop() error {
	if t.cancel != nil {
		t.cancel()
	}
	return nil
}

func (t *SsdpTransport) readLoop(ctx context.Context, conn *net.UDPConn, onNotify func(data []byte)) {
	buf := make([]byte, 4096)
	for {
		n, _, err := conn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() == nil {
				t.logger.Warn("ssdp listener ended", zap.Error(err))
			}
			return
		}
		if !bytes.HasPrefix(buf[:n], []byte("NOTIFY")) {
			continue
		}
		datagram := make([]byte, n)
		copy(datagram, buf[:n])
		onNotify(datagram)
	}
}

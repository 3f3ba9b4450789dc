package probe

import (
	"fmt"

	"github.com/vishvananda/netlink"
)

// NetIfSample is the cumulative rx/tx counters for one network interface.
// Grounded on internal/netalloc/bridge.go's netlink.LinkByName/LinkAttrs
// usage for bridge and tap management — probe reads the same attrs for
// monitoring instead of configuration.
type NetIfSample struct {
	RxBytes   uint64
	RxPackets uint64
	RxErrors  uint64
	RxDropped uint64
	TxBytes   uint64
	TxPackets uint64
	TxErrors  uint64
	TxDropped uint64
}

// ReadNetIf reads the link statistics for the named interface (e.g.
// "horcrux-br0", a VM's tap device).
func ReadNetIf(name string) (NetIfSample, error) {
	link, err := netlink.LinkByName(name)
	if err != nil {
		return NetIfSample{}, fmt.Errorf("lookup link %s: %w", name, err)
	}
	stats := link.Attrs().Statistics
	if stats == nil {
		return NetIfSample{}, fmt.Errorf("probe: no statistics for link %s", name)
	}
	return NetIfSample{
		RxBytes:   stats.RxBytes,
		RxPackets: stats.RxPackets,
		RxErrors:  stats.RxErrors,
		RxDropped: stats.RxDropped,
		TxBytes:   stats.TxBytes,
		TxPackets: stats.TxPackets,
		TxErrors:  stats.TxErrors,
		TxDropped: stats.TxDropped,
	}, nil
}

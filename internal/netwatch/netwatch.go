package netwatch

import (
	"context"
	"fmt"
	"strings"

	psnet "github.com/shirou/gopsutil/v3/net"

	"github.com/davidbond17/pingpro/pkg/types"
)

// Source publishes the active network classification.
type Source interface {
	CurrentType() types.NetworkType
	Connected() bool
	OnChange(fn func(types.NetworkType))
}

// Interface is the subset of host interface state used for classification.
type Interface struct {
	Name     string
	Up       bool
	Loopback bool
	HasAddr  bool
}

type InterfaceLister interface {
	Interfaces(ctx context.Context) ([]Interface, error)
}

// HostLister reads interfaces from the operating system.
type HostLister struct{}

func (HostLister) Interfaces(ctx context.Context) ([]Interface, error) {
	stats, err := psnet.InterfacesWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("list interfaces: %w", err)
	}
	out := make([]Interface, 0, len(stats))
	for _, st := range stats {
		iface := Interface{Name: st.Name, HasAddr: len(st.Addrs) > 0}
		for _, flag := range st.Flags {
			switch strings.ToLower(flag) {
			case "up":
				iface.Up = true
			case "loopback":
				iface.Loopback = true
			}
		}
		if st.Name == "lo" || st.Name == "lo0" {
			iface.Loopback = true
		}
		out = append(out, iface)
	}
	return out, nil
}

var (
	wifiPrefixes     = []string{"wlan", "wlp", "wlx", "wl", "wifi", "ath", "ra"}
	cellularPrefixes = []string{"wwan", "rmnet", "ccmni", "pdp_ip", "ppp", "usb", "cdc"}
	wiredPrefixes    = []string{"eth", "enp", "eno", "ens", "enx", "em", "en", "bond"}
)

// ClassifyName maps an interface name to a network type.
func ClassifyName(name string) types.NetworkType {
	lower := strings.ToLower(name)
	switch {
	case hasAnyPrefix(lower, wifiPrefixes):
		return types.NetworkWiFi
	case hasAnyPrefix(lower, cellularPrefixes):
		return types.NetworkCellular
	case hasAnyPrefix(lower, wiredPrefixes):
		return types.NetworkWired
	default:
		return types.NetworkUnknown
	}
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

// Classify picks the network type from usable interfaces, preferring WiFi,
// then Cellular, then Wired. connected is false when no interface is up with
// an address.
func Classify(ifaces []Interface) (nt types.NetworkType, connected bool) {
	var wifi, cellular, wired bool
	for _, iface := range ifaces {
		if !iface.Up || iface.Loopback || !iface.HasAddr {
			continue
		}
		connected = true
		switch ClassifyName(iface.Name) {
		case types.NetworkWiFi:
			wifi = true
		case types.NetworkCellular:
			cellular = true
		case types.NetworkWired:
			wired = true
		}
	}
	switch {
	case wifi:
		return types.NetworkWiFi, connected
	case cellular:
		return types.NetworkCellular, connected
	case wired:
		return types.NetworkWired, connected
	default:
		return types.NetworkUnknown, connected
	}
}

// Detect performs a single classification of the host's interfaces.
func Detect(ctx context.Context, lister InterfaceLister) (types.NetworkType, bool, error) {
	if lister == nil {
		lister = HostLister{}
	}
	ifaces, err := lister.Interfaces(ctx)
	if err != nil {
		return types.NetworkUnknown, false, err
	}
	nt, connected := Classify(ifaces)
	return nt, connected, nil
}

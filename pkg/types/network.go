package types

import (
	"fmt"
	"strings"
)

// NetworkType classifies the interface currently carrying traffic.
type NetworkType string

const (
	NetworkWiFi     NetworkType = "WiFi"
	NetworkCellular NetworkType = "Cellular"
	NetworkWired    NetworkType = "Wired"
	NetworkUnknown  NetworkType = "Unknown"
)

// ParseNetworkType accepts the canonical names case-insensitively and maps
// anything else to NetworkUnknown.
func ParseNetworkType(s string) NetworkType {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "wifi", "wi-fi", "wlan":
		return NetworkWiFi
	case "cellular", "cell", "wwan":
		return NetworkCellular
	case "wired", "ethernet":
		return NetworkWired
	default:
		return NetworkUnknown
	}
}

// MonitoringPolicy governs whether a network-type change pauses monitoring.
type MonitoringPolicy string

const (
	PolicyAuto         MonitoringPolicy = "auto"
	PolicyWiFiOnly     MonitoringPolicy = "wifi_only"
	PolicyCellularOnly MonitoringPolicy = "cellular_only"
)

func (p MonitoringPolicy) Valid() bool {
	switch p {
	case PolicyAuto, PolicyWiFiOnly, PolicyCellularOnly:
		return true
	}
	return false
}

// ParseMonitoringPolicy parses a policy name, tolerating the display forms
// ("WiFi Only", "Cellular Only").
func ParseMonitoringPolicy(s string) (MonitoringPolicy, error) {
	normalized := strings.ToLower(strings.TrimSpace(s))
	normalized = strings.NewReplacer(" ", "_", "-", "_").Replace(normalized)
	switch normalized {
	case "", "auto":
		return PolicyAuto, nil
	case "wifi_only", "wifionly":
		return PolicyWiFiOnly, nil
	case "cellular_only", "cellularonly":
		return PolicyCellularOnly, nil
	}
	return "", fmt.Errorf("unknown monitoring policy %q", s)
}

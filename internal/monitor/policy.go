package monitor

import "github.com/davidbond17/pingpro/pkg/types"

// ShouldPause reports whether a change to newType violates policy.
func ShouldPause(policy types.MonitoringPolicy, newType types.NetworkType) bool {
	switch policy {
	case types.PolicyWiFiOnly:
		return newType != types.NetworkWiFi
	case types.PolicyCellularOnly:
		return newType != types.NetworkCellular
	default:
		return false
	}
}

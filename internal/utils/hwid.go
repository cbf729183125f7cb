package utils

import "github.com/denisbrodbeck/machineid"

// HWID is a stable, app-scoped identifier for the current device.
// Falls back to "unknown" on platforms without a machine id.
var HWID = hwid()

func hwid() string {
	id, err := machineid.ProtectedID("driftsync")
	if err != nil {
		return "unknown"
	}
	return id
}

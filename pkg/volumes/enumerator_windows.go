package volumes

import (
	"context"
	"os/exec"
	"time"

	"github.com/pkg/errors"
)

const powershellTimeout = 30 * time.Second

type cimEnumerator struct{}

// SystemEnumerator lists logical disks through PowerShell's CIM cmdlets.
func SystemEnumerator() Enumerator {
	return cimEnumerator{}
}

func (cimEnumerator) ListLogicalVolumes(ctx context.Context) ([]Volume, error) {
	ctx, cancel := context.WithTimeout(ctx, powershellTimeout)
	defer cancel()

	output, err := exec.CommandContext(ctx, "powershell", "-NoProfile", "-ExecutionPolicy", "Bypass", "-Command",
		"Get-CimInstance Win32_LogicalDisk | Select-Object DeviceID, VolumeSerialNumber | ConvertTo-Json").Output()
	if err != nil {
		return nil, errors.Wrap(err, "failed to query logical disks")
	}
	return parseLogicalDisks(output)
}

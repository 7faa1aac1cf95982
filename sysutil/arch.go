package sysutil

import (
	"os"
	"path/filepath"
	"strings"
)

// pciDevicesPath is the sysfs tree every PCI device publishes a vendor ID
// under, used to tell an nvidia-equipped machine from an intel-graphics-only
// one without shelling out to lspci. Grounded on
// original_source/src/release_architecture.rs's detect_arch, which probes
// the same vendor ID (0x10de) via the sysfs_class crate.
const pciDevicesPath = "/sys/bus/pci/devices"

// nvidiaVendorID is NVIDIA's PCI vendor ID, as reported in each device's
// sysfs "vendor" file (e.g. "0x10de\n").
const nvidiaVendorID = "0x10de"

// DetectArch reports "nvidia" if any PCI device on the bus is made by
// NVIDIA, "intel" otherwise. It never errors: a sysfs read failure for one
// device is treated as "not NVIDIA" rather than aborting the scan, since a
// single unreadable device file must not block release-channel resolution.
func DetectArch() string {
	entries, err := os.ReadDir(pciDevicesPath)
	if err != nil {
		return "intel"
	}

	for _, entry := range entries {
		vendor, err := os.ReadFile(filepath.Join(pciDevicesPath, entry.Name(), "vendor"))
		if err != nil {
			continue
		}
		if strings.EqualFold(strings.TrimSpace(string(vendor)), nvidiaVendorID) {
			return "nvidia"
		}
	}

	return "intel"
}

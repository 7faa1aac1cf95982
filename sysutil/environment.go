package sysutil

import "os"

// EFIFirmwarePath is where the kernel exposes its EFI variable interface
// when booted via UEFI. Its mere existence as a directory is sufficient to
// tell EFI and legacy BIOS boots apart (spec.md §4.6 precondition,
// original_source/src/system_environment.rs's SystemEnvironment::detect).
// A var, not a const, so tests can redirect it away from the real root
// filesystem.
var EFIFirmwarePath = "/sys/firmware/efi"

// LiveSquashfsPath existing means the daemon is running from the live
// installer media rather than an installed system (spec.md §6.3).
var LiveSquashfsPath = "/cdrom/casper/filesystem.squashfs"

// IsEFI reports whether the running system was booted via UEFI.
func IsEFI() bool {
	info, err := os.Stat(EFIFirmwarePath)
	return err == nil && info.IsDir()
}

// IsLiveEnvironment reports whether the daemon is running from live
// installer media, in which case spec.md §6.3 requires it to exit
// immediately rather than perform any workflow.
func IsLiveEnvironment() bool {
	_, err := os.Stat(LiveSquashfsPath)
	return err == nil
}

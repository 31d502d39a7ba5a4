package core

import "strings"

// DiskParams is the declarative disk and display configuration handed to the
// VM runner through its environment. Resolved purely from the image file
// suffix and the template's OS type; no I/O involved.
type DiskParams struct {
	// DriveInterface is the emulated drive bus.
	DriveInterface string
	// VGAType is the emulated display adapter.
	VGAType string
	// DiskFormat is the hypervisor disk format hint. Empty when the suffix
	// is not recognized, in which case the runner autodetects.
	DiskFormat string
	// MachineType is the emulated machine model.
	MachineType string
	// EFIEnabled selects UEFI firmware.
	EFIEnabled bool
}

// diskFormats maps image file suffixes to hypervisor disk formats.
var diskFormats = map[string]string{
	".vhd":   "vpc",
	".vhdx":  "vpc",
	".qcow":  "qcow2",
	".qcow2": "qcow2",
	".raw":   "raw",
	".vdi":   "vdi",
}

// ResolveDiskParams maps an image file suffix and OS type to the runner's
// disk and display configuration. Linux guests get the plain std VGA; other
// guests get qxl for better remote-console performance. All guests boot
// UEFI on the q35 machine model over an IDE drive.
func ResolveDiskParams(suffix, osType string) DiskParams {
	vga := "qxl"
	if strings.EqualFold(osType, "linux") {
		vga = "std"
	}
	return DiskParams{
		DriveInterface: "ide",
		VGAType:        vga,
		DiskFormat:     diskFormats[strings.ToLower(suffix)],
		MachineType:    "q35",
		EFIEnabled:     true,
	}
}

package qemu

import (
	"fmt"
	"runtime"
	"strconv"
	"strings"

	"github.com/horcrux-project/horcrux/internal/hypervisor"
)

// BuildArgs converts hypervisor.VMConfig to QEMU command-line arguments.
func BuildArgs(cfg hypervisor.VMConfig) []string {
	args := make([]string, 0, 64)

	// Machine type with KVM acceleration (arch-specific)
	args = append(args, "-machine", machineType())

	// CPU configuration
	args = append(args, "-cpu", "host")
	args = append(args, "-smp", strconv.Itoa(cfg.VCPUs))

	// Memory configuration
	memMB := cfg.MemoryBytes / (1024 * 1024)
	args = append(args, "-m", fmt.Sprintf("%dM", memMB))

	// Kernel and initrd
	if cfg.KernelPath != "" {
		args = append(args, "-kernel", cfg.KernelPath)
	}
	if cfg.InitrdPath != "" {
		args = append(args, "-initrd", cfg.InitrdPath)
	}
	if cfg.KernelArgs != "" {
		args = append(args, "-append", cfg.KernelArgs)
	}

	// Disk configuration
	for i, disk := range cfg.Disks {
		driveOpts := fmt.Sprintf("file=%s,format=raw,if=none,id=drive%d", disk.Path, i)
		if disk.Readonly {
			driveOpts += ",readonly=on"
		}
		if disk.IOBps > 0 {
			driveOpts += fmt.Sprintf(",throttling.bps-total=%d", disk.IOBps)
			if disk.IOBurstBps > 0 && disk.IOBurstBps > disk.IOBps {
				driveOpts += fmt.Sprintf(",throttling.bps-total-max=%d", disk.IOBurstBps)
			}
		}
		args = append(args, "-drive", driveOpts)
		args = append(args, "-device", fmt.Sprintf("virtio-blk-pci,drive=drive%d", i))
	}

	// Network configuration
	for i, net := range cfg.Networks {
		netdevOpts := fmt.Sprintf("tap,id=net%d,ifname=%s,script=no,downscript=no", i, net.TAPDevice)
		args = append(args, "-netdev", netdevOpts)

		deviceOpts := fmt.Sprintf("virtio-net-pci,netdev=net%d,mac=%s", i, net.MAC)
		args = append(args, "-device", deviceOpts)
	}

	// Vsock configuration
	if cfg.VsockCID > 0 {
		args = append(args, "-device", fmt.Sprintf("vhost-vsock-pci,guest-cid=%d", cfg.VsockCID))
	}

	// PCI device passthrough (GPU, mdev vGPU, etc.)
	for _, devicePath := range cfg.PCIDevices {
		var deviceArg string
		if strings.HasPrefix(devicePath, "/sys/bus/mdev/devices/") {
			// mdev device (vGPU) - use sysfsdev parameter
			deviceArg = fmt.Sprintf("vfio-pci,sysfsdev=%s", devicePath)
		} else if strings.HasPrefix(devicePath, "/sys/bus/pci/devices/") {
			// Full sysfs path for regular PCI device - extract the PCI address
			// Path format: /sys/bus/pci/devices/0000:82:00.4/
			parts := strings.Split(strings.TrimSuffix(devicePath, "/"), "/")
			pciAddr := parts[len(parts)-1]
			deviceArg = fmt.Sprintf("vfio-pci,host=%s", pciAddr)
		} else {
			// Raw PCI address (e.g., "0000:82:00.4")
			deviceArg = fmt.Sprintf("vfio-pci,host=%s", devicePath)
		}
		args = append(args, "-device", deviceArg)
	}

	// Serial console output to file
	if cfg.SerialLogPath != "" {
		args = append(args, "-serial", fmt.Sprintf("file:%s", cfg.SerialLogPath))
	} else {
		args = append(args, "-serial", "stdio")
	}

	// VNC console, bound to localhost only; display N listens on 5900+N.
	// Serial still goes to file/stdio above, so this doesn't steal the
	// primary console the way -nographic + -vnc together would.
	if cfg.VNCDisplay >= 0 {
		args = append(args, "-vnc", fmt.Sprintf("127.0.0.1:%d", cfg.VNCDisplay))
	} else {
		args = append(args, "-nographic")
	}

	// Disable default devices we don't need
	args = append(args, "-nodefaults")

	return args
}

// VNCPort returns the TCP port QEMU listens on for display N, per the
// -vnc display/port(=5900+N) convention.
func VNCPort(display int) int {
	return 5900 + display
}

// machineType returns the QEMU machine type for the host architecture.
func machineType() string {
	switch runtime.GOARCH {
	case "arm64":
		return "virt,accel=kvm"
	default:
		// x86_64 and others use q35
		return "q35,accel=kvm"
	}
}

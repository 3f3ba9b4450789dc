package libvirt

import (
	"context"
	"testing"

	golibvirt "github.com/digitalocean/go-libvirt"
	"github.com/horcrux-project/horcrux/internal/hypervisor"
	"github.com/stretchr/testify/assert"
)

func TestDomainXMLIncludesDisksAndNICs(t *testing.T) {
	spec := hypervisor.VMSpec{
		ID:         "vm-1",
		VCPUs:      2,
		MemoryMB:   1024,
		KernelPath: "/boot/vmlinux",
		InitrdPath: "/boot/initrd",
		CmdLine:    "console=ttyS0",
		Disks:      []hypervisor.DiskSpec{{ID: "disk-0", Path: "/data/disk0.img"}},
		NICs:       []hypervisor.NICSpec{{TapName: "tap0", MACAddress: "52:54:00:00:00:01"}},
	}

	xml := domainXML(spec)

	assert.Contains(t, xml, "<name>vm-1</name>")
	assert.Contains(t, xml, "<memory unit='MiB'>1024</memory>")
	assert.Contains(t, xml, "/data/disk0.img")
	assert.Contains(t, xml, "52:54:00:00:00:01")
	assert.Contains(t, xml, "tap0")
}

func TestDiskXMLReferencesTarget(t *testing.T) {
	xml := diskXML(hypervisor.DiskSpec{ID: "disk-0", Path: "/data/disk0.img"})
	assert.Contains(t, xml, "/data/disk0.img")
	assert.Contains(t, xml, "disk-0")
}

func TestDomainStateString(t *testing.T) {
	cases := map[golibvirt.DomainState]string{
		golibvirt.DomainRunning: "running",
		golibvirt.DomainPaused:  "paused",
		golibvirt.DomainShutoff: "stopped",
		golibvirt.DomainCrashed: "failed",
	}
	for state, want := range cases {
		assert.Equal(t, want, domainStateString(uint8(state)))
	}
}

func TestCloneReportsUnsupported(t *testing.T) {
	a := NewAdapter("")
	err := a.Clone(context.Background(), "vm-1", hypervisor.CloneOptions{})
	assert.ErrorIs(t, err, hypervisor.ErrUnsupported)
}

func TestConsoleEndpointReportsUnsupported(t *testing.T) {
	a := NewAdapter("")
	_, err := a.ConsoleEndpoint(context.Background(), "vm-1", hypervisor.ConsoleVNC)
	assert.ErrorIs(t, err, hypervisor.ErrUnsupported)
}

func TestCapabilities(t *testing.T) {
	a := NewAdapter("")
	caps := a.Capabilities()
	assert.True(t, caps.SupportsSnapshot)
	assert.True(t, caps.SupportsGPUPassthrough)
	assert.False(t, caps.SupportsHotplugMemory)
}

func TestNewAdapterDefaultsSocketPath(t *testing.T) {
	a := NewAdapter("")
	assert.NotNil(t, a.l)
}

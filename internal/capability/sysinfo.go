package capability

import (
	"fmt"
	"net/netip"
	"strings"

	"github.com/shirou/gopsutil/v3/mem"
	gnet "github.com/shirou/gopsutil/v3/net"
)

// Host reads system information through gopsutil.
type Host struct {
	virtualMemory func() (*mem.VirtualMemoryStat, error)
	interfaces    func() (gnet.InterfaceStatList, error)
}

// NewHost returns a Host reading the local machine.
func NewHost() *Host {
	return &Host{
		virtualMemory: mem.VirtualMemory,
		interfaces:    gnet.Interfaces,
	}
}

// AvailableMemory returns the memory available for new allocations, in bytes.
func (h *Host) AvailableMemory() (uint64, error) {
	vm, err := h.virtualMemory()
	if err != nil {
		return 0, fmt.Errorf("reading virtual memory: %w", err)
	}
	return vm.Available, nil
}

// DeviceIPAddress returns the first IPv4 address of iface.
func (h *Host) DeviceIPAddress(iface string) (string, error) {
	stat, err := h.lookup(iface)
	if err != nil {
		return "", err
	}
	for _, a := range stat.Addrs {
		prefix, err := netip.ParsePrefix(a.Addr)
		if err != nil {
			continue
		}
		if prefix.Addr().Is4() {
			return prefix.Addr().String(), nil
		}
	}
	return "", fmt.Errorf("%w: %s has no IPv4 address", ErrNoAddress, iface)
}

// DeviceMACAddress returns the hardware address of iface as upper-case
// hex without separators, e.g. "0A1B2C3D4E5F".
func (h *Host) DeviceMACAddress(iface string) (string, error) {
	stat, err := h.lookup(iface)
	if err != nil {
		return "", err
	}
	if stat.HardwareAddr == "" {
		return "", fmt.Errorf("%w: %s has no hardware address", ErrNoAddress, iface)
	}
	return strings.ToUpper(strings.ReplaceAll(stat.HardwareAddr, ":", "")), nil
}

func (h *Host) lookup(iface string) (gnet.InterfaceStat, error) {
	list, err := h.interfaces()
	if err != nil {
		return gnet.InterfaceStat{}, fmt.Errorf("listing interfaces: %w", err)
	}
	for _, stat := range list {
		if stat.Name == iface {
			return stat, nil
		}
	}
	return gnet.InterfaceStat{}, fmt.Errorf("%w: %s", ErrInterfaceNotFound, iface)
}

/**
 * Capture Interface Selection.
 *
 * Enumerates the interfaces libpcap can open and picks a sensible
 * default when configuration names none (or names one that is gone).
 * The flow engine substitutes rather than fails when its configured
 * interface is missing, so selection errors here only surface when no
 * interface at all is usable.
 *
 * Author: KleaSCM
 * Email: KleaSCM@gmail.com
 */

package capture

import (
	"fmt"
	"net"

	"github.com/google/gopacket/pcap"
)

// NetworkInterface is one capture-capable device, merged from libpcap's
// view (name, addresses) and the OS's (up/loopback flags).
type NetworkInterface struct {
	Name        string
	Description string
	Addresses   []string
	Flags       net.Flags
	IsUp        bool
	IsLoopback  bool
}

// ListInterfaces returns every device libpcap can see, annotated with
// OS status flags where the OS knows the device by the same name.
func ListInterfaces() ([]NetworkInterface, error) {
	devices, err := pcap.FindAllDevs()
	if err != nil {
		return nil, fmt.Errorf("enumerate capture devices: %w", err)
	}

	out := make([]NetworkInterface, 0, len(devices))
	for _, dev := range devices {
		ni := NetworkInterface{
			Name:        dev.Name,
			Description: dev.Description,
		}
		for _, addr := range dev.Addresses {
			if addr.IP != nil {
				ni.Addresses = append(ni.Addresses, addr.IP.String())
			}
		}
		if osIface, err := net.InterfaceByName(dev.Name); err == nil {
			ni.Flags = osIface.Flags
			ni.IsUp = osIface.Flags&net.FlagUp != 0
			ni.IsLoopback = osIface.Flags&net.FlagLoopback != 0
		}
		out = append(out, ni)
	}
	return out, nil
}

// FindInterface validates that a configured interface name exists.
func FindInterface(name string) (*NetworkInterface, error) {
	interfaces, err := ListInterfaces()
	if err != nil {
		return nil, err
	}
	for i := range interfaces {
		if interfaces[i].Name == name {
			return &interfaces[i], nil
		}
	}
	return nil, fmt.Errorf("interface %s not found", name)
}

// GetDefaultInterface picks the interface most likely to carry the
// LAN's traffic: up, not loopback, and holding at least one address.
// Failing that, any non-loopback device is better than nothing.
func GetDefaultInterface() (*NetworkInterface, error) {
	interfaces, err := ListInterfaces()
	if err != nil {
		return nil, err
	}

	for i := range interfaces {
		ni := &interfaces[i]
		if ni.IsUp && !ni.IsLoopback && len(ni.Addresses) > 0 {
			return ni, nil
		}
	}
	for i := range interfaces {
		if !interfaces[i].IsLoopback {
			return &interfaces[i], nil
		}
	}
	return nil, fmt.Errorf("no suitable interface found")
}

package avrflash

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"go.bug.st/serial/enumerator"
)

// PortInfo describes a serial port and, for USB devices, its identity.
type PortInfo struct {
	Name         string
	Path         string
	Description  string
	VendorID     string
	ProductID    string
	SerialNumber string
	Product      string
	IsUSB        bool
}

// ListFunc enumerates serial ports; ListPorts is the default.
type ListFunc func() ([]PortInfo, error)

// ListPorts returns the serial ports present on the system, sorted by path.
// USB ports carry their vendor and product identifiers.
func ListPorts() ([]PortInfo, error) {
	details, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate serial ports: %w", err)
	}

	ports := make([]PortInfo, 0, len(details))
	for _, d := range details {
		ports = append(ports, portInfoFromDetails(d))
	}

	// Sort the ports for consistent ordering
	sort.Slice(ports, func(i, j int) bool {
		return ports[i].Path < ports[j].Path
	})

	return ports, nil
}

func portInfoFromDetails(d *enumerator.PortDetails) PortInfo {
	name := filepath.Base(d.Name)
	info := PortInfo{
		Name:        name,
		Path:        d.Name,
		Description: getPortDescription(name),
		IsUSB:       d.IsUSB,
	}
	if d.IsUSB {
		info.VendorID = strings.ToLower(d.VID)
		info.ProductID = strings.ToLower(d.PID)
		info.SerialNumber = d.SerialNumber
		info.Product = d.Product
	}
	return info
}

// GetPortInfo returns detailed information about a specific port
func GetPortInfo(portPath string) (*PortInfo, error) {
	return lookupPort(ListPorts, portPath)
}

func lookupPort(list ListFunc, portPath string) (*PortInfo, error) {
	ports, err := list()
	if err != nil {
		return nil, err
	}

	for i := range ports {
		if ports[i].Path == portPath || ports[i].Name == portPath {
			return &ports[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrDeviceNotFound, portPath)
}

// getPortDescription provides human-readable descriptions for different port types
func getPortDescription(name string) string {
	switch {
	case strings.HasPrefix(name, "ttyUSB"):
		return "USB Serial Port"
	case strings.HasPrefix(name, "ttyACM"):
		return "USB CDC/ACM Device"
	case strings.HasPrefix(name, "cu.usbmodem"), strings.HasPrefix(name, "tty.usbmodem"):
		return "USB Modem"
	case strings.HasPrefix(name, "cu.usbserial"), strings.HasPrefix(name, "tty.usbserial"):
		return "USB Serial Port"
	case strings.HasPrefix(name, "COM"):
		return "COM Port"
	case strings.HasPrefix(name, "ttyAMA"):
		return "ARM Serial Port"
	case strings.HasPrefix(name, "ttyS"):
		return "Standard Serial Port"
	default:
		return "Serial Port"
	}
}

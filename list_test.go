package avrflash

import (
	"errors"
	"testing"

	"go.bug.st/serial/enumerator"
)

func TestGetPortDescription(t *testing.T) {
	tests := []struct {
		name     string
		expected string
	}{
		{"ttyUSB0", "USB Serial Port"},
		{"ttyACM0", "USB CDC/ACM Device"},
		{"cu.usbmodem14101", "USB Modem"},
		{"tty.usbserial-A50285BI", "USB Serial Port"},
		{"COM3", "COM Port"},
		{"ttyS0", "Standard Serial Port"},
		{"ttyAMA0", "ARM Serial Port"},
		{"unknown", "Serial Port"},
	}

	for _, test := range tests {
		result := getPortDescription(test.name)
		if result != test.expected {
			t.Errorf("getPortDescription(%s) = %s, expected %s", test.name, result, test.expected)
		}
	}
}

func TestPortInfoFromDetails(t *testing.T) {
	info := portInfoFromDetails(&enumerator.PortDetails{
		Name:         "/dev/ttyACM0",
		IsUSB:        true,
		VID:          "2341",
		PID:          "8036",
		SerialNumber: "HIDPC",
		Product:      "N32B",
	})

	if info.Name != "ttyACM0" {
		t.Errorf("Expected name 'ttyACM0', got '%s'", info.Name)
	}
	if info.Path != "/dev/ttyACM0" {
		t.Errorf("Expected path '/dev/ttyACM0', got '%s'", info.Path)
	}
	if info.VendorID != "2341" || info.ProductID != "8036" {
		t.Errorf("Unexpected identity %s:%s", info.VendorID, info.ProductID)
	}
	if info.Description != "USB CDC/ACM Device" {
		t.Errorf("Unexpected description %q", info.Description)
	}

	// Vendor identifiers are normalised to lower case.
	info = portInfoFromDetails(&enumerator.PortDetails{Name: "COM4", IsUSB: true, VID: "1B4F", PID: "9206"})
	if info.VendorID != "1b4f" {
		t.Errorf("Expected lower-case VID, got %s", info.VendorID)
	}

	// Non-USB ports carry no identity.
	info = portInfoFromDetails(&enumerator.PortDetails{Name: "/dev/ttyS0", VID: "ignored"})
	if info.IsUSB || info.VendorID != "" {
		t.Errorf("Expected no USB identity, got %+v", info)
	}
}

func TestLookupPort(t *testing.T) {
	list := func() ([]PortInfo, error) {
		return []PortInfo{
			{Name: "ttyACM0", Path: "/dev/ttyACM0"},
			{Name: "ttyACM1", Path: "/dev/ttyACM1"},
		}, nil
	}

	info, err := lookupPort(list, "/dev/ttyACM1")
	if err != nil {
		t.Fatalf("lookupPort failed: %v", err)
	}
	if info.Name != "ttyACM1" {
		t.Errorf("Expected ttyACM1, got %s", info.Name)
	}

	if _, err := lookupPort(list, "ttyACM0"); err != nil {
		t.Errorf("Expected lookup by name to succeed: %v", err)
	}

	_, err = lookupPort(list, "/dev/nonexistent")
	if !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("Expected ErrDeviceNotFound, got %v", err)
	}

	errEnum := errors.New("enumeration failed")
	_, err = lookupPort(func() ([]PortInfo, error) { return nil, errEnum }, "/dev/ttyACM0")
	if !errors.Is(err, errEnum) {
		t.Errorf("Expected enumeration error, got %v", err)
	}
}

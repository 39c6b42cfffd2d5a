package serial

import (
	"fmt"
	"strings"
)

// PortInfo describes a serial device found on the system. Empty strings and
// zero IDs mean the attribute is not available.
type PortInfo struct {
	Name           string
	SystemLocation string
	Description    string
	Manufacturer   string
	SerialNumber   string
	VendorID       uint16
	ProductID      uint16
}

const blank = "N/A"

func orBlank(s string) string {
	if strings.TrimSpace(s) == "" {
		return blank
	}
	return s
}

func hexOrBlank(v uint16) string {
	if v == 0 {
		return blank
	}
	return fmt.Sprintf("%x", v)
}

// Fields returns the columns printed by the port listing.
func (p PortInfo) Fields() []string {
	return []string{
		p.Name,
		orBlank(p.Description),
		orBlank(p.Manufacturer),
		orBlank(p.SerialNumber),
		p.SystemLocation,
		hexOrBlank(p.VendorID),
		hexOrBlank(p.ProductID),
	}
}

// ListPorts enumerates available serial devices sorted by name.
func ListPorts() ([]PortInfo, error) { return listPorts() }

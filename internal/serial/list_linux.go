//go:build linux

package serial

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// Hooks for tests (overridden in unit tests).
var (
	sysfsTTY = "/sys/class/tty"
	devDir   = "/dev"
)

// usbSearchDepth limits how far up from the tty device we look for the USB
// device node carrying idVendor/idProduct.
const usbSearchDepth = 4

func listPorts() ([]PortInfo, error) {
	entries, err := os.ReadDir(sysfsTTY)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var out []PortInfo
	for _, e := range entries {
		devLink := filepath.Join(sysfsTTY, e.Name(), "device")
		devPath, err := filepath.EvalSymlinks(devLink)
		if err != nil {
			continue // virtual terminal, no backing device
		}
		driver := ""
		if d, err := filepath.EvalSymlinks(filepath.Join(devLink, "driver")); err == nil {
			driver = filepath.Base(d)
		}
		// Legacy 8250 placeholders exist whether or not a UART is fitted.
		if driver == "serial8250" {
			continue
		}
		info := PortInfo{Name: e.Name(), SystemLocation: filepath.Join(devDir, e.Name())}
		if usb := findUSBDevice(devPath); usb != "" {
			info.Description = readAttr(usb, "product")
			info.Manufacturer = readAttr(usb, "manufacturer")
			info.SerialNumber = readAttr(usb, "serial")
			info.VendorID = readHexAttr(usb, "idVendor")
			info.ProductID = readHexAttr(usb, "idProduct")
		} else if driver != "" {
			info.Description = driver
		}
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func findUSBDevice(dir string) string {
	for i := 0; i <= usbSearchDepth; i++ {
		if _, err := os.Stat(filepath.Join(dir, "idVendor")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return ""
}

func readAttr(dir, name string) string {
	b, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(b))
}

func readHexAttr(dir, name string) uint16 {
	v, err := strconv.ParseUint(readAttr(dir, name), 16, 16)
	if err != nil {
		return 0
	}
	return uint16(v)
}

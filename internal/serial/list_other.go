//go:build !linux

package serial

import (
	"path/filepath"
	"sort"
)

var devPatterns = []string{"/dev/cu.*", "/dev/tty.usb*", "/dev/ttyU*", "/dev/cuaU*"}

// listPorts only knows device names on these platforms.
func listPorts() ([]PortInfo, error) {
	var out []PortInfo
	for _, pat := range devPatterns {
		matches, err := filepath.Glob(pat)
		if err != nil {
			return nil, err
		}
		for _, m := range matches {
			out = append(out, PortInfo{Name: filepath.Base(m), SystemLocation: m})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/kstaniek/go-serialterm/internal/serial"
)

var listHeader = []string{"PORT", "DESCRIPTION", "MANUFACTURER", "SERIAL", "LOCATION", "VID", "PID"}

// defaultPort picks the device path of the first detected port, or "".
func defaultPort(ports []serial.PortInfo) string {
	for _, p := range ports {
		if p.SystemLocation != "" {
			return p.SystemLocation
		}
		if p.Name != "" {
			return serial.DevicePath(p.Name)
		}
	}
	return ""
}

// printPorts writes one row per port with the same fields the port chooser shows.
func printPorts(w io.Writer, ports []serial.PortInfo) error {
	if len(ports) == 0 {
		_, err := fmt.Fprintln(w, "no serial ports found")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 8, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(listHeader, "\t"))
	for _, p := range ports {
		fmt.Fprintln(tw, strings.Join(p.Fields(), "\t"))
	}
	return tw.Flush()
}

// Package settings holds the line parameters used to open a serial port.
package settings

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// MaxBaudRate bounds custom baud rates entered by the user.
const MaxBaudRate = 4000000

// StandardBaudRates are the preset rates; any other positive rate is custom.
var StandardBaudRates = []int{9600, 19200, 38400, 115200}

type DataBits int

const (
	Data5 DataBits = 5
	Data6 DataBits = 6
	Data7 DataBits = 7
	Data8 DataBits = 8
)

func (d DataBits) String() string { return strconv.Itoa(int(d)) }

type Parity byte

// Values match the single-letter parity codes used by serial drivers.
const (
	ParityNone  Parity = 'N'
	ParityEven  Parity = 'E'
	ParityOdd   Parity = 'O'
	ParityMark  Parity = 'M'
	ParitySpace Parity = 'S'
)

func (p Parity) String() string {
	switch p {
	case ParityNone:
		return "None"
	case ParityEven:
		return "Even"
	case ParityOdd:
		return "Odd"
	case ParityMark:
		return "Mark"
	case ParitySpace:
		return "Space"
	default:
		return fmt.Sprintf("Parity(%d)", byte(p))
	}
}

type StopBits byte

const (
	Stop1     StopBits = 1
	Stop1Half StopBits = 15
	Stop2     StopBits = 2
)

func (s StopBits) String() string {
	switch s {
	case Stop1:
		return "1"
	case Stop1Half:
		return "1.5"
	case Stop2:
		return "2"
	default:
		return fmt.Sprintf("StopBits(%d)", byte(s))
	}
}

type FlowControl int

const (
	FlowNone FlowControl = iota
	FlowHardware
	FlowSoftware
)

func (f FlowControl) String() string {
	switch f {
	case FlowNone:
		return "None"
	case FlowHardware:
		return "RTS/CTS"
	case FlowSoftware:
		return "XON/XOFF"
	default:
		return fmt.Sprintf("FlowControl(%d)", int(f))
	}
}

// Settings is an immutable snapshot of the parameters for one connection.
type Settings struct {
	Name        string
	BaudRate    int
	DataBits    DataBits
	Parity      Parity
	StopBits    StopBits
	FlowControl FlowControl
	LocalEcho   bool
}

// Default returns 115200 8N1 without flow control on name.
func Default(name string) Settings {
	return Settings{
		Name:        name,
		BaudRate:    115200,
		DataBits:    Data8,
		Parity:      ParityNone,
		StopBits:    Stop1,
		FlowControl: FlowNone,
	}
}

var ErrNoPort = errors.New("no serial port selected")

// Validate checks ranges only; it does not touch the device.
func (s Settings) Validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return ErrNoPort
	}
	if s.BaudRate <= 0 || s.BaudRate > MaxBaudRate {
		return fmt.Errorf("baud rate must be in 1..%d (got %d)", MaxBaudRate, s.BaudRate)
	}
	if s.DataBits < Data5 || s.DataBits > Data8 {
		return fmt.Errorf("invalid data bits: %d", s.DataBits)
	}
	switch s.Parity {
	case ParityNone, ParityEven, ParityOdd, ParityMark, ParitySpace:
	default:
		return fmt.Errorf("invalid parity: %v", s.Parity)
	}
	switch s.StopBits {
	case Stop1, Stop1Half, Stop2:
	default:
		return fmt.Errorf("invalid stop bits: %v", s.StopBits)
	}
	switch s.FlowControl {
	case FlowNone, FlowHardware, FlowSoftware:
	default:
		return fmt.Errorf("invalid flow control: %v", s.FlowControl)
	}
	return nil
}

// Summary is the status line shown after a successful connect.
func (s Settings) Summary() string {
	return fmt.Sprintf("Connected to %s : %d, %s, %s, %s, %s",
		s.Name, s.BaudRate, s.DataBits, s.Parity, s.StopBits, s.FlowControl)
}

// IsCustomBaud reports whether rate is outside the preset list.
func IsCustomBaud(rate int) bool {
	for _, r := range StandardBaudRates {
		if r == rate {
			return false
		}
	}
	return true
}

func ParseDataBits(v string) (DataBits, error) {
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || n < 5 || n > 8 {
		return 0, fmt.Errorf("invalid data bits %q (use 5|6|7|8)", v)
	}
	return DataBits(n), nil
}

func ParseParity(v string) (Parity, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "none", "n":
		return ParityNone, nil
	case "even", "e":
		return ParityEven, nil
	case "odd", "o":
		return ParityOdd, nil
	case "mark", "m":
		return ParityMark, nil
	case "space", "s":
		return ParitySpace, nil
	}
	return 0, fmt.Errorf("invalid parity %q (use none|even|odd|mark|space)", v)
}

func ParseStopBits(v string) (StopBits, error) {
	switch strings.TrimSpace(v) {
	case "1":
		return Stop1, nil
	case "1.5":
		return Stop1Half, nil
	case "2":
		return Stop2, nil
	}
	return 0, fmt.Errorf("invalid stop bits %q (use 1|1.5|2)", v)
}

func ParseFlowControl(v string) (FlowControl, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "none":
		return FlowNone, nil
	case "rts/cts", "hardware", "hw":
		return FlowHardware, nil
	case "xon/xoff", "software", "sw":
		return FlowSoftware, nil
	}
	return 0, fmt.Errorf("invalid flow control %q (use none|rts/cts|xon/xoff)", v)
}

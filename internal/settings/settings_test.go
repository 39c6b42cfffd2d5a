package settings

import (
	"errors"
	"testing"
)

func TestSummary(t *testing.T) {
	s := Settings{Name: "/dev/ttyUSB0", BaudRate: 9600, DataBits: Data7, Parity: ParityEven, StopBits: Stop2, FlowControl: FlowHardware}
	want := "Connected to /dev/ttyUSB0 : 9600, 7, Even, 2, RTS/CTS"
	if got := s.Summary(); got != want {
		t.Fatalf("summary mismatch\n got  %q\n want %q", got, want)
	}
}

func TestValidate(t *testing.T) {
	if err := Default("/dev/ttyS0").Validate(); err != nil {
		t.Fatalf("default should validate: %v", err)
	}
	tests := []struct {
		name string
		mod  func(*Settings)
	}{
		{"noName", func(s *Settings) { s.Name = " " }},
		{"zeroBaud", func(s *Settings) { s.BaudRate = 0 }},
		{"hugeBaud", func(s *Settings) { s.BaudRate = MaxBaudRate + 1 }},
		{"dataBits", func(s *Settings) { s.DataBits = 9 }},
		{"parity", func(s *Settings) { s.Parity = 'X' }},
		{"stopBits", func(s *Settings) { s.StopBits = 3 }},
		{"flow", func(s *Settings) { s.FlowControl = 7 }},
	}
	for _, tc := range tests {
		s := Default("/dev/ttyS0")
		tc.mod(&s)
		if err := s.Validate(); err == nil {
			t.Fatalf("%s: expected error", tc.name)
		}
	}
	s := Default("")
	if err := s.Validate(); !errors.Is(err, ErrNoPort) {
		t.Fatalf("expected ErrNoPort, got %v", err)
	}
}

func TestCustomBaud(t *testing.T) {
	if IsCustomBaud(115200) {
		t.Fatalf("115200 is a preset")
	}
	if !IsCustomBaud(250000) {
		t.Fatalf("250000 should be custom")
	}
	s := Default("/dev/ttyACM0")
	s.BaudRate = 250000
	if err := s.Validate(); err != nil {
		t.Fatalf("custom baud should validate: %v", err)
	}
}

func TestParse(t *testing.T) {
	if d, err := ParseDataBits("7"); err != nil || d != Data7 {
		t.Fatalf("data bits: %v %v", d, err)
	}
	if _, err := ParseDataBits("9"); err == nil {
		t.Fatalf("expected data bits error")
	}
	parity := map[string]Parity{"none": ParityNone, "Even": ParityEven, "ODD": ParityOdd, "mark": ParityMark, "s": ParitySpace}
	for in, want := range parity {
		got, err := ParseParity(in)
		if err != nil || got != want {
			t.Fatalf("parity %q: got %v err %v", in, got, err)
		}
	}
	if _, err := ParseParity("x"); err == nil {
		t.Fatalf("expected parity error")
	}
	stop := map[string]StopBits{"1": Stop1, "1.5": Stop1Half, "2": Stop2}
	for in, want := range stop {
		got, err := ParseStopBits(in)
		if err != nil || got != want {
			t.Fatalf("stop %q: got %v err %v", in, got, err)
		}
	}
	flow := map[string]FlowControl{"none": FlowNone, "RTS/CTS": FlowHardware, "hardware": FlowHardware, "xon/xoff": FlowSoftware, "software": FlowSoftware}
	for in, want := range flow {
		got, err := ParseFlowControl(in)
		if err != nil || got != want {
			t.Fatalf("flow %q: got %v err %v", in, got, err)
		}
	}
	if _, err := ParseFlowControl("dtr"); err == nil {
		t.Fatalf("expected flow error")
	}
}

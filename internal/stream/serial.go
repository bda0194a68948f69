package stream

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/muurk/groundlink/internal/syncutil"
	"go.bug.st/serial"
)

// pollInterval bounds how long a serial read blocks before rechecking ctx.
const pollInterval = 50 * time.Millisecond

// openFunc opens a serial port. Tests replace it.
type openFunc func(name string, mode *serial.Mode) (serial.Port, error)

// SerialStream reads and writes a serial port.
type SerialStream struct {
	cfg  Config
	mode *serial.Mode
	open openFunc

	mu   syncutil.Mutex
	port serial.Port
	buf  []byte
}

// NewSerial validates the serial settings in cfg and creates an unopened
// stream.
func NewSerial(cfg Config) (*SerialStream, error) {
	cfg.Kind = KindSerial
	mode, err := serialMode(cfg)
	if err != nil {
		return nil, err
	}
	return &SerialStream{
		cfg:  cfg,
		mode: mode,
		open: serial.Open,
		buf:  make([]byte, cfg.readBufferSize()),
	}, nil
}

func serialMode(cfg Config) (*serial.Mode, error) {
	mode := &serial.Mode{
		BaudRate: cfg.BaudRate,
		DataBits: cfg.DataBits,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	if mode.BaudRate == 0 {
		mode.BaudRate = 115200
	}
	if mode.DataBits == 0 {
		mode.DataBits = 8
	}

	switch strings.ToLower(cfg.Parity) {
	case "", "none", "n":
	case "odd", "o":
		mode.Parity = serial.OddParity
	case "even", "e":
		mode.Parity = serial.EvenParity
	case "mark", "m":
		mode.Parity = serial.MarkParity
	case "space", "s":
		mode.Parity = serial.SpaceParity
	default:
		return nil, fmt.Errorf("stream: invalid parity %q", cfg.Parity)
	}

	switch cfg.StopBits {
	case "", "1":
	case "1.5":
		mode.StopBits = serial.OnePointFiveStopBits
	case "2":
		mode.StopBits = serial.TwoStopBits
	default:
		return nil, fmt.Errorf("stream: invalid stop bits %q", cfg.StopBits)
	}

	return mode, nil
}

// Connect opens the port.
func (s *SerialStream) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.port != nil {
		return ErrAlreadyConnected
	}

	port, err := s.open(s.cfg.Address, s.mode)
	if err != nil {
		return fmt.Errorf("failed to open serial port %s: %w", s.cfg.Address, err)
	}
	if err := port.SetReadTimeout(pollInterval); err != nil {
		_ = port.Close()
		return fmt.Errorf("failed to set serial read timeout: %w", err)
	}
	s.port = port
	return nil
}

// Read polls the port until bytes arrive, ctx is done, or the configured
// read timeout passes.
func (s *SerialStream) Read(ctx context.Context) ([]byte, error) {
	port := s.current()
	if port == nil {
		return nil, ErrNotConnected
	}

	var expires time.Time
	if s.cfg.ReadTimeout > 0 {
		expires = time.Now().Add(s.cfg.ReadTimeout)
	}

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		n, err := port.Read(s.buf)
		if n > 0 {
			out := make([]byte, n)
			copy(out, s.buf[:n])
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("serial read failed: %w", err)
		}
		if !expires.IsZero() && time.Now().After(expires) {
			return nil, fmt.Errorf("serial read timed out after %s", s.cfg.ReadTimeout)
		}
	}
}

// Write sends data and waits for it to leave the output buffer.
func (s *SerialStream) Write(ctx context.Context, data []byte) error {
	port := s.current()
	if port == nil {
		return ErrNotConnected
	}

	for len(data) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := port.Write(data)
		if err != nil {
			return fmt.Errorf("serial write failed: %w", err)
		}
		data = data[n:]
	}
	if err := port.Drain(); err != nil {
		return fmt.Errorf("serial drain failed: %w", err)
	}
	return nil
}

// Disconnect closes the port.
func (s *SerialStream) Disconnect() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.port == nil {
		return nil
	}
	err := s.port.Close()
	s.port = nil
	return err
}

// Connected reports whether the port is open.
func (s *SerialStream) Connected() bool {
	return s.current() != nil
}

// Kind returns KindSerial.
func (s *SerialStream) Kind() Kind { return KindSerial }

// Addr returns the device path.
func (s *SerialStream) Addr() string { return s.cfg.Address }

func (s *SerialStream) current() serial.Port {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.port
}

// Ports lists the serial ports present on this machine.
func Ports() ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("failed to list serial ports: %w", err)
	}
	return ports, nil
}

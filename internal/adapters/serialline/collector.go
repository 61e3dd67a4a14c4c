// Package serialline collects raw acquisition lines from a serial-attached
// ECG device.
package serialline

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.bug.st/serial"

	"github.com/GanQiao1990/ecg-receiver-standalone/internal/ports"
)

// Config captures the runtime details required to open the device port.
type Config struct {
	Port        string        `yaml:"port"`
	BaudRate    int           `yaml:"baud_rate"`
	ReadTimeout time.Duration `yaml:"read_timeout"`
}

func (c *Config) ApplyDefaults() {
	if c.BaudRate <= 0 {
		c.BaudRate = 57600
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 500 * time.Millisecond
	}
}

func (c *Config) Validate() error {
	if c.Port == "" {
		return errors.New("serial port is required")
	}
	return nil
}

// Collector owns the serial connection and emits one string per complete
// newline-terminated line. Partial lines are held back until their
// terminator arrives; on connection loss the output channel is closed.
type Collector struct {
	cfg     Config
	port    serial.Port
	mu      sync.Mutex
	stopCh  chan struct{}
	doneCh  chan struct{}
	started bool
}

func NewCollector(cfg Config) (*Collector, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Collector{cfg: cfg}, nil
}

// ListPorts enumerates candidate device ports on the host.
func ListPorts() ([]string, error) {
	return serial.GetPortsList()
}

func (c *Collector) Start(out chan<- string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started {
		return fmt.Errorf("serial collector already started")
	}

	port, err := serial.Open(c.cfg.Port, &serial.Mode{
		BaudRate: c.cfg.BaudRate,
		Parity:   serial.NoParity,
		DataBits: 8,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return fmt.Errorf("open %s: %w", c.cfg.Port, err)
	}
	if err := port.SetReadTimeout(c.cfg.ReadTimeout); err != nil {
		_ = port.Close()
		return fmt.Errorf("set read timeout: %w", err)
	}

	c.port = port
	c.stopCh = make(chan struct{})
	c.doneCh = make(chan struct{})
	c.started = true

	go c.readLoop(out)
	return nil
}

func (c *Collector) readLoop(out chan<- string) {
	defer close(out)
	defer close(c.doneCh)

	var pending strings.Builder
	buf := make([]byte, 512)

	for {
		select {
		case <-c.stopCh:
			return
		default:
		}

		n, err := c.port.Read(buf)
		if err != nil {
			// Read errors after Stop are expected; anything else is
			// connection loss and terminates the stream.
			return
		}
		if n == 0 {
			// Read timeout with no data; keep polling.
			continue
		}

		pending.Write(buf[:n])
		chunk := pending.String()
		pending.Reset()

		for {
			idx := strings.IndexByte(chunk, '\n')
			if idx < 0 {
				pending.WriteString(chunk)
				break
			}
			line := strings.TrimRight(chunk[:idx], "\r")
			chunk = chunk[idx+1:]

			select {
			case out <- line:
			case <-c.stopCh:
				return
			}
		}
	}
}

func (c *Collector) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.started {
		return nil
	}
	c.started = false

	close(c.stopCh)
	err := c.port.Close()

	select {
	case <-c.doneCh:
	case <-time.After(2 * time.Second):
	}
	return err
}

var _ ports.Collector = (*Collector)(nil)

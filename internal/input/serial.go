package input

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	serial "github.com/jacobsa/go-serial/serial"

	"github.com/relabs-tech/gamepad_polling/internal/gamepad"
	"github.com/relabs-tech/gamepad_polling/internal/monitoring"
)

// reportPrefix starts every controller line sent by the adapter firmware:
//
//	GP,<id>,<lx>,<ly>,<rx>,<ry>,<buttons hex>,<lt>,<rt>
const reportPrefix = "GP,"

// DefaultStaleAfter is how long a controller stays present without a report.
const DefaultStaleAfter = 500 * time.Millisecond

// SerialOptions configures a serial adapter source.
type SerialOptions struct {
	PortName   string
	BaudRate   uint
	StaleAfter time.Duration
}

type report struct {
	state gamepad.State
	seen  time.Time
}

// Serial reads controller reports streamed by a USB-serial adapter and
// keeps the latest report per controller.
type Serial struct {
	mu         sync.RWMutex
	latest     map[gamepad.ID]report
	staleAfter time.Duration
	now        func() time.Time

	port io.ReadCloser
	done chan struct{}
	err  error
}

// OpenSerial opens the adapter port and starts reading reports.
func OpenSerial(opts SerialOptions) (*Serial, error) {
	if opts.PortName == "" {
		return nil, errors.New("serial source: port name is required")
	}
	serialOpts := serial.OpenOptions{
		PortName:              opts.PortName,
		BaudRate:              opts.BaudRate,
		DataBits:              8,
		StopBits:              1,
		MinimumReadSize:       1,
		ParityMode:            serial.PARITY_NONE,
		InterCharacterTimeout: 0,
	}
	port, err := serial.Open(serialOpts)
	if err != nil {
		return nil, fmt.Errorf("serial source: open %s: %w", opts.PortName, err)
	}
	monitoring.Logf("serial source: opened %s at %d baud", opts.PortName, opts.BaudRate)
	return NewSerialReader(port, opts.StaleAfter), nil
}

// NewSerialReader reads reports from an already open stream.
func NewSerialReader(port io.ReadCloser, staleAfter time.Duration) *Serial {
	if staleAfter <= 0 {
		staleAfter = DefaultStaleAfter
	}
	s := &Serial{
		latest:     make(map[gamepad.ID]report),
		staleAfter: staleAfter,
		now:        time.Now,
		port:       port,
		done:       make(chan struct{}),
	}
	go s.readLoop()
	return s
}

func (s *Serial) readLoop() {
	defer close(s.done)
	scanner := bufio.NewScanner(s.port)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, reportPrefix) {
			continue
		}
		st, err := ParseReport(line)
		if err != nil {
			// partial lines are common right after the port opens
			continue
		}
		s.mu.Lock()
		s.latest[st.ID] = report{state: st, seen: s.now()}
		s.mu.Unlock()
	}
	if err := scanner.Err(); err != nil {
		monitoring.Logf("serial source: read error: %v", err)
		s.mu.Lock()
		s.err = err
		s.mu.Unlock()
	}
}

// SetClock replaces the time source used for staleness.
func (s *Serial) SetClock(now func() time.Time) {
	s.mu.Lock()
	s.now = now
	s.mu.Unlock()
}

// PresentIDs returns every controller heard from within the stale window.
func (s *Serial) PresentIDs() ([]gamepad.ID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.err != nil {
		return nil, fmt.Errorf("serial source: %w", s.err)
	}
	now := s.now()
	ids := make([]gamepad.ID, 0, len(s.latest))
	for id, r := range s.latest {
		if now.Sub(r.seen) <= s.staleAfter {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids, nil
}

// Snapshot returns the latest report of id.
func (s *Serial) Snapshot(id gamepad.ID) (gamepad.State, error) {
	s.mu.RLock()
	r, ok := s.latest[id]
	now := s.now()
	s.mu.RUnlock()
	if !ok || now.Sub(r.seen) > s.staleAfter {
		return gamepad.State{}, fmt.Errorf("serial controller %d: %w", id, ErrNotConnected)
	}
	return r.state, nil
}

// Close closes the port and waits for the reader to exit.
func (s *Serial) Close() error {
	err := s.port.Close()
	<-s.done
	return err
}

// ParseReport decodes one adapter line.
func ParseReport(line string) (gamepad.State, error) {
	fields := strings.Split(strings.TrimPrefix(strings.TrimSpace(line), reportPrefix), ",")
	if len(fields) != 8 {
		return gamepad.State{}, fmt.Errorf("report: want 8 fields, got %d", len(fields))
	}

	id, err := strconv.ParseUint(fields[0], 10, 32)
	if err != nil {
		return gamepad.State{}, fmt.Errorf("report: invalid id %q: %w", fields[0], err)
	}

	var axes gamepad.Axes
	for i := range axes {
		v, err := strconv.ParseInt(fields[1+i], 10, 16)
		if err != nil {
			return gamepad.State{}, fmt.Errorf("report: invalid axis %d %q: %w", i, fields[1+i], err)
		}
		axes[i] = int16(v)
	}

	buttons, err := strconv.ParseUint(fields[5], 16, 16)
	if err != nil {
		return gamepad.State{}, fmt.Errorf("report: invalid buttons %q: %w", fields[5], err)
	}
	lt, err := strconv.ParseUint(fields[6], 10, 8)
	if err != nil {
		return gamepad.State{}, fmt.Errorf("report: invalid left trigger %q: %w", fields[6], err)
	}
	rt, err := strconv.ParseUint(fields[7], 10, 8)
	if err != nil {
		return gamepad.State{}, fmt.Errorf("report: invalid right trigger %q: %w", fields[7], err)
	}

	return gamepad.State{
		ID:           gamepad.ID(id),
		Name:         fmt.Sprintf("Serial Controller %d", id),
		Power:        "Wired",
		Axes:         axes,
		Buttons:      gamepad.Buttons(buttons),
		LeftTrigger:  uint8(lt),
		RightTrigger: uint8(rt),
	}, nil
}

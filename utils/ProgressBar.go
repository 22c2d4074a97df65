package utils

import (
	"fmt"
	"io"
	"math"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

const (
	leftEdgeRune  = '▕'
	rightEdgeRune = '▏'
	filledRune    = '▇'
	blankRune     = '-'

	labelColumnWidth = 28
	refreshRate      = 50 * time.Millisecond
	defaultWidth     = 80
)

// ProgressBar draws the progress of a fixed number of items on one line. It
// is safe to Increment from many goroutines.
type ProgressBar struct {
	label          string
	completedItems uint32
	numberItems    uint32
	output         io.Writer
	startTime      time.Time
	width          func() int

	mutex   sync.Mutex
	started bool
	done    chan struct{}
	drawn   chan struct{}
}

func NewProgressBar(output io.Writer, label string, numberItems int) *ProgressBar {
	return &ProgressBar{
		label:       label,
		numberItems: uint32(numberItems),
		output:      output,
		width: func() int {
			if width, err := TerminalWidth(); err == nil && width > 0 {
				return width
			}
			return defaultWidth
		},
	}
}

// Expect sets the number of items and starts drawing
func (pb *ProgressBar) Expect(numberItems int) {
	atomic.StoreUint32(&pb.numberItems, uint32(numberItems))
	pb.Start()
}

func (pb *ProgressBar) Increment() {
	atomic.AddUint32(&pb.completedItems, 1)
}

func (pb *ProgressBar) Completed() int {
	return int(atomic.LoadUint32(&pb.completedItems))
}

func (pb *ProgressBar) Start() {
	pb.mutex.Lock()
	defer pb.mutex.Unlock()

	if pb.started {
		return
	}

	pb.started = true
	if pb.startTime.IsZero() {
		pb.startTime = time.Now()
	}
	pb.done = make(chan struct{})
	pb.drawn = make(chan struct{})

	go pb.tick(time.NewTicker(refreshRate))
}

// Stop draws the final state and ends the line
func (pb *ProgressBar) Stop() {
	pb.mutex.Lock()
	defer pb.mutex.Unlock()

	if !pb.started {
		return
	}

	close(pb.done)
	<-pb.drawn

	pb.started = false
}

func (pb *ProgressBar) tick(ticker *time.Ticker) {
	defer close(pb.drawn)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			pb.draw()

		case <-pb.done:
			pb.draw()
			_, _ = io.WriteString(pb.output, "\n")
			return
		}
	}
}

func (pb *ProgressBar) draw() {
	_, _ = io.WriteString(pb.output, "\r"+pb.String())
}

func (pb *ProgressBar) String() string {
	completed := atomic.LoadUint32(&pb.completedItems)
	numberItems := atomic.LoadUint32(&pb.numberItems)

	percentage := 1.0
	if numberItems > 0 {
		percentage = math.Min(float64(completed)/float64(numberItems), 1)
	}

	var elapsed time.Duration
	if !pb.startTime.IsZero() {
		elapsed = time.Since(pb.startTime)
	}

	var builder strings.Builder
	builder.WriteString(pb.label)
	if toFill := labelColumnWidth - len([]rune(pb.label)); toFill > 0 {
		builder.WriteString(strings.Repeat(" ", toFill))
	}
	builder.WriteString(fmt.Sprintf("%3.0f%% ", percentage*100))

	rightEdge := fmt.Sprintf(" %d/%d [%.1fs]", completed, numberItems, elapsed.Seconds())

	space := pb.width() - len([]rune(builder.String())) - len(rightEdge) - 2
	if space < 10 {
		space = 10
	}
	filled := int(math.Round(float64(space) * percentage))

	builder.WriteRune(leftEdgeRune)
	builder.WriteString(strings.Repeat(string(filledRune), filled))
	builder.WriteString(strings.Repeat(string(blankRune), space-filled))
	builder.WriteRune(rightEdgeRune)
	builder.WriteString(rightEdge)

	return builder.String()
}

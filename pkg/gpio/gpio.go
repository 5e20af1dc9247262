//go:build linux

package gpio

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/warthog618/go-gpiocdev"
)

// Consumer is the label lines are requested under
const Consumer = "hub75"

// ErrLineBusy is returned when a line is held by another consumer
var ErrLineBusy = errors.New("gpio: line busy")

// lineRequest is the part of *gpiocdev.Lines used here
type lineRequest interface {
	SetValues(values []int) error
	Close() error
}

// chipInfo is the part of *gpiocdev.Chip used here
type chipInfo interface {
	LineInfo(offset int) (gpiocdev.LineInfo, error)
	Close() error
}

var (
	openChip = func(name string) (chipInfo, error) {
		return gpiocdev.NewChip(name, gpiocdev.WithConsumer(Consumer))
	}
	requestLines = func(chip string, offsets, values []int) (lineRequest, error) {
		return gpiocdev.RequestLines(chip, offsets,
			gpiocdev.AsOutput(values...), gpiocdev.WithConsumer(Consumer))
	}
)

// CheckFree returns ErrLineBusy naming every line in offsets that another
// consumer already holds.
func CheckFree(chip string, offsets []int) error {
	c, err := openChip(chip)
	if err != nil {
		return fmt.Errorf("gpio: failed to open %s: %w", chip, err)
	}
	defer c.Close()

	var busy []string
	for _, offset := range offsets {
		info, err := c.LineInfo(offset)
		if err != nil {
			return fmt.Errorf("gpio: line %d of %s: %w", offset, chip, err)
		}
		if info.Used {
			busy = append(busy, fmt.Sprintf("%d (%s)", offset, info.Consumer))
		}
	}
	if len(busy) > 0 {
		return fmt.Errorf("%w: %s", ErrLineBusy, strings.Join(busy, ", "))
	}
	return nil
}

// Lines is a group of output lines held at an idle level between uses
type Lines struct {
	chip    string
	offsets []int
	idle    []int

	mu  sync.Mutex
	req lineRequest
}

// Request claims offsets on chip as outputs driven to their idle levels
func Request(chip string, offsets, idle []int) (*Lines, error) {
	if len(offsets) != len(idle) {
		return nil, fmt.Errorf("gpio: %d lines with %d idle levels", len(offsets), len(idle))
	}
	req, err := requestLines(chip, offsets, idle)
	if err != nil {
		return nil, fmt.Errorf("gpio: failed to request lines %v of %s: %w", offsets, chip, err)
	}
	log.Printf("Requested lines %v of %s", offsets, chip)

	return &Lines{
		chip:    chip,
		offsets: append([]int(nil), offsets...),
		idle:    append([]int(nil), idle...),
		req:     req,
	}, nil
}

// Offsets returns the requested line offsets
func (l *Lines) Offsets() []int {
	return l.offsets
}

// Set drives every line; values are in Offsets order
func (l *Lines) Set(values []int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.req == nil {
		return fmt.Errorf("gpio: lines of %s closed", l.chip)
	}
	return l.req.SetValues(values)
}

// Idle drives every line back to its idle level
func (l *Lines) Idle() error {
	return l.Set(l.idle)
}

// Walk toggles each line away from its idle level in turn for dwell, calling
// visit before each, until every line has been visited or ctx is done.
func (l *Lines) Walk(ctx context.Context, dwell time.Duration, visit func(offset int)) error {
	values := make([]int, len(l.idle))
	for i, offset := range l.offsets {
		copy(values, l.idle)
		values[i] ^= 1
		if visit != nil {
			visit(offset)
		}
		if err := l.Set(values); err != nil {
			return err
		}

		select {
		case <-ctx.Done():
			if err := l.Idle(); err != nil {
				return err
			}
			return ctx.Err()
		case <-time.After(dwell):
		}
	}
	return l.Idle()
}

// Close returns the lines to idle and releases them
func (l *Lines) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.req == nil {
		return nil
	}

	err := l.req.SetValues(l.idle)
	if cerr := l.req.Close(); err == nil {
		err = cerr
	}
	l.req = nil
	log.Printf("Released lines %v of %s", l.offsets, l.chip)
	return err
}

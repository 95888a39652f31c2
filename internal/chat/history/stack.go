// Package history keeps a bounded tail of recent chat payloads.
package history

import (
	"fmt"
	"sync"
)

// Stack - accumulates a limited number of payloads in arrival order.
// When stack length is reached max value, it drops the oldest item on every push.
type Stack struct {
	max  int
	mu   sync.RWMutex
	data [][]byte
}

// NewStack - builds history stack.
func NewStack(max int) (*Stack, error) {
	if max <= 0 {
		return nil, fmt.Errorf("history.NewStack: max (%d) must be greater than 0", max)
	}
	return &Stack{max: max, data: make([][]byte, 0, max)}, nil
}

// Len - returns number of kept items.
func (s *Stack) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

// Push - adds copy of item to history.
func (s *Stack) Push(item []byte) {
	item = append([]byte(nil), item...)
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.data) == s.max {
		copy(s.data, s.data[1:])
		s.data = s.data[:len(s.data)-1]
	}
	s.data = append(s.data, item)
}

// Tail - makes copy of last n-items from stack into resulting slice.
// The first item in resulting slice is the oldest one.
func (s *Stack) Tail(n int) [][]byte {
	if n < 0 {
		n *= -1
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	l := len(s.data)
	if n > l {
		n = l
	}
	tail := make([][]byte, n)
	copy(tail, s.data[l-n:])
	return tail
}

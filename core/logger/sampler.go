package logger

import (
	"strconv"
	"strings"
	"sync"
)

// ratioSampler passes the first numerator events out of every
// denominator. Used to thin high-volume debug lines, such as per-part
// delivery logs, without silencing them entirely.
type ratioSampler struct {
	mu          sync.Mutex
	numerator   int
	denominator int
	seen        int
}

func newRatioSampler(numerator, denominator int) *ratioSampler {
	s := &ratioSampler{}
	s.Set(numerator, denominator)
	return s
}

// Set replaces the ratio. Non-positive values disable sampling so every
// event passes.
func (s *ratioSampler) Set(numerator, denominator int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if numerator <= 0 || denominator <= 0 {
		s.numerator = 0
		s.denominator = 0
		s.seen = 0
		return
	}
	if numerator > denominator {
		numerator = denominator
	}
	s.numerator = numerator
	s.denominator = denominator
	s.seen = 0
}

// Allow reports whether the current event falls inside the window.
func (s *ratioSampler) Allow() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.denominator <= 0 || s.numerator <= 0 {
		return true
	}
	s.seen++
	if s.seen > s.denominator {
		s.seen = 1
	}
	return s.seen <= s.numerator
}

// parseRatioSpec reads "n/m", or a bare "n" meaning one in n. Anything
// else disables sampling.
func parseRatioSpec(spec string) (int, int) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return 0, 0
	}
	if strings.Contains(spec, "/") {
		parts := strings.SplitN(spec, "/", 2)
		num, err1 := strconv.Atoi(strings.TrimSpace(parts[0]))
		den, err2 := strconv.Atoi(strings.TrimSpace(parts[1]))
		if err1 == nil && err2 == nil {
			return num, den
		}
	}
	if v, err := strconv.Atoi(spec); err == nil {
		if v <= 0 {
			return 0, 0
		}
		return 1, v
	}
	return 0, 0
}

package delay

import (
	"fmt"
	"math/rand"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Policy produces the wait durations that pace a campaign. It is an
// injectable strategy so tests can swap the randomized implementation
// for a deterministic one.
type Policy interface {
	// PreProcessing models a human opening the next chat.
	PreProcessing() time.Duration
	// InterMessage is the core pacing delay between two sends.
	InterMessage() time.Duration
	// Typing estimates how long composing a message of msgLen runes takes.
	Typing(msgLen int) time.Duration
	// Reading estimates how long glancing over a chat of msgLen runes takes.
	Reading(msgLen int) time.Duration
}

const (
	preProcessMinMs = 2000
	preProcessMaxMs = 8000

	typingCharsPerMin  = 200 // ~40 wpm
	readingCharsPerMin = 1000

	typingMin  = 3 * time.Second
	typingMax  = 30 * time.Second
	readingMin = 1 * time.Second
	readingMax = 10 * time.Second
)

// batchLimits caps the recipient-list size per named delay range.
// Slower pacing tolerates bigger batches.
var batchLimits = map[string]int{
	"3-5":   50,
	"5-10":  100,
	"10-20": 250,
	"20-40": 500,
	"30-60": 1000,
}

// DefaultRange is used when a submission carries no delay range.
const DefaultRange = "5-10"

// MaxRecipients returns the batch-size cap for a delay range. Unknown
// ranges get the most conservative cap.
func MaxRecipients(rangeSpec string) int {
	if limit, ok := batchLimits[rangeSpec]; ok {
		return limit
	}
	return batchLimits["3-5"]
}

// ParseRange splits a "min-max" seconds spec into a millisecond pair.
func ParseRange(rangeSpec string) (minMs, maxMs int, err error) {
	parts := strings.SplitN(strings.TrimSpace(rangeSpec), "-", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid delay range %q, expected \"min-max\"", rangeSpec)
	}
	lo, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return 0, 0, fmt.Errorf("invalid delay range %q: %w", rangeSpec, err)
	}
	hi, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return 0, 0, fmt.Errorf("invalid delay range %q: %w", rangeSpec, err)
	}
	if lo <= 0 || hi < lo {
		return 0, 0, fmt.Errorf("invalid delay range %q: bounds out of order", rangeSpec)
	}
	return lo * 1000, hi * 1000, nil
}

// RandomPolicy draws uniformly from the configured range. Safe for use
// from the delivery loop and the typing simulation concurrently.
type RandomPolicy struct {
	minMs int
	maxMs int

	mu  sync.Mutex
	rng *rand.Rand
}

// NewRandomPolicy builds a policy from a "min-max" seconds spec.
func NewRandomPolicy(rangeSpec string) (*RandomPolicy, error) {
	minMs, maxMs, err := ParseRange(rangeSpec)
	if err != nil {
		return nil, err
	}
	return NewSeededPolicy(minMs, maxMs, time.Now().UnixNano()), nil
}

// NewSeededPolicy builds a policy with an explicit seed so tests can
// reproduce a delay sequence.
func NewSeededPolicy(minMs, maxMs int, seed int64) *RandomPolicy {
	return &RandomPolicy{
		minMs: minMs,
		maxMs: maxMs,
		rng:   rand.New(rand.NewSource(seed)),
	}
}

func (p *RandomPolicy) PreProcessing() time.Duration {
	return time.Duration(p.randomBetween(preProcessMinMs, preProcessMaxMs)) * time.Millisecond
}

func (p *RandomPolicy) InterMessage() time.Duration {
	return time.Duration(p.randomBetween(p.minMs, p.maxMs)) * time.Millisecond
}

func (p *RandomPolicy) Typing(msgLen int) time.Duration {
	return clamp(estimate(msgLen, typingCharsPerMin), typingMin, typingMax)
}

func (p *RandomPolicy) Reading(msgLen int) time.Duration {
	return clamp(estimate(msgLen, readingCharsPerMin), readingMin, readingMax)
}

// randomBetween returns a uniform integer in [lo, hi].
func (p *RandomPolicy) randomBetween(lo, hi int) int {
	if hi <= lo {
		return lo
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return lo + p.rng.Intn(hi-lo+1)
}

func estimate(msgLen, charsPerMin int) time.Duration {
	return time.Duration(msgLen) * time.Minute / time.Duration(charsPerMin)
}

func clamp(d, lo, hi time.Duration) time.Duration {
	if d < lo {
		return lo
	}
	if d > hi {
		return hi
	}
	return d
}

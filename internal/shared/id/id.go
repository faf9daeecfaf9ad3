// Package id provides identity generation for bridged workers.
//
// Worker identities are prefixed ULIDs (wkr_01J...). They namespace the
// page-global bindings a worker installs, so two workers that share a page
// must never be handed the same identity. The generator draws from a
// monotonic entropy source, which keeps identities strictly increasing even
// when many are minted within the same millisecond.
package id

import (
	"crypto/rand"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// WorkerID identifies a bridged worker instance
type WorkerID string

// WorkerPrefix tags worker identities in logs and page bindings
const WorkerPrefix = "wkr"

// Generator generates ULIDs with optional prefixes
type Generator struct {
	entropy   io.Reader
	entropyMu sync.Mutex
}

var (
	defaultGenerator *Generator
	once             sync.Once
)

// Default returns the singleton generator instance
func Default() *Generator {
	once.Do(func() {
		defaultGenerator = NewGenerator()
	})
	return defaultGenerator
}

// NewGenerator creates a generator backed by crypto/rand
func NewGenerator() *Generator {
	return NewGeneratorWithEntropy(rand.Reader)
}

// NewGeneratorWithEntropy creates a generator with a custom entropy source.
// Useful for deterministic tests.
func NewGeneratorWithEntropy(entropy io.Reader) *Generator {
	return &Generator{
		entropy: ulid.Monotonic(entropy, 0),
	}
}

// Generate creates a new ULID
func (g *Generator) Generate() ulid.ULID {
	g.entropyMu.Lock()
	defer g.entropyMu.Unlock()

	return ulid.MustNew(ulid.Timestamp(time.Now()), g.entropy)
}

// GenerateString creates a new ULID as a string
func (g *Generator) GenerateString() string {
	return g.Generate().String()
}

// GenerateWithPrefix creates a prefixed ULID string
func (g *Generator) GenerateWithPrefix(prefix string) string {
	return fmt.Sprintf("%s_%s", prefix, g.GenerateString())
}

// NewWorkerID mints a worker identity from the default generator
func NewWorkerID() WorkerID {
	return WorkerID(Default().GenerateWithPrefix(WorkerPrefix))
}

// NewWorkerID mints a worker identity from g
func (g *Generator) NewWorkerID() WorkerID {
	return WorkerID(g.GenerateWithPrefix(WorkerPrefix))
}

func (id WorkerID) String() string { return string(id) }

// Valid reports whether id has the wkr_<ULID> shape
func (id WorkerID) Valid() bool {
	prefix, raw, ok := strings.Cut(string(id), "_")
	return ok && prefix == WorkerPrefix && IsValid(raw)
}

// IsValid checks if an ID string is a valid ULID
func IsValid(id string) bool {
	_, err := ulid.ParseStrict(id)
	return err == nil
}

// Parse parses a ULID string
func Parse(id string) (ulid.ULID, error) {
	return ulid.ParseStrict(id)
}

// Timestamp extracts the timestamp from a ULID, prefixed or not
func Timestamp(id string) (time.Time, error) {
	if _, raw, ok := strings.Cut(id, "_"); ok {
		id = raw
	}
	parsed, err := Parse(id)
	if err != nil {
		return time.Time{}, err
	}
	return ulid.Time(parsed.Time()), nil
}

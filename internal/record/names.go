package record

import (
	"fmt"
	"math/rand/v2"
	"sync"

	"github.com/brianvoe/gofakeit/v7"
)

const (
	// NameSourceBuiltin selects the fixed name-part lists
	NameSourceBuiltin = "builtin"

	// NameSourceFaker selects gofakeit generated names
	NameSourceFaker = "faker"

	// attributionPoolSize is how many fake curator names the faker source draws from
	attributionPoolSize = 10
)

// NameSource produces the human-readable text fields of a record.
// Implementations may draw from r or from their own seeded source.
type NameSource interface {
	// PersonName returns a display name such as "Alex Patel"
	PersonName(r *rand.Rand) string

	// Attribution returns the label of whoever added the record
	Attribution(r *rand.Rand) string
}

var (
	firstNames = []string{
		"Alex", "Sam", "Taylor", "Jordan", "Chris", "Pat", "Morgan", "Jamie", "Casey", "Riley",
		"Avery", "Quinn", "Drew", "Hayden", "Cameron", "Devin", "Skyler", "Parker", "Rowan", "Kendall",
	}
	lastNames = []string{
		"Patel", "Sharma", "Dubey", "Singh", "Kumar", "Gupta", "Malhotra", "Mehta", "Joshi", "Desai",
		"Johnson", "Smith", "Brown", "Miller", "Davis", "Garcia", "Rodriguez", "Wilson", "Martinez", "Anderson",
	}
	attributions = []string{"admin", "importer", "john.doe", "jane.smith", "system"}
)

// builtinNames combines fixed first and last name lists
type builtinNames struct{}

// NewBuiltinNameSource returns the dependency-free name source
func NewBuiltinNameSource() NameSource {
	return builtinNames{}
}

func (builtinNames) PersonName(r *rand.Rand) string {
	return firstNames[r.IntN(len(firstNames))] + " " + lastNames[r.IntN(len(lastNames))]
}

func (builtinNames) Attribution(r *rand.Rand) string {
	return attributions[r.IntN(len(attributions))]
}

// fakerNames draws names from gofakeit
type fakerNames struct {
	mu       sync.Mutex
	faker    *gofakeit.Faker
	curators []string
}

// NewFakerNameSource returns a gofakeit backed name source seeded with seed.
// A zero seed gives a randomly seeded faker.
func NewFakerNameSource(seed uint64) NameSource {
	f := gofakeit.New(seed)
	curators := make([]string, attributionPoolSize)
	for i := range curators {
		curators[i] = f.Name()
	}
	return &fakerNames{faker: f, curators: curators}
}

func (s *fakerNames) PersonName(_ *rand.Rand) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.faker.Name()
}

// Attribution picks one of attributionPoolSize curator names. The pool is drawn once,
// when the source is built, and shared by every record; it is not redrawn per record.
func (s *fakerNames) Attribution(r *rand.Rand) string {
	return s.curators[r.IntN(len(s.curators))]
}

// NewNameSource resolves a configured source kind
func NewNameSource(kind string, seed uint64) (NameSource, error) {
	switch kind {
	case "", NameSourceBuiltin:
		return NewBuiltinNameSource(), nil
	case NameSourceFaker:
		return NewFakerNameSource(seed), nil
	default:
		return nil, fmt.Errorf("unknown name source: %s", kind)
	}
}

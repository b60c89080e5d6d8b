package record

import (
	"math"
	"math/rand/v2"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode"
)

const (
	phonePrefix      = "+1"
	phoneDigits      = 10
	emailLocalMaxLen = 12
	avatarURLFormat  = "https://i.pravatar.cc/150?img="
)

var emailDomains = []string{"example.com", "mail.com", "demo.net", "sample.org"}

// Factory builds records from an id and a shared random stream.
//
// The stream is consumed under a mutex, one record at a time, so output is reproducible
// for a fixed seed only when records are generated in id order by a single caller.
// This is best effort: a NameSource with its own randomness (gofakeit) has a separate stream.
type Factory struct {
	mu    sync.Mutex
	rng   *rand.Rand
	names NameSource
	now   func() time.Time
}

// FactoryOption configures a Factory
type FactoryOption func(*Factory)

// WithNameSource sets the strategy producing names and attribution labels
func WithNameSource(src NameSource) FactoryOption {
	return func(f *Factory) {
		f.names = src
	}
}

// WithClock sets the reference time used for lastActivityAt
func WithClock(now func() time.Time) FactoryOption {
	return func(f *Factory) {
		f.now = now
	}
}

// NewFactory creates a factory seeded with seed. A zero seed picks a random one.
func NewFactory(seed uint64, opts ...FactoryOption) *Factory {
	if seed == 0 {
		seed = rand.Uint64()
	}

	f := &Factory{
		//nolint:gosec // G404: synthetic data, not security sensitive
		rng:   rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		names: NewBuiltinNameSource(),
		now:   time.Now,
	}

	for _, opt := range opts {
		opt(f)
	}

	return f
}

// Generate builds the record for id. id must be >= 1.
func (f *Factory) Generate(id int64) Record {
	f.mu.Lock()
	defer f.mu.Unlock()

	name := f.names.PersonName(f.rng)
	return Record{
		ID:             id,
		Name:           name,
		Phone:          f.phone(),
		Email:          f.email(name, id),
		Score:          f.score(),
		LastActivityAt: f.lastActivity(),
		AddedBy:        f.names.Attribution(f.rng),
		AvatarURL:      AvatarURL(id),
	}
}

func (f *Factory) phone() string {
	var b strings.Builder
	b.Grow(len(phonePrefix) + phoneDigits)
	b.WriteString(phonePrefix)
	for range phoneDigits {
		b.WriteByte(byte('0' + f.rng.IntN(10)))
	}
	return b.String()
}

func (f *Factory) email(name string, id int64) string {
	return EmailLocalPart(name) + "." + strconv.FormatInt(id, 10) + "@" + emailDomains[f.rng.IntN(len(emailDomains))]
}

func (f *Factory) score() float64 {
	return math.Round(f.rng.Float64()*MaxScore*100) / 100
}

func (f *Factory) lastActivity() time.Time {
	window := int64(ActivityWindow / time.Second)
	offset := time.Duration(f.rng.Int64N(window)) * time.Second
	return f.now().UTC().Truncate(time.Second).Add(-offset)
}

// EmailLocalPart lowercases name, keeps letters and digits and caps the result at 12 runes.
// Names without any usable character map to "user".
func EmailLocalPart(name string) string {
	var b strings.Builder
	n := 0
	for _, c := range strings.ToLower(name) {
		if n == emailLocalMaxLen {
			break
		}
		if unicode.IsLetter(c) || unicode.IsDigit(c) {
			b.WriteRune(c)
			n++
		}
	}
	if b.Len() == 0 {
		return "user"
	}
	return b.String()
}

// AvatarURL maps an id onto the fixed avatar pool
func AvatarURL(id int64) string {
	return avatarURLFormat + strconv.FormatInt(id%AvatarPoolSize+1, 10)
}

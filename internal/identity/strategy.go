package identity

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/hurou927/docmap/internal/doctype"
)

var (
	// ErrUnsupportedStrategy is returned when a custom strategy has nothing to build.
	ErrUnsupportedStrategy = errors.New("identity strategy cannot build a generator")
	// ErrUnsupportedIDType is returned when no strategy handles an id value type.
	ErrUnsupportedIDType = errors.New("unsupported id type")
	// ErrEmptyID is returned when a caller-supplied id is missing.
	ErrEmptyID = errors.New("document id is empty")
)

// Strategy is one of GuidStrategy, CombGuidStrategy, HiloStrategy, StringStrategy
// or CustomStrategy.
type Strategy interface {
	// KeyTypes lists the id value types the strategy can generate.
	KeyTypes() []doctype.ValueType
	// Build returns a generator for ids of the given value type.
	Build(key doctype.ValueType, seqs SequenceSource) (Generator, error)
	String() string

	isStrategy()
}

// Generator assigns ids to documents.
type Generator interface {
	// Assign returns current if it already holds an id, otherwise a new id.
	// assigned reports whether a new id was generated.
	Assign(ctx context.Context, current any) (id any, assigned bool, err error)
}

// Sequence hands out hi values for Hi-Lo generation.
type Sequence interface {
	NextHi(ctx context.Context) (int64, error)
}

// SequenceSource resolves the sequence backing a Hi-Lo strategy.
type SequenceSource interface {
	Hilo(settings HiloSettings) Sequence
}

// HiloSettings are the tunables of the Hi-Lo strategy.
type HiloSettings struct {
	MaxLo                      int64  `yaml:"max_lo"`
	MaxAdvanceToNextHiAttempts int    `yaml:"max_advance_attempts"`
	SequenceName               string `yaml:"sequence"`
}

// DefaultHiloSettings returns the settings used when none are configured.
func DefaultHiloSettings() HiloSettings {
	return HiloSettings{
		MaxLo:                      1000,
		MaxAdvanceToNextHiAttempts: 30,
	}
}

// GuidStrategy assigns random v4 UUIDs.
type GuidStrategy struct{}

func (*GuidStrategy) KeyTypes() []doctype.ValueType { return []doctype.ValueType{doctype.ValueUUID} }
func (*GuidStrategy) String() string                { return "guid" }
func (*GuidStrategy) isStrategy()                   {}

func (s *GuidStrategy) Build(key doctype.ValueType, _ SequenceSource) (Generator, error) {
	if err := checkKey(s, key); err != nil {
		return nil, err
	}
	return &guidGenerator{next: uuid4}, nil
}

// CombGuidStrategy assigns time-ordered UUIDs, which keep btree inserts local.
type CombGuidStrategy struct{}

func (*CombGuidStrategy) KeyTypes() []doctype.ValueType {
	return []doctype.ValueType{doctype.ValueUUID}
}
func (*CombGuidStrategy) String() string { return "comb" }
func (*CombGuidStrategy) isStrategy()    {}

func (s *CombGuidStrategy) Build(key doctype.ValueType, _ SequenceSource) (Generator, error) {
	if err := checkKey(s, key); err != nil {
		return nil, err
	}
	return &guidGenerator{next: uuid7}, nil
}

// HiloStrategy reserves blocks of integer ids from a database sequence.
type HiloStrategy struct {
	Settings HiloSettings
}

func (*HiloStrategy) KeyTypes() []doctype.ValueType {
	return []doctype.ValueType{doctype.ValueInt32, doctype.ValueInt64}
}
func (s *HiloStrategy) String() string { return fmt.Sprintf("hilo(max_lo=%d)", s.Settings.MaxLo) }
func (*HiloStrategy) isStrategy()      {}

// MaxLo is the size of one reserved block.
func (s *HiloStrategy) MaxLo() int64 { return s.Settings.MaxLo }

func (s *HiloStrategy) Build(key doctype.ValueType, seqs SequenceSource) (Generator, error) {
	if err := checkKey(s, key); err != nil {
		return nil, err
	}
	if seqs == nil {
		return nil, fmt.Errorf("hilo strategy needs a sequence source")
	}
	settings := s.Settings
	if settings.MaxLo <= 0 {
		settings.MaxLo = DefaultHiloSettings().MaxLo
	}
	return &hiloGenerator{
		key:      key,
		maxLo:    settings.MaxLo,
		sequence: seqs.Hilo(settings),
	}, nil
}

// StringStrategy leaves id assignment to the caller.
type StringStrategy struct{}

func (*StringStrategy) KeyTypes() []doctype.ValueType {
	return []doctype.ValueType{doctype.ValueString}
}
func (*StringStrategy) String() string { return "string" }
func (*StringStrategy) isStrategy()    {}

func (s *StringStrategy) Build(key doctype.ValueType, _ SequenceSource) (Generator, error) {
	if err := checkKey(s, key); err != nil {
		return nil, err
	}
	return stringGenerator{}, nil
}

// BuildFunc constructs a generator for a custom strategy.
type BuildFunc func(key doctype.ValueType, seqs SequenceSource) (Generator, error)

// CustomStrategy carries a caller-supplied generator constructor.
type CustomStrategy struct {
	Name    string
	Keys    []doctype.ValueType
	Builder BuildFunc
}

func (s *CustomStrategy) KeyTypes() []doctype.ValueType { return s.Keys }
func (s *CustomStrategy) isStrategy()                   {}

func (s *CustomStrategy) String() string {
	if s.Name == "" {
		return "custom"
	}
	return s.Name
}

func (s *CustomStrategy) Build(key doctype.ValueType, seqs SequenceSource) (Generator, error) {
	if s.Builder == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedStrategy, s)
	}
	return s.Builder(key, seqs)
}

func checkKey(s Strategy, key doctype.ValueType) error {
	if !slices.Contains(s.KeyTypes(), key) {
		return fmt.Errorf("%w: %s strategy cannot generate %s ids", ErrUnsupportedIDType, s, key)
	}
	return nil
}

// Select picks the strategy for an id member. An explicit override always wins.
func Select(key doctype.ValueType, member doctype.MemberKind, override Strategy) (Strategy, error) {
	if override != nil {
		return override, nil
	}
	switch key {
	case doctype.ValueUUID:
		if member == doctype.Property {
			return &CombGuidStrategy{}, nil
		}
		return &GuidStrategy{}, nil
	case doctype.ValueInt32, doctype.ValueInt64:
		return &HiloStrategy{Settings: DefaultHiloSettings()}, nil
	case doctype.ValueString:
		return &StringStrategy{}, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedIDType, key)
}

// Parse resolves a strategy name used in configuration. An empty name yields nil.
func Parse(name string) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "":
		return nil, nil
	case "guid", "uuid":
		return &GuidStrategy{}, nil
	case "comb", "combguid", "sequential":
		return &CombGuidStrategy{}, nil
	case "hilo":
		return &HiloStrategy{Settings: DefaultHiloSettings()}, nil
	case "string":
		return &StringStrategy{}, nil
	}
	return nil, fmt.Errorf("unknown id strategy %q", name)
}

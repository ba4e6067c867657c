package msgstream

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Options holds the limits shared by every stream type.
//
//   - MaxCapacity:          upper bound on messages per stream and partitions per PartitionedStream
//   - MaxStringLength:      per-message length ceiling, in characters
//   - OperationsMultiplier: governor scale; maxOperations = capacity * OperationsMultiplier
//   - WriteThreshold:       appends buffered by a DurableStream before a flush
//   - PartitionCapacity:    capacity of the default stream created for each partition slot
//
// Zero values mean "use the default". See DefaultOptions().
type Options struct {
	MaxCapacity          int `json:"max_capacity" yaml:"max_capacity"`
	MaxStringLength      int `json:"max_string_length" yaml:"max_string_length"`
	OperationsMultiplier int `json:"operations_multiplier" yaml:"operations_multiplier"`
	WriteThreshold       int `json:"write_threshold" yaml:"write_threshold"`
	PartitionCapacity    int `json:"partition_capacity" yaml:"partition_capacity"`
}

// DefaultOptions returns the limits used when no options are supplied.
func DefaultOptions() Options {
	return Options{
		MaxCapacity:          200,
		MaxStringLength:      150,
		OperationsMultiplier: 2,
		WriteThreshold:       3,
		PartitionCapacity:    50,
	}
}

// Option mutates Options during construction.
type Option func(*Options)

func WithMaxCapacity(n int) Option {
	return func(o *Options) { o.MaxCapacity = n }
}

func WithMaxStringLength(n int) Option {
	return func(o *Options) { o.MaxStringLength = n }
}

func WithOperationsMultiplier(n int) Option {
	return func(o *Options) { o.OperationsMultiplier = n }
}

func WithWriteThreshold(n int) Option {
	return func(o *Options) { o.WriteThreshold = n }
}

func WithPartitionCapacity(n int) Option {
	return func(o *Options) { o.PartitionCapacity = n }
}

// WithOptions replaces the whole configuration, typically one returned by LoadOptions.
func WithOptions(opts Options) Option {
	return func(o *Options) { *o = opts }
}

func applyOptions(options ...Option) Options {
	o := DefaultOptions()
	for _, opt := range options {
		opt(&o)
	}
	return o.withDefaults()
}

// withDefaults replaces non-positive fields with their defaults.
func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.MaxCapacity <= 0 {
		o.MaxCapacity = d.MaxCapacity
	}
	if o.MaxStringLength <= 0 {
		o.MaxStringLength = d.MaxStringLength
	}
	if o.OperationsMultiplier <= 0 {
		o.OperationsMultiplier = d.OperationsMultiplier
	}
	if o.WriteThreshold <= 0 {
		o.WriteThreshold = d.WriteThreshold
	}
	if o.PartitionCapacity <= 0 {
		o.PartitionCapacity = d.PartitionCapacity
	}
	return o
}

// Validate rejects combinations that cannot produce a working stream.
func (o Options) Validate() error {
	o = o.withDefaults()
	if o.PartitionCapacity > o.MaxCapacity {
		return newError("options", KindInvalidArgument,
			"partition_capacity %d exceeds max_capacity %d", o.PartitionCapacity, o.MaxCapacity)
	}
	if o.WriteThreshold > o.MaxCapacity {
		return newError("options", KindInvalidArgument,
			"write_threshold %d exceeds max_capacity %d", o.WriteThreshold, o.MaxCapacity)
	}
	return nil
}

// clampCapacity bounds a requested capacity to [1, limit].
func clampCapacity(capacity, limit int) int {
	if capacity > limit {
		return limit
	}
	if capacity <= 0 {
		return 1
	}
	return capacity
}

// LoadOptions reads options from a JSON or YAML file, chosen by extension.
// An empty path returns the defaults.
func LoadOptions(path string) (Options, error) {
	if path == "" {
		return DefaultOptions(), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Options{}, fmt.Errorf("read options file: %w", err)
	}
	opts := DefaultOptions()
	switch filepath.Ext(path) {
	case ".json":
		if err := json.Unmarshal(b, &opts); err != nil {
			return Options{}, fmt.Errorf("decode options: %w", err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &opts); err != nil {
			return Options{}, fmt.Errorf("decode options: %w", err)
		}
	default:
		return Options{}, newError("options", KindInvalidPath, "unsupported extension %q", filepath.Ext(path))
	}
	opts = opts.withDefaults()
	if err := opts.Validate(); err != nil {
		return Options{}, err
	}
	return opts, nil
}

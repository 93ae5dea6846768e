package modelio

import (
	"context"
	"fmt"
	"time"

	"metaflux/internal/codec/core"
	"metaflux/internal/codec/excel"
	"metaflux/internal/codec/matlab"
	"metaflux/internal/codec/sbml"
	"metaflux/internal/codec/simpheny"
	"metaflux/internal/codec/textexport"
	"metaflux/pkg/model"
)

// Prompt describes a path the Dispatcher needs interactively resolved when
// the caller supplied none.
type Prompt struct {
	// Operation is "read" or "write".
	Operation string
	// Format is the resolved format when one is already known.
	Format Format
}

// PathResolver supplies a path for a Prompt, standing in for an interactive
// file picker. A nil resolver is a valid configuration; calls that would
// need one fail instead.
type PathResolver func(ctx context.Context, prompt Prompt) (string, error)

// Options configures a Dispatcher.
type Options struct {
	// DefaultFormat is used when no explicit format is given and none can be
	// inferred from the path. Empty means no default: such calls fail with
	// ErrUnknownFormat.
	DefaultFormat Format
	// PathResolver resolves missing source/destination paths.
	PathResolver PathResolver
	// Metrics receives per-operation observations. Nil disables recording.
	Metrics MetricsRecorder
}

// Dispatcher routes read and write calls to the registered codecs. It holds
// no state about the models passing through it; a returned model is owned
// exclusively by the caller.
type Dispatcher struct {
	opts     Options
	decoders map[Format]Decoder
	encoders map[Format]Encoder
}

// New builds a Dispatcher with all built-in codecs registered.
func New(opts ...Options) *Dispatcher {
	var o Options
	if len(opts) > 0 {
		o = opts[0]
	}
	d := &Dispatcher{
		opts:     o,
		decoders: make(map[Format]Decoder),
		encoders: make(map[Format]Encoder),
	}
	for _, dec := range []Decoder{matlab.New(), sbml.New(), simpheny.New(), excel.New()} {
		d.decoders[dec.Format()] = dec
	}
	for _, enc := range []Encoder{matlab.New(), sbml.New(), excel.New(), textexport.New()} {
		d.encoders[enc.Format()] = enc
	}
	return d
}

// Read loads a model from source. When format is empty it is inferred from
// the source extension, falling back to the configured default. The decoded
// model is validated before it is returned; partial or invalid input never
// yields a model.
func (d *Dispatcher) Read(ctx context.Context, source string, format Format) (*model.Model, error) {
	if source == "" {
		var err error
		source, err = d.resolvePath(ctx, Prompt{Operation: "read", Format: format})
		if err != nil {
			return nil, err
		}
	}
	resolved, err := d.resolveFormat(format, source)
	if err != nil {
		return nil, err
	}
	dec, ok := d.decoders[resolved]
	if !ok {
		return nil, fmt.Errorf("%w: no decoder for %q", ErrUnsupportedFormat, resolved)
	}

	start := time.Now()
	m, err := dec.Decode(ctx, source)
	if err == nil {
		err = m.Validate()
	}
	d.observe(ctx, "read", resolved, err == nil, time.Since(start))
	if err != nil {
		return nil, err
	}
	return m, nil
}

// Write stores a model at dest. When format is empty it is inferred from the
// destination extension, falling back to the configured default. The model
// is validated before any bytes are written.
func (d *Dispatcher) Write(ctx context.Context, m *model.Model, dest string, format Format) error {
	if dest == "" {
		var err error
		dest, err = d.resolvePath(ctx, Prompt{Operation: "write", Format: format})
		if err != nil {
			return err
		}
	}
	resolved, err := d.resolveFormat(format, dest)
	if err != nil {
		return err
	}
	enc, ok := d.encoders[resolved]
	if !ok {
		return fmt.Errorf("%w: no encoder for %q", ErrUnsupportedFormat, resolved)
	}
	if err := m.Validate(); err != nil {
		return err
	}

	start := time.Now()
	err = enc.Encode(ctx, m, dest)
	d.observe(ctx, "write", resolved, err == nil, time.Since(start))
	return err
}

// resolveFormat turns an explicit token or a path extension into a Format.
func (d *Dispatcher) resolveFormat(format Format, path string) (Format, error) {
	if format != "" {
		resolved, ok := core.ParseFormat(string(format))
		if !ok {
			return "", fmt.Errorf("%w: %q", ErrUnknownFormat, format)
		}
		return resolved, nil
	}
	if path != "" {
		if resolved, ok := core.FormatForPath(path); ok {
			return resolved, nil
		}
	}
	if d.opts.DefaultFormat != "" {
		return d.opts.DefaultFormat, nil
	}
	return "", fmt.Errorf("%w: cannot infer format for %q", ErrUnknownFormat, path)
}

func (d *Dispatcher) resolvePath(ctx context.Context, prompt Prompt) (string, error) {
	if d.opts.PathResolver == nil {
		if prompt.Operation == "write" {
			return "", ErrDestinationRequired
		}
		return "", fmt.Errorf("%w: no source given", ErrUnknownFormat)
	}
	path, err := d.opts.PathResolver(ctx, prompt)
	if err != nil {
		return "", err
	}
	if path == "" {
		if prompt.Operation == "write" {
			return "", ErrDestinationRequired
		}
		return "", fmt.Errorf("%w: no source given", ErrUnknownFormat)
	}
	return path, nil
}

func (d *Dispatcher) observe(ctx context.Context, op string, format Format, success bool, duration time.Duration) {
	if d.opts.Metrics == nil {
		return
	}
	d.opts.Metrics.Observe(ctx, op, format, success, duration)
}

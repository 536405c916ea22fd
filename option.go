package grove

// DefaultKeySize is the key width used when WithKeySize is not given.
const DefaultKeySize = 8

// Options configures an index beyond its constructor arguments.
type Options struct {
	keySize int
	logger  Logger
}

func defaultOptions() Options {
	return Options{
		keySize: DefaultKeySize,
		logger:  DiscardLogger{},
	}
}

// Option configures index options using the functional options pattern.
type Option func(*Options)

// WithKeySize sets the fixed key width in bytes. Every key passed to
// the index must have exactly this length.
func WithKeySize(n int) Option {
	return func(opts *Options) {
		opts.keySize = n
	}
}

// WithLogger routes the index's diagnostics through l.
func WithLogger(l Logger) Option {
	return func(opts *Options) {
		opts.logger = l
	}
}

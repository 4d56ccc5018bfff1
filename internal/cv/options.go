package cv

// Option adjusts a ScrollMatchConfig
type Option func(*ScrollMatchConfig)

// WithThreshold sets the minimum similarity percentage (0-100)
func WithThreshold(t float64) Option {
	return func(cfg *ScrollMatchConfig) {
		cfg.Threshold = t
	}
}

// WithTolerance sets the per-pixel color tolerance
func WithTolerance(v uint8) Option {
	return func(cfg *ScrollMatchConfig) {
		cfg.Tolerance = v
	}
}

// WithStride sets the sampling stride along both axes
func WithStride(s int) Option {
	return func(cfg *ScrollMatchConfig) {
		cfg.SampleStride = s
	}
}

// WithMinOverlap sets the smallest overlap searched
func WithMinOverlap(n int) Option {
	return func(cfg *ScrollMatchConfig) {
		cfg.MinOverlap = n
	}
}

// WithDuplicateSimilarity sets the similarity above which a frame is a stall
func WithDuplicateSimilarity(p float64) Option {
	return func(cfg *ScrollMatchConfig) {
		cfg.DuplicateSimilarity = p
	}
}

// NewScrollMatchConfig applies opts on top of the defaults
func NewScrollMatchConfig(opts ...Option) *ScrollMatchConfig {
	cfg := DefaultScrollMatchConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

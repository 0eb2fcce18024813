package log

// FilterOption is filter option.
type FilterOption func(*Filter)

// FilterLevel with filter level.
func FilterLevel(level Level) FilterOption {
	return func(opts *Filter) {
		opts.level = level
	}
}

// Filter is a logger filter.
type Filter struct {
	logger Logger
	level  Level
}

// NewFilter new a logger filter.
func NewFilter(logger Logger, opts ...FilterOption) *Filter {
	options := Filter{
		logger: logger,
		level:  LevelDebug,
	}
	for _, o := range opts {
		o(&options)
	}
	return &options
}

// Log Print log by level and keyvals.
func (f *Filter) Log(level Level, keyvals ...any) error {
	if level < f.level {
		return nil
	}
	return f.logger.Log(level, keyvals...)
}

// Enabled reports whether level passes the filter.
func (f *Filter) Enabled(level Level) bool {
	return level >= f.level
}

package errors

// Convenience constructors for the error categories used throughout the
// build pipeline. They keep call sites terse and the taxonomy in one place.

// ConfigError creates a fatal configuration error (bad workspace, unknown
// plugin, invalid request). Configuration errors abort a run before any
// task is dispatched.
func ConfigError(message string) *BuildError {
	return New(CategoryConfig, SeverityFatal, message)
}

// ValidationError creates a fatal validation error for malformed
// configuration values or request parameters.
func ValidationError(message string) *BuildError {
	return New(CategoryValidation, SeverityFatal, message)
}

// IOError wraps a filesystem failure (unreadable source file, unwritable
// cache). Callers treat the affected plugin conservatively as stale.
func IOError(err error, message string) *BuildError {
	return Wrap(err, CategoryIO, SeverityError, message)
}

// CacheError wraps a cache corruption failure. Recovered by discarding the
// cache, never fatal.
func CacheError(err error, message string) *BuildError {
	return Wrap(err, CategoryCache, SeverityWarning, message)
}

// BackendError wraps a build backend failure. Reported per plugin, does not
// abort sibling tasks.
func BackendError(err error, message string) *BuildError {
	return Wrap(err, CategoryBackend, SeverityError, message)
}

// ProcessWarning wraps a process termination failure. Logged, never blocks
// the run.
func ProcessWarning(err error, message string) *BuildError {
	return Wrap(err, CategoryProcess, SeverityWarning, message)
}

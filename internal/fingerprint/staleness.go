package fingerprint

// StaleReason explains why a plugin was classified stale or fresh.
type StaleReason string

const (
	ReasonFresh         StaleReason = "fresh"
	ReasonForced        StaleReason = "forced"
	ReasonNoCacheEntry  StaleReason = "no_cache_entry"
	ReasonMissingOutput StaleReason = "missing_output"
	ReasonSourceChanged StaleReason = "source_changed"

	// ReasonUnreadableSource is assigned by callers when fingerprinting
	// itself failed and the plugin is conservatively treated as stale.
	ReasonUnreadableSource StaleReason = "unreadable_source"
)

// NeedsBuild decides whether a plugin must be rebuilt. It is a pure function
// with no I/O: the caller supplies the current fingerprint, the cached one
// (nil when absent), whether all output artifacts exist, and the force flag.
//
// Policy, in order: forced rebuilds always build; a plugin never built before
// builds; a missing artifact builds even when the source matches the cache,
// because the cache describes source state, not output presence; a changed
// source builds; otherwise the plugin is fresh.
func NeedsBuild(current, cached *Fingerprint, outputExists, force bool) (bool, StaleReason) {
	switch {
	case force:
		return true, ReasonForced
	case cached == nil:
		return true, ReasonNoCacheEntry
	case !outputExists:
		return true, ReasonMissingOutput
	case !current.Equal(cached):
		return true, ReasonSourceChanged
	default:
		return false, ReasonFresh
	}
}

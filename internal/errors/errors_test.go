package errors

import (
	stderrors "errors"
	"fmt"
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorFormatting(t *testing.T) {
	plain := New(CategoryConfig, SeverityFatal, "plugin not found")
	assert.Equal(t, "config (fatal): plugin not found", plain.Error())

	wrapped := Wrap(fs.ErrNotExist, CategoryIO, SeverityError, "read manifest")
	assert.Equal(t, "io (error): read manifest: file does not exist", wrapped.Error())
}

func TestUnwrap(t *testing.T) {
	cause := stderrors.New("disk full")
	err := IOError(cause, "write cache")

	require.ErrorIs(t, err, cause)
	assert.Equal(t, cause, err.Unwrap())
	assert.Nil(t, New(CategoryConfig, SeverityFatal, "no cause").Unwrap())
}

func TestCategoryOf(t *testing.T) {
	assert.Equal(t, CategoryValidation, CategoryOf(ValidationError("empty plugin id")))

	// Category survives further wrapping with %w.
	outer := fmt.Errorf("loading workspace: %w", ConfigError("missing plugins dir"))
	assert.Equal(t, CategoryConfig, CategoryOf(outer))

	assert.Equal(t, CategoryInternal, CategoryOf(stderrors.New("plain")))
}

func TestIsCategory(t *testing.T) {
	err := BackendError(stderrors.New("exit status 1"), "cargo build")

	assert.True(t, IsCategory(err, CategoryBackend))
	assert.False(t, IsCategory(err, CategoryIO))
	assert.False(t, IsCategory(stderrors.New("plain"), CategoryBackend))
}

func TestConstructorTaxonomy(t *testing.T) {
	cause := stderrors.New("boom")

	cases := []struct {
		err      *BuildError
		category ErrorCategory
		severity ErrorSeverity
	}{
		{ConfigError("x"), CategoryConfig, SeverityFatal},
		{ValidationError("x"), CategoryValidation, SeverityFatal},
		{IOError(cause, "x"), CategoryIO, SeverityError},
		{CacheError(cause, "x"), CategoryCache, SeverityWarning},
		{BackendError(cause, "x"), CategoryBackend, SeverityError},
		{ProcessWarning(cause, "x"), CategoryProcess, SeverityWarning},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.category, tc.err.Category, string(tc.category))
		assert.Equal(t, tc.severity, tc.err.Severity, string(tc.category))
	}
}

func TestWithContext(t *testing.T) {
	err := CacheError(stderrors.New("bad json"), "decode cache").
		WithContext("path", ".build_cache.json").
		WithContext("plugins", 3)

	assert.Equal(t, ".build_cache.json", err.Context["path"])
	assert.Equal(t, 3, err.Context["plugins"])
}

package transport

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseLastModifiedRFC1123(t *testing.T) {
	got, ok := ParseLastModified("Sun, 06 Nov 1994 08:49:37 GMT", 0)
	assert.True(t, ok)
	assert.Equal(t, time.Date(1994, time.November, 6, 8, 49, 37, 0, time.UTC), got)
}

func TestParseLastModifiedRFC850(t *testing.T) {
	got, ok := ParseLastModified("Sunday, 06-Nov-94 08:49:37 GMT", 0)
	assert.True(t, ok)
	assert.Equal(t, time.Date(1994, time.November, 6, 8, 49, 37, 0, time.UTC), got)
}

func TestParseLastModifiedAsctime(t *testing.T) {
	got, ok := ParseLastModified("Sun Nov  6 08:49:37 1994", 0)
	assert.True(t, ok)
	assert.Equal(t, time.Date(1994, time.November, 6, 8, 49, 37, 0, time.UTC), got)
}

func TestParseLastModifiedTZShift(t *testing.T) {
	got, ok := ParseLastModified("Sun, 06 Nov 1994 08:49:37 GMT", 2*time.Hour)
	assert.True(t, ok)
	assert.Equal(t, time.Date(1994, time.November, 6, 10, 49, 37, 0, time.UTC), got)
}

func TestParseLastModifiedRFC850TwoDigitYearWindow(t *testing.T) {
	got, ok := ParseLastModified("Wednesday, 06-Nov-69 08:49:37 GMT", 0)
	assert.True(t, ok)
	assert.Equal(t, 2069, got.Year())
}

func TestParseLastModifiedInvalid(t *testing.T) {
	_, ok := ParseLastModified("not a date", 0)
	assert.False(t, ok)
}

func TestParseLastModifiedEmpty(t *testing.T) {
	_, ok := ParseLastModified("", 0)
	assert.False(t, ok)
}

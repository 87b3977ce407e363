package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// envReader overlays environment variables on config values. Unset or
// blank variables keep the current value; malformed ones are collected so
// Load can report all of them at once.
type envReader struct {
	lookup func(string) (string, bool)
	errs   []error
}

func newEnvReader() *envReader {
	return &envReader{lookup: os.LookupEnv}
}

func (r *envReader) raw(key string) (string, bool) {
	v, ok := r.lookup(key)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

func (r *envReader) str(key string, dst *string) {
	if v, ok := r.raw(key); ok {
		*dst = v
	}
}

// enum is str for case-insensitive choices; the value is stored lowercased.
func (r *envReader) enum(key string, dst *string) {
	if v, ok := r.raw(key); ok {
		*dst = strings.ToLower(v)
	}
}

func (r *envReader) int(key string, dst *int) {
	v, ok := r.raw(key)
	if !ok {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: %q is not an integer", key, v))
		return
	}
	*dst = n
}

func (r *envReader) duration(key string, dst *time.Duration) {
	v, ok := r.raw(key)
	if !ok {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: %q is not a duration", key, v))
		return
	}
	*dst = d
}

func (r *envReader) bool(key string, dst *bool) {
	v, ok := r.raw(key)
	if !ok {
		return
	}
	b, known := ParseBool(v)
	if !known {
		r.errs = append(r.errs, fmt.Errorf("%s: %q is not a boolean", key, v))
		return
	}
	*dst = b
}

func (r *envReader) err() error { return errors.Join(r.errs...) }

// ParseBool accepts the usual spellings of on/off switches.
func ParseBool(raw string) (value, ok bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "yes", "on":
		return true, true
	case "0", "false", "no", "off":
		return false, true
	}
	return false, false
}

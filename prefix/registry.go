// Package prefix keeps the namespace prefix bookkeeping of the canonical
// graph: which prefix names are taken, which URI each one points at, and how
// prefixes of an incoming Turtle document must be renamed so that history is
// never rebound.
package prefix

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
)

var (
	declPattern    = regexp.MustCompile(`(?m)(?:@prefix|\b(?i:prefix))\s+([A-Za-z][A-Za-z0-9_\-.]*)?:\s*<([^>\s]*)>`)
	numericSuffix  = regexp.MustCompile(`[0-9]+$`)
	emptyBaseAlias = "ns"
)

// Registry maps prefixes to URIs. The first URI seen for a prefix wins and
// a URI is only ever bound to one prefix.
type Registry struct {
	mu       sync.RWMutex
	prefixes map[string]string
	uris     map[string]string
}

func NewRegistry() *Registry {
	return &Registry{prefixes: map[string]string{}, uris: map[string]string{}}
}

// FromContext seeds a registry with an existing graph context. Every name in
// the context stays reserved; if a legacy context binds one URI twice, the
// alphabetically first prefix is the one Register hands back.
func FromContext(context map[string]string) *Registry {
	r := NewRegistry()
	names := make([]string, 0, len(context))
	for name := range context {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		uri := context[name]
		r.prefixes[name] = uri
		if _, ok := r.uris[uri]; !ok {
			r.uris[uri] = name
		}
	}
	return r
}

// Register binds prefix to uri and returns the prefix under which uri is
// now reachable. When the URI is already bound, its existing prefix is
// returned. When prefix is taken by another URI, trailing digits are
// stripped (ex1 -> ex) and the canonical form is retried; if that is taken
// too a numeric suffix is appended until a free name is found.
func (r *Registry) Register(prefix, uri string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.register(prefix, uri)
}

func (r *Registry) register(prefix, uri string) string {
	if existing, ok := r.uris[uri]; ok {
		return existing
	}
	if bound, ok := r.prefixes[prefix]; !ok {
		r.bind(prefix, uri)
		return prefix
	} else if bound == uri {
		return prefix
	}
	if canonical := numericSuffix.ReplaceAllString(prefix, ""); canonical != prefix && canonical != "" {
		return r.register(canonical, uri)
	}
	base := prefix
	if base == "" {
		base = emptyBaseAlias
	}
	for n := 1; ; n++ {
		candidate := base + strconv.Itoa(n)
		if _, taken := r.prefixes[candidate]; !taken {
			r.bind(candidate, uri)
			return candidate
		}
	}
}

func (r *Registry) bind(prefix, uri string) {
	r.prefixes[prefix] = uri
	r.uris[uri] = prefix
}

func (r *Registry) Lookup(prefix string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	uri, ok := r.prefixes[prefix]
	return uri, ok
}

// Context returns a copy of the current prefix map.
func (r *Registry) Context() map[string]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]string, len(r.prefixes))
	for k, v := range r.prefixes {
		out[k] = v
	}
	return out
}

// Resolve extracts @prefix and PREFIX declarations from raw Turtle. Later
// declarations of the same prefix override earlier ones, as in Turtle.
// Text inside comments and string literals is not a declaration.
func Resolve(ttl string) map[string]string {
	out := map[string]string{}
	for _, m := range declPattern.FindAllStringSubmatch(blankOut(ttl), -1) {
		out[m[1]] = m[2]
	}
	return out
}

// Prepare registers every prefix declared in ttl and rewrites the document
// so that renamed prefixes use their canonical names. It returns the
// rewritten text and the renames applied.
func (r *Registry) Prepare(ttl string) (string, map[string]string) {
	declared := Resolve(ttl)
	names := make([]string, 0, len(declared))
	for name := range declared {
		names = append(names, name)
	}
	sort.Strings(names)

	renames := map[string]string{}
	r.mu.Lock()
	for _, name := range names {
		if canonical := r.register(name, declared[name]); canonical != name {
			renames[name] = canonical
		}
	}
	r.mu.Unlock()
	if len(renames) == 0 {
		return ttl, renames
	}
	return Rewrite(ttl, renames), renames
}

// Rewrite replaces prefix tokens (old:) with their new names. Only tokens
// at a name boundary are touched; IRIs, string literals and comments are
// copied through unchanged. All renames apply simultaneously, so swaps are
// safe.
func Rewrite(ttl string, renames map[string]string) string {
	if len(renames) == 0 {
		return ttl
	}
	src := []rune(ttl)
	var b strings.Builder
	b.Grow(len(ttl))
	for i := 0; i < len(src); {
		r := src[i]
		switch {
		case r == '<':
			j := i + 1
			for j < len(src) && src[j] != '>' && src[j] != '\n' {
				j++
			}
			if j < len(src) && src[j] == '>' {
				j++
			}
			b.WriteString(string(src[i:j]))
			i = j
		case r == '"' || r == '\'':
			j := skipString(src, i)
			b.WriteString(string(src[i:j]))
			i = j
		case r == '#':
			j := i
			for j < len(src) && src[j] != '\n' {
				j++
			}
			b.WriteString(string(src[i:j]))
			i = j
		case r == ':' && atBoundary(src, i):
			if to, ok := renames[""]; ok {
				b.WriteString(to)
			}
			b.WriteRune(':')
			i++
		case isNameStart(r) && atBoundary(src, i):
			j := i
			for j < len(src) && isNameChar(src[j]) {
				j++
			}
			name := string(src[i:j])
			if j < len(src) && src[j] == ':' && name != "_" {
				if to, ok := renames[name]; ok {
					name = to
				}
			}
			b.WriteString(name)
			i = j
		default:
			b.WriteRune(r)
			i++
		}
	}
	return b.String()
}

// blankOut replaces comments and string literals with spaces, keeping line
// breaks. IRIs are copied as they are, so a '#' inside one is not a comment.
func blankOut(ttl string) string {
	src := []rune(ttl)
	var b strings.Builder
	b.Grow(len(ttl))
	blank := func(from, to int) {
		for _, r := range src[from:to] {
			if r == '\n' {
				b.WriteRune(r)
			} else {
				b.WriteRune(' ')
			}
		}
	}
	for i := 0; i < len(src); {
		switch r := src[i]; {
		case r == '<':
			j := i + 1
			for j < len(src) && src[j] != '>' && src[j] != '\n' {
				j++
			}
			if j < len(src) && src[j] == '>' {
				j++
			}
			b.WriteString(string(src[i:j]))
			i = j
		case r == '"' || r == '\'':
			j := skipString(src, i)
			blank(i, j)
			i = j
		case r == '#':
			j := i
			for j < len(src) && src[j] != '\n' {
				j++
			}
			blank(i, j)
			i = j
		default:
			b.WriteRune(r)
			i++
		}
	}
	return b.String()
}

func skipString(src []rune, i int) int {
	q := src[i]
	if i+2 < len(src) && src[i+1] == q && src[i+2] == q {
		j := i + 3
		for j < len(src) {
			if src[j] == '\\' {
				j += 2
				continue
			}
			if j+2 < len(src) && src[j] == q && src[j+1] == q && src[j+2] == q {
				j += 3
				for j < len(src) && src[j] == q {
					j++
				}
				return j
			}
			j++
		}
		return len(src)
	}
	j := i + 1
	for j < len(src) {
		switch src[j] {
		case '\\':
			j += 2
			continue
		case q:
			return j + 1
		case '\n':
			return j
		}
		j++
	}
	return len(src)
}

func atBoundary(src []rune, i int) bool {
	if i == 0 {
		return true
	}
	prev := src[i-1]
	return !isNameChar(prev) && prev != ':' && prev != '\\' && prev != '%'
}

func isNameStart(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || r == '_'
}

func isNameChar(r rune) bool {
	return isNameStart(r) || (r >= '0' && r <= '9') || r == '-'
}

package store

import (
	"strings"
)

// MaxPathLength bounds the length of any absolute path accepted by the store.
const MaxPathLength = 3072

// ValidatePath checks that p is a well formed absolute path: it starts with
// '/', contains no empty segments, and has no trailing slash (except for the
// root itself).
func ValidatePath(p string) error {
	if p == "/" {
		return nil
	}
	if len(p) == 0 || p[0] != '/' {
		return ErrInvalidPath
	}
	if len(p) > MaxPathLength {
		return ErrInvalidPath
	}
	if strings.HasSuffix(p, "/") || strings.Contains(p, "//") {
		return ErrInvalidPath
	}
	return nil
}

// Dirname returns the parent path of p. The parent of a top-level entry is
// the root.
func Dirname(p string) string {
	i := strings.LastIndexByte(p, '/')
	if i <= 0 {
		return "/"
	}
	return p[:i]
}

// Basename returns the last segment of p.
func Basename(p string) string {
	i := strings.LastIndexByte(p, '/')
	return p[i+1:]
}

// Ancestors returns the proper ancestors of p between the root (exclusive)
// and p (exclusive), ordered from the root down. Ancestors("/a/b/c") is
// ["/a", "/a/b"].
func Ancestors(p string) []string {
	if p == "/" {
		return nil
	}
	var out []string
	for i := 1; i < len(p); i++ {
		if p[i] == '/' {
			out = append(out, p[:i])
		}
	}
	return out
}

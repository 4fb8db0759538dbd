package core

import (
	"path/filepath"
	"regexp"
	"strings"
)

var nonWord = regexp.MustCompile(`[^a-z0-9]+`)

// BaseName derives the normalized base name used as the join key across
// transcript, embedding and PDF artifacts. The transform is deterministic
// and idempotent: lowercase, non-alphanumeric runs collapsed to a single
// underscore, extension stripped.
//
// Two different uploads can normalize to the same base name; that collision
// is not guarded against anywhere downstream.
func BaseName(filename string) string {
	name := filepath.Base(filename)
	name = strings.TrimSuffix(name, filepath.Ext(name))
	name = strings.ToLower(name)
	name = nonWord.ReplaceAllString(name, "_")
	name = strings.Trim(name, "_")
	if name == "" {
		return "video"
	}
	return name
}

// DisplayTitle turns a base name back into a human-readable title.
func DisplayTitle(base string) string {
	words := strings.Split(strings.ReplaceAll(base, "_", " "), " ")
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

package blobstore

import (
	"regexp"
	"strings"
)

var (
	invalidContainerChars = regexp.MustCompile(`[^a-z0-9-]`)
	repeatedHyphens       = regexp.MustCompile(`-+`)
	controlChars          = regexp.MustCompile(`[\x00-\x1F\x7F]`)
	trailingSeparators    = regexp.MustCompile(`[./\\]+$`)
)

// SafeContainerName maps an arbitrary name onto the container naming rules:
// lowercase letters, digits and single hyphens only, starting and ending with
// a letter or digit, length 3 to 63. The function is idempotent.
func SafeContainerName(name string) string {
	name = strings.ToLower(name)
	name = strings.ReplaceAll(name, "_", "-")
	name = invalidContainerChars.ReplaceAllString(name, "-")
	name = repeatedHyphens.ReplaceAllString(name, "-")
	name = strings.Trim(name, "-")
	if len(name) > 63 {
		// A cut can expose a trailing hyphen; trim again so the mapping
		// stays idempotent.
		name = strings.TrimRight(name[:63], "-")
	}
	if len(name) < 3 {
		name = (name + "aaa")[:3]
	}
	return name
}

// SafeBlobName strips control characters and trailing dots or slashes and
// caps the length at 1024. Underscores, spaces and non-ASCII letters pass
// through untouched. The function is idempotent.
func SafeBlobName(name string) string {
	name = controlChars.ReplaceAllString(name, "")
	name = trailingSeparators.ReplaceAllString(name, "")
	if len(name) > 1024 {
		name = trailingSeparators.ReplaceAllString(name[:1024], "")
	}
	if name == "" {
		name = "unnamed-blob"
	}
	return name
}

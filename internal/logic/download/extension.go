package download

import "strings"

// rawExtensions are the known RAW photographic extensions.
var rawExtensions = []string{
	"cr3", "cr2", "nef", "arw", "dng", "raf", "orf", "pef", "rw2", "srw", "crw",
}

// ResolveExtension extracts the real file extension from a camera-reported
// filename. Handles formats like "capt0000.jpg", "IMG_1234.CR3",
// "CRW_0001.JPG": cameras report RAW+JPEG pairs, purely numeric internal
// names and "capt"-prefixed counters that are not extensions.
func ResolveExtension(originalName string) string {
	name := strings.ToLower(originalName)
	parts := strings.Split(name, ".")

	// Scan right to left; the last extension is the real one.
	for i := len(parts) - 1; i >= 0; i-- {
		part := parts[i]
		if part == "" {
			continue
		}

		// Skip purely numeric parts or camera internal prefixes
		// (capt0000, 0000, etc. are the camera's naming, not extensions).
		if isNumeric(part) || strings.HasPrefix(part, "capt") {
			continue
		}

		if part == "jpg" || part == "jpeg" {
			return "jpg"
		}
		if isRawExtension(part) {
			return part
		}

		// Past the rightmost segment everything left is camera-specific
		// naming; an unknown segment there means there is no real extension.
		if i < len(parts)-1 {
			return "jpg"
		}
	}

	// Default to jpg if we can't determine
	return "jpg"
}

// IsRawFile reports whether a path ends in one of the known RAW suffixes
// (case-insensitive).
func IsRawFile(path string) bool {
	lower := strings.ToLower(path)
	for _, ext := range rawExtensions {
		if strings.HasSuffix(lower, "."+ext) {
			return true
		}
	}
	return false
}

func isRawExtension(s string) bool {
	for _, ext := range rawExtensions {
		if s == ext {
			return true
		}
	}
	return false
}

func isNumeric(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(s) > 0
}

package images

import (
	"fmt"
	"net/url"
	"path"
	"slices"
	"strings"
)

var mimeExt = map[string]string{
	"image/jpeg":    "jpg",
	"image/jpg":     "jpg",
	"image/png":     "png",
	"image/gif":     "gif",
	"image/svg+xml": "svg",
	"image/webp":    "webp",
}

// Extension picks the file extension for a figure reference. The URL path
// or data: media type decides; anything outside allowed falls back to def.
func Extension(ref string, allowed []string, def string) string {
	var ext string
	if strings.HasPrefix(ref, "data:") {
		mediaType, _, _ := strings.Cut(strings.TrimPrefix(ref, "data:"), ",")
		mediaType, _, _ = strings.Cut(mediaType, ";")
		ext = mimeExt[strings.ToLower(strings.TrimSpace(mediaType))]
	} else if u, err := url.Parse(ref); err == nil {
		ext = strings.ToLower(strings.TrimPrefix(path.Ext(u.Path), "."))
	}

	if ext != "" && slices.Contains(allowed, ext) {
		return ext
	}
	return def
}

// Filename is the deterministic name of a question's ordinal-th figure
func Filename(questionID string, ordinal int, ext string) string {
	return fmt.Sprintf("%s_fig%d.%s", questionID, ordinal, ext)
}

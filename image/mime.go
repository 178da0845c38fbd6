package image

import (
	"mime"
	"net/url"
	"path"
	"strings"
)

const defaultMimeType = "image/png"

var extensionMimeTypes = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".webp": "image/webp",
	".gif":  "image/gif",
}

// MimeTypeFromContentType returns the media type of a Content-Type header
// value when it names an image, or "".
func MimeTypeFromContentType(contentType string) string {
	if contentType == "" {
		return ""
	}
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return ""
	}
	if !strings.HasPrefix(mt, "image/") {
		return ""
	}
	return mt
}

// MimeTypeFromURL infers the MIME type from the URL path extension, or "".
func MimeTypeFromURL(rawURL string) string {
	p := rawURL
	if u, err := url.Parse(rawURL); err == nil {
		p = u.Path
	}
	return extensionMimeTypes[strings.ToLower(path.Ext(p))]
}

// ResolveFetchedMimeType prefers the Content-Type header, then the URL
// extension, then image/png.
func ResolveFetchedMimeType(contentType, rawURL string) string {
	if mt := MimeTypeFromContentType(contentType); mt != "" {
		return mt
	}
	if mt := MimeTypeFromURL(rawURL); mt != "" {
		return mt
	}
	return defaultMimeType
}

// MimeTypeFromFormat maps a requested output format to a MIME type.
// Unknown formats map to "image/<format>"; empty maps to image/png.
func MimeTypeFromFormat(format string) string {
	switch f := strings.ToLower(strings.TrimSpace(format)); f {
	case "":
		return defaultMimeType
	case "jpeg", "jpg":
		return "image/jpeg"
	case "png":
		return "image/png"
	default:
		if strings.Contains(f, "/") {
			return f
		}
		return "image/" + f
	}
}

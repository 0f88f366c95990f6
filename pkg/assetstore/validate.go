package assetstore

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"mime"
	"net/http"
	"path/filepath"
	"strings"
)

// InferMimeType returns declared when set, otherwise the type registered
// for the filename extension, otherwise a sniffed type.
func InferMimeType(declared, filename string, data []byte) string {
	if declared = strings.TrimSpace(declared); declared != "" {
		return declared
	}
	if ext := strings.ToLower(filepath.Ext(filename)); ext != "" {
		if t := mime.TypeByExtension(ext); t != "" {
			return t
		}
	}
	if len(data) > 0 {
		return http.DetectContentType(data)
	}
	return DefaultMimeType
}

// IsImage reports whether mimeType names a raster image.
func IsImage(mimeType string) bool {
	mediaType, _, err := mime.ParseMediaType(mimeType)
	if err != nil {
		mediaType = mimeType
	}
	return strings.HasPrefix(strings.ToLower(mediaType), "image/") && !strings.Contains(mediaType, "svg")
}

// ValidatePayload rejects empty payloads and image payloads whose bytes do
// not fully decode as a supported raster format. Truncated pixel data fails
// here even when the header is intact.
func ValidatePayload(data []byte, mimeType string) error {
	if len(data) == 0 {
		return ErrEmptyPayload
	}
	if !IsImage(mimeType) {
		return nil
	}
	if _, _, err := image.Decode(bytes.NewReader(data)); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrUnsupportedFormat, mimeType, err)
	}
	return nil
}

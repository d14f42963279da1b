package prescription

import (
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

// Supported image MIME types.
const (
	MIMEJPEG = "image/jpeg"
	MIMEPNG  = "image/png"
)

// Image is a prescription (or reference) image as sent to the model.
type Image struct {
	Data     []byte
	MIMEType string
	Name     string
}

// NewImage wraps data with its MIME type. When mimeType is empty or generic
// the type is sniffed from the content.
func NewImage(data []byte, mimeType string) Image {
	return Image{Data: data, MIMEType: resolveMIME(data, mimeType)}
}

// LoadImage reads an image from disk.
func LoadImage(path string) (Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Image{}, fmt.Errorf("failed to read image %s: %w", path, err)
	}
	img := NewImage(data, mime.TypeByExtension(strings.ToLower(filepath.Ext(path))))
	img.Name = filepath.Base(path)
	return img, nil
}

// Empty reports whether the image carries no data.
func (i Image) Empty() bool {
	return len(i.Data) == 0
}

// Supported reports whether the image is a JPEG or PNG.
func (i Image) Supported() bool {
	return i.MIMEType == MIMEJPEG || i.MIMEType == MIMEPNG
}

func resolveMIME(data []byte, declared string) string {
	if declared != "" {
		if mt, _, err := mime.ParseMediaType(declared); err == nil && mt != "application/octet-stream" {
			return mt
		}
	}
	if len(data) == 0 {
		return declared
	}
	mt, _, _ := mime.ParseMediaType(http.DetectContentType(data))
	return mt
}

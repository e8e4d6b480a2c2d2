package upload

import "github.com/gabriel-vasile/mimetype"

// Kind is the coarse content class of an uploaded file.
type Kind string

const (
	KindImage Kind = "image"
	KindPDF   Kind = "pdf"
	KindVideo Kind = "video"
)

// accepted maps detected MIME types to their class; anything else is
// rejected.
var accepted = map[string]Kind{
	"image/jpeg":      KindImage,
	"image/png":       KindImage,
	"image/webp":      KindImage,
	"application/pdf": KindPDF,
	"video/mp4":       KindVideo,
	"video/quicktime": KindVideo,
}

// Sniff classifies data by its leading bytes and returns the extension the
// file is stored under. Client supplied names and content types are never
// consulted.
func Sniff(data []byte) (Kind, string, bool) {
	if len(data) == 0 {
		return "", "", false
	}
	m := mimetype.Detect(data)
	kind, ok := accepted[m.String()]
	if !ok {
		return "", "", false
	}
	return kind, m.Extension(), true
}

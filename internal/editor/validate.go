package editor

import (
	"fmt"
	"strings"

	"github.com/docker/go-units"
	"github.com/gabriel-vasile/mimetype"
)

const DefaultMaxFileSize int64 = 50 * units.MB

// checkFile enforces the size ceiling, then sniffs the content. The declared
// type only counts when sniffing is inconclusive. It returns the type to
// serve the preview with.
func checkFile(f File, maxSize int64) (string, error) {
	if f.Size() > maxSize {
		return "", fmt.Errorf("%s is %s, larger than the %s limit",
			f.Name, units.HumanSize(float64(f.Size())), units.HumanSize(float64(maxSize)))
	}
	if f.Size() == 0 {
		return "", fmt.Errorf("%s is empty", f.Name)
	}

	detected := mimetype.Detect(f.Data)
	ct := detected.String()
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = ct[:i]
	}
	if ct == "application/octet-stream" && strings.HasPrefix(f.ContentType, "image/") {
		ct = f.ContentType
	}
	if !strings.HasPrefix(ct, "image/") {
		return "", fmt.Errorf("%s is %s, not an image", f.Name, ct)
	}
	return ct, nil
}

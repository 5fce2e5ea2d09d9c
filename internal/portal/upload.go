package portal

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// Kind tags a drop-zone.
type Kind string

const (
	KindScan   Kind = "scan"
	KindReport Kind = "report"
)

var (
	ErrUnknownKind     = errors.New("unknown upload kind")
	ErrNoFile          = errors.New("no file selected")
	ErrUnsupportedFile = errors.New("unsupported file type")
)

var allowedExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true,
	".bmp": true, ".tiff": true, ".pdf": true, ".dcm": true,
}

func ParseKind(s string) (Kind, error) {
	switch k := Kind(s); k {
	case KindScan, KindReport:
		return k, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
	}
}

// ButtonStyle is the bootstrap colour used for the kind's controls.
func (k Kind) ButtonStyle() string {
	if k == KindScan {
		return "primary"
	}
	return "info"
}

func (k Kind) LoadingText() string { return "Analyzing " + string(k) + "..." }

func (k Kind) FailedText() string {
	return "Error analyzing " + string(k) + ". Please try again."
}

// CheckFileName applies the extension allow-list.
func CheckFileName(name string) error {
	if strings.TrimSpace(name) == "" {
		return ErrNoFile
	}
	if !allowedExtensions[strings.ToLower(filepath.Ext(name))] {
		return fmt.Errorf("%w: %s", ErrUnsupportedFile, filepath.Ext(name))
	}
	return nil
}

// FirstFile picks the first of possibly many dropped files.
func FirstFile[T any](files []T) (T, error) {
	var zero T
	if len(files) == 0 {
		return zero, ErrNoFile
	}
	return files[0], nil
}

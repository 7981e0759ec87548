package uploads

import (
	"fmt"
	"strings"

	"spinevision-backend/internal/shared/util"
)

var allowedExtensions = map[string]bool{
	"png":   true,
	"jpg":   true,
	"jpeg":  true,
	"dcm":   true,
	"dicom": true,
}

var allowedContentTypes = map[string]bool{
	"image/png":                true,
	"image/jpeg":               true,
	"image/jpg":                true,
	"application/dicom":        true,
	"application/octet-stream": true,
}

func isDICOM(ext string) bool {
	return ext == "dcm" || ext == "dicom"
}

// ValidateFile checks a submitted file against the acceptance rules
// before any bytes are persisted. DICOM files are exempt from the
// content-type check because browsers report them inconsistently.
func ValidateFile(fileName, contentType string, sizeBytes, maxBytes int64) error {
	if strings.TrimSpace(fileName) == "" {
		return fmt.Errorf("%w: file name is required", ErrValidation)
	}
	ext := util.FileExtension(fileName)
	if ext == "" {
		return fmt.Errorf("%w: file has no extension", ErrValidation)
	}
	if !allowedExtensions[ext] {
		return fmt.Errorf("%w: unsupported file type .%s", ErrValidation, ext)
	}
	if !isDICOM(ext) && contentType != "" && !allowedContentTypes[strings.ToLower(contentType)] {
		return fmt.Errorf("%w: unsupported content type %s", ErrValidation, contentType)
	}
	if sizeBytes <= 0 {
		return fmt.Errorf("%w: file is empty", ErrValidation)
	}
	if maxBytes > 0 && sizeBytes > maxBytes {
		return fmt.Errorf("%w: file exceeds %d byte limit", ErrValidation, maxBytes)
	}
	return nil
}

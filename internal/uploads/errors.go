package uploads

import "errors"

var (
	ErrValidation = errors.New("validation failed")
	ErrStorage    = errors.New("storage failure")
	ErrAnalysis   = errors.New("analysis failed")
	ErrRender     = errors.New("report rendering failed")
	ErrNotFound   = errors.New("not found")
)

const (
	ErrorCodeValidation = "validation_error"
	ErrorCodeStorage    = "storage_error"
	ErrorCodeAnalysis   = "analysis_error"
	ErrorCodeRender     = "render_error"
	ErrorCodeNotFound   = "not_found"
)

package documents

import "esign-backend/internal/shared/apperr"

var (
	ErrNotFound       = apperr.New(apperr.ErrNotFound, "not_found", "document not found")
	ErrForbidden      = apperr.New(apperr.ErrForbidden, "forbidden", "only the document owner may do this")
	ErrInFlight       = apperr.New(apperr.ErrConflict, "document_in_flight", "document has signatures still pending")
	ErrCompleted      = apperr.New(apperr.ErrConflict, "invalid_state", "document is already completed")
	ErrActiveRequest  = apperr.New(apperr.ErrConflict, "request_active", "document already has an active signature request")
	ErrLayoutChanged  = apperr.New(apperr.ErrConflict, "layout_changed", "document layout changed while the request was being created")
	ErrDuplicateID    = apperr.New(apperr.ErrValidation, "validation_error", "region id is already used on this document")
	ErrInvalidUpload  = apperr.New(apperr.ErrValidation, "validation_error", "only PDF files are accepted")
	ErrUploadTooLarge = apperr.New(apperr.ErrValidation, "file_too_large", "file exceeds the upload limit")
	ErrNoFinal        = apperr.New(apperr.ErrNotFound, "not_found", "signed document is not available yet")
)

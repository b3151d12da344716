package signing

import "esign-backend/internal/shared/apperr"

var (
	ErrNotFound             = apperr.New(apperr.ErrNotFound, "not_found", "signature request not found")
	ErrAlreadySigned        = apperr.New(apperr.ErrConflict, "already_signed", "this signature has already been submitted")
	ErrRequestDeleted       = apperr.New(apperr.ErrGone, "request_deleted", "this signature request has been deleted")
	ErrRequestHasSignatures = apperr.New(apperr.ErrConflict, "request_has_signatures", "cannot delete a request after someone has signed")
)

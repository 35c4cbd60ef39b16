package handlers

import (
	"errors"

	"github.com/gin-gonic/gin"

	"tenantdesk.io/console/internal/account"
	"tenantdesk.io/console/internal/asset"
	apperrors "tenantdesk.io/console/internal/pkg/errors"
	"tenantdesk.io/console/internal/settings"
)

// fail attaches the API form of err to the request.
func fail(c *gin.Context, err error) {
	_ = c.Error(toAppError(err))
}

// toAppError maps domain errors onto stable API codes. Order matters: a
// commit failure wraps the store error that caused it.
func toAppError(err error) *apperrors.AppError {
	if appErr, ok := apperrors.IsAppError(err); ok {
		return appErr
	}

	var verr *settings.ValidationError
	if errors.As(err, &verr) {
		fields := make([]apperrors.FieldError, 0, len(verr.Violations))
		for _, v := range verr.Violations {
			name := v.Field
			if v.Panel != "" {
				name = v.Panel + "." + v.Field
			}
			fields = append(fields, apperrors.FieldError{Field: name, Code: v.Rule, Message: v.Message})
		}
		return wrap(apperrors.ErrValidation(fields), err)
	}

	switch {
	case errors.Is(err, settings.ErrSaveInProgress):
		return wrap(apperrors.ErrSaveInProgress(), err)
	case errors.Is(err, settings.ErrSessionNotFound):
		return wrap(apperrors.NotFound(apperrors.CodeSessionNotFound, "settings session not found"), err)
	case errors.Is(err, settings.ErrPanelNotFound):
		return wrap(apperrors.NotFound(apperrors.CodePanelNotFound, err.Error()), err)
	case errors.Is(err, settings.ErrClosed):
		return wrap(apperrors.Gone(apperrors.CodeSessionClosed, "edit surface is closed"), err)
	case errors.Is(err, settings.ErrUnknownField):
		return wrap(apperrors.BadRequest(apperrors.CodeInvalidRequest, err.Error()), err)
	case errors.Is(err, account.ErrNotEditable):
		return wrap(apperrors.Forbidden(apperrors.CodeUserNotEditable, "you may not edit this user"), err)
	case errors.Is(err, account.ErrRoleNotAssignable):
		return wrap(apperrors.Forbidden(apperrors.CodeRoleNotAssignable, "you may not assign this role"), err)
	case errors.Is(err, asset.ErrEmpty):
		return wrap(apperrors.BadRequest(apperrors.CodeInvalidRequest, "file is empty"), err)
	case errors.Is(err, asset.ErrTooLarge):
		return wrap(apperrors.TooLarge(apperrors.CodeAssetTooLarge, "file exceeds upload limit"), err)
	case errors.Is(err, asset.ErrUnsupportedType):
		return wrap(apperrors.UnsupportedMedia(apperrors.CodeAssetUnsupported, "unsupported image type"), err)
	case errors.Is(err, asset.ErrNoAsset):
		return wrap(apperrors.NotFound(apperrors.CodeAssetNotFound, "no profile picture"), err)
	case errors.Is(err, apperrors.ErrConflict):
		return wrap(apperrors.Conflict(apperrors.CodeUsernameTaken, "username is already taken"), err)
	case errors.Is(err, apperrors.ErrNotFound):
		return wrap(apperrors.NotFound(apperrors.CodeUserNotFound, "user not found"), err)
	}

	var aerr *settings.AssetError
	if errors.As(err, &aerr) {
		code := apperrors.CodeAssetUploadFailed
		if aerr.Op == "remove" {
			code = apperrors.CodeAssetRemoveFailed
		}
		return wrap(apperrors.Internal(code, "profile picture operation failed"), err)
	}
	if commits := settings.CommitErrors(err); len(commits) > 0 {
		panels := make([]string, 0, len(commits))
		for _, ce := range commits {
			panels = append(panels, ce.Panel)
		}
		return wrap(apperrors.Internal(apperrors.CodeCommitFailed, "saving failed").
			WithParams(map[string]interface{}{"panels": panels}), err)
	}
	return wrap(apperrors.Internal(apperrors.CodeInternal, "An internal error occurred"), err)
}

func wrap(appErr *apperrors.AppError, cause error) *apperrors.AppError {
	return appErr.WithCause(cause)
}

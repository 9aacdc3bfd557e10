package service

import (
	"errors"

	appErrors "github.com/regflow-io/regflow-api/pkg/errors"
	"github.com/regflow-io/regflow-api/pkg/erp"
)

// classifyERPError maps transport failures to the retryable ERP_UNAVAILABLE
// error and payload rejections to a validation error carrying the ERP's
// message.
func classifyERPError(err error) error {
	var unavailable *erp.UnavailableError
	if errors.As(err, &unavailable) {
		return appErrors.Wrap(err, appErrors.ErrERPUnavailable.Code, appErrors.ErrERPUnavailable.Status, appErrors.ErrERPUnavailable.Message)
	}
	var push *erp.PushError
	if errors.As(err, &push) {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, push.Payload)
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "external record store call failed")
}

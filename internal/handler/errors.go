package handler

import (
	"errors"

	"github.com/hitoshi/signbook/internal/model"
)

// asAPIError はerrのチェーンからAPIErrorを取り出す。
// APIErrorでない場合はStorageErrorとして扱う。
func asAPIError(err error) *model.APIError {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	return model.NewStorageError(err)
}

package handler

import (
	"net/http"

	"storefront/internal/middleware"
	"storefront/internal/usecase"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
)

type ErrorResponse struct {
	Error string `json:"error"`
}

type SuccessResponse struct {
	Message string `json:"message"`
}

// usecaseのエラーをHTTPに変換
func writeError(c echo.Context, err error) error {
	if err == nil {
		return nil
	}
	status, msg := usecase.StatusOf(err)
	return c.JSON(status, ErrorResponse{Error: msg})
}

func getUserIDFromContext(c echo.Context) (int64, bool) {
	id, ok := c.Get(middleware.CtxUserIDKey).(int64)
	if !ok || id <= 0 {
		return 0, false
	}
	return id, true
}

// echoのValidatorにgo-playground/validatorを使う
type RequestValidator struct {
	v *validator.Validate
}

func NewRequestValidator() *RequestValidator {
	return &RequestValidator{v: validator.New(validator.WithRequiredStructEnabled())}
}

func (rv *RequestValidator) Validate(i interface{}) error {
	return rv.v.Struct(i)
}

// Bind + Validate。失敗したら400を書いてfalse
func bindAndValidate(c echo.Context, req interface{}) (bool, error) {
	if err := c.Bind(req); err != nil {
		return false, c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body"})
	}
	if err := c.Validate(req); err != nil {
		return false, c.JSON(http.StatusBadRequest, ErrorResponse{Error: validationMessage(err)})
	}
	return true, nil
}

// 最初に引っかかった項目だけ返す
func validationMessage(err error) string {
	if verrs, ok := err.(validator.ValidationErrors); ok && len(verrs) > 0 {
		return "invalid " + verrs[0].Field()
	}
	return "invalid body"
}

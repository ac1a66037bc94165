package util

import (
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/labstack/echo/v4"
)

// ShouldBindJSON binds the body data of the request to the given object. An error is
// returned if the body data is not valid JSON or the validation of the unmarshalled
// data failed.
func ShouldBindJSON(c echo.Context, obj interface{}) error {
	req := c.Request()

	if req.ContentLength == 0 {
		return fmt.Errorf("request doesn't contain any content")
	}

	if !strings.HasPrefix(req.Header.Get(echo.HeaderContentType), echo.MIMEApplicationJSON) {
		return fmt.Errorf("request doesn't contain JSON content")
	}

	body, err := io.ReadAll(req.Body)
	if err != nil {
		return err
	}

	if err := json.Unmarshal(body, obj); err != nil {
		return err
	}

	return c.Validate(obj)
}

// PathWildcardParam returns the unescaped wildcard path parameter with a leading slash.
func PathWildcardParam(c echo.Context) string {
	return "/" + PathParam(c, "*")
}

func PathParam(c echo.Context, name string) string {
	param, err := url.PathUnescape(c.Param(name))
	if err != nil {
		return ""
	}

	return param
}

func DefaultQuery(c echo.Context, name, defValue string) string {
	param := c.QueryParam(name)

	if len(param) == 0 {
		return defValue
	}

	return param
}

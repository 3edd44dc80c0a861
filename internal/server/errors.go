package server

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/emrgen/docflow/internal/errs"
	"github.com/emrgen/docflow/internal/store"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// httpStatus maps a failure category to its response status.
func httpStatus(kind errs.Kind) int {
	switch kind {
	case errs.KindNone:
		return http.StatusOK
	case errs.KindValidation:
		return http.StatusBadRequest
	case errs.KindNotFound:
		return http.StatusNotFound
	case errs.KindForbidden:
		return http.StatusForbidden
	case errs.KindConflict, errs.KindDuplicateApproval:
		return http.StatusConflict
	case errs.KindExpired:
		return http.StatusGone
	default:
		return http.StatusInternalServerError
	}
}

func abort(c *gin.Context, err error) {
	kind := errs.KindOf(err)
	status := httpStatus(kind)

	body := gin.H{
		"success": false,
		"error":   kind.String(),
		"message": err.Error(),
	}

	var ve *errs.ValidationError
	if errors.As(err, &ve) {
		body["fields"] = ve.Fields
	}

	if status >= http.StatusInternalServerError {
		logrus.Errorf("%s %s: %v", c.Request.Method, c.FullPath(), err)
		if kind == errs.KindInternal {
			body["message"] = "internal server error"
		}
	}

	c.AbortWithStatusJSON(status, body)
}

// expectedRevision reads the If-Match header. A missing header or "*"
// accepts any stored revision.
func expectedRevision(c *gin.Context) (store.Revision, error) {
	h := strings.TrimSpace(c.GetHeader("If-Match"))
	if h == "" || h == "*" {
		return store.AnyRevision, nil
	}

	h = strings.Trim(strings.TrimPrefix(h, "W/"), `"`)
	n, err := strconv.ParseInt(h, 10, 64)
	if err != nil || n < 1 {
		return 0, errs.Invalid("If-Match", "revision must be a positive integer, got %q", h)
	}

	return store.Revision(n), nil
}

func setRevision(c *gin.Context, rev store.Revision) {
	c.Header("ETag", `"`+strconv.FormatInt(int64(rev), 10)+`"`)
}

func intParam(c *gin.Context, name string) (int, error) {
	n, err := strconv.Atoi(c.Param(name))
	if err != nil {
		return 0, errs.Invalid(name, "must be a number, got %q", c.Param(name))
	}
	return n, nil
}

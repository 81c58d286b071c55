package handler

import (
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/fir-api/internal/middleware"
	"github.com/noah-isme/fir-api/internal/models"
	appErrors "github.com/noah-isme/fir-api/pkg/errors"
	"github.com/noah-isme/fir-api/pkg/response"
)

// principalOf returns the authenticated principal, writing 401 when absent.
func principalOf(c *gin.Context) (models.Principal, bool) {
	principal := middleware.PrincipalFrom(c)
	if !principal.Authenticated() {
		response.Error(c, appErrors.ErrUnauthorized)
		return models.Principal{}, false
	}
	return principal, true
}

// bindJSON decodes the body into dst, writing a validation error on failure.
func bindJSON(c *gin.Context, dst interface{}, message string) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		response.Error(c, appErrors.Validation(err, message))
		return false
	}
	return true
}

func queryInt(c *gin.Context, key string) int {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return 0
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	return v
}

// pageParams accepts both page_size and pageSize.
func pageParams(c *gin.Context) (int, int) {
	size := queryInt(c, "page_size")
	if size == 0 {
		size = queryInt(c, "pageSize")
	}
	return queryInt(c, "page"), size
}

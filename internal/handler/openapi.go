package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/milk-back/backend/docs"
)

// OpenAPIDoc serves the OpenAPI document registered by the docs package.
func OpenAPIDoc(c *gin.Context) {
	c.Data(http.StatusOK, "application/json; charset=utf-8", []byte(docs.SwaggerInfo.ReadDoc()))
}

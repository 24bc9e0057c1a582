package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Module registers a feature's routes on the group the registry mounts it under.
type Module interface {
	Register(rg *gin.RouterGroup)
}

// ModuleFunc lets a plain function act as a Module.
type ModuleFunc func(rg *gin.RouterGroup)

func (f ModuleFunc) Register(rg *gin.RouterGroup) { f(rg) }

// healthModule answers liveness probes without touching redis or the store.
var healthModule = ModuleFunc(func(rg *gin.RouterGroup) {
	rg.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusNoContent) })
})

package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/workshop-scheduler/internal/middleware"
	"github.com/noah-isme/workshop-scheduler/internal/models"
)

// RegisterRoutes mounts the API on api. runs may be nil when asynchronous
// runs are disabled.
func RegisterRoutes(api *gin.RouterGroup, auth middleware.TokenValidator, solve *SolveHandler, runs *RunHandler) {
	if runs != nil {
		api.GET("/exports/:token", runs.Download)
	}

	secured := api.Group("")
	secured.Use(middleware.JWT(auth))

	write := middleware.RequireRoles(models.RolePlanner)
	read := middleware.RequireRoles(models.RolePlanner, models.RoleViewer)

	secured.POST("/solve", write, solve.Solve)
	if runs == nil {
		return
	}
	secured.POST("/runs", write, runs.Create)
	secured.GET("/runs", read, runs.List)
	secured.GET("/runs/:id", read, runs.Get)
	secured.GET("/runs/:id/assignments", read, runs.Assignments)
	secured.POST("/runs/:id/cancel", write, runs.Cancel)
	secured.POST("/runs/:id/exports", read, runs.Export)
}

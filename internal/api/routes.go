package api

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

func SetupRoutes(router *gin.Engine, handler *Handler) {
	router.Use(cors.Default())

	api := router.Group("/api")
	{
		api.GET("/listings", handler.GetListings)
		api.GET("/valuations", handler.GetValuations)
		api.GET("/recent-sales", handler.GetRecentSales)
		api.POST("/reconcile", handler.TriggerReconcile)
	}
}

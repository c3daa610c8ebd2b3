package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"trip-agent/pkg/database"
)

// ToolDataRoutes serves the tool execution audit log under /api/tool-data.
func ToolDataRoutes(db database.Database) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	api := router.Group("/api/tool-data")
	{
		api.GET("/categories", listCategories(db))
		api.GET("/categories/:category", getCategory(db))
		api.GET("/stats", toolStats(db))
		api.POST("/query", queryToolData(db))
	}
	return router
}

func listCategories(db database.Database) gin.HandlerFunc {
	return func(c *gin.Context) {
		categories, err := db.ListCategories(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"categories": categories, "total": len(categories)})
	}
}

// getCategory returns the records of one category, optionally narrowed by
// ?tool_name, ?session_id, ?context and ?limit.
func getCategory(db database.Database) gin.HandlerFunc {
	return func(c *gin.Context) {
		var q database.ToolExecutionQuery
		if err := c.ShouldBindQuery(&q); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		q.Category = c.Param("category")
		records, err := db.QueryToolExecutions(c.Request.Context(), q)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"category": q.Category, "records": records, "total": len(records)})
	}
}

func toolStats(db database.Database) gin.HandlerFunc {
	return func(c *gin.Context) {
		stats, err := db.ToolStats(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, stats)
	}
}

func queryToolData(db database.Database) gin.HandlerFunc {
	return func(c *gin.Context) {
		var q database.ToolExecutionQuery
		if err := c.ShouldBindJSON(&q); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		records, err := db.QueryToolExecutions(c.Request.Context(), q)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"records": records, "total": len(records)})
	}
}

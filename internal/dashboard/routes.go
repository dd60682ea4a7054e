package dashboard

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/zulandar/switchboard/internal/flows"
	"github.com/zulandar/switchboard/internal/sessions"
)

// registerRoutes sets up all dashboard routes on the Gin router.
func registerRoutes(router *gin.Engine, db *gorm.DB) {
	router.GET("/healthz", handleHealth(db))
	router.GET("/api/stats", handleStats(db))
	router.GET("/api/flows", handleFlows(db))
}

func handleHealth(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		sqlDB, err := db.DB()
		if err == nil {
			err = sqlDB.Ping()
		}
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "degraded",
				"error":  err.Error(),
			})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	}
}

func handleStats(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		store, err := sessions.NewStore(db)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		stats, err := store.Stats()
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, stats)
	}
}

// flowRow is the public rendering of a flow: the API key is reduced to its
// last four characters.
type flowRow struct {
	Name        string `json:"name"`
	URL         string `json:"url"`
	FlowID      string `json:"flow_id"`
	APIKey      string `json:"api_key"`
	Description string `json:"description,omitempty"`
	IsDefault   bool   `json:"is_default"`
}

func handleFlows(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		registry, err := flows.NewRegistry(db)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		list, err := registry.List()
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		rows := make([]flowRow, len(list))
		for i, f := range list {
			rows[i] = flowRow{
				Name:        f.Name,
				URL:         f.URL,
				FlowID:      f.FlowID,
				APIKey:      maskKey(f.APIKey),
				Description: f.Description,
				IsDefault:   f.IsDefault,
			}
		}
		c.JSON(http.StatusOK, gin.H{"flows": rows})
	}
}

func maskKey(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 4 {
		return "****"
	}
	return "****" + s[len(s)-4:]
}

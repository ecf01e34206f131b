package main

import (
	"log"
	"net/http"
	"os"

	"github.com/gin-gonic/gin"
)

// Serves the dashboard as plain static files. The API runs separately on
// its own port, so every response carries permissive CORS headers.
func main() {
	dir := getEnv("FRONTEND_DIR", "./frontend")
	port := getEnv("FRONTEND_PORT", "3000")

	server := gin.Default()
	server.Use(corsHeaders)
	server.NoRoute(gin.WrapH(http.FileServer(http.Dir(dir))))

	log.Printf("Frontend server starting on :%s (serving %s)", port, dir)
	if err := server.Run(":" + port); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}

func corsHeaders(c *gin.Context) {
	c.Header("Access-Control-Allow-Origin", "*")
	c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	c.Header("Access-Control-Allow-Headers", "Content-Type")
	if c.Request.Method == http.MethodOptions {
		c.AbortWithStatus(http.StatusNoContent)
		return
	}
	c.Next()
}

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

package middleware

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
)

// Logger is a middleware that logs request details
func Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		raw := c.Request.URL.RawQuery

		c.Next()

		if raw != "" {
			path = path + "?" + raw
		}

		latency := time.Since(start)
		clientIP := c.ClientIP()
		status := c.Writer.Status()

		logMsg := fmt.Sprintf("[%s] | %3d | %13v | %15s | %-7s | %s",
			time.Now().Format("2006/01/02 - 15:04:05"),
			status,
			latency,
			clientIP,
			c.Request.Method,
			path,
		)

		switch {
		case status >= 500:
			fmt.Println(logMsg, "| SERVER ERROR")
		case status >= 400:
			fmt.Println(logMsg, "| CLIENT ERROR")
		default:
			fmt.Println(logMsg)
		}
	}
}

// ErrorLogger logs errors that occur during request processing
func ErrorLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) > 0 {
			for _, e := range c.Errors {
				fmt.Printf("[ERROR] %s | %s | %s | %s\n",
					time.Now().Format("2006/01/02 - 15:04:05"),
					c.Request.Method,
					c.Request.URL.Path,
					e.Error(),
				)
			}
		}
	}
}

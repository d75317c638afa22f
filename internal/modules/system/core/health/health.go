package health

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mx-space/confetti-bridge/internal/pkg/cron"
	"github.com/mx-space/confetti-bridge/internal/pkg/response"
)

// Pinger checks a backing service.
type Pinger func(ctx context.Context) error

// Gauges reports live counters included in the health payload.
type Gauges func() map[string]int

func RegisterRoutes(rg *gin.RouterGroup, ping Pinger, gauges Gauges, sched *cron.Scheduler, authMW gin.HandlerFunc, startedAt time.Time) {
	rg.GET("/health", func(c *gin.Context) {
		redisOK := true
		if ping != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			redisOK = ping(ctx) == nil
			cancel()
		}

		status := "ok"
		code := http.StatusOK
		if !redisOK {
			status = "degraded"
			code = http.StatusServiceUnavailable
		}

		body := gin.H{
			"status": status,
			"redis":  redisOK,
			"uptime": time.Since(startedAt).Truncate(time.Second).String(),
		}
		if gauges != nil {
			for k, v := range gauges() {
				body[k] = v
			}
		}
		c.JSON(code, body)
	})

	cronGroup := rg.Group("/health/cron", authMW)
	{
		cronGroup.GET("", func(c *gin.Context) {
			items := sched.List()
			byName := make(map[string]cron.ListItem, len(items))
			for _, item := range items {
				byName[item.Name] = item
			}
			response.OK(c, byName)
		})

		cronGroup.GET("/:name", func(c *gin.Context) {
			item, err := sched.Get(c.Param("name"))
			if err != nil {
				response.NotFoundMsg(c, err.Error())
				return
			}
			response.OK(c, item)
		})

		cronGroup.POST("/run/:name", func(c *gin.Context) {
			err := sched.RunNow(c.Request.Context(), c.Param("name"))
			switch {
			case errors.Is(err, cron.ErrJobNotFound):
				response.NotFoundMsg(c, err.Error())
			case err != nil:
				response.InternalError(c, err)
			default:
				item, _ := sched.Get(c.Param("name"))
				response.OK(c, item)
			}
		})
	}
}

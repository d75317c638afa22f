package gateway

import (
	"github.com/gin-gonic/gin"
	"github.com/mx-space/confetti-bridge/internal/pkg/response"
)

// RegisterRoutes mounts the widget socket and mount inspection endpoints.
func RegisterRoutes(rg *gin.RouterGroup, hub *Hub) {
	handler := gin.WrapH(hub.Handler())
	rg.Any("/socket.io", handler)
	rg.Any("/socket.io/*any", handler)

	rg.GET("/gateway/stats", func(c *gin.Context) {
		response.OK(c, gin.H{
			"instance_id":     hub.InstanceID(),
			"widgets":         hub.ClientCount(""),
			"controls":        hub.ControlCount(),
			"remote_controls": hub.RemoteControlCount(),
		})
	})

	// Mount state of one control as seen from this instance.
	rg.GET("/gateway/controls/:id", func(c *gin.Context) {
		id := c.Param("id")
		response.OK(c, gin.H{
			"control_id":    id,
			"mounted":       hub.Mounted(id),
			"local_widgets": hub.ClientCount(id),
		})
	})
}

package dashboard

import (
	"encoding/json"
	"fmt"
	"io"
	"reflect"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/zulandar/meetbot/internal/bot"
)

const (
	defaultSSEInterval = 3 * time.Second
	sseHeartbeat       = 15 * time.Second
)

// handleSSE streams the live session list, sending a "sessions" event
// whenever it changes.
func handleSSE(live LiveSessions, interval time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Content-Type", "text/event-stream")
		c.Header("Cache-Control", "no-cache")
		c.Header("Connection", "keep-alive")
		c.Header("X-Accel-Buffering", "no")

		writeSSE(c.Writer, "connected", map[string]string{"type": "connected"})
		c.Writer.Flush()

		if live == nil {
			return
		}

		var last []bot.Snapshot
		send := func() {
			current := live.Active()
			if last != nil && reflect.DeepEqual(current, last) {
				return
			}
			last = current
			rows := make([]SessionRow, len(current))
			for i, s := range current {
				rows[i] = rowFromSnapshot(s)
			}
			writeSSE(c.Writer, "sessions", rows)
			c.Writer.Flush()
		}
		send()

		ctx := c.Request.Context()
		ticker := time.NewTicker(interval)
		heartbeat := time.NewTicker(sseHeartbeat)
		defer ticker.Stop()
		defer heartbeat.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-heartbeat.C:
				writeSSE(c.Writer, "heartbeat", map[string]string{
					"timestamp": time.Now().UTC().Format(time.RFC3339),
				})
				c.Writer.Flush()
			case <-ticker.C:
				send()
			}
		}
	}
}

// writeSSE writes a single SSE event to the writer.
func writeSSE(w io.Writer, event string, data any) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, string(jsonData))
}

package web

import (
	"bufio"
	"encoding/json"
	"time"

	"github.com/gofiber/fiber/v3"

	"github.com/fableworks/fableflow/pkg/events"
)

// keepaliveInterval paces SSE comment frames. A failed keepalive write is
// how a disconnected client is detected.
const keepaliveInterval = 15 * time.Second

// streamTerminators are the event types after which a run segment produces
// no further events, so the stream can close.
var streamTerminators = map[events.EventType]bool{
	events.WorkflowCompletedEvent: true,
	events.WorkflowCancelledEvent: true,
	events.WorkflowErrorEvent:     true,
	events.StageFailedEvent:       true,
	events.WorkflowPausedEvent:    true,
}

// StreamEvents streams workflow progress as server-sent events. The stream
// covers one run segment and closes once the workflow pauses or terminates.
func (h *Handlers) StreamEvents(c fiber.Ctx) error {
	workflowID := c.Params("id")
	if workflowID == "" {
		return badRequest(c, "Workflow ID is required")
	}

	if _, err := h.orchestrator.GetProgress(c.Context(), workflowID); err != nil {
		return handleOrchestratorError(c, err)
	}

	eventCh, unsubscribe := h.broker.Subscribe(workflowID)

	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")

	logger := h.logger.With("workflow_id", workflowID)

	// The writer runs after this handler returns; it must not touch the
	// request context, which is recycled by then.
	return c.SendStreamWriter(func(w *bufio.Writer) {
		defer unsubscribe()

		keepalive := time.NewTicker(keepaliveInterval)
		defer keepalive.Stop()

		for {
			select {
			case event, ok := <-eventCh:
				if !ok {
					return
				}

				if err := writeSSEFrame(w, event); err != nil {
					logger.Debug("Event stream closed", "error", err)

					return
				}

				if streamTerminators[event.GetType()] {
					return
				}
			case <-keepalive.C:
				if _, err := w.WriteString(": keepalive\n\n"); err != nil {
					return
				}

				if err := w.Flush(); err != nil {
					return
				}
			}
		}
	})
}

func writeSSEFrame(w *bufio.Writer, event events.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	if _, err := w.WriteString("data: " + string(data) + "\n\n"); err != nil {
		return err
	}

	return w.Flush()
}

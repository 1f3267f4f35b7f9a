package metrics

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandler_ExposesDetectorSeries(t *testing.T) {
	Init()
	Init()

	DetectionsTotal.WithLabelValues("question").Inc()
	QueueDepth.Set(4)

	app := fiber.New()
	app.Get("/metrics", MetricsHandler())

	resp, err := app.Test(httptest.NewRequest("GET", "/metrics", nil))
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Contains(t, string(body), `qdetect_detections_total{outcome="question"}`)
	assert.Contains(t, string(body), "qdetect_scheduler_queue_depth 4")
}

package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/dEnchanter/OddsIQ/backend/internal/apperr"
	"github.com/dEnchanter/OddsIQ/backend/internal/domain"
)

// runPipeline is POST /pipeline/run?run_type=cycle|ingest|picks|clv&force=.
// It acquires the scheduler's single-holder semaphore before running, so
// an HTTP-triggered run and the cron-driven scheduler loop never overlap,
// matching pipeline.py's note that external triggers share the same lock.
func (api *API) runPipeline() gin.HandlerFunc {
	return func(c *gin.Context) {
		runType := c.Query("run_type")
		if runType == "" {
			runType = string(domain.RunCycle)
		}
		force := queryBool(c, "force", false)

		if !api.sched.TryAcquire() {
			c.JSON(http.StatusAccepted, gin.H{"status": "skipped_busy"})
			return
		}
		defer api.sched.Release()

		result, err := api.pipeline.RunAndLog(c.Request.Context(), domain.RunType(runType), force)
		if err != nil {
			c.JSON(apperr.StatusOf(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

// pipelineRuns is GET /pipeline/runs?run_type=&limit=, matching
// pipeline.py's list_runs.
func (api *API) pipelineRuns() gin.HandlerFunc {
	return func(c *gin.Context) {
		runType := c.Query("run_type")
		limit := queryInt(c, "limit", 50)
		runs, err := api.pipeline.ListRuns(c.Request.Context(), runType, limit)
		if err != nil {
			c.JSON(apperr.StatusOf(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"runs": runs})
	}
}

// pipelineHealth is GET /pipeline/health, matching pipeline.py's
// latest_run_statuses.
func (api *API) pipelineHealth() gin.HandlerFunc {
	return func(c *gin.Context) {
		statuses, err := api.pipeline.LatestRunStatuses(c.Request.Context())
		if err != nil {
			c.JSON(apperr.StatusOf(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"latest": statuses})
	}
}

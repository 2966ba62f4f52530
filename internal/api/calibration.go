package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/dEnchanter/OddsIQ/backend/internal/apperr"
)

// proposeCalibration is POST /calibration/propose?target_n=, matching
// calibration.py's propose_calibration.
func (api *API) proposeCalibration() gin.HandlerFunc {
	return func(c *gin.Context) {
		targetN := queryInt(c, "target_n", 200)
		proposal, err := api.eval.Propose(c.Request.Context(), targetN)
		if err != nil {
			c.JSON(apperr.StatusOf(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, proposal)
	}
}

// applyCalibration is POST /calibration/apply/:run_id, matching
// calibration.py's apply_calibration.
func (api *API) applyCalibration() gin.HandlerFunc {
	return func(c *gin.Context) {
		runID, err := strconv.ParseInt(c.Param("run_id"), 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "run_id must be an integer"})
			return
		}
		run, err := api.eval.Apply(c.Request.Context(), runID)
		if err != nil {
			c.JSON(apperr.StatusOf(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, run)
	}
}

// calibrationRuns is GET /calibration/runs?status=&limit=, matching
// calibration.py's list_calibration_runs.
func (api *API) calibrationRuns() gin.HandlerFunc {
	return func(c *gin.Context) {
		status := c.Query("status")
		limit := queryInt(c, "limit", 50)
		runs, err := api.calibs.Latest(c.Request.Context(), status, limit)
		if err != nil {
			c.JSON(apperr.StatusOf(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"runs": runs})
	}
}

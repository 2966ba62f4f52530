package api

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// requestID stamps every response with an X-Request-Id header, generating
// one when the caller didn't supply it. Exercises google/uuid the way the
// rest of the pack's services tag request-scoped logs.
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-Id")
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Writer.Header().Set("X-Request-Id", id)
		c.Next()
	}
}

// SetupRoutes registers every endpoint spec.md §6 describes, grouped by
// resource family, matching original_source/backend/app/api/*.py's router
// split and the teacher's router.Group layout.
func SetupRoutes(router *gin.Engine, api *API) {
	router.Use(requestID())
	router.Use(cors.Default())

	router.GET("/health", api.healthCheck())

	system := router.Group("/system")
	{
		system.GET("/market_status", api.marketStatus())
		system.GET("/quota", api.systemQuota())
	}

	odds := router.Group("/odds")
	{
		odds.POST("/ingest", api.ingestOdds())
		odds.GET("/latest", api.latestOdds())
	}

	consensus := router.Group("/consensus")
	{
		consensus.GET("/latest", api.latestConsensus())
	}

	picks := router.Group("/picks")
	{
		picks.POST("/generate", api.generatePicks())
		picks.GET("/latest", api.latestPicks())
		picks.GET("/recommended", api.recommendedPicks())
	}

	clvGroup := router.Group("/clv")
	{
		clvGroup.POST("/compute", api.computeCLV())
		clvGroup.GET("/latest", api.latestCLV())
	}
	router.GET("/stats/clv/sport", api.clvSportStats())
	router.GET("/metrics/clv", api.clvMetrics())

	pipeline := router.Group("/pipeline")
	{
		pipeline.POST("/run", api.runPipeline())
		pipeline.GET("/runs", api.pipelineRuns())
		pipeline.GET("/health", api.pipelineHealth())
	}

	pqs := router.Group("/pqs")
	{
		pqs.GET("/latest", api.latestPQS())
		pqs.POST("/score", api.scorePQS())
	}

	evalGroup := router.Group("/eval")
	{
		evalGroup.GET("/dataset", api.evalDataset())
		evalGroup.GET("/dataset.csv", api.evalDatasetCSV())
		evalGroup.GET("/pqs_clv", api.evalPQSClv())
		evalGroup.GET("/gates", api.evalGates())
		evalGroup.GET("/sports", api.evalSports())
		evalGroup.GET("/volume", api.evalVolume())
		evalGroup.GET("/parlay_note", api.evalParlayNote())
	}

	calibration := router.Group("/calibration")
	{
		calibration.POST("/propose", api.proposeCalibration())
		calibration.POST("/apply/:run_id", api.applyCalibration())
		calibration.GET("/runs", api.calibrationRuns())
	}
}

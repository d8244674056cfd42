package main

import (
	"encoding/base64"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"myevidence/config"
	"myevidence/models"
	"myevidence/providers"
	"myevidence/providers/azuredi"
	"myevidence/providers/openai"
	"myevidence/providers/pubmed"
	"myevidence/services"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var (
	papersSavedCounter     prometheus.Counter
	recsReviewedCounter    prometheus.Counter
	slicesClearedCounter   prometheus.Counter
	upstreamFailureCounter prometheus.Counter
	libraryGauge           *prometheus.GaugeVec
	recStatusGauge         *prometheus.GaugeVec
)

func init() {
	papersSavedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "papers_saved_total",
		Help: "Total number of papers saved to the library.",
	})
	recsReviewedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "recommendations_reviewed_total",
		Help: "Total number of recommendation review actions (keep/remove/delete).",
	})
	slicesClearedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "search_slices_cleared_total",
		Help: "Total number of search slices marked as cleared.",
	})
	upstreamFailureCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "upstream_failures_total",
		Help: "Total number of failed calls to PubMed, Azure DI or OpenAI.",
	})
	libraryGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "library_items",
		Help: "Current number of stored items per entity.",
	}, []string{"entity"})
	recStatusGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "recommendations_by_status",
		Help: "Current number of recommendations per review status.",
	}, []string{"status"})

	prometheus.MustRegister(papersSavedCounter, recsReviewedCounter,
		slicesClearedCounter, upstreamFailureCounter, libraryGauge, recStatusGauge)
}

func apiKeyAuthMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		if cfg.APISecretKey == "" {
			c.Next()
			return
		}
		apiKey := c.GetHeader("X-API-KEY")
		if apiKey != cfg.APISecretKey {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized: Invalid API Key"})
			return
		}
		c.Next()
	}
}

// respondError mappt die Sentinel-Fehler der Service-Schicht auf HTTP-Status.
func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, services.ErrAlreadyExists), errors.Is(err, services.ErrReviewLocked):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, services.ErrConfirmationRequired):
		c.JSON(http.StatusPreconditionRequired, gin.H{"error": "confirm=true required"})
	case errors.Is(err, services.ErrUpstreamFailure):
		upstreamFailureCounter.Inc()
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func refreshLibraryGauges(db *gorm.DB, logging *zap.Logger) {
	stats, err := services.CollectLibraryStats(db)
	if err != nil {
		logging.Error("Stats job failed", zap.Error(err))
		return
	}
	libraryGauge.WithLabelValues("papers").Set(float64(stats.Papers))
	libraryGauge.WithLabelValues("guidelines").Set(float64(stats.Guidelines))
	libraryGauge.WithLabelValues("hidden_pmids").Set(float64(stats.HiddenPmids))
	libraryGauge.WithLabelValues("cleared_slices").Set(float64(stats.ClearedSlices))
	libraryGauge.WithLabelValues("folders").Set(float64(stats.Folders))
	for _, status := range []string{
		models.RecStatusUnreviewed, models.RecStatusRelevant,
		models.RecStatusIrrelevant, models.RecStatusDeleted,
	} {
		recStatusGauge.WithLabelValues(status).Set(float64(stats.Recommendations[status]))
	}
}

func main() {
	logging, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("can't initialize zap logger: %v", err)
	}
	defer logging.Sync()

	cfg, err := config.Load()
	if err != nil {
		logging.Fatal("Config load error", zap.Error(err))
	}

	// Setup Database Connection
	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		logging.Fatal("Failed to connect to database", zap.Error(err))
	}
	logging.Info("Successfully connected to database.")

	logging.Info("Running database auto-migration...")
	db.AutoMigrate(
		&models.Paper{},
		&models.Guideline{},
		&models.Recommendation{},
		&models.HiddenPmid{},
		&models.SearchLedgerEntry{},
		&models.EvidenceFolder{},
		&models.FolderItem{},
	)

	// Setup Providers
	pubmedFetcher := pubmed.NewFetcher(cfg, logging)
	layoutClient := azuredi.NewClient(cfg, logging)
	openaiClient := openai.NewClient(cfg, logging)

	// Setup Services
	captureService := services.NewCaptureService(db, pubmedFetcher, openaiClient, logging)
	curationService := services.NewCurationService(db, openaiClient, logging)
	guidelineService := services.NewGuidelineService(db, layoutClient, openaiClient, logging)
	ledgerService := services.NewLedgerService(db, pubmedFetcher, logging)
	folderService := services.NewFolderService(db, logging)
	synthesisService := services.NewSynthesisService(db, openaiClient, curationService, logging)

	// Setup Router
	router := gin.Default()
	router.Use(gin.Recovery())
	router.Use(apiKeyAuthMiddleware(cfg))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/healthz", func(c *gin.Context) {
		stats, err := services.CollectLibraryStats(db)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"status": "degraded"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "library": stats})
	})

	// Setup Routes
	setupPaperRoutes(router, captureService, logging)
	setupGuidelineRoutes(router, guidelineService, curationService, logging)
	setupRecommendationRoutes(router, curationService, logging)
	setupSearchRoutes(router, ledgerService, logging)
	setupFolderRoutes(router, folderService, logging)
	setupSynthesisRoutes(router, synthesisService, logging)

	// Setup Cron
	cronScheduler := cron.New()
	cronScheduler.AddFunc(cfg.CronSchedule, func() {
		logging.Info("Running scheduled stats job...")
		refreshLibraryGauges(db, logging)
	})
	cronScheduler.Start()
	refreshLibraryGauges(db, logging)

	logging.Info("Starting server", zap.String("port", cfg.HTTPPort))
	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadTimeout:       30 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      120 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	if err := srv.ListenAndServe(); err != nil {
		logging.Fatal("Failed to run server", zap.Error(err))
	}
}

func setupPaperRoutes(router *gin.Engine, capture *services.CaptureService, log *zap.Logger) {
	rg := router.Group("/papers")

	// Fetch holt Abstract + Felder, ohne etwas zu persistieren
	rg.POST("/fetch", func(c *gin.Context) {
		var req struct {
			PMID string `json:"pmid" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		cand, err := capture.Fetch(c.Request.Context(), req.PMID)
		if err != nil {
			log.Error("Paper fetch failed", zap.String("pmid", req.PMID), zap.Error(err))
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, cand)
	})

	rg.POST("/", func(c *gin.Context) {
		var req services.SaveInput
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		paper, err := capture.Save(req)
		if err != nil {
			respondError(c, err)
			return
		}
		papersSavedCounter.Inc()
		c.JSON(http.StatusCreated, paper)
	})

	// Einfacher GET-Endpunkt für die ganze Bibliothek (ohne Filter)
	rg.GET("/", func(c *gin.Context) {
		papers, err := capture.Browse(services.BrowseQuery{})
		if err != nil {
			log.Error("Database query for all papers failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		c.JSON(http.StatusOK, papers)
	})

	// Body-gesteuerter Endpunkt für komplexe Abfragen
	rg.POST("/query", func(c *gin.Context) {
		var req services.BrowseQuery
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		papers, err := capture.Browse(req)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, papers)
	})

	rg.GET("/:pmid", func(c *gin.Context) {
		paper, err := capture.Get(c.Param("pmid"))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, paper)
	})

	rg.DELETE("/:pmid", func(c *gin.Context) {
		confirm := c.Query("confirm") == "true"
		if err := capture.Delete(c.Param("pmid"), confirm); err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"deleted": c.Param("pmid")})
	})
}

func setupGuidelineRoutes(router *gin.Engine, guidelines *services.GuidelineService, curation *services.CurationService, log *zap.Logger) {
	rg := router.Group("/guidelines")

	rg.POST("/", func(c *gin.Context) {
		var req struct {
			Filename  string `json:"filename" binding:"required"`
			PDFBase64 string `json:"pdf_base64" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		pdf, err := base64.StdEncoding.DecodeString(req.PDFBase64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid pdf_base64"})
			return
		}
		guideline, duplicate, err := guidelines.SavePDF(c.Request.Context(), req.Filename, pdf)
		if err != nil {
			log.Error("Guideline upload failed", zap.String("filename", req.Filename), zap.Error(err))
			respondError(c, err)
			return
		}
		status := http.StatusCreated
		if duplicate {
			status = http.StatusOK
		}
		c.JSON(status, gin.H{"guideline": guideline, "duplicate": duplicate})
	})

	rg.GET("/", func(c *gin.Context) {
		list, err := guidelines.Browse(services.GuidelineQuery{})
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		c.JSON(http.StatusOK, list)
	})

	rg.POST("/query", func(c *gin.Context) {
		var req services.GuidelineQuery
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		list, err := guidelines.Browse(req)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, list)
	})

	rg.GET("/:id", func(c *gin.Context) {
		guideline, err := guidelines.Get(c.Param("id"))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, guideline)
	})

	rg.DELETE("/:id", func(c *gin.Context) {
		confirm := c.Query("confirm") == "true"
		if err := guidelines.Delete(c.Param("id"), confirm); err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"deleted": c.Param("id")})
	})

	rg.POST("/:id/metadata/extract", func(c *gin.Context) {
		meta, err := guidelines.ExtractMetadata(c.Request.Context(), c.Param("id"))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, meta)
	})

	rg.PUT("/:id/metadata", func(c *gin.Context) {
		var req providers.GuidelineMeta
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		guideline, err := guidelines.SaveMetadata(c.Param("id"), req)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, guideline)
	})

	rg.POST("/:id/recommendations/extract", func(c *gin.Context) {
		count, already, err := curation.ExtractRecommendations(c.Request.Context(), c.Param("id"))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"extracted": count, "already_extracted": already})
	})

	rg.GET("/:id/recommendations", func(c *gin.Context) {
		recs, err := curation.List(c.Param("id"), c.DefaultQuery("filter", "all"))
		if err != nil {
			if errors.Is(err, services.ErrNotFound) {
				respondError(c, err)
				return
			}
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, recs)
	})
}

func setupRecommendationRoutes(router *gin.Engine, curation *services.CurationService, log *zap.Logger) {
	rg := router.Group("/recommendations")

	parseID := func(c *gin.Context) (uint, bool) {
		id, err := strconv.ParseUint(c.Param("id"), 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid recommendation id"})
			return 0, false
		}
		return uint(id), true
	}

	rg.POST("/:id/keep", func(c *gin.Context) {
		id, ok := parseID(c)
		if !ok {
			return
		}
		var req struct {
			EditedText string `json:"edited_text"`
		}
		c.ShouldBindJSON(&req) // Body ist optional
		rec, err := curation.Keep(id, req.EditedText)
		if err != nil {
			respondError(c, err)
			return
		}
		recsReviewedCounter.Inc()
		c.JSON(http.StatusOK, rec)
	})

	rg.POST("/:id/remove", func(c *gin.Context) {
		id, ok := parseID(c)
		if !ok {
			return
		}
		rec, err := curation.Remove(id)
		if err != nil {
			respondError(c, err)
			return
		}
		recsReviewedCounter.Inc()
		c.JSON(http.StatusOK, rec)
	})

	rg.DELETE("/:id", func(c *gin.Context) {
		id, ok := parseID(c)
		if !ok {
			return
		}
		if err := curation.Delete(id); err != nil {
			respondError(c, err)
			return
		}
		recsReviewedCounter.Inc()
		c.JSON(http.StatusOK, gin.H{"deleted": id})
	})
}

func setupSearchRoutes(router *gin.Engine, ledger *services.LedgerService, log *zap.Logger) {
	rg := router.Group("/search")

	rg.POST("/pubmed", func(c *gin.Context) {
		var req providers.SliceQuery
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		resp, err := ledger.SearchSlice(c.Request.Context(), req)
		if err != nil {
			log.Error("Slice search failed", zap.Error(err))
			respondError(c, err)
			return
		}
		if resp.Cleared {
			slicesClearedCounter.Inc()
		}
		c.JSON(http.StatusOK, resp)
	})

	rg.POST("/hide", func(c *gin.Context) {
		var req struct {
			PMID string `json:"pmid" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if err := ledger.Hide(req.PMID); err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"hidden": req.PMID})
	})

	rg.GET("/cleared", func(c *gin.Context) {
		year, _ := strconv.Atoi(c.Query("year"))
		month, _ := strconv.Atoi(c.Query("month"))
		q := providers.SliceQuery{
			Year:      year,
			Month:     month,
			Specialty: c.Query("specialty"),
			Journal:   c.Query("journal"),
			StudyType: c.Query("study_type"),
		}
		cleared, err := ledger.IsCleared(q)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"cleared": cleared})
	})

	rg.GET("/history", func(c *gin.Context) {
		entries, err := ledger.History()
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, entries)
	})
}

func setupFolderRoutes(router *gin.Engine, folders *services.FolderService, log *zap.Logger) {
	rg := router.Group("/folders")

	rg.POST("/", func(c *gin.Context) {
		var req struct {
			Name string `json:"name" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		folder, created, err := folders.CreateOrGet(req.Name)
		if err != nil {
			respondError(c, err)
			return
		}
		status := http.StatusOK
		if created {
			status = http.StatusCreated
		}
		c.JSON(status, folder)
	})

	rg.GET("/", func(c *gin.Context) {
		list, err := folders.List()
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		c.JSON(http.StatusOK, list)
	})

	rg.PATCH("/:id", func(c *gin.Context) {
		var req struct {
			Name string `json:"name" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		folder, err := folders.Rename(c.Param("id"), req.Name)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, folder)
	})

	rg.DELETE("/:id", func(c *gin.Context) {
		confirm := c.Query("confirm") == "true"
		if err := folders.Delete(c.Param("id"), confirm); err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"deleted": c.Param("id")})
	})

	type itemsRequest struct {
		PMIDs        []string `json:"pmids"`
		GuidelineIDs []string `json:"guideline_ids"`
	}

	rg.POST("/:id/items", func(c *gin.Context) {
		var req itemsRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		added, err := folders.AddItems(c.Param("id"), req.PMIDs, req.GuidelineIDs)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"added": added})
	})

	rg.DELETE("/:id/items", func(c *gin.Context) {
		var req itemsRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		removed, err := folders.RemoveItems(c.Param("id"), req.PMIDs, req.GuidelineIDs)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"removed": removed})
	})

	rg.GET("/:id/items", func(c *gin.Context) {
		pmids, guidelineIDs, err := folders.Items(c.Param("id"))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"pmids": pmids, "guideline_ids": guidelineIDs})
	})
}

func setupSynthesisRoutes(router *gin.Engine, synthesis *services.SynthesisService, log *zap.Logger) {
	router.POST("/synthesize", func(c *gin.Context) {
		var req services.SynthesisInput
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		text, err := synthesis.Generate(c.Request.Context(), req)
		if err != nil {
			log.Error("Synthesis failed", zap.Error(err))
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"text": text})
	})
}

package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/mmdatafocus/warehouse_backend/config"
	"github.com/mmdatafocus/warehouse_backend/middlewares"
	"github.com/mmdatafocus/warehouse_backend/models"
	"github.com/mmdatafocus/warehouse_backend/utils"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
)

const defaultPort = "8080"

// recompute endpoints get a wall-clock budget; a timeout is retryable, the
// enclosing DB transaction keeps partial writes from landing.
const recomputeTimeout = 2 * time.Minute

var tracer = otel.Tracer("warehouse-billing")

func splitAndTrim(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if v := strings.TrimSpace(p); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// resolveSessionUser loads the session's user, redis-cached by username.
func resolveSessionUser(ctx context.Context) (*models.User, error) {
	username, ok := utils.GetUsernameFromContext(ctx)
	if !ok || username == "" {
		return nil, errors.New("unauthorized")
	}

	var user models.User
	exists, err := config.GetRedisObject("User:"+username, &user)
	if err != nil {
		return nil, err
	}
	if !exists {
		db := config.GetDB()
		if db == nil {
			return nil, errors.New("db is nil")
		}
		u, err := models.GetUserByUsername(ctx, db, username)
		if err != nil {
			return nil, errors.New("unauthorized")
		}
		user = *u
		_ = config.SetRedisObject("User:"+username, &user, 24*time.Hour)
	}
	return &user, nil
}

// requireUser aborts with 401 unless the request carries a valid session.
func requireUser(c *gin.Context) (*models.User, bool) {
	user, err := resolveSessionUser(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return nil, false
	}
	return user, true
}

func requireAdmin(c *gin.Context) (*models.User, bool) {
	user, ok := requireUser(c)
	if !ok {
		return nil, false
	}
	if user.Role != models.UserRoleAdmin {
		c.JSON(http.StatusForbidden, gin.H{"error": "admin role required"})
		return nil, false
	}
	return user, true
}

// writeError maps core error taxonomy to HTTP statuses.
func writeError(c *gin.Context, err error) {
	var rateErr *models.RateNotFoundError
	switch {
	case errors.As(err, &rateErr):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	case errors.Is(err, models.ErrInvalidPeriod):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, models.ErrInvoiceNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, models.ErrRecomputeConflict):
		c.JSON(http.StatusConflict, gin.H{"error": "another recompute is running for this scope; retry shortly"})
	case errors.Is(err, context.DeadlineExceeded):
		c.JSON(http.StatusGatewayTimeout, gin.H{"error": "recompute timed out; safe to retry"})
	default:
		config.LogError(config.GetLogger(), "server.go", c.FullPath(), "handler", nil, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func loginHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req loginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		db := config.GetDB()
		user, err := models.GetUserByUsername(c.Request.Context(), db, req.Username)
		if err != nil || !user.CheckPassword(req.Password) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
			return
		}
		if user.IsActive != nil && !*user.IsActive {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "account disabled"})
			return
		}

		token := uuid.NewString()
		if err := config.SetRedisValue("Token:"+token, user.Username, 24*time.Hour); err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"token": token, "role": user.Role, "name": user.Name})
	}
}

type recomputeBalancesRequest struct {
	WarehouseId *int `json:"warehouse_id"`
}

func recomputeBalancesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := requireUser(c); !ok {
			return
		}
		var req recomputeBalancesRequest
		if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), recomputeTimeout)
		defer cancel()
		count, anomalies, err := models.RecomputeBalances(ctx, config.GetDB(), req.WarehouseId)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"rows_written": count,
			"anomalies":    anomalies,
		})
	}
}

type generateLedgerRequest struct {
	Year        int    `json:"year" binding:"required"`
	Month       int    `json:"month" binding:"required"`
	WarehouseId *int   `json:"warehouse_id"`
	Policy      string `json:"policy"`
}

func generateStorageLedgerHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := requireUser(c); !ok {
			return
		}
		var req generateLedgerRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), recomputeTimeout)
		defer cancel()
		count, err := models.GenerateStorageLedger(ctx, config.GetDB(), req.Year, req.Month, req.WarehouseId, models.PeriodPolicy(req.Policy))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"rows_written": count})
	}
}

type calculateCostsRequest struct {
	WarehouseId int    `json:"warehouse_id" form:"warehouse_id" binding:"required"`
	Year        int    `json:"year" form:"year" binding:"required"`
	Month       int    `json:"month" form:"month" binding:"required"`
	Policy      string `json:"policy" form:"policy"`
}

func calculateCostsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := requireUser(c)
		if !ok {
			return
		}
		var req calculateCostsRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		period, err := models.ResolveBillingPeriod(req.Year, req.Month, models.PeriodPolicy(req.Policy))
		if err != nil {
			writeError(c, err)
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), recomputeTimeout)
		defer cancel()
		ctx, span := tracer.Start(ctx, "CalculateAndStoreCosts")
		err = models.CalculateAndStoreCosts(ctx, config.GetDB(), req.WarehouseId, period, user.ID)
		span.End()
		if err != nil {
			writeError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func getCalculatedCostsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := requireUser(c); !ok {
			return
		}
		var req calculateCostsRequest
		if err := c.ShouldBindQuery(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		period, err := models.ResolveBillingPeriod(req.Year, req.Month, models.PeriodPolicy(req.Policy))
		if err != nil {
			writeError(c, err)
			return
		}
		groups, err := models.GetCalculatedCostsForReconciliation(c.Request.Context(), config.GetDB(), req.WarehouseId, period)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, groups)
	}
}

func reconcileInvoiceHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := requireUser(c); !ok {
			return
		}
		invoiceId, err := intParam(c, "id")
		if err != nil {
			return
		}
		records, err := models.Reconcile(c.Request.Context(), config.GetDB(), invoiceId, models.DefaultReconciliationTolerance())
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, records)
	}
}

type resolveRecordRequest struct {
	Note string `json:"note" binding:"required"`
}

func resolveReconciliationHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := requireUser(c)
		if !ok {
			return
		}
		recordId, err := intParam(c, "id")
		if err != nil {
			return
		}
		var req resolveRecordRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		record, err := models.ResolveReconciliationRecord(c.Request.Context(), config.GetDB(), recordId, req.Note, user.ID)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, record)
	}
}

func intParam(c *gin.Context, name string) (int, error) {
	id, err := strconv.Atoi(c.Param(name))
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, errors.New("invalid param")
	}
	return id, nil
}

func main() {
	port := os.Getenv("API_PORT")
	if port == "" {
		port = os.Getenv("PORT")
	}
	if port == "" {
		port = defaultPort
	}

	logger := config.GetLogger()

	sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	// Start the HTTP server ASAP; until DB/Redis are ready, app endpoints 503.
	r := gin.New()
	// Correlation IDs: generate once per request and attach to context.
	r.Use(func(c *gin.Context) {
		cid := c.GetHeader("x-correlation-id")
		if cid == "" {
			cid = uuid.NewString()
		}
		c.Request = c.Request.WithContext(utils.SetCorrelationIdInContext(c.Request.Context(), cid))
		c.Next()
	})
	r.Use(func(c *gin.Context) {
		if c.Request.URL.Path == "/healthz" {
			c.Status(http.StatusNoContent)
			c.Abort()
			return
		}
		if config.GetDB() == nil || config.GetRedisDB() == nil {
			c.AbortWithStatus(http.StatusServiceUnavailable)
			return
		}
		c.Next()
	})

	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	corsConfig := cors.DefaultConfig()
	allowedOrigins := strings.TrimSpace(os.Getenv("CORS_ALLOWED_ORIGINS"))
	if strings.EqualFold(strings.TrimSpace(os.Getenv("GO_ENV")), "production") {
		if allowedOrigins == "" {
			corsConfig.AllowOrigins = []string{}
		} else {
			corsConfig.AllowOrigins = splitAndTrim(allowedOrigins)
		}
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AddAllowMethods("GET", "POST", "PUT", "DELETE", "OPTIONS")
	corsConfig.AddAllowHeaders("token", "Origin", "Content-Type", "Authorization")
	corsConfig.AddExposeHeaders("Content-Length")
	corsConfig.AllowCredentials = true
	r.Use(cors.New(corsConfig))

	r.Use(middlewares.SessionMiddleware())
	r.Use(gin.Recovery())

	r.POST("/api/login", loginHandler())

	api := r.Group("/api")
	{
		api.POST("/warehouses", func(c *gin.Context) {
			if _, ok := requireAdmin(c); !ok {
				return
			}
			var input models.NewWarehouse
			if err := c.ShouldBindJSON(&input); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			warehouse, err := models.CreateWarehouse(c.Request.Context(), config.GetDB(), &input)
			if err != nil {
				writeError(c, err)
				return
			}
			c.JSON(http.StatusCreated, warehouse)
		})
		api.GET("/warehouses", func(c *gin.Context) {
			if _, ok := requireUser(c); !ok {
				return
			}
			warehouses, err := models.ListWarehouses(c.Request.Context(), config.GetDB())
			if err != nil {
				writeError(c, err)
				return
			}
			c.JSON(http.StatusOK, warehouses)
		})

		api.POST("/skus", func(c *gin.Context) {
			if _, ok := requireAdmin(c); !ok {
				return
			}
			var input models.NewSku
			if err := c.ShouldBindJSON(&input); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			sku, err := models.CreateSku(c.Request.Context(), config.GetDB(), &input)
			if err != nil {
				writeError(c, err)
				return
			}
			c.JSON(http.StatusCreated, sku)
		})
		api.GET("/skus", func(c *gin.Context) {
			if _, ok := requireUser(c); !ok {
				return
			}
			skus, err := models.ListSkus(c.Request.Context(), config.GetDB())
			if err != nil {
				writeError(c, err)
				return
			}
			c.JSON(http.StatusOK, skus)
		})

		api.POST("/transactions", func(c *gin.Context) {
			user, ok := requireUser(c)
			if !ok {
				return
			}
			var input models.NewInventoryTransaction
			if err := c.ShouldBindJSON(&input); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			ctx := utils.SetUserIdInContext(c.Request.Context(), user.ID)
			txn, err := models.CreateInventoryTransaction(ctx, config.GetDB(), &input)
			if err != nil {
				writeError(c, err)
				return
			}
			c.JSON(http.StatusCreated, txn)
		})

		api.GET("/balances", func(c *gin.Context) {
			if _, ok := requireUser(c); !ok {
				return
			}
			var warehouseId *int
			if v, err := intQuery(c, "warehouse_id"); err == nil && v > 0 {
				warehouseId = &v
			}
			balances, err := models.ListInventoryBalances(c.Request.Context(), config.GetDB(), warehouseId)
			if err != nil {
				writeError(c, err)
				return
			}
			c.JSON(http.StatusOK, balances)
		})
		api.POST("/balances/recompute", recomputeBalancesHandler())

		api.POST("/storage-ledger/generate", generateStorageLedgerHandler())

		api.POST("/rates", func(c *gin.Context) {
			if _, ok := requireAdmin(c); !ok {
				return
			}
			var input models.NewCostRate
			if err := c.ShouldBindJSON(&input); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			rate, err := models.CreateCostRate(c.Request.Context(), config.GetDB(), &input)
			if err != nil {
				writeError(c, err)
				return
			}
			c.JSON(http.StatusCreated, rate)
		})
		api.DELETE("/rates/:id", func(c *gin.Context) {
			if _, ok := requireAdmin(c); !ok {
				return
			}
			id, err := intParam(c, "id")
			if err != nil {
				return
			}
			if err := models.DeactivateCostRate(c.Request.Context(), config.GetDB(), id); err != nil {
				writeError(c, err)
				return
			}
			c.Status(http.StatusNoContent)
		})

		api.POST("/costs/calculate", calculateCostsHandler())
		api.GET("/costs", getCalculatedCostsHandler())

		api.POST("/invoices", func(c *gin.Context) {
			user, ok := requireUser(c)
			if !ok {
				return
			}
			var input models.NewInvoice
			if err := c.ShouldBindJSON(&input); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			ctx := utils.SetUserIdInContext(c.Request.Context(), user.ID)
			invoice, err := models.CreateInvoice(ctx, config.GetDB(), &input)
			if err != nil {
				writeError(c, err)
				return
			}
			c.JSON(http.StatusCreated, invoice)
		})
		api.GET("/invoices", func(c *gin.Context) {
			if _, ok := requireUser(c); !ok {
				return
			}
			var warehouseId *int
			if v, err := intQuery(c, "warehouse_id"); err == nil && v > 0 {
				warehouseId = &v
			}
			invoices, err := models.ListInvoices(c.Request.Context(), config.GetDB(), warehouseId)
			if err != nil {
				writeError(c, err)
				return
			}
			c.JSON(http.StatusOK, invoices)
		})
		api.POST("/invoices/:id/reconcile", reconcileInvoiceHandler())
		api.GET("/invoices/:id/reconciliation", func(c *gin.Context) {
			if _, ok := requireUser(c); !ok {
				return
			}
			invoiceId, err := intParam(c, "id")
			if err != nil {
				return
			}
			records, err := models.ListReconciliationRecords(c.Request.Context(), config.GetDB(), invoiceId)
			if err != nil {
				writeError(c, err)
				return
			}
			c.JSON(http.StatusOK, records)
		})
		api.POST("/reconciliation/:id/resolve", resolveReconciliationHandler())
	}

	srv := &http.Server{
		Addr:    ":" + port,
		Handler: r,
	}
	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- srv.ListenAndServe()
	}()

	// Connect dependencies after the port is open.
	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()

	db := config.GetDB()
	sqlDB, _ := db.DB()
	defer func() {
		if sqlDB != nil {
			_ = sqlDB.Close()
		}
	}()
	// AutoMigrate can run DDL that blocks tables; allow running it as a
	// separate job instead.
	if !strings.EqualFold(strings.TrimSpace(os.Getenv("SKIP_MIGRATIONS")), "true") {
		models.MigrateTable()
	} else {
		logger.WithFields(logrus.Fields{"field": "migrations"}).Warn("SKIP_MIGRATIONS=true; skipping AutoMigrate on startup")
	}

	log.Println("Server started successfully")

	select {
	case <-sigCtx.Done():
		// graceful shutdown below
	case err := <-serverErrCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithFields(logrus.Fields{"field": "http"}).Error("server stopped unexpectedly: " + err.Error())
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithFields(logrus.Fields{"field": "http"}).Error("graceful shutdown failed: " + err.Error())
	}
}

func intQuery(c *gin.Context, name string) (int, error) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return 0, errors.New("missing")
	}
	return strconv.Atoi(raw)
}

package server

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"gorm.io/gorm"

	"github.com/SalamEnterprise/claims-askes/internal/accumulator"
	accumulatordomain "github.com/SalamEnterprise/claims-askes/internal/accumulator/domain"
	"github.com/SalamEnterprise/claims-askes/internal/adjudication"
	adjudicationdomain "github.com/SalamEnterprise/claims-askes/internal/adjudication/domain"
	"github.com/SalamEnterprise/claims-askes/internal/authz"
	"github.com/SalamEnterprise/claims-askes/internal/benefitplan"
	benefitplandomain "github.com/SalamEnterprise/claims-askes/internal/benefitplan/domain"
	"github.com/SalamEnterprise/claims-askes/internal/config"
	"github.com/SalamEnterprise/claims-askes/internal/funding"
	fundingdomain "github.com/SalamEnterprise/claims-askes/internal/funding/domain"
	"github.com/SalamEnterprise/claims-askes/internal/lock"
	"github.com/SalamEnterprise/claims-askes/internal/observability"
	obslogger "github.com/SalamEnterprise/claims-askes/internal/observability/logger"
	obsmetrics "github.com/SalamEnterprise/claims-askes/internal/observability/metrics"
	obstracing "github.com/SalamEnterprise/claims-askes/internal/observability/tracing"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	authz.Module,
	lock.Module,
	benefitplan.Module,
	accumulator.Module,
	funding.Module,
	adjudication.Module,
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obslogger.GinMiddleware(obslogger.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config) *gin.Engine {
	return NewEngine(obsCfg)
}

func run(lc fx.Lifecycle, r *gin.Engine, cfg config.Config) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine *gin.Engine
	cfg    config.Config
	db     *gorm.DB
	genID  *snowflake.Node

	adjudicationSvc adjudicationdomain.Service
	benefitPlanSvc  benefitplandomain.Service
	accumulatorSvc  accumulatordomain.Service
	fundingSvc      fundingdomain.Service

	obsMetrics *obsmetrics.Metrics
}

type ServerParams struct {
	fx.In

	Gin   *gin.Engine
	Cfg   config.Config
	DB    *gorm.DB
	GenID *snowflake.Node

	AdjudicationSvc adjudicationdomain.Service
	BenefitPlanSvc  benefitplandomain.Service
	AccumulatorSvc  accumulatordomain.Service
	FundingSvc      fundingdomain.Service

	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine: p.Gin,
		cfg:    p.Cfg,
		db:     p.DB,
		genID:  p.GenID,

		adjudicationSvc: p.AdjudicationSvc,
		benefitPlanSvc:  p.BenefitPlanSvc,
		accumulatorSvc:  p.AccumulatorSvc,
		fundingSvc:      p.FundingSvc,

		obsMetrics: p.ObsMetrics,
	}

	svc.registerAPIRoutes()

	return svc
}

func (s *Server) registerAPIRoutes() {
	v1 := s.engine.Group("/v1")

	claims := v1.Group("/claims")
	claims.POST("/adjudicate", s.AdjudicateClaim)
	claims.GET("/:claim_id/attempts/:attempt_id", s.GetAdjudication)
	claims.POST("/:claim_id/attempts/:attempt_id/reverse", s.ReverseAdjudication)

	members := v1.Group("/members")
	members.GET("/:member_id/accumulators", s.ListAccumulators)

	policies := v1.Group("/policies")
	policies.GET("/:policy_id/funding/balances", s.GetFundingBalances)
	policies.POST("/:policy_id/funding/deposits", s.CreateFundingDeposit)
	policies.POST("/:policy_id/funding/config", s.CreateFundingConfig)

	plans := v1.Group("/benefit-plans")
	plans.POST("", s.CreateBenefitDefinition)
	plans.GET("/:plan_id/benefits", s.ListBenefitDefinitions)
	plans.POST("/reload", s.ReloadBenefitSnapshot)
}

package rest

import (
	"github.com/Dhoini/kleenpride-booking-service/internal/api/rest/handlers"
	"github.com/Dhoini/kleenpride-booking-service/internal/api/rest/middleware"
	"github.com/Dhoini/kleenpride-booking-service/internal/domain"
	"github.com/Dhoini/kleenpride-booking-service/internal/metrics"
	"github.com/Dhoini/kleenpride-booking-service/internal/repository"
	"github.com/Dhoini/kleenpride-booking-service/internal/service"
	"github.com/Dhoini/kleenpride-booking-service/pkg/logger"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RouterDeps зависимости HTTP API
type RouterDeps struct {
	Bookings       service.BookingService
	Tokenization   service.TokenizationService
	Reconciliation service.ReconciliationService
	Reviews        repository.ReviewQueue
	Tokens         middleware.TokenValidator
	HealthChecks   map[string]handlers.HealthCheckFunc
	Registry       *prometheus.Registry
	HTTPMetrics    metrics.HTTPMetrics
}

// SetupRouter настраивает маршрутизатор Gin с маршрутами и middleware
func SetupRouter(deps RouterDeps, log *logger.Logger) *gin.Engine {
	r := gin.New()

	r.Use(middleware.LoggerMiddleware(log, deps.HTTPMetrics))
	r.Use(gin.Recovery())

	healthHandler := handlers.NewHealthHandler(deps.HealthChecks)
	r.GET("/health", healthHandler.HealthCheck)

	if deps.Registry != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.Registry, promhttp.HandlerOpts{})))
	}

	auth := middleware.NewJWTMiddleware(deps.Tokens, log)
	bookingHandler := handlers.NewBookingHandler(deps.Bookings, log)
	methodHandler := handlers.NewPaymentMethodHandler(deps.Tokenization, log)
	reviewHandler := handlers.NewReviewHandler(deps.Reviews, log)
	webhookHandler := handlers.NewWebhookHandler(deps.Reconciliation, log)

	v1 := r.Group("/api/v1")
	{
		bookings := v1.Group("/bookings", auth.RequireAuth())
		{
			bookings.POST("", bookingHandler.CreateBooking)
			bookings.GET("", bookingHandler.GetBookings)
			bookings.GET("/:id", bookingHandler.GetBooking)
			bookings.POST("/:id/payment", bookingHandler.InitiatePayment)
			bookings.POST("/:id/cancel", bookingHandler.CancelBooking)
			bookings.POST("/:id/start", bookingHandler.StartBooking)
			bookings.POST("/:id/complete", bookingHandler.CompleteBooking)

			// Операции планировщика и администратора
			admin := bookings.Group("", auth.RequireRole(domain.RoleAdmin))
			admin.POST("/:id/assign", bookingHandler.AssignDetailer)
			admin.POST("/:id/expire", bookingHandler.ExpirePayment)
			admin.POST("/:id/cash-settlement", bookingHandler.SettleCash)
		}

		methods := v1.Group("/payment-methods", auth.RequireAuth())
		{
			methods.GET("", methodHandler.GetPaymentMethods)
			methods.POST("", methodHandler.AddPaymentMethod)
			methods.PUT("/:id", methodHandler.UpdatePaymentMethod)
			methods.DELETE("/:id", methodHandler.DeletePaymentMethod)
			methods.PUT("/:id/default", methodHandler.SetDefaultPaymentMethod)
		}

		reviews := v1.Group("/reviews", auth.RequireAuth(domain.RoleAdmin))
		{
			reviews.GET("", reviewHandler.GetOpenReviews)
			reviews.POST("/:id/resolve", reviewHandler.ResolveReview)
		}
	}

	// Уведомления шлюза аутентифицируются подписью, а не токеном
	webhooks := r.Group("/webhooks")
	{
		webhooks.POST("/gateway/notify", webhookHandler.HandleGatewayNotification)
	}
	return r
}

package router

import (
	"net/http"

	"hhfoundation/internal/app"
	"hhfoundation/internal/handler"
	"hhfoundation/internal/middleware"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func Setup(a *app.App) *gin.Engine {
	cfg := a.Config
	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.CORS(cfg.Server.CORSOrigins))
	r.Use(middleware.RequestLogger("/healthz", "/metrics"))
	r.Use(middleware.Metrics())
	r.Use(middleware.RateLimit(middleware.NewLimiter(cfg.Server.RateLimit, cfg.Server.RateWindow)))

	repos, svc := a.Repos, a.Services

	// Handlers
	uploadHandler := handler.NewUploadHandler(a.Cloud, cfg.Cloudinary.Folder)
	authHandler := handler.NewAuthHandler(svc.Auth, repos.Audit)
	googleOAuthHandler := handler.NewGoogleOAuthHandler(cfg, svc.Auth, authHandler)
	meHandler := handler.NewMeHandler(svc.Users)
	helpHandler := handler.NewHelpHandler(svc.Help, uploadHandler, cfg.Help.RetryAfter)
	epinHandler := handler.NewEpinHandler(svc.Epin, uploadHandler, svc.Admin)
	chatHandler := handler.NewChatHandler(svc.Chat)
	ticketHandler := handler.NewTicketHandler(svc.Ticket, svc.Admin)
	notificationHandler := handler.NewNotificationHandler(repos.Notifications, svc.Notification, a.ChatHub.Hub, svc.Admin)
	adminHandler := handler.NewAdminHandler(svc.Admin, svc.Help, svc.Integrity,
		repos.Admin, repos.Users, repos.Helps, repos.Settings, a.ChatHub.Hub)

	authMw := middleware.AuthRequired(&cfg.JWT)
	activeMw := middleware.ActiveAccount(repos.Users)
	// money-moving endpoints get a tighter per-user budget on top of the global IP limit
	writeLimit := middleware.RateLimitUser(middleware.NewLimiter(30, cfg.Server.RateWindow))

	r.GET("/healthz", func(c *gin.Context) {
		sqlDB, err := a.DB.DB()
		if err != nil || sqlDB.PingContext(c.Request.Context()) != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api/v1")
	{
		authGroup := api.Group("/auth")
		{
			authGroup.POST("/register", authHandler.Register)
			authGroup.POST("/login", authHandler.Login)
			authGroup.POST("/admin/login", authHandler.AdminLogin)
			authGroup.POST("/logout", authMw, authHandler.Logout)
			authGroup.PATCH("/change-password", authMw, activeMw, authHandler.ChangePassword)
			authGroup.POST("/refresh", authHandler.Refresh)
			authGroup.GET("/google", googleOAuthHandler.Redirect)
			authGroup.GET("/google/callback", googleOAuthHandler.Callback)
			authGroup.POST("/google/token", googleOAuthHandler.Token)
		}

		user := api.Group("")
		user.Use(authMw, activeMw)

		me := user.Group("/me")
		{
			me.GET("/profile", meHandler.GetProfile)
			me.PATCH("/profile", meHandler.UpdateProfile)
			me.PUT("/payment-method", meHandler.SetPaymentMethod)
			me.POST("/fcm-token", meHandler.RegisterFCMToken)
			me.GET("/downline", meHandler.Downline)
			me.GET("/dashboard", meHandler.Dashboard)
			me.GET("/progress", helpHandler.Progress)
			me.GET("/notifications", notificationHandler.List)
			me.PUT("/notifications/read-all", notificationHandler.MarkAllRead)
			me.PUT("/notifications/:id/read", notificationHandler.MarkRead)
		}

		helpRoutes(user.Group("/helps"), helpHandler, writeLimit)

		epins := user.Group("/epins")
		{
			epins.GET("", epinHandler.Mine)
			epins.POST("/use", writeLimit, epinHandler.Use)
			epins.POST("/transfer", writeLimit, epinHandler.Transfer)
			epins.GET("/requests", epinHandler.MyRequests)
			epins.POST("/requests", writeLimit, epinHandler.Request)
		}

		chats := user.Group("/chats")
		{
			chats.GET("", chatHandler.Threads)
			chats.GET("/unread", chatHandler.Unread)
			chats.GET("/:peer_id/messages", chatHandler.Messages)
			chats.POST("/:peer_id/messages", chatHandler.Send)
			chats.PUT("/:peer_id/read", chatHandler.MarkRead)
			chats.POST("/:peer_id/typing", chatHandler.Typing)
			chats.GET("/:peer_id/typing", chatHandler.PeerTyping)
		}

		user.POST("/uploads", uploadHandler.Upload)

		tickets := user.Group("/tickets")
		{
			tickets.POST("", ticketHandler.Create)
			tickets.GET("", ticketHandler.Mine)
			tickets.GET("/:id", ticketHandler.Get)
			tickets.POST("/:id/replies", ticketHandler.Reply)
		}

		admin := api.Group("/admin")
		admin.Use(authMw, activeMw, middleware.AdminRequired())
		{
			admin.GET("/dashboard", adminHandler.Dashboard)
			admin.GET("/analytics", adminHandler.Analytics)
			admin.GET("/integrity", adminHandler.Integrity)
			admin.GET("/audit-logs", adminHandler.AuditLogs)

			admin.GET("/users", adminHandler.ListUsers)
			admin.GET("/users/:id", adminHandler.GetUser)
			admin.POST("/users/:id/block", adminHandler.Block(true))
			admin.POST("/users/:id/unblock", adminHandler.Block(false))
			admin.POST("/users/:id/hold", adminHandler.Hold(true))
			admin.POST("/users/:id/release", adminHandler.Hold(false))
			admin.POST("/users/:id/activate", adminHandler.Activate)
			admin.PUT("/users/:id/level", adminHandler.SetLevel)

			admin.GET("/helps", adminHandler.ListHelps)
			admin.POST("/helps/:id/confirm", adminHandler.ForceConfirm)
			admin.POST("/helps/:id/cancel", adminHandler.Cancel)

			admin.GET("/queue", adminHandler.QueueList)
			admin.POST("/queue", adminHandler.QueueAdd)
			admin.DELETE("/queue/:id", adminHandler.QueueRemove)

			admin.GET("/settings", adminHandler.GetSettings)
			admin.PUT("/settings", adminHandler.UpdateSettings)

			admin.GET("/epins", epinHandler.AdminList)
			admin.POST("/epins", epinHandler.AdminGenerate)
			admin.GET("/epin-requests", epinHandler.AdminRequests)
			admin.POST("/epin-requests/:id/approve", epinHandler.AdminApprove)
			admin.POST("/epin-requests/:id/reject", epinHandler.AdminReject)

			admin.GET("/tickets", ticketHandler.List)
			admin.GET("/tickets/:id", ticketHandler.Get)
			admin.POST("/tickets/:id/replies", ticketHandler.Reply)
			admin.PUT("/tickets/:id/status", ticketHandler.SetStatus)

			admin.GET("/broadcasts", notificationHandler.ListBroadcasts)
			admin.POST("/broadcasts", notificationHandler.Broadcast)
		}
	}

	r.GET("/ws", handler.UpgradeInboxWS(&cfg.JWT, a.ChatHub, repos.Users))
	r.GET("/ws/chat", handler.UpgradeChatWS(&cfg.JWT, a.ChatHub, svc.Chat))

	return r
}

// helpRoutes registers the help endpoints. Every state-changing route goes
// through writeLimit.
func helpRoutes(g *gin.RouterGroup, h *handler.HelpHandler, writeLimit gin.HandlerFunc) {
	g.POST("/send", writeLimit, h.Send)
	g.GET("/current", h.Current)
	g.GET("/history", h.History)
	g.GET("/incoming", h.Incoming)
	g.GET("/:id", h.Get)
	g.POST("/:id/payment", writeLimit, h.SubmitPayment)
	g.POST("/:id/confirm", writeLimit, h.Confirm)
	g.POST("/:id/dispute", writeLimit, h.Dispute)
}

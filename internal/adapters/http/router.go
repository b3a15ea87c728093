package http

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strconv"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/neutron420/bloom/internal/adapters/signal"
	"github.com/neutron420/bloom/internal/app/orch"
	"github.com/neutron420/bloom/internal/config"
	"github.com/neutron420/bloom/internal/domain"
)

const (
	headerUserID     = "X-User-Id"
	headerUserName   = "X-User-Name"
	headerAdminToken = "X-Admin-Token"

	sessionClientToken = "client_token"
)

func genClientToken() string {
	return uuid.NewString()
}

// ClientTokenMiddleware keeps an anonymous client token in the session.
// It needs sessions.Sessions registered before it.
func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		session := sessions.Default(c)
		token, _ := session.Get(sessionClientToken).(string)
		if token == "" {
			token = genClientToken()
			session.Set(sessionClientToken, token)
			if err := session.Save(); err != nil {
				log.Warn().Err(err).Str("module", "adapters.http").Msg("save session")
			}
		}
		c.Set("client_token", token)
		c.Next()
	}
}

// IdentityMiddleware resolves the caller from gateway headers, falling back to
// query parameters and finally to the client token.
func IdentityMiddleware(adminToken string) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetHeader(headerUserID)
		if userID == "" {
			userID = c.Query("userId")
		}
		if userID == "" {
			userID = c.GetString("client_token")
		}
		userName := c.GetHeader(headerUserName)
		if userName == "" {
			userName = c.Query("userName")
		}
		c.Set(signal.IdentityKey, domain.Identity{
			UserID:   domain.UserID(userID),
			UserName: userName,
			Admin:    validAdminToken(adminToken, c.GetHeader(headerAdminToken)),
		})
		c.Next()
	}
}

func validAdminToken(want, got string) bool {
	if want == "" || got == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(want), []byte(got)) == 1
}

func AdminMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !identity(c).Admin {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": domain.CodeUnauthorized, "error": domain.ErrNotAdmin.Error()})
			return
		}
		c.Next()
	}
}

func identity(c *gin.Context) domain.Identity {
	v, _ := c.Get(signal.IdentityKey)
	id, _ := v.(domain.Identity)
	return id
}

func SetupRouter(ctx context.Context, cfg *config.Config, o *orch.Orchestrator) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	store.Options(sessions.Options{Path: "/", MaxAge: 3600 * 24 * 7, HttpOnly: true})
	r.Use(sessions.Sessions("BloomSessions", store))
	r.Use(ClientTokenMiddleware())
	r.Use(IdentityMiddleware(cfg.AdminToken))

	if cfg.StaticPath != "" {
		r.Static("/static", cfg.StaticPath)
		r.GET("/", func(c *gin.Context) {
			c.File(cfg.StaticPath + "/index.html")
		})
	}

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":      "ok",
			"connections": o.Registry.Count(),
			"rooms":       len(o.Rooms()),
		})
	})

	log.Info().Str("module", "adapters.http").Str("static", cfg.StaticPath).Msg("router setup")

	ctrl := signal.NewSignalWSController(o, signal.Options{
		ReadLimit:  cfg.ReadLimit,
		PingPeriod: cfg.PingPeriod,
		WriteWait:  cfg.WriteWait,
		SendBuffer: cfg.SendBuffer,
	})

	api := r.Group("/api")
	api.GET("/ws/signal", func(c *gin.Context) {
		log.Info().Str("module", "adapters.http").Str("sid", c.GetString("client_token")).Msg("ws signal endpoint hit")
		ctrl.HandleSignal(ctx, c)
	})
	api.GET("/rooms", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"rooms": o.Rooms()})
	})

	admin := api.Group("/admin", AdminMiddleware())
	h := &adminHandlers{orch: o}
	admin.POST("/rooms/:roomId/end", h.endMeeting)
	admin.POST("/announce", h.announce)
	admin.POST("/users/:userId/disconnect", h.disconnectUser)
	admin.POST("/users/:userId/notify", h.notifyUser)
	admin.GET("/activity", h.activity)

	return r
}

type adminHandlers struct {
	orch *orch.Orchestrator
}

type reasonRequest struct {
	Reason string `json:"reason"`
}

type messageRequest struct {
	RoomID  string `json:"roomId"`
	Message string `json:"message"`
}

func (h *adminHandlers) endMeeting(c *gin.Context) {
	var req reasonRequest
	if !bindOptional(c, &req) {
		return
	}
	res, err := h.orch.EndMeeting(c.Request.Context(), identity(c), domain.RoomID(c.Param("roomId")), req.Reason)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *adminHandlers) announce(c *gin.Context) {
	var req messageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, domain.ErrValidation)
		return
	}
	n, err := h.orch.Announce(c.Request.Context(), identity(c), domain.RoomID(req.RoomID), req.Message)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"delivered": n})
}

func (h *adminHandlers) disconnectUser(c *gin.Context) {
	var req reasonRequest
	if !bindOptional(c, &req) {
		return
	}
	n, err := h.orch.DisconnectUser(c.Request.Context(), identity(c), domain.UserID(c.Param("userId")), req.Reason)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"disconnected": n})
}

func (h *adminHandlers) notifyUser(c *gin.Context) {
	var req messageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, domain.ErrValidation)
		return
	}
	n, err := h.orch.NotifyUser(c.Request.Context(), identity(c), domain.UserID(c.Param("userId")), req.Message)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"delivered": n})
}

func (h *adminHandlers) activity(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	items, err := h.orch.AdminActivity(c.Request.Context(), identity(c), limit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"activity": items})
}

// bindOptional accepts an empty body.
func bindOptional(c *gin.Context, v any) bool {
	if c.Request.ContentLength == 0 {
		return true
	}
	if err := c.ShouldBindJSON(v); err != nil {
		writeError(c, domain.ErrValidation)
		return false
	}
	return true
}

func writeError(c *gin.Context, err error) {
	code := domain.Code(err)
	msg := err.Error()
	if code == domain.CodeInternal {
		log.Error().Err(err).Str("module", "adapters.http").Str("path", c.FullPath()).Msg("admin request failed")
		msg = "internal error"
	}
	c.JSON(statusOf(code), gin.H{"code": code, "error": msg})
}

func statusOf(code string) int {
	switch code {
	case domain.CodeValidation:
		return http.StatusBadRequest
	case domain.CodeUnauthorized:
		return http.StatusForbidden
	case domain.CodeNotFound:
		return http.StatusNotFound
	case domain.CodeConflict, domain.CodeAlreadyProcessed:
		return http.StatusConflict
	case domain.CodeRateLimited:
		return http.StatusTooManyRequests
	}
	return http.StatusInternalServerError
}

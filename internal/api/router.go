package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Gopher0727/MindBridge/internal/handler"
	"github.com/Gopher0727/MindBridge/utils/ratelimit"
)

// Handlers groups every HTTP handler the router serves.
type Handlers struct {
	Auth    *handler.AuthHandler
	Circle  *handler.CircleHandler
	Content *handler.ContentHandler
	Friend  *handler.FriendHandler
	Message *handler.MessageHandler
	Mood    *handler.MoodHandler
	Journal *handler.JournalHandler
	WS      *handler.WSHandler
}

// NewRouter builds the gin engine with middleware and every route.
func NewRouter(mode string, m *MiddlewareManager, h *Handlers) *gin.Engine {
	if mode != "" {
		gin.SetMode(mode)
	}
	r := gin.New()
	r.Use(m.Recovery(), m.Logger(), m.CORS())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if h.WS != nil {
		r.GET("/ws", h.WS.Serve)
	}

	RegisterRoutes(r, m, h)
	return r
}

// RegisterRoutes registers all API routes
func RegisterRoutes(r *gin.Engine, m *MiddlewareManager, h *Handlers) {
	api := r.Group("/api/v1")

	// Public routes
	auth := api.Group("/auth")
	{
		auth.POST("/register", m.RateLimit(ratelimit.ClassRegister), h.Auth.Register)
		auth.POST("/login", m.RateLimit(ratelimit.ClassLogin), h.Auth.Login)
	}

	// 公开圈子允许匿名浏览
	browse := api.Group("/")
	browse.Use(m.OptionalAuth(), m.RateLimit(ratelimit.ClassAPI))
	{
		browse.GET("/circles", h.Circle.ListCircles)
		browse.GET("/circles/:id", h.Circle.GetCircle)
		browse.GET("/circles/:id/members", h.Circle.ListMembers)
		browse.GET("/circles/:id/permissions", h.Circle.Permissions)
		browse.GET("/circles/:id/posts", h.Content.ListPosts)
		browse.GET("/posts/:id", h.Content.GetPost)
		browse.GET("/posts/:id/comments", h.Content.ListComments)
		browse.GET("/users/:id/moods", h.Mood.UserMoods)
	}

	// Protected routes
	protected := api.Group("/")
	protected.Use(m.JWTAuth(), m.RateLimit(ratelimit.ClassAPI))
	{
		protected.GET("/me", h.Auth.Profile)
		protected.PUT("/me", h.Auth.UpdateProfile)

		circles := protected.Group("/circles")
		{
			circles.POST("", h.Circle.CreateCircle)
			circles.GET("/mine", h.Circle.MyCircles)
			circles.PATCH("/:id", h.Circle.UpdateCircle)
			circles.POST("/:id/join", h.Circle.Join)
			circles.POST("/:id/leave", h.Circle.Leave)
			circles.GET("/:id/pending", h.Circle.ListPending)
			circles.POST("/:id/members/:user_id/approve", h.Circle.Approve)
			circles.POST("/:id/members/:user_id/reject", h.Circle.Reject)
			circles.DELETE("/:id/members/:user_id", h.Circle.RemoveMember)
			circles.PUT("/:id/members/:user_id/role", h.Circle.SetRole)
			circles.POST("/:id/reconcile", h.Circle.Reconcile)
			circles.POST("/:id/posts", h.Content.CreatePost)
		}

		posts := protected.Group("/posts")
		{
			posts.PATCH("/:id", h.Content.EditPost)
			posts.DELETE("/:id", h.Content.DeletePost)
			posts.POST("/:id/comments", h.Content.CreateComment)
		}

		comments := protected.Group("/comments")
		{
			comments.PATCH("/:id", h.Content.EditComment)
			comments.DELETE("/:id", h.Content.DeleteComment)
		}

		friends := protected.Group("/friends")
		{
			friends.GET("", h.Friend.List)
			friends.POST("/requests", h.Friend.SendRequest)
			friends.POST("/:id/accept", h.Friend.Accept)
			friends.POST("/:id/reject", h.Friend.Reject)
			friends.POST("/:id/cancel", h.Friend.Cancel)
			friends.DELETE("/:id", h.Friend.Remove)
			friends.GET("/status/:user_id", h.Friend.Status)
		}

		messages := protected.Group("/messages")
		{
			messages.POST("", m.RateLimit(ratelimit.ClassMessage), h.Message.Send)
			messages.GET("/unread", h.Message.Unread)
			messages.GET("/:user_id", h.Message.Conversation)
			messages.POST("/:id/read", h.Message.MarkRead)
		}

		moods := protected.Group("/moods")
		{
			moods.POST("", h.Mood.LogMood)
			moods.GET("", h.Mood.ListMoods)
		}

		journal := protected.Group("/journal")
		{
			journal.POST("", h.Journal.CreateEntry)
			journal.GET("", h.Journal.ListEntries)
			journal.DELETE("/:id", h.Journal.DeleteEntry)
		}
		protected.GET("/users/:id/journal", h.Journal.UserJournal)
	}
}

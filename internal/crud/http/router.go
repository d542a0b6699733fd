package http

import (
	"github.com/gin-gonic/gin"

	"github.com/allisson/autoapi/internal/entity"
)

// RegisterRoutes mounts the generated routes for every registered
// entity-type under /v1/{entity}.
//
// Regular entities get the full CRUD surface:
//
//	GET    /v1/{entity}           list (offset/limit pagination)
//	GET    /v1/{entity}/count     count
//	GET    /v1/{entity}/:id       get by id
//	POST   /v1/{entity}           create
//	POST   /v1/{entity}/bulk      bulk create
//	PATCH  /v1/{entity}/:id       partial update
//	PATCH  /v1/{entity}/bulk      bulk partial update
//	DELETE /v1/{entity}/:id       delete
//	DELETE /v1/{entity}/bulk      bulk delete
//
// Login entities are credential holders and expose only:
//
//	POST /v1/{entity}/login       verify credentials, issue token
//	POST /v1/{entity}/logout      revoke the caller's token
//
// loginRateLimit, when non-nil, guards the login route.
func RegisterRoutes(
	router gin.IRouter,
	registry *entity.Registry,
	handler *Handler,
	loginRateLimit gin.HandlerFunc,
) {
	v1 := router.Group("/v1")

	for _, def := range registry.All() {
		group := v1.Group("/" + def.Name)

		if def.Login {
			if loginRateLimit != nil {
				group.POST("/login", loginRateLimit, handler.LoginHandler(def))
			} else {
				group.POST("/login", handler.LoginHandler(def))
			}
			group.POST("/logout", handler.LogoutHandler(def.Name))
			continue
		}

		group.GET("", handler.ListHandler(def.Name))
		group.GET("/count", handler.CountHandler(def.Name))
		group.GET("/:id", handler.GetHandler(def.Name))
		group.POST("", handler.CreateHandler(def.Name))
		group.POST("/bulk", handler.CreateBulkHandler(def.Name))
		group.PATCH("/:id", handler.UpdateHandler(def.Name))
		group.PATCH("/bulk", handler.UpdateBulkHandler(def.Name))
		group.DELETE("/:id", handler.DeleteHandler(def.Name))
		group.DELETE("/bulk", handler.DeleteBulkHandler(def.Name))
	}
}

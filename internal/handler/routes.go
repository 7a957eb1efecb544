package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/vial-compliance-api/internal/middleware"
	"github.com/noah-isme/vial-compliance-api/internal/models"
)

// Handlers groups every HTTP handler mounted by RegisterRoutes.
type Handlers struct {
	Auth        *AuthHandler
	Users       *UserHandler
	Directory   *DirectoryHandler
	Enrollments *EnrollmentHandler
	Reports     *ReportHandler
	Metrics     *MetricsHandler
}

// RegisterRoutes mounts the API under prefix and the health checks at the root.
func RegisterRoutes(r *gin.Engine, prefix string, h Handlers, tokens middleware.TokenValidator) {
	r.GET("/health", h.Metrics.Health)
	r.GET("/ready", h.Metrics.Ready)
	r.GET("/metrics", h.Metrics.Prometheus)

	api := r.Group(prefix)
	api.Use(middleware.AuditContext())

	auth := api.Group("/auth")
	auth.POST("/login", h.Auth.Login)
	auth.POST("/refresh", h.Auth.Refresh)
	auth.POST("/logout", middleware.JWT(tokens), h.Auth.Logout)
	auth.GET("/me", middleware.JWT(tokens), h.Auth.Me)

	api.GET("/export/:token", h.Reports.Download)

	secured := api.Group("")
	secured.Use(middleware.JWT(tokens))
	admin := middleware.RequireRoles(models.RoleAdmin)

	users := secured.Group("/users")
	users.GET("", admin, h.Users.List)
	users.POST("", admin, h.Users.Create)
	users.GET("/:id", middleware.RBAC(string(models.RoleAdmin), middleware.Self), h.Users.Get)
	users.PUT("/:id", admin, h.Users.Update)
	users.DELETE("/:id", admin, h.Users.Delete)

	persons := secured.Group("/persons")
	persons.GET("", h.Directory.ListPersons)
	persons.GET("/:id", h.Directory.GetPerson)
	persons.POST("", admin, h.Directory.CreatePerson)
	persons.PUT("/:id", admin, h.Directory.UpdatePerson)
	persons.DELETE("/:id", admin, h.Directory.DeletePerson)

	courses := secured.Group("/courses")
	courses.GET("", h.Directory.ListCourses)
	courses.GET("/:id", h.Directory.GetCourse)
	courses.POST("", admin, h.Directory.CreateCourse)
	courses.PUT("/:id", admin, h.Directory.UpdateCourse)
	courses.DELETE("/:id", admin, h.Directory.DeleteCourse)

	for _, kind := range []models.OfficialKind{models.OfficialInspector, models.OfficialJudge} {
		group := secured.Group("/" + string(kind))
		group.GET("", h.Directory.ListOfficials(kind))
		group.GET("/:id", h.Directory.GetOfficial(kind))
		group.POST("", admin, h.Directory.CreateOfficial(kind))
		group.PUT("/:id", admin, h.Directory.UpdateOfficial(kind))
		group.DELETE("/:id", admin, h.Directory.DeleteOfficial(kind))
	}

	enrollments := secured.Group("/enrollments")
	enrollments.POST("", admin, h.Enrollments.Create)
	enrollments.GET("", h.Enrollments.List)
	enrollments.GET("/:id", h.Enrollments.Get)
	enrollments.POST("/:id/status", h.Enrollments.Transition)
	enrollments.POST("/:id/complete", h.Enrollments.Complete)
	enrollments.POST("/:id/use", h.Enrollments.Use)
	enrollments.POST("/:id/expire", h.Enrollments.Expire)
	enrollments.DELETE("/:id", admin, h.Enrollments.Delete)

	reports := secured.Group("/reports")
	reports.GET("/compliance", middleware.RequireRoles(models.RoleInspector, models.RoleJudge, models.RoleAdmin), h.Reports.Compliance)
	reports.POST("/compliance/export", admin, h.Reports.Export)

	secured.GET("/metrics/summary", admin, h.Metrics.Summary)
}

package transport

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/docflowhq/docflow/internal/config"
	"github.com/docflowhq/docflow/internal/directory"
	"github.com/docflowhq/docflow/internal/instance"
	"github.com/docflowhq/docflow/internal/notification"
	"github.com/docflowhq/docflow/internal/observability"
	"github.com/docflowhq/docflow/internal/permission"
	"github.com/docflowhq/docflow/internal/sla"
	"github.com/docflowhq/docflow/internal/template"
)

// Dependencies holds all injected dependencies for the HTTP transport layer.
type Dependencies struct {
	Config       *config.Config
	Logger       *zap.Logger
	Authenticate func(http.Handler) http.Handler
	Metrics      *observability.Metrics
	Ready        http.HandlerFunc

	Templates     *template.Service
	Engine        *instance.Engine
	Permissions   *permission.Service
	Monitor       *sla.Monitor
	Notifications notification.Store
	Directory     *directory.Service
}

// NewRouter creates a chi.Router with the full middleware pipeline and all
// route registrations. Health, readiness, and metrics endpoints bypass the
// authentication middleware.
func NewRouter(deps Dependencies) chi.Router {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	r := chi.NewRouter()

	// Global middleware: applied to all routes including health.
	r.Use(Recovery(logger))
	r.Use(observability.TracingMiddleware)
	r.Use(CORS(deps.Config.Server.CORS))
	r.Use(RequestID)
	r.Use(SecurityHeaders)

	// Public routes bypass authentication.
	r.Get("/healthz", observability.HandleHealth())
	ready := deps.Ready
	if ready == nil {
		ready = func(w http.ResponseWriter, _ *http.Request) {
			WriteJSON(w, http.StatusOK, map[string]string{"status": "ready"})
		}
	}
	r.Get("/readyz", ready)
	if deps.Config.Observability.Metrics.Enabled {
		path := deps.Config.Observability.Metrics.Path
		if path == "" {
			path = "/metrics"
		}
		r.Method(http.MethodGet, path, observability.Handler())
	}

	// Authenticated routes carry the full middleware chain.
	auth := deps.Authenticate
	if auth == nil {
		auth = func(next http.Handler) http.Handler { return next }
	}

	r.Group(func(r chi.Router) {
		r.Use(auth)
		r.Use(BuildRequestContext(deps.Config.Identity.ClaimPaths))
		r.Use(HandlerTimeout(deps.Config.Server.HandlerTimeout))
		r.Use(RequestLogging(logger))
		if deps.Metrics != nil {
			r.Use(deps.Metrics.MetricsMiddleware)
		}

		// Workflow templates.
		r.Post("/workflow-templates", handleTemplateCreate(deps.Templates))
		r.Get("/workflow-templates", handleTemplateList(deps.Templates))
		r.Get("/workflow-templates/{templateId}", handleTemplateGet(deps.Templates))
		r.Put("/workflow-templates/{templateId}", handleTemplateUpdate(deps.Templates))
		r.Delete("/workflow-templates/{templateId}", handleTemplateDelete(deps.Templates))

		// Workflow instances.
		r.Post("/workflows", handleWorkflowStart(deps.Engine, deps.Metrics))
		r.Get("/workflows", handleWorkflowList(deps.Engine))
		r.Get("/workflows/{instanceId}", handleWorkflowGet(deps.Engine))
		r.Put("/workflows/{instanceId}/steps/{stepId}", handleWorkflowProcess(deps.Engine, deps.Metrics, logger))
		r.Post("/workflows/{instanceId}/cancel", handleWorkflowCancel(deps.Engine, deps.Metrics))

		// Permission grants.
		r.Post("/workflow-permissions", handlePermissionCreate(deps.Permissions))
		r.Get("/workflow-permissions/templates/{templateId}", handlePermissionList(deps.Permissions))
		r.Put("/workflow-permissions/{grantId}", handlePermissionUpdate(deps.Permissions))
		r.Delete("/workflow-permissions/{grantId}", handlePermissionDelete(deps.Permissions))
		r.Post("/workflow-permissions/copy", handlePermissionCopy(deps.Permissions))

		// SLA monitoring.
		r.Get("/workflow/sla/stats", handleSLAStats(deps.Monitor))
		r.Get("/workflow/sla/overdue", handleSLAOverdue(deps.Monitor))
		r.Get("/workflow/sla/upcoming", handleSLAUpcoming(deps.Monitor))
		r.Post("/workflow/steps/{stepId}/reassign", handleStepReassign(deps.Monitor))

		// Notifications.
		r.Get("/workflow-notifications", handleNotificationList(deps.Notifications))
		r.Put("/workflow-notifications/read/all", handleNotificationReadAll(deps.Notifications))
		r.Put("/workflow-notifications/{notificationId}/read", handleNotificationRead(deps.Notifications))

		// Directory.
		r.Post("/users", handleUserCreate(deps.Directory))
		r.Get("/users", handleUserList(deps.Directory))
		r.Get("/users/{userId}", handleUserGet(deps.Directory))
		r.Put("/users/{userId}", handleUserUpdate(deps.Directory))
		r.Delete("/users/{userId}", handleUserDelete(deps.Directory))
		r.Post("/departments", handleDepartmentCreate(deps.Directory))
		r.Get("/departments", handleDepartmentList(deps.Directory))
		r.Get("/departments/{departmentId}", handleDepartmentGet(deps.Directory))
		r.Put("/departments/{departmentId}", handleDepartmentUpdate(deps.Directory))
		r.Delete("/departments/{departmentId}", handleDepartmentDelete(deps.Directory))
	})

	return r
}

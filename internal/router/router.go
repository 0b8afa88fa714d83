// internal/router/router.go
package router

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/handlers"
	"go.uber.org/zap"

	"github.com/bellyrush/marketplace/internal/api"
	"github.com/bellyrush/marketplace/internal/api/handler"
	"github.com/bellyrush/marketplace/internal/db/repository"
	"github.com/bellyrush/marketplace/internal/middleware"
	"github.com/bellyrush/marketplace/internal/models"
	"github.com/bellyrush/marketplace/internal/service"
	"github.com/bellyrush/marketplace/internal/websockets"
)

// Services are the business services the routes are bound to
type Services struct {
	Accounts map[models.Role]*service.AccountService
	Tokens   *service.TokenService
	Menus    *service.MenuService
	Orders   *service.OrderService
	Admin    *service.AdminService
}

// Options tune the HTTP surface
type Options struct {
	MaxUploadBytes int64
	AllowedOrigins []string
	// UploadsDir is served under /uploads/ when images are stored locally
	UploadsDir string
}

// Router handles HTTP routing
type Router struct {
	mux   *http.ServeMux
	repos *repository.Repositories
	svc   Services
	hub   *websockets.Hub
	opts  Options
	log   *zap.Logger
}

// New creates a new router
func New(repos *repository.Repositories, svc Services, hub *websockets.Hub, opts Options, log *zap.Logger) *Router {
	if log == nil {
		log = zap.NewNop()
	}
	r := &Router{
		mux:   http.NewServeMux(),
		repos: repos,
		svc:   svc,
		hub:   hub,
		opts:  opts,
		log:   log,
	}

	r.setupRoutes()

	return r
}

// ServeHTTP implements the http.Handler interface
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// Handler returns the router wrapped in request logging, CORS and panic
// recovery.
func (r *Router) Handler() http.Handler {
	origins := r.opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	var h http.Handler = r
	h = middleware.Logger(r.log)(h)
	h = handlers.CORS(
		handlers.AllowedOrigins(origins),
		handlers.AllowedMethods([]string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}),
		handlers.AllowedHeaders([]string{"Content-Type", "Authorization"}),
	)(h)
	h = handlers.RecoveryHandler(
		handlers.RecoveryLogger(recoveryLogger{r.log}),
		handlers.PrintRecoveryStack(false),
	)(h)
	return h
}

type recoveryLogger struct {
	log *zap.Logger
}

func (l recoveryLogger) Println(v ...any) {
	l.log.Error("recovered from panic", zap.String("panic", fmt.Sprint(v...)), zap.Stack("stack"))
}

// protect requires a valid bearer token carrying one of roles
func (r *Router) protect(h http.HandlerFunc, roles ...models.Role) http.Handler {
	return middleware.Auth(r.svc.Tokens)(middleware.RequireRole(roles...)(h))
}

// setupRoutes sets up the routes for the router
func (r *Router) setupRoutes() {
	// Account routes, mirrored for every role
	for _, role := range models.Roles() {
		accounts, ok := r.svc.Accounts[role]
		if !ok {
			continue
		}
		h := handler.NewAccountHandler(accounts, r.opts.MaxUploadBytes, r.log)
		name := string(role)

		r.mux.HandleFunc("POST /api/"+name+"register", h.Register)
		r.mux.HandleFunc("POST /api/"+name+"login", h.Login)
		r.mux.HandleFunc("POST /api/verify"+name+"otp", h.VerifyOTP)
		r.mux.HandleFunc("PUT /api/resend"+name+"otp", h.ResendOTP)
		r.mux.Handle("GET /api/"+name+"profile", r.protect(h.Profile, role))
		r.mux.Handle("PUT /api/update"+name+"profile", r.protect(h.UpdateProfile, role))
	}

	// Admin routes
	admin := handler.NewAdminHandler(r.svc.Admin, r.log)
	for _, role := range []models.Role{models.RoleVendor, models.RoleBuyer, models.RoleDelivery} {
		r.mux.Handle("GET /api/all"+role.Collection(), r.protect(admin.ListAccounts(role), models.RoleAdmin))
		r.mux.Handle("DELETE /api/remove"+title(role)+"/{id}", r.protect(admin.RemoveAccount(role), models.RoleAdmin))
	}
	r.mux.Handle("GET /api/allmenus", r.protect(admin.ListMenus, models.RoleAdmin))
	r.mux.Handle("DELETE /api/removeMenu/{id}", r.protect(admin.RemoveMenu, models.RoleAdmin))
	r.mux.Handle("GET /api/allorders", r.protect(admin.ListOrders, models.RoleAdmin))
	r.mux.Handle("DELETE /api/removeOrder/{id}", r.protect(admin.RemoveOrder, models.RoleAdmin))
	r.mux.Handle("GET /api/stats", r.protect(admin.Stats, models.RoleAdmin))

	// Menu routes
	menus := handler.NewMenuHandler(r.svc.Menus, r.opts.MaxUploadBytes, r.log)
	r.mux.Handle("POST /api/createmenu", r.protect(menus.Create, models.RoleVendor))
	r.mux.Handle("PUT /api/updatemenu/{id}", r.protect(menus.Update, models.RoleVendor))
	r.mux.Handle("DELETE /api/deletemenu/{id}", r.protect(menus.Delete, models.RoleVendor))
	r.mux.Handle("GET /api/vendormenu", r.protect(menus.VendorMenu, models.RoleVendor))
	r.mux.HandleFunc("GET /api/vendors", menus.Vendors)
	r.mux.HandleFunc("GET /api/vendors/{id}/menu", menus.PublicMenu)

	// Order routes
	orders := handler.NewOrderHandler(r.svc.Orders, r.log)
	r.mux.Handle("POST /api/createorder", r.protect(orders.Create, models.RoleBuyer))
	r.mux.Handle("GET /api/buyerorders", r.protect(orders.BuyerOrders, models.RoleBuyer))
	r.mux.Handle("GET /api/vendororders", r.protect(orders.VendorOrders, models.RoleVendor))
	r.mux.Handle("GET /api/availableorders", r.protect(orders.Available, models.RoleDelivery))
	r.mux.Handle("PUT /api/acceptorder/{id}", r.protect(orders.Accept, models.RoleDelivery))
	r.mux.Handle("PUT /api/deliverorder/{id}", r.protect(orders.Deliver, models.RoleDelivery))
	r.mux.Handle("PUT /api/updatestatus", r.protect(orders.UpdateStatus, models.RoleVendor, models.RoleDelivery, models.RoleAdmin))

	// Event stream
	if r.hub != nil {
		r.mux.Handle("GET /ws", handler.NewWebSocketHandler(r.hub, r.svc.Tokens, r.opts.AllowedOrigins))
	}

	if r.opts.UploadsDir != "" {
		r.mux.Handle("GET /uploads/", http.StripPrefix("/uploads/", http.FileServer(http.Dir(r.opts.UploadsDir))))
	}

	r.mux.HandleFunc("GET /healthz", r.handleHealth)

	r.mux.HandleFunc("/", func(w http.ResponseWriter, req *http.Request) {
		api.NotFound(w, "route not found")
	})
}

// title turns a role into the capitalised form used by the remove routes
func title(role models.Role) string {
	s := string(role)
	return strings.ToUpper(s[:1]) + s[1:]
}

// handleHealth pings the backing store
func (r *Router) handleHealth(w http.ResponseWriter, req *http.Request) {
	ctx, cancel := context.WithTimeout(req.Context(), 2*time.Second)
	defer cancel()

	if err := r.repos.Ping(ctx); err != nil {
		r.log.Warn("health check failed", zap.Error(err))
		api.Message(w, http.StatusServiceUnavailable, "storage unavailable")
		return
	}
	api.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

package handler

import (
	"net/http"
	"strconv"

	"github.com/Astemirdum/library-borrowing/library/internal/errs"
	"github.com/Astemirdum/library-borrowing/pkg/auth"
	"github.com/Astemirdum/library-borrowing/pkg/metrics"
	md "github.com/Astemirdum/library-borrowing/pkg/middleware"
	"github.com/Astemirdum/library-borrowing/pkg/validate"
	_ "github.com/Astemirdum/library-borrowing/swagger"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"
	echoSwagger "github.com/swaggo/echo-swagger"
	"go.uber.org/zap"
)

type Handler struct {
	catalogSvc CatalogService
	ledgerSvc  LedgerService
	jwtSecret  []byte
	log        *zap.Logger
}

func New(catalogSvc CatalogService, ledgerSvc LedgerService, jwtSecret []byte, log *zap.Logger) *Handler {
	return &Handler{
		catalogSvc: catalogSvc,
		ledgerSvc:  ledgerSvc,
		jwtSecret:  jwtSecret,
		log:        log.Named("handler"),
	}
}

// @title Library borrowing API
// @version 1.0
// @BasePath /api/v1
// @securityDefinitions.apikey Bearer
// @in header
// @name Authorization
func (h *Handler) NewRouter() *echo.Echo {
	e := echo.New()
	const (
		baseRPS = 10
		apiRPS  = 100
	)
	e.Pre(middleware.RemoveTrailingSlash())
	e.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{
		StackSize: 4 << 10, // 4 KB
	}))
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{http.MethodGet, http.MethodOptions, http.MethodHead, http.MethodPut, http.MethodPatch, http.MethodPost, http.MethodDelete},
		AllowCredentials: true,
	}))
	e.Use(metrics.Middleware)

	base := e.Group("", md.NewRateLimiter(baseRPS))
	base.GET("/manage/health", h.Health)
	base.GET("/metrics", metrics.Handler())
	base.GET("/swagger/*", echoSwagger.WrapHandler)

	e.Validator = validate.NewCustomValidator()
	api := e.Group("/api/v1",
		middleware.RequestLoggerWithConfig(md.RequestLoggerConfig(h.log)),
		middleware.RequestID(),
		md.NewRateLimiter(apiRPS),
	)
	authMW := md.JwtAuthentication(h.jwtSecret)

	api.GET("/books", h.ListBooks)
	api.GET("/books/:id", h.GetBook)
	api.POST("/books", h.CreateBook, authMW)
	api.PUT("/books/:id", h.UpdateBook, authMW)
	api.PATCH("/books/:id", h.PatchBook, authMW)
	api.DELETE("/books/:id", h.DeleteBook, authMW)

	borrowings := api.Group("/borrowings", authMW)
	borrowings.GET("", h.ListBorrowings)
	borrowings.GET("/:id", h.GetBorrowing)
	borrowings.POST("/create", h.CreateBorrowing)
	borrowings.POST("/return/:id", h.ReturnBorrowing)

	return e
}

func (h *Handler) Health(c echo.Context) error {
	return c.String(http.StatusOK, "OK")
}

func pathID(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "id is invalid")
	}
	return id, nil
}

// permit checks the caller's role before the request body is read.
func (h *Handler) permit(c echo.Context, allowed func(auth.Caller) bool) error {
	caller := auth.GetCaller(c.Request().Context())
	switch {
	case !caller.Authenticated():
		return h.httpError(errs.ErrUnauthorized)
	case !allowed(caller):
		return h.httpError(errs.ErrForbidden)
	}
	return nil
}

// bind decodes and validates the request body.
func bind(c echo.Context, req any) error {
	if err := c.Bind(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request body")
	}
	if err := c.Validate(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return nil
}

func (h *Handler) httpError(err error) error {
	switch {
	case errors.Is(err, errs.ErrValidation):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, errs.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, errs.ErrUnauthorized):
		return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
	case errors.Is(err, errs.ErrForbidden):
		return echo.NewHTTPError(http.StatusForbidden, err.Error())
	case errors.Is(err, errs.ErrConflict):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	}
	h.log.Error("internal", zap.Error(err))
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}

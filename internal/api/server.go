package api

import (
	"context"
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"

	"github.com/nikmy/graphtx/internal/users"
	"github.com/nikmy/graphtx/pkg/bookmark"
	"github.com/nikmy/graphtx/pkg/errors"
	"github.com/nikmy/graphtx/pkg/logger"
	"github.com/nikmy/graphtx/pkg/txn"
)

type Server interface {
	Serve(ctx context.Context) error
	Shutdown(ctx context.Context) error
}

// NewServer serves the users API. bookmarks may be nil when bookmark
// management is off, metrics may be nil when metrics are disabled.
func NewServer(
	cfg Config,
	log logger.Logger,
	usersAPI users.API,
	bookmarks *bookmark.Store,
	metrics http.Handler,
) Server {
	serveLog := log.With("api_http_server")

	fiberCfg := fiber.Config{
		ReadTimeout:             cfg.HTTP.ReadTimeout,
		WriteTimeout:            cfg.HTTP.WriteTimeout,
		IdleTimeout:             cfg.HTTP.IdleTimeout,
		BodyLimit:               cfg.HTTP.BodyLimit,
		DisableStartupMessage:   true,
		EnableTrustedProxyCheck: len(cfg.Proxy.Trusted) > 0,
		ProxyHeader:             cfg.Proxy.Header,
		TrustedProxies:          cfg.Proxy.Trusted,
		RequestMethods:          []string{fiber.MethodGet, fiber.MethodPost},
	}

	fiberCfg.ErrorHandler = func(c *fiber.Ctx, err error) error {
		var fiberErr *fiber.Error
		if errors.As(err, &fiberErr) {
			return sendError(c, fiberErr.Code, fiberErr.Message)
		}

		serveLog.Warn(errors.WrapFail(err, "handle http request"))
		return sendError(c, statusOf(err), "internal error")
	}

	s := &server{
		users:     usersAPI,
		bookmarks: bookmarks,
		metrics:   metrics,
		http:      fiber.New(fiberCfg),
		addr:      cfg.HTTP.Addr,
		log:       serveLog,
	}

	s.setupRoutes()

	return s
}

type server struct {
	users     users.API
	bookmarks *bookmark.Store
	metrics   http.Handler
	http      *fiber.App
	addr      string
	log       logger.Logger
}

func (s *server) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() { errCh <- s.http.Listen(s.addr) }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return errors.Error("serve context done")
	}
}

func (s *server) Shutdown(ctx context.Context) error {
	return errors.WrapFail(s.http.ShutdownWithContext(ctx), "shutdown http server")
}

func (s *server) setupRoutes() {
	s.http.Post("/users", s.handleCreate)
	s.http.Post("/users/batch", s.handleBatch)
	s.http.Get("/users", s.handleList)
	s.http.Get("/bookmarks", s.handleBookmarks)

	if s.metrics != nil {
		s.http.Get("/metrics", adaptor.HTTPHandler(s.metrics))
	}
}

type savedResponse struct {
	Users     []users.User `json:"users"`
	Bookmarks []string     `json:"bookmarks"`
}

func (s *server) handleCreate(c *fiber.Ctx) error {
	var u users.User
	err := c.BodyParser(&u)
	if err != nil {
		s.log.Warn(errors.WrapFail(err, "unmarshal user payload"))
		return sendError(c, http.StatusBadRequest, "bad json")
	}

	return s.save(c, []users.User{u})
}

func (s *server) handleBatch(c *fiber.Ctx) error {
	var batch []users.User
	err := c.BodyParser(&batch)
	if err != nil {
		s.log.Warn(errors.WrapFail(err, "unmarshal users payload"))
		return sendError(c, http.StatusBadRequest, "bad json")
	}

	return s.save(c, batch)
}

func (s *server) save(c *fiber.Ctx, batch []users.User) error {
	saved, produced, err := s.users.SaveAll(c.Context(), batch)
	if errors.Is(err, users.ErrInvalidUser) {
		return sendError(c, http.StatusBadRequest, err.Error())
	}
	if err != nil {
		return errors.WrapFail(err, "save users")
	}

	return c.Status(http.StatusCreated).JSON(savedResponse{Users: saved, Bookmarks: produced.Strings()})
}

// handleList reads causally after every "bookmark" query parameter.
func (s *server) handleList(c *fiber.Ctx) error {
	after := bookmarksFromQuery(c)

	var (
		found []users.User
		err   error
	)
	if name := c.Query("name"); name != "" {
		found, err = s.users.ByName(c.Context(), name, after)
	} else {
		found, err = s.users.All(c.Context(), after)
	}
	if err != nil {
		return errors.WrapFail(err, "list users")
	}

	return c.Status(http.StatusOK).JSON(map[string][]users.User{"users": found})
}

func (s *server) handleBookmarks(c *fiber.Ctx) error {
	if s.bookmarks == nil {
		return sendError(c, http.StatusNotFound, "bookmark management is disabled")
	}

	db := c.Query("db")
	return c.Status(http.StatusOK).JSON(map[string]any{
		"database":  db,
		"bookmarks": s.bookmarks.Get(db).Strings(),
	})
}

func bookmarksFromQuery(c *fiber.Ctx) bookmark.Set {
	raw := c.Context().QueryArgs().PeekMulti("bookmark")
	values := make([]string, 0, len(raw))
	for _, v := range raw {
		values = append(values, string(v))
	}
	return bookmark.FromStrings(values...)
}

func statusOf(err error) int {
	if errors.IsAny(err, txn.ErrBackendUnavailable, txn.ErrRetriesExhausted) {
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func sendError(c *fiber.Ctx, status int, msg string) error {
	return c.Status(status).JSON(map[string]string{"status": "ERROR", "message": msg})
}

package registry

import (
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/example/teesched/internal/clock"
	"github.com/example/teesched/internal/task"
	"github.com/example/teesched/internal/trigger"
)

// Server exposes the registry over HTTP. List and single reads never carry
// credentials; the secure-config path does and sits behind the operator
// token, as do status writes.
type Server struct {
	Store Store
	Log   *zap.SugaredLogger

	// Zone is the civil timezone opening times are specified in.
	Zone          string
	LateTolerance time.Duration

	// TokenHash is the bcrypt hash of the operator token. Empty disables
	// the guard (local single-operator deployments).
	TokenHash string

	// Now is injectable for tests.
	Now func() time.Time
}

type errorResponse struct {
	Error string `json:"error"`
}

type createTaskRequest struct {
	Username   string `json:"username"`
	Password   string `json:"password"`
	Course     int    `json:"course"`
	Players    int    `json:"players"`
	Holes      int    `json:"holes"`
	TimeStart  string `json:"timeStart"`
	TimeEnd    string `json:"timeEnd"`
	TargetDate string `json:"targetDate"`

	// When slots open: date (optional, default today in Zone) and civil
	// wall-clock time.
	OpensDate  string `json:"opensDate"`
	OpenHour   *int   `json:"openHour"`
	OpenMinute *int   `json:"openMinute"`
}

type statusRequest struct {
	Status string `json:"status"`
	Error  string `json:"error"`
}

// SecureTask is the wire form of the one credential-bearing read.
type SecureTask struct {
	task.Task
	Credentials task.Credentials `json:"credentials"`
}

func (s *Server) App() *fiber.App {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		AppName:               "teesched-registry",
	})

	app.Get("/api/health", s.handleHealth)
	app.Post("/api/tasks", s.handleCreate)
	app.Get("/api/tasks", s.handleList)
	app.Get("/api/tasks/:id", s.handleGet)
	app.Get("/api/tasks/:id/secure-config", s.requireToken, s.handleSecureConfig)
	app.Put("/api/tasks/:id/status", s.requireToken, s.handleStatus)
	app.Delete("/api/tasks/:id", s.handleDelete)

	return app
}

func (s *Server) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Server) lateTolerance() time.Duration {
	if s.LateTolerance > 0 {
		return s.LateTolerance
	}
	return trigger.DefaultLateTolerance
}

// requireToken guards credential-bearing and state-changing routes with the
// operator token.
func (s *Server) requireToken(c *fiber.Ctx) error {
	if s.TokenHash == "" {
		return c.Next()
	}
	auth := c.Get(fiber.HeaderAuthorization)
	tok, ok := strings.CutPrefix(auth, "Bearer ")
	if !ok || bcrypt.CompareHashAndPassword([]byte(s.TokenHash), []byte(tok)) != nil {
		s.Log.Warnw("token_rejected", "path", c.Path())
		return c.Status(fiber.StatusUnauthorized).JSON(errorResponse{Error: "invalid operator token"})
	}
	return c.Next()
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	tasks, err := s.Store.List(c.Context())
	if err != nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(errorResponse{Error: err.Error()})
	}
	return c.JSON(fiber.Map{
		"status":    "ok",
		"timestamp": s.now().UTC().Format(time.RFC3339),
		"tasks":     len(tasks),
	})
}

func (s *Server) handleCreate(c *fiber.Ctx) error {
	var req createTaskRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(errorResponse{Error: "invalid request body"})
	}
	if req.Username == "" || req.Password == "" {
		return c.Status(fiber.StatusBadRequest).JSON(errorResponse{Error: "username and password are required"})
	}
	if req.OpenHour == nil || req.OpenMinute == nil {
		return c.Status(fiber.StatusBadRequest).JSON(errorResponse{Error: "openHour and openMinute are required"})
	}

	opening, err := DeriveOpening(s.Zone, req.OpensDate, *req.OpenHour, *req.OpenMinute, s.now(), s.lateTolerance())
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(errorResponse{Error: err.Error()})
	}

	t := task.Task{
		Credentials: task.Credentials{Username: req.Username, Password: req.Password},
		Params: task.Parameters{
			Course:    orDefault(req.Course, 3),
			Players:   orDefault(req.Players, 4),
			Holes:     orDefault(req.Holes, 18),
			TimeStart: orDefaultStr(req.TimeStart, "07:00"),
			TimeEnd:   orDefaultStr(req.TimeEnd, "18:00"),
		},
		TargetDate:     req.TargetDate,
		OpeningInstant: opening,
	}

	created, err := s.Store.Create(c.Context(), t)
	if err != nil {
		if errors.Is(err, task.ErrInvalid) || errors.Is(err, clock.ErrInvalidTimeSpec) {
			return c.Status(fiber.StatusBadRequest).JSON(errorResponse{Error: err.Error()})
		}
		s.Log.Errorw("task_create_failed", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(errorResponse{Error: err.Error()})
	}
	s.Log.Infow("task_created", "id", created.ID, "opening", created.OpeningInstant, "course", created.Params.Course)
	return c.Status(fiber.StatusCreated).JSON(created)
}

func (s *Server) handleList(c *fiber.Ctx) error {
	tasks, err := s.Store.List(c.Context())
	if err != nil {
		s.Log.Errorw("task_list_failed", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(errorResponse{Error: err.Error()})
	}
	if tasks == nil {
		tasks = []task.Task{}
	}
	return c.JSON(tasks)
}

func (s *Server) handleGet(c *fiber.Ctx) error {
	t, err := s.Store.Get(c.Context(), c.Params("id"))
	if err != nil {
		return s.storeError(c, err)
	}
	return c.JSON(t)
}

func (s *Server) handleSecureConfig(c *fiber.Ctx) error {
	t, err := s.Store.SecureConfig(c.Context(), c.Params("id"))
	if err != nil {
		return s.storeError(c, err)
	}
	return c.JSON(SecureTask{Task: t, Credentials: t.Credentials})
}

func (s *Server) handleStatus(c *fiber.Ctx) error {
	var req statusRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(errorResponse{Error: "invalid request body"})
	}
	id := c.Params("id")
	if err := s.Store.UpdateStatus(c.Context(), id, task.Status(req.Status), req.Error); err != nil {
		if errors.Is(err, task.ErrBadTransition) {
			return c.Status(fiber.StatusConflict).JSON(errorResponse{Error: err.Error()})
		}
		return s.storeError(c, err)
	}
	s.Log.Infow("task_status_updated", "id", id, "status", req.Status)
	t, err := s.Store.Get(c.Context(), id)
	if err != nil {
		return s.storeError(c, err)
	}
	return c.JSON(t)
}

func (s *Server) handleDelete(c *fiber.Ctx) error {
	id := c.Params("id")
	if err := s.Store.Delete(c.Context(), id); err != nil {
		if errors.Is(err, ErrRunning) {
			return c.Status(fiber.StatusConflict).JSON(errorResponse{Error: "cannot cancel a running task"})
		}
		return s.storeError(c, err)
	}
	s.Log.Infow("task_cancelled", "id", id)
	return c.JSON(fiber.Map{"cancelled": id})
}

func (s *Server) storeError(c *fiber.Ctx, err error) error {
	if errors.Is(err, ErrNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(errorResponse{Error: "task not found"})
	}
	s.Log.Errorw("registry_store_error", "error", err)
	return c.Status(fiber.StatusInternalServerError).JSON(errorResponse{Error: err.Error()})
}

func orDefault(v, def int) int {
	if v == 0 {
		return def
	}
	return v
}

func orDefaultStr(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/piata-ai/signalcore/internal/console/handler"
	"github.com/piata-ai/signalcore/internal/infra"
	"github.com/piata-ai/signalcore/internal/infra/auth"
	"go.uber.org/zap"
)

type ConsoleServer struct {
	router *chi.Mux
	logger *zap.Logger
	cfg    *infra.Config

	// Проверка токенов операторов (RS256)
	authValidator auth.TokenValidator

	// Обработчики бизнес-доменов
	authHandler     *handler.AuthHandler      // /auth/token
	signalHandler   *handler.SignalHandler    // /v1/signals, /v1/broadcast, /v1/calls, /v1/agents
	classifyHandler *handler.ClassifyHandler  // /v1/classify, /v1/rules, /v1/queue, /v1/events
	dashHandler     *handler.DashboardHandler // /api/v1/dashboard, /v1/alerts
	replayHandler   *handler.ReplayHandler    // /v1/replay
}

// NewConsoleServer инициализирует HTTP API со всеми зависимостями
func NewConsoleServer(
	cfg *infra.Config,
	logger *zap.Logger,
	validator auth.TokenValidator,
	authH *handler.AuthHandler,
	signalH *handler.SignalHandler,
	classifyH *handler.ClassifyHandler,
	dashH *handler.DashboardHandler,
	replayH *handler.ReplayHandler,
) *ConsoleServer {
	s := &ConsoleServer{
		router:          chi.NewRouter(),
		logger:          logger.Named("console-api"),
		cfg:             cfg,
		authValidator:   validator,
		authHandler:     authH,
		signalHandler:   signalH,
		classifyHandler: classifyH,
		dashHandler:     dashH,
		replayHandler:   replayH,
	}

	s.routes()
	return s
}

func (s *ConsoleServer) routes() {
	r := s.router

	// --- 1. Глобальные инфраструктурные Middleware (для всех) ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// --- 2. ПУБЛИЧНЫЕ РОУТЫ ---
	r.Group(func(r chi.Router) {
		// Логин доступен без токена
		r.Post("/auth/token", s.authHandler.Login)

		// Healthcheck для мониторинга
		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})
	})

	// --- 3. ЗАЩИЩЕННЫЙ ПЕРИМЕТР (требуют RS256 токен) ---
	r.Group(func(r chi.Router) {
		r.Use(auth.NewMiddleware(s.authValidator, s.logger))

		// Журнал сигналов
		r.Route("/v1/signals", func(r chi.Router) {
			r.Post("/", s.signalHandler.Log)
			r.Get("/", s.signalHandler.List)
			r.Get("/stream", s.signalHandler.Stream)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.signalHandler.Get)
				r.Post("/status", s.signalHandler.UpdateStatus)
			})
		})

		// Широковещание и точечные вызовы
		r.Post("/v1/broadcast", s.signalHandler.Broadcast)
		r.Route("/v1/calls", func(r chi.Router) {
			r.Post("/", s.signalHandler.Call)
			r.Post("/{id}/complete", s.signalHandler.CompleteCall)
		})

		// Реестр агентов
		r.Route("/v1/agents", func(r chi.Router) {
			r.Get("/", s.signalHandler.ListAgents)
			r.Post("/heartbeat", s.signalHandler.Heartbeat)
			r.Route("/{name}", func(r chi.Router) {
				r.Get("/", s.signalHandler.GetAgent)
				r.Get("/performance", s.signalHandler.AgentPerformance)
			})
		})

		// Классификация и очередь приоритетов
		r.Post("/v1/classify", s.classifyHandler.Classify)
		r.Route("/v1/queue", func(r chi.Router) {
			r.Post("/next", s.classifyHandler.NextSignal)
			r.Get("/stats", s.classifyHandler.QueueStats)
			r.Delete("/", s.classifyHandler.ClearQueue)
		})
		r.Get("/v1/classifier/stats", s.classifyHandler.FilterStats)

		// Правила фильтрации
		r.Route("/v1/rules", func(r chi.Router) {
			r.Get("/", s.classifyHandler.ListRules)
			r.Post("/", s.classifyHandler.CreateRule)
			r.Route("/{id}", func(r chi.Router) {
				r.Put("/", s.classifyHandler.UpdateRule)
				r.Delete("/", s.classifyHandler.DeleteRule)
			})
		})

		// Критические события
		r.Route("/v1/events", func(r chi.Router) {
			r.Get("/", s.classifyHandler.ListEvents)
			r.Post("/{id}/status", s.classifyHandler.UpdateEventStatus)
		})

		// Дашборд и алерты
		r.Route("/api/v1/dashboard", func(r chi.Router) {
			r.Get("/", s.dashHandler.GetData)
			r.Get("/agents/{name}/history", s.dashHandler.AgentHistory)
		})
		r.Route("/v1/alerts", func(r chi.Router) {
			r.Post("/{id}/ack", s.dashHandler.AckAlert)
			r.Post("/{id}/resolve", s.dashHandler.ResolveAlert)
		})

		// Воспроизведение
		r.Route("/v1/replay", func(r chi.Router) {
			r.Post("/", s.replayHandler.Create)
			r.Get("/", s.replayHandler.List)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.replayHandler.Get)
				r.Post("/start", s.replayHandler.Start)
				r.Post("/pause", s.replayHandler.Pause)
				r.Post("/resume", s.replayHandler.Resume)
				r.Post("/stop", s.replayHandler.Stop)
				r.Post("/speed", s.replayHandler.SetSpeed)
				r.Get("/report", s.replayHandler.Report)
				r.Get("/export", s.replayHandler.Export)
			})
		})

		// Обслуживание
		r.Post("/v1/maintenance/requeue-stale", s.signalHandler.RequeueStale)
	})
}

// ServeHTTP позволяет использовать ConsoleServer как стандартный http.Handler
func (s *ConsoleServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

package httpapi

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"collegehub-backend/internal/config"
	"collegehub-backend/internal/models"
	"collegehub-backend/internal/ratelimit"
	"collegehub-backend/internal/services"
	"collegehub-backend/internal/store"
)

type Server struct {
	Config     config.Config
	Repo       store.Repository
	Students   *services.StudentService
	Clubs      *services.ClubService
	Events     *services.EventService
	Attendance *services.AttendanceService
	Documents  *services.DocumentService
	Limiter    ratelimit.Limiter
	MetricsHub *services.MetricsHub
	History    *services.MetricsHistory
	Registry   *prometheus.Registry
	metrics    requestMetrics
	proxies    trustedProxies
}

func NewServer(cfg config.Config, repo store.Repository, limiter ratelimit.Limiter, hub *services.MetricsHub, history *services.MetricsHistory, registry *prometheus.Registry) *Server {
	tokens := services.NewTokenService(cfg.JWTSecret, cfg.JWTIssuer, cfg.TokenTTL, cfg.BcryptCost)
	uploads := services.NewUploadStore(cfg.UploadPath, cfg.MaxUploadBytes)
	return &Server{
		Config:     cfg,
		Repo:       repo,
		Students:   services.NewStudentService(repo, tokens),
		Clubs:      services.NewClubService(repo),
		Events:     services.NewEventService(repo),
		Attendance: services.NewAttendanceService(repo),
		Documents:  services.NewDocumentService(repo, uploads),
		Limiter:    limiter,
		MetricsHub: hub,
		History:    history,
		Registry:   registry,
		metrics:    newRequestMetrics(registry),
		proxies:    parseTrustedProxies(cfg.TrustedProxies),
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.RequestLogger)
	if len(s.Config.CorsOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   s.Config.CorsOrigins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
			AllowCredentials: false,
			MaxAge:           300,
		}))
	}

	auth := WithAuth(s.Students)
	can := RequireCapability

	r.Route("/api", func(api chi.Router) {
		api.Route("/auth", func(a chi.Router) {
			a.With(RateLimit(s.Limiter, s.proxies)).Post("/register", s.Register)
			a.With(RateLimit(s.Limiter, s.proxies)).Post("/login", s.Login)
			a.With(auth).Get("/me", s.Me)
			a.With(auth).Get("/permissions", s.Permissions)
		})

		api.Route("/clubs", func(clubs chi.Router) {
			clubs.Use(auth)
			clubs.With(can(services.CapViewClubs)).Get("/", s.ListClubs)
			clubs.With(can(services.CapCrudClubs)).Post("/", s.CreateClub)
			clubs.Route("/{type}", func(club chi.Router) {
				club.With(can(services.CapViewClubs)).Get("/", s.GetClub)
				club.With(can(services.CapCrudClubs)).Delete("/", s.DeleteClub)
				club.With(can(services.CapJoinClubs)).Put("/join", s.JoinClub)
				club.With(can(services.CapJoinClubs)).Put("/leave", s.LeaveClub)
				club.With(can(services.CapViewClubs)).Get("/subclubs", s.ListSubclubs)
				club.With(can(services.CapCrudClubs)).Post("/subclubs", s.CreateSubclub)
				club.With(can(services.CapViewClubs)).Get("/subclubs/{name}", s.GetSubclub)
				club.With(can(services.CapJoinClubs)).Put("/subclubs/{name}/join", s.JoinSubclub)
				club.With(can(services.CapCrudClubs)).Delete("/subclubs/{name}", s.DeleteSubclub)
				club.With(can(services.CapCrudClubs)).Delete("/subclubs/{name}/members/{id}", s.RemoveSubclubMember)
			})
		})

		api.Route("/events", func(events chi.Router) {
			events.Use(auth)
			events.With(can(services.CapViewEvents)).Get("/", s.ListEvents)
			events.With(can(services.CapCreateEvents)).Post("/", s.CreateEvent)
			events.With(can(services.CapViewEvents)).Get("/{id}", s.GetEvent)
			events.With(can(services.CapCreateEvents)).Put("/{id}", s.UpdateEvent)
			events.With(can(services.CapCreateEvents)).Delete("/{id}", s.DeleteEvent)
		})

		api.Route("/curriculum", func(cur chi.Router) {
			kind := models.KindCurriculum
			cur.Get("/", s.ListDocuments(kind))
			cur.Get("/{id}", s.GetDocument(kind))
			cur.With(auth, can(services.CapCrudCurriculum)).Post("/", s.CreateDocument(kind))
			cur.With(auth).Put("/{id}", s.UpdateDocument(kind))
			cur.With(auth).Delete("/{id}", s.DeleteDocument(kind))
		})

		api.Route("/library", func(lib chi.Router) {
			kind := models.KindLibrary
			lib.Get("/", s.ListDocuments(kind))
			lib.With(auth).Get("/my-uploads", s.ListMyDocuments(kind))
			lib.Get("/{id}", s.GetDocument(kind))
			lib.With(auth, can(services.CapUploadLibrary)).Post("/", s.CreateDocument(kind))
			lib.With(auth).Put("/{id}", s.UpdateDocument(kind))
			lib.With(auth).Delete("/{id}", s.DeleteDocument(kind))
		})

		api.Route("/attendance", func(att chi.Router) {
			att.Use(auth)
			view := can(services.CapViewAttendance)
			mark := can(services.CapMarkAttendance)
			att.With(view).Get("/subjects", s.ListSubjects)
			att.With(mark).Post("/subjects", s.CreateSubject)
			att.With(mark).Delete("/subjects/{id}", s.DeleteSubject)
			att.With(view).Get("/subjects/{id}/records", s.ListAttendance)
			att.With(mark).Post("/subjects/{id}/records", s.MarkAttendance)
			att.With(view).Get("/subjects/{id}/percentage", s.SubjectPercentage)
			att.With(view).Get("/percentage", s.OverallPercentage)
			att.With(mark).Delete("/records/{id}", s.DeleteAttendance)
		})

		api.Route("/admin", func(admin chi.Router) {
			admin.Use(auth)
			admin.With(can(services.CapAddStudents)).Post("/club/add-student", s.AddStudent)
			admin.With(can(services.CapViewStudents)).Get("/students", s.ListStudents)
			admin.With(RequireRole(models.RoleCoordinator)).Post("/reconcile", s.Reconcile)
			admin.With(can(services.CapViewMetrics)).Get("/metrics/history", s.MetricsHistory)
		})
	})

	r.Get("/healthz", s.Health)
	r.Handle("/metrics", promhttp.HandlerFor(s.Registry, promhttp.HandlerOpts{}))
	r.Handle(services.UploadURLPrefix+"*", s.uploadsHandler())
	r.Get("/ws/metrics", s.MetricsSocket)
	return r
}

// uploadsHandler serves stored files but never directory listings.
func (s *Server) uploadsHandler() http.Handler {
	files := http.StripPrefix(services.UploadURLPrefix, http.FileServer(http.Dir(s.Config.UploadPath)))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/") {
			WriteError(w, http.StatusNotFound, "Not found")
			return
		}
		w.Header().Set("X-Content-Type-Options", "nosniff")
		files.ServeHTTP(w, r)
	})
}

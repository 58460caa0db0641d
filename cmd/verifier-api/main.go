package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-logr/logr"
	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"

	"github.com/moda-gov-tw/twdiw-trust-engine/internal/logging"
	"github.com/moda-gov-tw/twdiw-trust-engine/internal/ratelimit"
	"github.com/moda-gov-tw/twdiw-trust-engine/issuer/pkg/credential"
	issuererrors "github.com/moda-gov-tw/twdiw-trust-engine/issuer/pkg/errors"
	"github.com/moda-gov-tw/twdiw-trust-engine/issuer/pkg/models"
	"github.com/moda-gov-tw/twdiw-trust-engine/verifier/pkg/did"
	verifierModels "github.com/moda-gov-tw/twdiw-trust-engine/verifier/pkg/models"
	"github.com/moda-gov-tw/twdiw-trust-engine/verifier/pkg/oidvp"
	"github.com/moda-gov-tw/twdiw-trust-engine/verifier/pkg/vp"
)

// Config is populated from TWDIW_-prefixed environment variables.
type Config struct {
	Port              string        `envconfig:"PORT" default:"8080"`
	IssuerDID         string        `envconfig:"ISSUER_DID" default:"did:example:issuer"`
	IssuerKey         string        `envconfig:"ISSUER_KEY"`
	VPVerifyURI       string        `envconfig:"VP_VERIFY_URI" default:"http://localhost:8080/api/presentation/validation"`
	StatusListBaseURL string        `envconfig:"STATUS_LIST_BASE_URL" default:"http://localhost:8080/api/status-list"`
	HTTPTimeout       time.Duration `envconfig:"HTTP_TIMEOUT" default:"5s"`
	OIDVPSessionTTL   time.Duration `envconfig:"OIDVP_SESSION_TTL" default:"10m"`
	Production        bool          `envconfig:"PRODUCTION" default:"false"`
}

// Validate rejects configurations with missing deadlines; outbound
// calls never fall back to a runtime default.
func (c Config) Validate() error {
	if c.HTTPTimeout <= 0 {
		return fmt.Errorf("TWDIW_HTTP_TIMEOUT must be a positive duration")
	}
	if c.OIDVPSessionTTL <= 0 {
		return fmt.Errorf("TWDIW_OIDVP_SESSION_TTL must be a positive duration")
	}
	return nil
}

type Server struct {
	config            Config
	log               logr.Logger
	validate          *validator.Validate
	limiter           ratelimit.Limiter
	vpService         *vp.Service
	oidvpService      *oidvp.VerifierService
	credentialService *credential.Service

	httpServer *http.Server
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithLimiter installs a rate limiter consulted before every request.
// No limiter is installed by default; limiting policy belongs to the
// caller.
func WithLimiter(l ratelimit.Limiter) ServerOption {
	return func(s *Server) { s.limiter = l }
}

func NewServer(cfg Config, log logr.Logger, opts ...ServerOption) *Server {
	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}
	resolver := did.NewResolver(did.WithHTTPClient(httpClient))
	vpService := vp.NewServiceWithResolver(resolver,
		vp.WithLogger(log.WithName("vp")),
		vp.WithHTTPClient(httpClient),
	)

	s := &Server{
		config:    cfg,
		log:       log,
		validate:  validator.New(),
		vpService: vpService,
		oidvpService: oidvp.NewVerifierService(cfg.VPVerifyURI,
			oidvp.WithSessionTTL(cfg.OIDVPSessionTTL),
			oidvp.WithVPService(vpService),
		),
		credentialService: credential.NewService(cfg.IssuerDID, cfg.IssuerKey,
			credential.WithStatusListBaseURL(cfg.StatusListBaseURL),
		),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Server) Start(addr string) error {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/health", s.handleHealth)

	mux.HandleFunc("/api/credential", s.handleCredentialGenerate)        // POST
	mux.HandleFunc("/api/credential/query", s.handleCredentialQuery)     // GET
	mux.HandleFunc("/api/credential/revoke", s.handleCredentialRevoke)   // PUT
	mux.HandleFunc("/api/credential/suspend", s.handleCredentialSuspend) // PUT
	mux.HandleFunc("/api/credential/recover", s.handleCredentialRecover) // PUT

	mux.HandleFunc("/api/status-list/", s.handleStatusList) // GET

	mux.HandleFunc("/api/presentation/validation", s.handleVPValidation) // POST

	mux.HandleFunc("/api/oidvp/verify", s.handleOIDVPVerify)    // POST
	mux.HandleFunc("/api/oidvp/result", s.handleOIDVPGetResult) // GET

	fs := http.FileServer(http.Dir("./web"))
	mux.Handle("/", fs)

	handler := ratelimit.Middleware(s.limiter, s.loggingMiddleware(corsMiddleware(mux)))

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.log.Info("starting API server", "addr", addr, "issuerDID", s.config.IssuerDID)
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("shutting down server")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status": "healthy",
		"time":   time.Now().Format(time.RFC3339),
		"services": map[string]string{
			"vp":         "ready",
			"oidvp":      "ready",
			"credential": "ready",
		},
	})
}

func (s *Server) handleCredentialGenerate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req models.CredentialRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.IssuerDID == "" {
		req.IssuerDID = s.config.IssuerDID
	}

	if err := s.validate.Struct(&req); err != nil {
		vcErr := issuererrors.NewVCError(
			issuererrors.ErrCredInvalidCredentialGenerationRequest,
			fmt.Sprintf("invalid credential generation request: %v", err),
		)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(vcErr.HTTPStatus())
		json.NewEncoder(w).Encode(vcErr.Response())
		return
	}

	result, status, _ := s.credentialService.Generate(r.Context(), &req)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write([]byte(result))
}

func (s *Server) handleCredentialQuery(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	cid := r.URL.Query().Get("cid")
	nonce := r.URL.Query().Get("nonce")

	var result string
	var status int
	if cid != "" {
		result, status, _ = s.credentialService.Query(r.Context(), cid)
	} else {
		result, status, _ = s.credentialService.QueryByNonce(r.Context(), nonce)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write([]byte(result))
}

func (s *Server) handleCredentialRevoke(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut && r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	cid := r.URL.Query().Get("cid")
	result, status, _ := s.credentialService.Revoke(r.Context(), cid)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write([]byte(result))
}

func (s *Server) handleCredentialSuspend(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut && r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	cid := r.URL.Query().Get("cid")
	result, status, _ := s.credentialService.Suspend(r.Context(), cid)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write([]byte(result))
}

func (s *Server) handleCredentialRecover(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut && r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	cid := r.URL.Query().Get("cid")
	result, status, _ := s.credentialService.Recover(r.Context(), cid)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write([]byte(result))
}

// handleStatusList serves the signed status-list JWT published under
// the requested well-known URL, so verifiers can fetch and verify the
// bits a credential's credentialStatus entry points at.
func (s *Server) handleStatusList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	listID := strings.TrimPrefix(r.URL.Path, "/api/status-list/")
	url := strings.TrimSuffix(s.config.StatusListBaseURL, "/") + "/" + listID
	blob, ok := s.credentialService.GetPublishedStatusList(url)
	if !ok {
		http.Error(w, "status list not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/jwt")
	w.Write([]byte(blob))
}

func (s *Server) handleVPValidation(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var presentations []string
	if err := json.NewDecoder(r.Body).Decode(&presentations); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	result, status, _ := s.vpService.Validate(r.Context(), presentations)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write([]byte(result))
}

func (s *Server) handleOIDVPVerify(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var request struct {
		VPToken                string `json:"vp_token"`
		PresentationSubmission string `json:"presentation_submission"`
		Error                  string `json:"error"`
		ErrorDescription       string `json:"error_description"`
		Nonce                  string `json:"nonce"`
		ClientID               string `json:"client_id"`
		PresentationDefinition string `json:"presentation_definition"`
	}

	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	authzResponse := &verifierModels.OIDVPAuthorizationResponse{
		VPToken:                request.VPToken,
		PresentationSubmission: request.PresentationSubmission,
		Error:                  request.Error,
		ErrorDescription:       request.ErrorDescription,
	}

	result, err := s.oidvpService.Verify(
		r.Context(),
		authzResponse,
		request.Nonce,
		request.ClientID,
		request.PresentationDefinition,
	)

	w.Header().Set("Content-Type", "application/json")

	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]interface{}{"error": err.Error()})
		return
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(result)
}

func (s *Server) handleOIDVPGetResult(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	clientID := r.URL.Query().Get("client_id")
	nonce := r.URL.Query().Get("nonce")

	result, err := s.oidvpService.GetVerifyResult(r.Context(), clientID, nonce)

	w.Header().Set("Content-Type", "application/json")

	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]interface{}{"error": err.Error()})
		return
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(result)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.log.V(1).Info("request", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start).String())
	})
}

func main() {
	var cfg Config
	if err := envconfig.Process("twdiw", &cfg); err != nil {
		panic(err)
	}
	if err := cfg.Validate(); err != nil {
		panic(err)
	}

	log, err := logging.New("verifier-api", cfg.Production)
	if err != nil {
		panic(err)
	}

	server := NewServer(cfg, log)

	go func() {
		sigint := make(chan os.Signal, 1)
		signal.Notify(sigint, os.Interrupt, syscall.SIGTERM)
		<-sigint

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			log.Error(err, "server shutdown error")
		}
	}()

	if err := server.Start(":" + cfg.Port); err != nil && err != http.ErrServerClosed {
		log.Error(err, "server failed to start")
		os.Exit(1)
	}

	log.Info("server stopped")
}

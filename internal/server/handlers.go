package server

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/franckalain/healthwise/internal/catalog"
	"github.com/franckalain/healthwise/internal/failure"
	"github.com/franckalain/healthwise/internal/flows"
	"github.com/franckalain/healthwise/internal/models"
	"github.com/franckalain/healthwise/internal/scan"
	"github.com/franckalain/healthwise/internal/session"
)

const (
	maxHistoryLimit = 100
	dashboardScans  = 5
	// defaultVoiceCommand is what the one-tap voice button asks.
	defaultVoiceCommand = "Is this product safe for me and what are some alternatives?"
)

func userOf(c echo.Context) (session.Context, error) {
	sc, ok := session.FromContext(c.Request().Context())
	if !ok {
		return session.Context{}, echo.NewHTTPError(http.StatusUnauthorized, "no session")
	}
	return sc, nil
}

// loadProfile returns the stored profile or the empty default.
func (s *Server) loadProfile(ctx context.Context, userID string) (models.HealthProfile, error) {
	p, _, err := s.store.GetProfile(ctx, userID)
	return p, err
}

// profileOrDefault is loadProfile for paths that work without a profile:
// a read failure is logged and the empty default is used instead.
func (s *Server) profileOrDefault(ctx context.Context, userID string) models.HealthProfile {
	p, err := s.loadProfile(ctx, userID)
	if err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Msg("Profile read failed, using default")
		return models.HealthProfile{}
	}
	return p
}

// requireProfile loads the profile and refuses an incomplete one.
func (s *Server) requireProfile(ctx context.Context, userID string) (models.HealthProfile, error) {
	p, err := s.loadProfile(ctx, userID)
	if err != nil {
		return p, err
	}
	if !p.Complete() {
		return p, failure.Validationf("server.requireProfile", "Please complete your health profile first for an accurate analysis.")
	}
	return p, nil
}

func (s *Server) handleHealth(c echo.Context) error {
	db := s.store.Health(c.Request().Context())
	status := http.StatusOK
	if db["status"] != "up" {
		status = http.StatusServiceUnavailable
	}
	return c.JSON(status, map[string]any{
		"status":   http.StatusText(status),
		"database": db,
	})
}

type profileResponse struct {
	Profile  models.HealthProfile `json:"profile"`
	Complete bool                 `json:"complete"`
	Stored   bool                 `json:"stored"`
}

func (s *Server) handleGetProfile(c echo.Context) error {
	sc, err := userOf(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	p, found, err := s.store.GetProfile(ctx, sc.UserID)
	if err != nil {
		// Reads fall back to the empty profile so the form still renders.
		zerolog.Ctx(ctx).Warn().Err(err).Msg("Profile read failed, serving default")
		p, found = models.HealthProfile{}, false
	}
	return c.JSON(http.StatusOK, profileResponse{Profile: p, Complete: p.Complete(), Stored: found})
}

func (s *Server) handlePutProfile(c echo.Context) error {
	sc, err := userOf(c)
	if err != nil {
		return err
	}
	var patch models.HealthProfilePatch
	if err := c.Bind(&patch); err != nil {
		return failure.Validationf("server.PutProfile", "invalid profile body")
	}
	if patch.Empty() {
		return failure.Validationf("server.PutProfile", "no profile fields supplied")
	}
	if patch.Age != nil && (*patch.Age < 0 || *patch.Age > 150) {
		return failure.Validationf("server.PutProfile", "age must be between 0 and 150")
	}
	if patch.Gender != nil && !patch.Gender.Valid() {
		return failure.Validationf("server.PutProfile", "gender must be male, female or other")
	}

	ctx := c.Request().Context()
	p, err := s.store.SaveProfile(ctx, sc.UserID, patch)
	if err != nil {
		return err
	}
	zerolog.Ctx(ctx).Info().Bool("complete", p.Complete()).Msg("Profile saved")
	return c.JSON(http.StatusOK, profileResponse{Profile: p, Complete: p.Complete(), Stored: true})
}

func (s *Server) historyLimit(raw string) (int, error) {
	if raw == "" {
		return s.cfg.HistoryLimit, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, failure.Validationf("server.History", "limit must be a positive integer")
	}
	return min(n, maxHistoryLimit), nil
}

func (s *Server) handleHistory(c echo.Context) error {
	sc, err := userOf(c)
	if err != nil {
		return err
	}
	limit, err := s.historyLimit(c.QueryParam("limit"))
	if err != nil {
		return err
	}
	recs, err := s.store.RecentScans(c.Request().Context(), sc.UserID, limit)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"items": recs})
}

type dashboardResponse struct {
	Profile     models.HealthProfile       `json:"profile"`
	Stats       models.HistoryStats        `json:"stats"`
	SafePercent int                        `json:"safePercent"`
	RecentScans []models.ScanHistoryRecord `json:"recentScans"`
}

func (s *Server) handleDashboard(c echo.Context) error {
	sc, err := userOf(c)
	if err != nil {
		return err
	}

	var resp dashboardResponse
	g, ctx := errgroup.WithContext(c.Request().Context())
	g.Go(func() error {
		resp.Profile = s.profileOrDefault(ctx, sc.UserID)
		return nil
	})
	g.Go(func() (err error) {
		resp.Stats, err = s.store.ScanStats(ctx, sc.UserID)
		return err
	})
	g.Go(func() (err error) {
		resp.RecentScans, err = s.store.RecentScans(ctx, sc.UserID, dashboardScans)
		return err
	})
	if err := g.Wait(); err != nil {
		return err
	}
	resp.SafePercent = resp.Stats.SafePercent()
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleQuote(c echo.Context) error {
	sc, err := userOf(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	p := s.profileOrDefault(ctx, sc.UserID)
	out, err := s.flows.GenerateMotivationalQuote(ctx, flows.GenerateMotivationalQuoteInput{
		HealthConditions: strings.Join(p.Conditions(), ", "),
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) handleProducts(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{"items": catalog.Products()})
}

// productRef names a product either by catalog id or by explicit details.
type productRef struct {
	ProductID   string                 `json:"productId"`
	ProductName string                 `json:"productName"`
	Details     *models.ProductDetails `json:"details"`
}

func (r productRef) resolve(op string) (string, models.ProductDetails, error) {
	if r.ProductID != "" {
		p, ok := catalog.Lookup(r.ProductID)
		if !ok {
			return "", models.ProductDetails{}, failure.Validationf(op, "unknown product %q", r.ProductID)
		}
		return p.Name, p.Details, nil
	}
	if r.Details == nil {
		return "", models.ProductDetails{}, failure.Validationf(op, "a product id or product details are required")
	}
	name := strings.TrimSpace(r.ProductName)
	if name == "" {
		name = "Manual entry"
	}
	return name, *r.Details, nil
}

type analysisResponse struct {
	Result *models.AnalysisResult    `json:"result"`
	Record *models.ScanHistoryRecord `json:"record,omitempty"`
	Saved  bool                      `json:"saved"`
}

// record appends the finished scan to the user's history. A storage
// failure is logged and reported in the response, not returned.
func (s *Server) record(ctx context.Context, userID, fallbackName string, res *models.AnalysisResult) (*models.ScanHistoryRecord, bool) {
	rec := res.HistoryRecord(fallbackName, time.Now())
	if err := s.store.AppendScan(ctx, userID, &rec); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("Failed to record scan")
		return &rec, false
	}
	return &rec, true
}

func (s *Server) handleAnalyze(c echo.Context) error {
	const op = "server.Analyze"
	sc, err := userOf(c)
	if err != nil {
		return err
	}
	var ref productRef
	if err := c.Bind(&ref); err != nil {
		return failure.Validationf(op, "invalid analysis body")
	}
	name, details, err := ref.resolve(op)
	if err != nil {
		return err
	}

	ctx := c.Request().Context()
	p, err := s.loadProfile(ctx, sc.UserID)
	if err != nil {
		return err
	}
	// A one-shot machine applies the same profile gate as the live scanner.
	m := scan.New(nil, scan.WithLogger(*zerolog.Ctx(ctx)))
	defer m.Close()
	res, err := m.Run(ctx, p, scan.SourceManual, func(ctx context.Context) (*models.AnalysisResult, error) {
		return s.flows.AnalyzeProduct(ctx, flows.AnalyzeProductInput{HealthProfile: p, ProductDetails: details})
	})
	if err != nil {
		return err
	}
	rec, saved := s.record(ctx, sc.UserID, name, res)
	return c.JSON(http.StatusOK, analysisResponse{Result: res, Record: rec, Saved: saved})
}

type imageRequest struct {
	Image string `json:"image"` // data URI
}

func (s *Server) handleAnalyzeImage(c echo.Context) error {
	const op = "server.AnalyzeImage"
	sc, err := userOf(c)
	if err != nil {
		return err
	}
	var req imageRequest
	if err := c.Bind(&req); err != nil {
		return failure.Validationf(op, "invalid image body")
	}
	img, err := models.ParseDataURI(req.Image)
	if err != nil {
		return failure.Validationf(op, "%s", err.Error())
	}

	ctx := c.Request().Context()
	p, err := s.loadProfile(ctx, sc.UserID)
	if err != nil {
		return err
	}
	m := scan.New(nil, scan.WithLogger(*zerolog.Ctx(ctx)))
	defer m.Close()
	res, err := m.Run(ctx, p, scan.SourceUpload, func(ctx context.Context) (*models.AnalysisResult, error) {
		return s.flows.AnalyzeProductImage(ctx, flows.AnalyzeProductImageInput{HealthProfile: p, Image: img})
	})
	if err != nil {
		return err
	}
	rec, saved := s.record(ctx, sc.UserID, "Unknown product", res)
	return c.JSON(http.StatusOK, analysisResponse{Result: res, Record: rec, Saved: saved})
}

func (s *Server) handleRecommendations(c echo.Context) error {
	const op = "server.Recommendations"
	sc, err := userOf(c)
	if err != nil {
		return err
	}
	var ref productRef
	if err := c.Bind(&ref); err != nil {
		return failure.Validationf(op, "invalid recommendations body")
	}
	name, details, err := ref.resolve(op)
	if err != nil {
		return err
	}

	ctx := c.Request().Context()
	p, err := s.requireProfile(ctx, sc.UserID)
	if err != nil {
		return err
	}
	out, err := s.flows.GenerateAlternativeRecommendations(ctx, flows.GenerateAlternativeRecommendationsInput{
		UserHealthProfile: p.Summary(),
		ProductDetails:    fmt.Sprintf("%s: %s", name, details.Describe()),
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, out)
}

type chatRequest struct {
	Query string `json:"query"`
}

func (s *Server) handleChat(c echo.Context) error {
	sc, err := userOf(c)
	if err != nil {
		return err
	}
	var req chatRequest
	if err := c.Bind(&req); err != nil {
		return failure.Validationf("server.Chat", "invalid chat body")
	}
	ctx := c.Request().Context()
	p := s.profileOrDefault(ctx, sc.UserID)
	out, err := s.flows.AnswerHealthQuery(ctx, flows.AnswerHealthQueryInput{
		Query:            req.Query,
		HealthConditions: p.MedicalConditions,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, out)
}

type voiceRequest struct {
	Command        string `json:"command"`
	ProductDetails string `json:"productDetails"`
}

func (s *Server) handleVoice(c echo.Context) error {
	sc, err := userOf(c)
	if err != nil {
		return err
	}
	var req voiceRequest
	if err := c.Bind(&req); err != nil {
		return failure.Validationf("server.Voice", "invalid voice body")
	}
	if strings.TrimSpace(req.Command) == "" {
		req.Command = defaultVoiceCommand
	}
	ctx := c.Request().Context()
	p := s.profileOrDefault(ctx, sc.UserID)
	out, err := s.flows.ProcessVoiceCommand(ctx, flows.ProcessVoiceCommandInput{
		VoiceCommand:   req.Command,
		HealthProfile:  p.Summary(),
		ProductDetails: req.ProductDetails,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, out)
}

package httpapi

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/giveharbor/giveharbor-backend/internal/domain"
	"github.com/giveharbor/giveharbor-backend/internal/usecase/disbursement"
)

// headerActorID carries the authenticated operator's ID, supplied by the
// auth layer in front of this service.
const headerActorID = "X-Actor-ID"

// Config holds the HTTP server configuration
type Config struct {
	APIToken string
	Logger   *zap.Logger
}

// Server exposes the disbursement engine to the dashboard layer
type Server struct {
	app          *fiber.App
	disbursement *disbursement.Service
	charityRepo  domain.CharityRepository
	donationRepo domain.DonationRepository
	logger       *zap.Logger
}

// NewServer creates a new HTTP server with routes and middleware wired
func NewServer(
	disbursementService *disbursement.Service,
	charityRepo domain.CharityRepository,
	donationRepo domain.DonationRepository,
	cfg Config,
) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	app := fiber.New(fiber.Config{
		AppName:      "giveharbor-disbursement",
		ErrorHandler: errorHandler,
	})

	s := &Server{
		app:          app,
		disbursement: disbursementService,
		charityRepo:  charityRepo,
		donationRepo: donationRepo,
		logger:       logger,
	}

	app.Use(cors.New())
	app.Use(fiberlogger.New())

	app.Get("/health", s.handleHealth)

	api := app.Group("/api/v1", AuthMiddleware(cfg.APIToken))
	api.Post("/disbursements", s.handleCreateDisbursement)
	api.Get("/disbursements", s.handleListBatches)
	api.Get("/disbursements/:id", s.handleGetBatchDetail)
	api.Get("/charities", s.handleListVerifiedCharities)
	api.Get("/donations/undisbursed", s.handleListUndisbursedDonations)

	return s
}

// App exposes the underlying Fiber app (used by tests)
func (s *Server) App() *fiber.App {
	return s.app
}

// Listen starts the HTTP server on the given address
func (s *Server) Listen(addr string) error {
	return s.app.Listen(addr)
}

// Shutdown gracefully stops the HTTP server
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

type createDisbursementRequest struct {
	Notes string `json:"notes"`
}

// handleCreateDisbursement triggers a bulk disbursement run.
// An empty pending pool is a legitimate no-op and is reported as 200 with
// a distinct status rather than as an error.
func (s *Server) handleCreateDisbursement(c *fiber.Ctx) error {
	actorID, err := uuid.Parse(c.Get(headerActorID))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "missing or invalid "+headerActorID+" header")
	}

	var req createDisbursementRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
	}

	batchID, err := s.disbursement.CreateBulkDisbursement(c.Context(), disbursement.CreateBulkDisbursementInput{
		ActorID: actorID,
		Notes:   req.Notes,
	})
	if err != nil {
		if errors.Is(err, domain.ErrNoPendingFunds) {
			return c.JSON(fiber.Map{
				"success": true,
				"status":  "no_pending_funds",
			})
		}
		s.logger.Warn("disbursement run failed", zap.Error(err))
		return mapError(err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success":  true,
		"batch_id": batchID,
	})
}

func (s *Server) handleListBatches(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 20)
	offset := c.QueryInt("offset", 0)

	page, err := s.disbursement.ListBatches(c.Context(), limit, offset)
	if err != nil {
		return mapError(err)
	}

	batches := make([]fiber.Map, 0, len(page.Batches))
	for _, b := range page.Batches {
		batches = append(batches, batchToJSON(b))
	}

	return c.JSON(fiber.Map{
		"success":     true,
		"batches":     batches,
		"total_count": page.TotalCount,
	})
}

func (s *Server) handleGetBatchDetail(c *fiber.Ctx) error {
	batchID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid batch id")
	}

	detail, err := s.disbursement.GetBatchDetail(c.Context(), batchID)
	if err != nil {
		return mapError(err)
	}

	disbursements := make([]fiber.Map, 0, len(detail.Disbursements))
	for _, d := range detail.Disbursements {
		disbursements = append(disbursements, fiber.Map{
			"id":                     d.ID,
			"charity_id":             d.CharityID,
			"amount":                 d.Amount,
			"allocation_percentage":  d.AllocationPercentage,
			"trust_rating_at_time":   d.TrustRatingAtTime,
			"activity_score_at_time": d.ActivityScoreAtTime,
		})
	}

	return c.JSON(fiber.Map{
		"success":       true,
		"batch":         batchToJSON(detail.Batch),
		"disbursements": disbursements,
	})
}

// handleListVerifiedCharities shows the registry the way the next batch
// run will see it, including each charity's current allocation weight.
func (s *Server) handleListVerifiedCharities(c *fiber.Ctx) error {
	charities, err := s.charityRepo.ListVerified(c.Context())
	if err != nil {
		return mapError(err)
	}

	items := make([]fiber.Map, 0, len(charities))
	for _, ch := range charities {
		weight := domain.CharityWeight{
			CharityID:     ch.ID,
			TrustRating:   ch.TrustRating,
			ActivityScore: ch.ActivityScore,
		}
		items = append(items, fiber.Map{
			"id":                 ch.ID,
			"name":               ch.Name,
			"verified":           ch.Verified,
			"trust_rating":       ch.TrustRating,
			"activity_score":     ch.ActivityScore,
			"weight":             weight.Weight(),
			"last_activity_date": ch.LastActivityDate,
		})
	}

	return c.JSON(fiber.Map{
		"success":   true,
		"charities": items,
	})
}

func (s *Server) handleListUndisbursedDonations(c *fiber.Ctx) error {
	donations, err := s.donationRepo.ListUndisbursed(c.Context())
	if err != nil {
		return mapError(err)
	}

	var poolAmount int64
	items := make([]fiber.Map, 0, len(donations))
	for _, d := range donations {
		poolAmount += d.Remaining()
		items = append(items, fiber.Map{
			"id":                  d.ID,
			"amount":              d.Amount,
			"disbursed_amount":    d.DisbursedAmount,
			"remaining_amount":    d.Remaining(),
			"disbursement_status": d.Status,
			"charity_id":          d.CharityID,
			"created_at":          d.CreatedAt,
		})
	}

	return c.JSON(fiber.Map{
		"success":     true,
		"donations":   items,
		"pool_amount": poolAmount,
	})
}

func batchToJSON(b *domain.DisbursementBatch) fiber.Map {
	return fiber.Map{
		"id":                   b.ID,
		"batch_date":           b.BatchDate,
		"total_amount":         b.TotalAmount,
		"charity_count":        b.CharityCount,
		"status":               b.Status,
		"calculation_snapshot": b.CalculationSnapshot,
		"created_by":           b.CreatedBy,
		"notes":                b.Notes,
	}
}

// mapError converts domain errors to HTTP status errors. The error kind is
// surfaced verbatim to the operator; nothing is silently swallowed.
func mapError(err error) error {
	switch {
	case errors.Is(err, domain.ErrConcurrentBatchInProgress):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrNoEligibleCharities):
		return fiber.NewError(fiber.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, domain.ErrStorageTimeout):
		return fiber.NewError(fiber.StatusGatewayTimeout, err.Error())
	case errors.Is(err, domain.ErrTransactionAborted):
		return fiber.NewError(fiber.StatusServiceUnavailable, err.Error())
	case strings.Contains(err.Error(), "not found"):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case strings.Contains(err.Error(), "must be"):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	default:
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}
}

// errorHandler renders fiber errors as the JSON envelope the dashboard expects
func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		code = fiberErr.Code
	}

	return c.Status(code).JSON(fiber.Map{
		"success": false,
		"error":   err.Error(),
		"code":    code,
	})
}

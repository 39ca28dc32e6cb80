package http

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/utafrali/StudioReviews/internal/domain"
	"github.com/utafrali/StudioReviews/internal/service"
	apperrors "github.com/utafrali/StudioReviews/pkg/errors"
	"github.com/utafrali/StudioReviews/pkg/httputil"
	"github.com/utafrali/StudioReviews/pkg/pagination"
	"github.com/utafrali/StudioReviews/pkg/validator"
)

const maxBodyBytes = 1 << 20 // 1 MB

// ReviewHandler handles HTTP requests for review endpoints.
type ReviewHandler struct {
	service *service.ReviewService
	logger  *slog.Logger
}

// NewReviewHandler creates a new review HTTP handler.
func NewReviewHandler(svc *service.ReviewService, logger *slog.Logger) *ReviewHandler {
	return &ReviewHandler{
		service: svc,
		logger:  logger,
	}
}

// --- Request DTOs ---

// SubmitReviewRequest is the JSON request body for submitting a review. The
// item comes from the path; field rules are enforced by the service so that
// every failing field is reported together.
type SubmitReviewRequest struct {
	UserName  string `json:"user_name"`
	UserEmail string `json:"user_email"`
	Rating    int    `json:"rating"`
	Title     string `json:"title"`
	Content   string `json:"content"`
}

// VerifyReviewRequest is the JSON request body for POST /reviews/verify.
type VerifyReviewRequest struct {
	Token string `json:"token"`
}

// ModerateReviewRequest is the JSON request body for a moderation decision.
type ModerateReviewRequest struct {
	Approved *bool   `json:"approved" validate:"required"`
	Notes    *string `json:"notes" validate:"omitempty,max=2000"`
}

// --- Response DTOs ---

type verifyResponse struct {
	ReviewID   string              `json:"review_id"`
	Status     domain.ReviewStatus `json:"status"`
	VerifiedAt *time.Time          `json:"verified_at,omitempty"`
}

type helpfulResponse struct {
	ReviewID     string `json:"review_id"`
	HelpfulCount int    `json:"helpful_count"`
}

// --- Handlers ---

// SubmitReview handles POST /api/v1/{itemType}s/{itemId}/reviews
func (h *ReviewHandler) SubmitReview(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	var req SubmitReviewRequest
	if err := validator.Decode(r, &req); err != nil {
		httputil.WriteValidationError(w, r, err)
		return
	}

	item := itemFromPath(r)
	result, err := h.service.Submit(r.Context(), &service.SubmitInput{
		ItemID:    item.ID,
		ItemType:  string(item.Type),
		UserName:  req.UserName,
		UserEmail: req.UserEmail,
		Rating:    req.Rating,
		Title:     req.Title,
		Content:   req.Content,
	}, identityFromRequest(r))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusAccepted, httputil.Response{Data: result})
}

// ListReviews handles GET /api/v1/{itemType}s/{itemId}/reviews
func (h *ReviewHandler) ListReviews(w http.ResponseWriter, r *http.Request) {
	filter, err := parseListFilter(r)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	result, err := h.service.List(r.Context(), itemFromPath(r), filter)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: result})
}

// VerifyReview handles GET /api/v1/reviews/verify?token= and POST /api/v1/reviews/verify
func (h *ReviewHandler) VerifyReview(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("token")
	if r.Method == http.MethodPost {
		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		var req VerifyReviewRequest
		if err := validator.Decode(r, &req); err != nil {
			httputil.WriteValidationError(w, r, err)
			return
		}
		raw = req.Token
	}

	review, err := h.service.Verify(r.Context(), raw)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: verifyResponse{
		ReviewID:   review.ID,
		Status:     review.Status,
		VerifiedAt: review.VerifiedAt,
	}})
}

// MarkHelpful handles POST /api/v1/reviews/{id}/helpful
func (h *ReviewHandler) MarkHelpful(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	count, err := h.service.MarkHelpful(r.Context(), id, identityFromRequest(r))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: helpfulResponse{
		ReviewID:     id,
		HelpfulCount: count,
	}})
}

// ListPending handles GET /api/v1/admin/reviews/pending
func (h *ReviewHandler) ListPending(w http.ResponseWriter, r *http.Request) {
	reviews, err := h.service.ListForModeration(r.Context())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	if reviews == nil {
		reviews = []domain.Review{}
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: reviews})
}

// GetReview handles GET /api/v1/admin/reviews/{id}
func (h *ReviewHandler) GetReview(w http.ResponseWriter, r *http.Request) {
	review, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: review})
}

// ModerateReview handles POST /api/v1/admin/reviews/{id}/moderate
func (h *ReviewHandler) ModerateReview(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	var req ModerateReviewRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteValidationError(w, r, err)
		return
	}

	review, err := h.service.Moderate(r.Context(), chi.URLParam(r, "id"), *req.Approved, req.Notes)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: review})
}

// --- Helpers ---

// itemFromPath maps the plural collection segment ("studios") onto its item type.
func itemFromPath(r *http.Request) domain.ItemRef {
	return domain.ItemRef{
		ID:   chi.URLParam(r, "itemId"),
		Type: domain.ItemType(strings.TrimSuffix(chi.URLParam(r, "itemTypes"), "s")),
	}
}

func parseListFilter(r *http.Request) (domain.ListFilter, error) {
	q := r.URL.Query()
	page := pagination.FromRequest(r)

	filter := domain.ListFilter{
		Sort:   domain.SortOrder(q.Get("sort")),
		Limit:  page.Limit,
		Offset: page.Offset,
	}

	var err error
	if filter.Rating, err = optionalInt(q.Get("rating"), "rating"); err != nil {
		return filter, err
	}
	if filter.MinRating, err = optionalInt(q.Get("min_rating"), "min_rating"); err != nil {
		return filter, err
	}
	if filter.MaxRating, err = optionalInt(q.Get("max_rating"), "max_rating"); err != nil {
		return filter, err
	}
	return filter, nil
}

func optionalInt(raw, name string) (*int, error) {
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return nil, apperrors.InvalidInput(fmt.Sprintf("%s must be an integer", name))
	}
	return &v, nil
}

package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"booklending/internal/repositories"
	"booklending/internal/services"
)

type LendingHandler struct {
	lending   services.LendingService
	catalog   services.CatalogService
	reviews   services.ReviewService
	recommend services.RecommendationService
}

// RegisterRoutes wires all endpoints onto the router. jwtSecret belongs to
// the external identity service; it is only used to verify bearer tokens.
func RegisterRoutes(
	r *gin.Engine,
	jwtSecret string,
	lending services.LendingService,
	catalog services.CatalogService,
	reviews services.ReviewService,
	recommend services.RecommendationService,
) {
	h := &LendingHandler{
		lending:   lending,
		catalog:   catalog,
		reviews:   reviews,
		recommend: recommend,
	}

	auth := RequireUser(jwtSecret)

	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Catalogue: reads are anonymous, writes need an identity.
	r.GET("/books", h.listBooks)
	r.GET("/books/:id", h.getBook)
	r.POST("/books", auth, h.createBook)
	r.PUT("/books/:id", auth, h.updateBook)
	r.DELETE("/books/:id", auth, h.deleteBook)

	// Lending.
	r.POST("/borrow", auth, h.borrowBook)
	r.POST("/return", auth, h.returnBook)
	r.GET("/my-borrows", auth, h.listMyBorrows)

	// Recommendations work for anonymous callers too.
	r.GET("/recommendations", OptionalUser(jwtSecret), h.recommendations)

	// Reviews.
	r.GET("/books/:id/reviews", h.listBookReviews)
	r.POST("/reviews", auth, h.createReview)
	r.DELETE("/reviews/:id", auth, h.deleteReview)
}

type bookRequest struct {
	Title       string `json:"title" binding:"required"`
	Author      string `json:"author" binding:"required"`
	Genre       string `json:"genre"`
	Description string `json:"description"`
	TotalCopies int    `json:"total_copies" binding:"min=0"`
}

func (r *bookRequest) toInput() services.BookInput {
	return services.BookInput{
		Title:       r.Title,
		Author:      r.Author,
		Genre:       r.Genre,
		Description: r.Description,
		TotalCopies: r.TotalCopies,
	}
}

func (h *LendingHandler) createBook(c *gin.Context) {
	var req bookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeValidationError(c, err)
		return
	}
	book, err := h.catalog.CreateBook(req.toInput())
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, book)
}

func (h *LendingHandler) getBook(c *gin.Context) {
	bookID, ok := pathID(c)
	if !ok {
		return
	}
	book, err := h.catalog.GetBook(bookID)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, book)
}

func (h *LendingHandler) updateBook(c *gin.Context) {
	bookID, ok := pathID(c)
	if !ok {
		return
	}
	var req bookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeValidationError(c, err)
		return
	}
	book, err := h.catalog.UpdateBook(bookID, req.toInput())
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, book)
}

func (h *LendingHandler) deleteBook(c *gin.Context) {
	bookID, ok := pathID(c)
	if !ok {
		return
	}
	if err := h.catalog.DeleteBook(bookID); err != nil {
		writeServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *LendingHandler) listBooks(c *gin.Context) {
	limit := intQuery(c, "page_size", services.DefaultPageSize)
	if limit > services.MaxPageSize {
		limit = services.MaxPageSize
	}
	filter := repositories.BookFilter{
		Genre:  c.Query("genre"),
		Author: c.Query("author"),
		Limit:  limit,
	}
	if page := intQuery(c, "page", 1); page > 1 {
		filter.Offset = (page - 1) * limit
	}
	if raw := c.Query("available"); raw != "" {
		available := raw == "1" || raw == "true" || raw == "yes"
		filter.Available = &available
	}

	books, err := h.catalog.ListBooks(filter)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, books)
}

type borrowRequest struct {
	BookID string `json:"book_id" binding:"required,uuid"`
}

func (h *LendingHandler) borrowBook(c *gin.Context) {
	userID, _ := CurrentUser(c)
	var req borrowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeValidationError(c, err)
		return
	}
	bookID, _ := uuid.Parse(req.BookID)

	record, err := h.lending.Borrow(userID, bookID)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, record)
}

func (h *LendingHandler) returnBook(c *gin.Context) {
	userID, _ := CurrentUser(c)
	var req borrowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeValidationError(c, err)
		return
	}
	bookID, _ := uuid.Parse(req.BookID)

	record, err := h.lending.Return(userID, bookID)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, record)
}

func (h *LendingHandler) listMyBorrows(c *gin.Context) {
	userID, _ := CurrentUser(c)
	records, err := h.lending.ListActiveLoans(userID)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, records)
}

func (h *LendingHandler) recommendations(c *gin.Context) {
	var userID *uuid.UUID
	if id, ok := CurrentUser(c); ok {
		userID = &id
	}
	limit := intQuery(c, "limit", 0)

	books, err := h.recommend.Recommend(userID, limit)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, books)
}

type reviewRequest struct {
	BookID  string `json:"book_id" binding:"required,uuid"`
	Rating  int    `json:"rating" binding:"required,min=1,max=5"`
	Comment string `json:"comment"`
}

func (h *LendingHandler) createReview(c *gin.Context) {
	userID, _ := CurrentUser(c)
	var req reviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeValidationError(c, err)
		return
	}
	bookID, _ := uuid.Parse(req.BookID)

	review, err := h.reviews.CreateReview(userID, bookID, req.Rating, req.Comment)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, review)
}

func (h *LendingHandler) listBookReviews(c *gin.Context) {
	bookID, ok := pathID(c)
	if !ok {
		return
	}
	reviews, err := h.reviews.ListBookReviews(bookID)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, reviews)
}

func (h *LendingHandler) deleteReview(c *gin.Context) {
	userID, _ := CurrentUser(c)
	reviewID, ok := pathID(c)
	if !ok {
		return
	}
	if err := h.reviews.DeleteReview(userID, reviewID); err != nil {
		writeServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// pathID parses the :id path parameter, writing a 400 on failure.
func pathID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id", "code": "INVALID_ID"})
		return uuid.Nil, false
	}
	return id, true
}

func intQuery(c *gin.Context, name string, fallback int) int {
	raw := c.Query(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return fallback
	}
	return v
}

func writeValidationError(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": "VALIDATION_ERROR"})
}

// writeServiceError maps service sentinels onto HTTP responses with a stable
// machine-readable code.
func writeServiceError(c *gin.Context, err error) {
	type mapping struct {
		status int
		code   string
	}
	known := []struct {
		err error
		m   mapping
	}{
		{services.ErrBookNotFound, mapping{http.StatusNotFound, "BOOK_NOT_FOUND"}},
		{services.ErrReviewNotFound, mapping{http.StatusNotFound, "REVIEW_NOT_FOUND"}},
		{services.ErrAlreadyBorrowed, mapping{http.StatusConflict, "ALREADY_BORROWED"}},
		{services.ErrNoCopiesAvailable, mapping{http.StatusConflict, "NO_COPIES_AVAILABLE"}},
		{services.ErrNoActiveLoan, mapping{http.StatusConflict, "NO_ACTIVE_LOAN"}},
		{services.ErrDuplicateReview, mapping{http.StatusConflict, "DUPLICATE_REVIEW"}},
		{services.ErrTotalCopiesTooLow, mapping{http.StatusConflict, "TOTAL_COPIES_TOO_LOW"}},
		{services.ErrInvalidRating, mapping{http.StatusBadRequest, "INVALID_RATING"}},
		{services.ErrNotReviewOwner, mapping{http.StatusForbidden, "NOT_REVIEW_OWNER"}},
	}
	for _, k := range known {
		if errors.Is(err, k.err) {
			c.JSON(k.m.status, gin.H{"error": k.err.Error(), "code": k.m.code})
			return
		}
	}
	if errors.Is(err, services.ErrTxConflict) {
		c.Header("Retry-After", "1")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": services.ErrTxConflict.Error(), "code": "TX_CONFLICT"})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error", "code": "INTERNAL"})
}

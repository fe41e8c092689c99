package services

import (
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"booklending/internal/logging"
	"booklending/internal/models"
	"booklending/internal/repositories"
)

// ReviewService manages book reviews, one per (user, book) pair.
type ReviewService interface {
	CreateReview(userID, bookID uuid.UUID, rating int, comment string) (*models.Review, error)
	ListBookReviews(bookID uuid.UUID) ([]models.Review, error)
	DeleteReview(userID, reviewID uuid.UUID) error
}

type reviewService struct {
	db         TxRunner
	bookRepo   repositories.BookRepository
	reviewRepo repositories.ReviewRepository
}

func NewReviewService(
	db TxRunner,
	bookRepo repositories.BookRepository,
	reviewRepo repositories.ReviewRepository,
) ReviewService {
	return &reviewService{
		db:         db,
		bookRepo:   bookRepo,
		reviewRepo: reviewRepo,
	}
}

// CreateReview records the user's rating of a book. The unique index on
// (user_id, book_id) is the last line of defense against concurrent
// duplicates; the pre-check just gives a clean error on the common path.
func (s *reviewService) CreateReview(userID, bookID uuid.UUID, rating int, comment string) (*models.Review, error) {
	if rating < 1 || rating > 5 {
		return nil, ErrInvalidRating
	}

	var review *models.Review
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if _, err := s.bookRepo.GetByID(tx, bookID); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrBookNotFound
			}
			return err
		}

		_, err := s.reviewRepo.GetByUserAndBook(tx, userID, bookID)
		if err == nil {
			return ErrDuplicateReview
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		review = &models.Review{
			UserID:  userID,
			BookID:  bookID,
			Rating:  rating,
			Comment: comment,
		}
		if err := s.reviewRepo.Create(tx, review); err != nil {
			if isUniqueViolation(err) {
				return ErrDuplicateReview
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	logging.Info().
		Str("review_id", review.ID.String()).
		Str("user_id", userID.String()).
		Str("book_id", bookID.String()).
		Int("rating", rating).
		Msg("review created")
	return review, nil
}

func (s *reviewService) ListBookReviews(bookID uuid.UUID) ([]models.Review, error) {
	if _, err := s.bookRepo.GetByID(nil, bookID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrBookNotFound
		}
		return nil, err
	}
	reviews, err := s.reviewRepo.ListByBook(nil, bookID)
	if err != nil {
		return nil, err
	}
	if reviews == nil {
		reviews = []models.Review{}
	}
	return reviews, nil
}

// DeleteReview removes the review if it belongs to the calling user.
func (s *reviewService) DeleteReview(userID, reviewID uuid.UUID) error {
	review, err := s.reviewRepo.GetByID(nil, reviewID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrReviewNotFound
		}
		return err
	}
	if review.UserID != userID {
		return ErrNotReviewOwner
	}
	return s.reviewRepo.Delete(nil, reviewID)
}

package services

import (
	"github.com/google/uuid"

	"booklending/internal/logging"
	"booklending/internal/metrics"
	"booklending/internal/models"
	"booklending/internal/repositories"
)

// RecommendationService ranks books for a caller. It is read-only: it never
// mutates the catalogue or the borrow log.
//
// Ranking is read_count descending (completed returns only; active loans do
// not count), ties broken by newest book first.
type RecommendationService interface {
	// Recommend returns up to limit books. userID may be nil for anonymous
	// callers. The result is best-effort and never an error for an empty
	// catalogue.
	Recommend(userID *uuid.UUID, limit int) ([]models.Book, error)
}

type recommendationService struct {
	bookRepo     repositories.BookRepository
	borrowRepo   repositories.BorrowRecordRepository
	defaultLimit int
	maxLimit     int
}

func NewRecommendationService(
	bookRepo repositories.BookRepository,
	borrowRepo repositories.BorrowRecordRepository,
	defaultLimit, maxLimit int,
) RecommendationService {
	if defaultLimit <= 0 {
		defaultLimit = 5
	}
	if maxLimit < defaultLimit {
		maxLimit = defaultLimit
	}
	return &recommendationService{
		bookRepo:     bookRepo,
		borrowRepo:   borrowRepo,
		defaultLimit: defaultLimit,
		maxLimit:     maxLimit,
	}
}

// Recommend picks books from the genres the user has ever borrowed,
// excluding books they currently hold, and falls back to global popularity
// when there is no user, no history, or no remaining genre match.
//
// The fallback deliberately does not exclude the user's current loans: it is
// a generic "what's hot" list, not a personalized one.
func (s *recommendationService) Recommend(userID *uuid.UUID, limit int) ([]models.Book, error) {
	if limit <= 0 {
		limit = s.defaultLimit
	}
	if limit > s.maxLimit {
		limit = s.maxLimit
	}

	if userID != nil {
		books, err := s.personalized(*userID, limit)
		if err != nil {
			return nil, err
		}
		if len(books) > 0 {
			metrics.RecommendationsTotal.WithLabelValues("personalized").Inc()
			return books, nil
		}
	}

	books, err := s.bookRepo.ListMostPopular(nil, limit)
	if err != nil {
		logging.Error().Err(err).Msg("popularity fallback query failed")
		return nil, err
	}
	if books == nil {
		books = []models.Book{}
	}
	metrics.RecommendationsTotal.WithLabelValues("popularity").Inc()
	return books, nil
}

func (s *recommendationService) personalized(userID uuid.UUID, limit int) ([]models.Book, error) {
	genres, err := s.borrowRepo.DistinctGenres(nil, userID)
	if err != nil {
		return nil, err
	}
	if len(genres) == 0 {
		return nil, nil
	}
	return s.bookRepo.ListByGenresExcludingActive(nil, genres, userID, limit)
}

package services

import (
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"booklending/internal/logging"
	"booklending/internal/models"
	"booklending/internal/repositories"
)

const (
	// DefaultPageSize is used when a catalogue listing does not ask for one.
	DefaultPageSize = 10

	// MaxPageSize caps the caller-supplied page size.
	MaxPageSize = 50
)

// BookInput carries the caller-writable fields of a book. The copy counters
// beyond total_copies are derived, never set directly.
type BookInput struct {
	Title       string
	Author      string
	Genre       string
	Description string
	TotalCopies int
}

// CatalogService is the thin read/write surface over the book catalogue.
// The lending invariants still hold across it: available_copies tracks
// total_copies minus active loans at all times.
type CatalogService interface {
	CreateBook(in BookInput) (*models.Book, error)
	GetBook(id uuid.UUID) (*models.Book, error)
	UpdateBook(id uuid.UUID, in BookInput) (*models.Book, error)
	DeleteBook(id uuid.UUID) error
	ListBooks(filter repositories.BookFilter) ([]models.Book, error)
}

type catalogService struct {
	db       TxRunner
	bookRepo repositories.BookRepository
}

func NewCatalogService(db TxRunner, bookRepo repositories.BookRepository) CatalogService {
	return &catalogService{db: db, bookRepo: bookRepo}
}

// CreateBook adds a book with all copies available.
func (s *catalogService) CreateBook(in BookInput) (*models.Book, error) {
	if in.TotalCopies < 0 {
		return nil, ErrTotalCopiesTooLow
	}
	book := &models.Book{
		Title:           in.Title,
		Author:          in.Author,
		Genre:           in.Genre,
		Description:     in.Description,
		TotalCopies:     in.TotalCopies,
		AvailableCopies: in.TotalCopies,
	}
	if err := s.bookRepo.Create(nil, book); err != nil {
		logging.Error().Err(err).Str("title", in.Title).Msg("failed to create book")
		return nil, err
	}
	logging.Info().
		Str("book_id", book.ID.String()).
		Str("title", book.Title).
		Int("total_copies", book.TotalCopies).
		Msg("book created")
	return book, nil
}

func (s *catalogService) GetBook(id uuid.UUID) (*models.Book, error) {
	book, err := s.bookRepo.GetByID(nil, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrBookNotFound
		}
		return nil, err
	}
	return book, nil
}

// UpdateBook rewrites the book's descriptive fields and, when total_copies
// changes, shifts available_copies by the same delta in the same atomic
// unit. A reduction larger than the currently available copies fails with
// ErrTotalCopiesTooLow; copies on loan are never taken away.
func (s *catalogService) UpdateBook(id uuid.UUID, in BookInput) (*models.Book, error) {
	if in.TotalCopies < 0 {
		return nil, ErrTotalCopiesTooLow
	}

	var updated *models.Book
	err := s.db.Transaction(func(tx *gorm.DB) error {
		book, err := s.bookRepo.GetByIDForUpdate(tx, id)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrBookNotFound
			}
			return err
		}

		book.Title = in.Title
		book.Author = in.Author
		book.Genre = in.Genre
		book.Description = in.Description
		if err := s.bookRepo.Update(tx, book); err != nil {
			return err
		}

		if delta := in.TotalCopies - book.TotalCopies; delta != 0 {
			ok, err := s.bookRepo.ApplyCopyDelta(tx, id, delta)
			if err != nil {
				return err
			}
			if !ok {
				return ErrTotalCopiesTooLow
			}
		}

		updated, err = s.bookRepo.GetByID(tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	logging.Info().Str("book_id", id.String()).Msg("book updated")
	return updated, nil
}

// DeleteBook removes the book; borrow records and reviews cascade with it.
func (s *catalogService) DeleteBook(id uuid.UUID) error {
	found, err := s.bookRepo.Delete(nil, id)
	if err != nil {
		logging.Error().Err(err).Str("book_id", id.String()).Msg("failed to delete book")
		return err
	}
	if !found {
		return ErrBookNotFound
	}
	logging.Info().Str("book_id", id.String()).Msg("book deleted")
	return nil
}

// ListBooks returns a filtered page of the catalogue, newest first.
func (s *catalogService) ListBooks(filter repositories.BookFilter) ([]models.Book, error) {
	if filter.Limit <= 0 {
		filter.Limit = DefaultPageSize
	}
	if filter.Limit > MaxPageSize {
		filter.Limit = MaxPageSize
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	books, err := s.bookRepo.List(nil, filter)
	if err != nil {
		return nil, err
	}
	if books == nil {
		books = []models.Book{}
	}
	return books, nil
}

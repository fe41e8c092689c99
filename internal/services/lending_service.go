package services

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"booklending/internal/logging"
	"booklending/internal/metrics"
	"booklending/internal/models"
	"booklending/internal/repositories"
)

// txRetryBackoff is the pause before the single internal retry of a
// transaction that failed with a transient conflict.
const txRetryBackoff = 50 * time.Millisecond

// TxRunner is the slice of *gorm.DB the services need to open atomic units.
// Tests substitute a serialized in-memory implementation.
type TxRunner interface {
	Transaction(fc func(tx *gorm.DB) error, opts ...*sql.TxOptions) error
}

// LendingService owns the borrow/return state transition for a (user, book)
// pair and is the only writer of a book's copy counters.
type LendingService interface {
	Borrow(userID, bookID uuid.UUID) (*models.BorrowRecord, error)
	Return(userID, bookID uuid.UUID) (*models.BorrowRecord, error)
	ListActiveLoans(userID uuid.UUID) ([]models.BorrowRecord, error)
}

type lendingService struct {
	db         TxRunner
	bookRepo   repositories.BookRepository
	borrowRepo repositories.BorrowRecordRepository
}

func NewLendingService(
	db TxRunner,
	bookRepo repositories.BookRepository,
	borrowRepo repositories.BorrowRecordRepository,
) LendingService {
	return &lendingService{
		db:         db,
		bookRepo:   bookRepo,
		borrowRepo: borrowRepo,
	}
}

// Borrow reserves a copy of the book for the user.
//
// All steps run in one transaction, serialized per book by an exclusive row
// lock:
//  1. Lock the Book row (FOR UPDATE); fail with ErrBookNotFound if absent.
//  2. Re-check for an active loan on the pair under the lock; fail with
//     ErrAlreadyBorrowed.
//  3. Reserve a copy with a guarded store-side decrement; fail with
//     ErrNoCopiesAvailable when the guard rejects it.
//  4. Create the BorrowRecord.
func (s *lendingService) Borrow(userID, bookID uuid.UUID) (*models.BorrowRecord, error) {
	var record *models.BorrowRecord

	err := s.runInTx(func(tx *gorm.DB) error {
		if _, err := s.bookRepo.GetByIDForUpdate(tx, bookID); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrBookNotFound
			}
			return err
		}

		_, err := s.borrowRepo.FindActiveForUpdate(tx, userID, bookID)
		if err == nil {
			return ErrAlreadyBorrowed
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		reserved, err := s.bookRepo.ReserveCopy(tx, bookID)
		if err != nil {
			return err
		}
		if !reserved {
			return ErrNoCopiesAvailable
		}

		record = &models.BorrowRecord{
			UserID:     userID,
			BookID:     bookID,
			BorrowedAt: time.Now().UTC(),
		}
		return s.borrowRepo.Create(tx, record)
	})

	metrics.BorrowsTotal.WithLabelValues(lendingOutcome(err)).Inc()
	if err != nil {
		logBusinessErr("borrow", userID, bookID, err)
		return nil, err
	}
	logging.Info().
		Str("operation", "borrow").
		Str("user_id", userID.String()).
		Str("book_id", bookID.String()).
		Str("record_id", record.ID.String()).
		Msg("book borrowed")
	return record, nil
}

// Return closes the user's active loan on the book and releases the copy.
//
// All steps run in one transaction under the same Book row lock as Borrow:
//  1. Lock the Book row; fail with ErrBookNotFound if absent.
//  2. Find and lock the active BorrowRecord; fail with ErrNoActiveLoan.
//  3. Set returned_at, guarded on the record still being active; a racing
//     return loses the guard and observes ErrNoActiveLoan.
//  4. Release the copy (+1 available_copies, +1 read_count).
func (s *lendingService) Return(userID, bookID uuid.UUID) (*models.BorrowRecord, error) {
	var record *models.BorrowRecord

	err := s.runInTx(func(tx *gorm.DB) error {
		if _, err := s.bookRepo.GetByIDForUpdate(tx, bookID); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrBookNotFound
			}
			return err
		}

		active, err := s.borrowRepo.FindActiveForUpdate(tx, userID, bookID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNoActiveLoan
			}
			return err
		}

		now := time.Now().UTC()
		marked, err := s.borrowRepo.MarkReturned(tx, active.ID, now)
		if err != nil {
			return err
		}
		if !marked {
			return ErrNoActiveLoan
		}

		released, err := s.bookRepo.ReleaseCopy(tx, bookID)
		if err != nil {
			return err
		}
		if !released {
			return ErrBookNotFound
		}

		active.ReturnedAt = &now
		record = active
		return nil
	})

	metrics.ReturnsTotal.WithLabelValues(lendingOutcome(err)).Inc()
	if err != nil {
		logBusinessErr("return", userID, bookID, err)
		return nil, err
	}
	logging.Info().
		Str("operation", "return").
		Str("user_id", userID.String()).
		Str("book_id", bookID.String()).
		Str("record_id", record.ID.String()).
		Msg("book returned")
	return record, nil
}

// ListActiveLoans returns the user's unreturned loans, newest first, with
// the book preloaded.
func (s *lendingService) ListActiveLoans(userID uuid.UUID) ([]models.BorrowRecord, error) {
	records, err := s.borrowRepo.ListActiveByUser(nil, userID)
	if err != nil {
		return nil, err
	}
	if records == nil {
		records = []models.BorrowRecord{}
	}
	return records, nil
}

// runInTx runs fn in a transaction, retrying once after a transient
// serialization or lock failure. A second transient failure surfaces as
// ErrTxConflict so callers can tell "retry" apart from "invalid".
func (s *lendingService) runInTx(fn func(tx *gorm.DB) error) error {
	err := s.db.Transaction(fn)
	if !isRetryableTxError(err) {
		return err
	}

	metrics.TxRetriesTotal.Inc()
	logging.Warn().Err(err).Msg("transient transaction conflict, retrying once")
	time.Sleep(txRetryBackoff)

	err = s.db.Transaction(fn)
	if isRetryableTxError(err) {
		return fmt.Errorf("%w: %v", ErrTxConflict, err)
	}
	return err
}

// lendingOutcome maps a Borrow/Return result onto a metric label.
func lendingOutcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrAlreadyBorrowed):
		return "already_borrowed"
	case errors.Is(err, ErrNoCopiesAvailable):
		return "no_copies"
	case errors.Is(err, ErrNoActiveLoan):
		return "no_active_loan"
	case errors.Is(err, ErrBookNotFound):
		return "not_found"
	case errors.Is(err, ErrTxConflict):
		return "conflict"
	default:
		return "error"
	}
}

func logBusinessErr(operation string, userID, bookID uuid.UUID, err error) {
	evt := logging.Warn()
	if lendingOutcome(err) == "error" {
		evt = logging.Error()
	}
	evt.
		Str("operation", operation).
		Str("user_id", userID.String()).
		Str("book_id", bookID.String()).
		Err(err).
		Msg("lending operation failed")
}

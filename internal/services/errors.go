package services

import (
	"errors"
	"strings"
)

var (
	// ErrBookNotFound is returned when the requested book does not exist.
	ErrBookNotFound = errors.New("book not found")

	// ErrNoCopiesAvailable is returned when a borrow is attempted against a
	// book with no available copies.
	ErrNoCopiesAvailable = errors.New("no copies available")

	// ErrAlreadyBorrowed is returned when the user already holds an active
	// loan on the requested book.
	ErrAlreadyBorrowed = errors.New("book already borrowed and not yet returned")

	// ErrNoActiveLoan is returned when a return is attempted for a book the
	// user does not currently have on loan.
	ErrNoActiveLoan = errors.New("no active loan for this book")

	// ErrTotalCopiesTooLow is returned when a book update would reduce
	// total_copies below the number of copies currently on loan.
	ErrTotalCopiesTooLow = errors.New("total_copies reduction exceeds available copies")

	// ErrInvalidRating is returned when a review rating is outside 1..5.
	ErrInvalidRating = errors.New("rating must be between 1 and 5")

	// ErrDuplicateReview is returned when the user has already reviewed the
	// book.
	ErrDuplicateReview = errors.New("user already reviewed this book")

	// ErrReviewNotFound is returned when the referenced review does not exist.
	ErrReviewNotFound = errors.New("review not found")

	// ErrNotReviewOwner is returned when a user tries to delete a review
	// they did not write.
	ErrNotReviewOwner = errors.New("review belongs to another user")

	// ErrTxConflict is returned after a transaction kept failing with a
	// transient serialization or lock error. The action itself may be valid;
	// the caller should retry.
	ErrTxConflict = errors.New("transaction conflict, retry the request")
)

// isUniqueViolation checks whether a PostgreSQL unique-constraint error
// occurred. PostgreSQL error code 23505 = unique_violation.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "23505")
}

// isRetryableTxError reports whether the error is a transient concurrency
// failure worth retrying. PostgreSQL codes: 40001 = serialization_failure,
// 40P01 = deadlock_detected, 55P03 = lock_not_available.
func isRetryableTxError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "40001") ||
		strings.Contains(msg, "40P01") ||
		strings.Contains(msg, "55P03")
}

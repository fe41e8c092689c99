package services

import (
	"database/sql"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"booklending/internal/models"
	"booklending/internal/repositories"
)

// fakeStore is an in-memory stand-in for the Postgres store. Its Transaction
// takes a global mutex, which models the row-lock serialization the real
// store provides: two atomic units touching the same book never interleave.
// Repository fakes operate on the shared maps without locking of their own,
// so they must only be called serially or inside a Transaction.
type fakeStore struct {
	mu      sync.Mutex
	books   map[uuid.UUID]*models.Book
	borrows map[uuid.UUID]*models.BorrowRecord
	reviews map[uuid.UUID]*models.Review
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		books:   make(map[uuid.UUID]*models.Book),
		borrows: make(map[uuid.UUID]*models.BorrowRecord),
		reviews: make(map[uuid.UUID]*models.Review),
	}
}

func (s *fakeStore) Transaction(fc func(tx *gorm.DB) error, _ ...*sql.TxOptions) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fc(nil)
}

func (s *fakeStore) addBook(title, genre string, total, available, readCount int, createdAt time.Time) *models.Book {
	book := &models.Book{
		ID:              uuid.New(),
		Title:           title,
		Author:          "Author of " + title,
		Genre:           genre,
		TotalCopies:     total,
		AvailableCopies: available,
		ReadCount:       readCount,
		CreatedAt:       createdAt,
	}
	s.books[book.ID] = book
	return book
}

func (s *fakeStore) addActiveBorrow(userID, bookID uuid.UUID) *models.BorrowRecord {
	rec := &models.BorrowRecord{
		ID:         uuid.New(),
		UserID:     userID,
		BookID:     bookID,
		BorrowedAt: time.Now().UTC(),
	}
	s.borrows[rec.ID] = rec
	return rec
}

func rankBooks(books []models.Book) {
	sort.Slice(books, func(i, j int) bool {
		if books[i].ReadCount != books[j].ReadCount {
			return books[i].ReadCount > books[j].ReadCount
		}
		return books[i].CreatedAt.After(books[j].CreatedAt)
	})
}

// fakeBookRepo implements repositories.BookRepository over fakeStore.
type fakeBookRepo struct {
	s *fakeStore
}

var _ repositories.BookRepository = (*fakeBookRepo)(nil)

func (r *fakeBookRepo) Create(_ *gorm.DB, book *models.Book) error {
	book.ID = uuid.New()
	if book.CreatedAt.IsZero() {
		book.CreatedAt = time.Now().UTC()
	}
	clone := *book
	r.s.books[book.ID] = &clone
	return nil
}

func (r *fakeBookRepo) GetByID(_ *gorm.DB, id uuid.UUID) (*models.Book, error) {
	book, ok := r.s.books[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	clone := *book
	return &clone, nil
}

func (r *fakeBookRepo) GetByIDForUpdate(db *gorm.DB, id uuid.UUID) (*models.Book, error) {
	return r.GetByID(db, id)
}

func (r *fakeBookRepo) List(_ *gorm.DB, filter repositories.BookFilter) ([]models.Book, error) {
	var books []models.Book
	for _, b := range r.s.books {
		if filter.Genre != "" && !strings.EqualFold(b.Genre, filter.Genre) {
			continue
		}
		if filter.Author != "" && !strings.Contains(strings.ToLower(b.Author), strings.ToLower(filter.Author)) {
			continue
		}
		if filter.Available != nil {
			if *filter.Available && b.AvailableCopies <= 0 {
				continue
			}
			if !*filter.Available && b.AvailableCopies > 0 {
				continue
			}
		}
		books = append(books, *b)
	}
	sort.Slice(books, func(i, j int) bool { return books[i].CreatedAt.After(books[j].CreatedAt) })
	if filter.Offset > 0 {
		if filter.Offset >= len(books) {
			return nil, nil
		}
		books = books[filter.Offset:]
	}
	if filter.Limit > 0 && len(books) > filter.Limit {
		books = books[:filter.Limit]
	}
	return books, nil
}

func (r *fakeBookRepo) Update(_ *gorm.DB, book *models.Book) error {
	stored, ok := r.s.books[book.ID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	stored.Title = book.Title
	stored.Author = book.Author
	stored.Genre = book.Genre
	stored.Description = book.Description
	return nil
}

func (r *fakeBookRepo) Delete(_ *gorm.DB, id uuid.UUID) (bool, error) {
	if _, ok := r.s.books[id]; !ok {
		return false, nil
	}
	delete(r.s.books, id)
	for recID, rec := range r.s.borrows {
		if rec.BookID == id {
			delete(r.s.borrows, recID)
		}
	}
	for revID, rev := range r.s.reviews {
		if rev.BookID == id {
			delete(r.s.reviews, revID)
		}
	}
	return true, nil
}

func (r *fakeBookRepo) ReserveCopy(_ *gorm.DB, bookID uuid.UUID) (bool, error) {
	book, ok := r.s.books[bookID]
	if !ok || book.AvailableCopies <= 0 {
		return false, nil
	}
	book.AvailableCopies--
	return true, nil
}

func (r *fakeBookRepo) ReleaseCopy(_ *gorm.DB, bookID uuid.UUID) (bool, error) {
	book, ok := r.s.books[bookID]
	if !ok {
		return false, nil
	}
	book.AvailableCopies++
	book.ReadCount++
	return true, nil
}

func (r *fakeBookRepo) ApplyCopyDelta(_ *gorm.DB, bookID uuid.UUID, delta int) (bool, error) {
	book, ok := r.s.books[bookID]
	if !ok || book.AvailableCopies+delta < 0 {
		return false, nil
	}
	book.TotalCopies += delta
	book.AvailableCopies += delta
	return true, nil
}

func (r *fakeBookRepo) ListByGenresExcludingActive(_ *gorm.DB, genres []string, userID uuid.UUID, limit int) ([]models.Book, error) {
	genreSet := make(map[string]bool, len(genres))
	for _, g := range genres {
		genreSet[g] = true
	}
	activeBooks := make(map[uuid.UUID]bool)
	for _, rec := range r.s.borrows {
		if rec.UserID == userID && rec.ReturnedAt == nil {
			activeBooks[rec.BookID] = true
		}
	}

	var books []models.Book
	for _, b := range r.s.books {
		if genreSet[b.Genre] && !activeBooks[b.ID] {
			books = append(books, *b)
		}
	}
	rankBooks(books)
	if limit > 0 && len(books) > limit {
		books = books[:limit]
	}
	return books, nil
}

func (r *fakeBookRepo) ListMostPopular(_ *gorm.DB, limit int) ([]models.Book, error) {
	var books []models.Book
	for _, b := range r.s.books {
		books = append(books, *b)
	}
	rankBooks(books)
	if limit > 0 && len(books) > limit {
		books = books[:limit]
	}
	return books, nil
}

// fakeBorrowRepo implements repositories.BorrowRecordRepository.
type fakeBorrowRepo struct {
	s *fakeStore
}

var _ repositories.BorrowRecordRepository = (*fakeBorrowRepo)(nil)

func (r *fakeBorrowRepo) Create(_ *gorm.DB, record *models.BorrowRecord) error {
	record.ID = uuid.New()
	clone := *record
	r.s.borrows[record.ID] = &clone
	return nil
}

func (r *fakeBorrowRepo) FindActiveForUpdate(_ *gorm.DB, userID, bookID uuid.UUID) (*models.BorrowRecord, error) {
	for _, rec := range r.s.borrows {
		if rec.UserID == userID && rec.BookID == bookID && rec.ReturnedAt == nil {
			clone := *rec
			return &clone, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeBorrowRepo) MarkReturned(_ *gorm.DB, id uuid.UUID, returnedAt time.Time) (bool, error) {
	rec, ok := r.s.borrows[id]
	if !ok || rec.ReturnedAt != nil {
		return false, nil
	}
	rec.ReturnedAt = &returnedAt
	return true, nil
}

func (r *fakeBorrowRepo) ListActiveByUser(_ *gorm.DB, userID uuid.UUID) ([]models.BorrowRecord, error) {
	var records []models.BorrowRecord
	for _, rec := range r.s.borrows {
		if rec.UserID == userID && rec.ReturnedAt == nil {
			clone := *rec
			if book, ok := r.s.books[rec.BookID]; ok {
				clone.Book = *book
			}
			records = append(records, clone)
		}
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].BorrowedAt.After(records[j].BorrowedAt)
	})
	return records, nil
}

func (r *fakeBorrowRepo) DistinctGenres(_ *gorm.DB, userID uuid.UUID) ([]string, error) {
	seen := make(map[string]bool)
	var genres []string
	for _, rec := range r.s.borrows {
		if rec.UserID != userID {
			continue
		}
		book, ok := r.s.books[rec.BookID]
		if !ok || seen[book.Genre] {
			continue
		}
		seen[book.Genre] = true
		genres = append(genres, book.Genre)
	}
	return genres, nil
}

// fakeReviewRepo implements repositories.ReviewRepository. Create simulates
// the Postgres unique_violation on the (user_id, book_id) index.
type fakeReviewRepo struct {
	s *fakeStore
}

var _ repositories.ReviewRepository = (*fakeReviewRepo)(nil)

func (r *fakeReviewRepo) Create(_ *gorm.DB, review *models.Review) error {
	for _, existing := range r.s.reviews {
		if existing.UserID == review.UserID && existing.BookID == review.BookID {
			return errors.New(`duplicate key value violates unique constraint "uniq_review_user_book" (SQLSTATE 23505)`)
		}
	}
	review.ID = uuid.New()
	if review.CreatedAt.IsZero() {
		review.CreatedAt = time.Now().UTC()
	}
	clone := *review
	r.s.reviews[review.ID] = &clone
	return nil
}

func (r *fakeReviewRepo) GetByID(_ *gorm.DB, id uuid.UUID) (*models.Review, error) {
	review, ok := r.s.reviews[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	clone := *review
	return &clone, nil
}

func (r *fakeReviewRepo) GetByUserAndBook(_ *gorm.DB, userID, bookID uuid.UUID) (*models.Review, error) {
	for _, review := range r.s.reviews {
		if review.UserID == userID && review.BookID == bookID {
			clone := *review
			return &clone, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeReviewRepo) ListByBook(_ *gorm.DB, bookID uuid.UUID) ([]models.Review, error) {
	var reviews []models.Review
	for _, review := range r.s.reviews {
		if review.BookID == bookID {
			reviews = append(reviews, *review)
		}
	}
	sort.Slice(reviews, func(i, j int) bool {
		return reviews[i].CreatedAt.After(reviews[j].CreatedAt)
	})
	return reviews, nil
}

func (r *fakeReviewRepo) Delete(_ *gorm.DB, id uuid.UUID) error {
	delete(r.s.reviews, id)
	return nil
}

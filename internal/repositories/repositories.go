package repositories

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"booklending/internal/models"
)

// BookFilter narrows catalogue listings. Zero values mean "no filter".
type BookFilter struct {
	Genre     string // case-insensitive exact match
	Author    string // case-insensitive substring match
	Available *bool  // true: available_copies > 0, false: available_copies <= 0
	Limit     int
	Offset    int
}

type BookRepository interface {
	Create(db *gorm.DB, book *models.Book) error
	GetByID(db *gorm.DB, id uuid.UUID) (*models.Book, error)
	// GetByIDForUpdate fetches the book under an exclusive row lock, pinning
	// it for the remainder of the enclosing transaction.
	GetByIDForUpdate(db *gorm.DB, id uuid.UUID) (*models.Book, error)
	List(db *gorm.DB, filter BookFilter) ([]models.Book, error)
	Update(db *gorm.DB, book *models.Book) error
	Delete(db *gorm.DB, id uuid.UUID) (bool, error)

	// ReserveCopy decrements available_copies by one, store-side, guarded by
	// available_copies > 0. Returns false when no copy could be reserved.
	ReserveCopy(db *gorm.DB, bookID uuid.UUID) (bool, error)
	// ReleaseCopy increments available_copies and read_count by one,
	// store-side. Returns false when the book does not exist.
	ReleaseCopy(db *gorm.DB, bookID uuid.UUID) (bool, error)
	// ApplyCopyDelta shifts total_copies and available_copies by the same
	// signed delta, guarded so available_copies cannot go negative. Returns
	// false when the guard rejected the update.
	ApplyCopyDelta(db *gorm.DB, bookID uuid.UUID, delta int) (bool, error)

	// ListByGenresExcludingActive returns books in any of the given genres,
	// excluding books the user currently has on loan, ranked by read_count
	// then recency.
	ListByGenresExcludingActive(db *gorm.DB, genres []string, userID uuid.UUID, limit int) ([]models.Book, error)
	// ListMostPopular returns all books ranked by read_count then recency.
	ListMostPopular(db *gorm.DB, limit int) ([]models.Book, error)
}

type BorrowRecordRepository interface {
	Create(db *gorm.DB, record *models.BorrowRecord) error
	// FindActiveForUpdate locks and returns the active (returned_at IS NULL)
	// record for the pair, or gorm.ErrRecordNotFound.
	FindActiveForUpdate(db *gorm.DB, userID, bookID uuid.UUID) (*models.BorrowRecord, error)
	// MarkReturned sets returned_at, guarded on the record still being
	// active. Returns false when another transaction returned it first.
	MarkReturned(db *gorm.DB, id uuid.UUID, returnedAt time.Time) (bool, error)
	ListActiveByUser(db *gorm.DB, userID uuid.UUID) ([]models.BorrowRecord, error)
	// DistinctGenres returns the genres of all books the user has ever
	// borrowed, active or returned.
	DistinctGenres(db *gorm.DB, userID uuid.UUID) ([]string, error)
}

type ReviewRepository interface {
	Create(db *gorm.DB, review *models.Review) error
	GetByID(db *gorm.DB, id uuid.UUID) (*models.Review, error)
	GetByUserAndBook(db *gorm.DB, userID, bookID uuid.UUID) (*models.Review, error)
	ListByBook(db *gorm.DB, bookID uuid.UUID) ([]models.Review, error)
	Delete(db *gorm.DB, id uuid.UUID) error
}

// concrete implementations

type bookRepository struct {
	db *gorm.DB
}

func NewBookRepository(db *gorm.DB) BookRepository {
	return &bookRepository{db: db}
}

func (r *bookRepository) Create(db *gorm.DB, book *models.Book) error {
	if db == nil {
		db = r.db
	}
	return db.Create(book).Error
}

func (r *bookRepository) GetByID(db *gorm.DB, id uuid.UUID) (*models.Book, error) {
	if db == nil {
		db = r.db
	}
	var book models.Book
	if err := db.First(&book, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &book, nil
}

func (r *bookRepository) GetByIDForUpdate(db *gorm.DB, id uuid.UUID) (*models.Book, error) {
	if db == nil {
		db = r.db
	}
	var book models.Book
	err := db.
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&book, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &book, nil
}

func (r *bookRepository) List(db *gorm.DB, filter BookFilter) ([]models.Book, error) {
	if db == nil {
		db = r.db
	}
	q := db.Model(&models.Book{}).Order("created_at DESC")
	if filter.Genre != "" {
		q = q.Where("LOWER(genre) = LOWER(?)", filter.Genre)
	}
	if filter.Author != "" {
		q = q.Where("author ILIKE ?", "%"+filter.Author+"%")
	}
	if filter.Available != nil {
		if *filter.Available {
			q = q.Where("available_copies > 0")
		} else {
			q = q.Where("available_copies <= 0")
		}
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		q = q.Offset(filter.Offset)
	}
	var books []models.Book
	if err := q.Find(&books).Error; err != nil {
		return nil, err
	}
	return books, nil
}

func (r *bookRepository) Update(db *gorm.DB, book *models.Book) error {
	if db == nil {
		db = r.db
	}
	return db.Model(book).
		Select("title", "author", "genre", "description").
		Updates(book).Error
}

func (r *bookRepository) Delete(db *gorm.DB, id uuid.UUID) (bool, error) {
	if db == nil {
		db = r.db
	}
	res := db.Delete(&models.Book{}, "id = ?", id)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *bookRepository) ReserveCopy(db *gorm.DB, bookID uuid.UUID) (bool, error) {
	if db == nil {
		db = r.db
	}
	res := db.Model(&models.Book{}).
		Where("id = ? AND available_copies > 0", bookID).
		UpdateColumn("available_copies", gorm.Expr("available_copies - 1"))
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *bookRepository) ReleaseCopy(db *gorm.DB, bookID uuid.UUID) (bool, error) {
	if db == nil {
		db = r.db
	}
	res := db.Model(&models.Book{}).
		Where("id = ?", bookID).
		UpdateColumns(map[string]interface{}{
			"available_copies": gorm.Expr("available_copies + 1"),
			"read_count":       gorm.Expr("read_count + 1"),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *bookRepository) ApplyCopyDelta(db *gorm.DB, bookID uuid.UUID, delta int) (bool, error) {
	if db == nil {
		db = r.db
	}
	res := db.Model(&models.Book{}).
		Where("id = ? AND available_copies + ? >= 0", bookID, delta).
		UpdateColumns(map[string]interface{}{
			"total_copies":     gorm.Expr("total_copies + ?", delta),
			"available_copies": gorm.Expr("available_copies + ?", delta),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *bookRepository) ListByGenresExcludingActive(db *gorm.DB, genres []string, userID uuid.UUID, limit int) ([]models.Book, error) {
	if db == nil {
		db = r.db
	}
	active := db.Session(&gorm.Session{NewDB: true}).
		Model(&models.BorrowRecord{}).
		Select("book_id").
		Where("user_id = ? AND returned_at IS NULL", userID)

	var books []models.Book
	err := db.Model(&models.Book{}).
		Where("genre IN ?", genres).
		Where("id NOT IN (?)", active).
		Order("read_count DESC, created_at DESC").
		Limit(limit).
		Find(&books).Error
	if err != nil {
		return nil, err
	}
	return books, nil
}

func (r *bookRepository) ListMostPopular(db *gorm.DB, limit int) ([]models.Book, error) {
	if db == nil {
		db = r.db
	}
	var books []models.Book
	err := db.Model(&models.Book{}).
		Order("read_count DESC, created_at DESC").
		Limit(limit).
		Find(&books).Error
	if err != nil {
		return nil, err
	}
	return books, nil
}

type borrowRecordRepository struct {
	db *gorm.DB
}

func NewBorrowRecordRepository(db *gorm.DB) BorrowRecordRepository {
	return &borrowRecordRepository{db: db}
}

func (r *borrowRecordRepository) Create(db *gorm.DB, record *models.BorrowRecord) error {
	if db == nil {
		db = r.db
	}
	return db.Create(record).Error
}

func (r *borrowRecordRepository) FindActiveForUpdate(db *gorm.DB, userID, bookID uuid.UUID) (*models.BorrowRecord, error) {
	if db == nil {
		db = r.db
	}
	var record models.BorrowRecord
	err := db.
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ? AND book_id = ? AND returned_at IS NULL", userID, bookID).
		First(&record).Error
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func (r *borrowRecordRepository) MarkReturned(db *gorm.DB, id uuid.UUID, returnedAt time.Time) (bool, error) {
	if db == nil {
		db = r.db
	}
	res := db.Model(&models.BorrowRecord{}).
		Where("id = ? AND returned_at IS NULL", id).
		Update("returned_at", returnedAt)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *borrowRecordRepository) ListActiveByUser(db *gorm.DB, userID uuid.UUID) ([]models.BorrowRecord, error) {
	if db == nil {
		db = r.db
	}
	var records []models.BorrowRecord
	err := db.
		Preload("Book").
		Where("user_id = ? AND returned_at IS NULL", userID).
		Order("borrowed_at DESC").
		Find(&records).Error
	if err != nil {
		return nil, err
	}
	return records, nil
}

func (r *borrowRecordRepository) DistinctGenres(db *gorm.DB, userID uuid.UUID) ([]string, error) {
	if db == nil {
		db = r.db
	}
	var genres []string
	err := db.Model(&models.BorrowRecord{}).
		Distinct("books.genre").
		Joins("JOIN books ON books.id = borrow_records.book_id").
		Where("borrow_records.user_id = ?", userID).
		Pluck("books.genre", &genres).Error
	if err != nil {
		return nil, err
	}
	return genres, nil
}

type reviewRepository struct {
	db *gorm.DB
}

func NewReviewRepository(db *gorm.DB) ReviewRepository {
	return &reviewRepository{db: db}
}

func (r *reviewRepository) Create(db *gorm.DB, review *models.Review) error {
	if db == nil {
		db = r.db
	}
	return db.Create(review).Error
}

func (r *reviewRepository) GetByID(db *gorm.DB, id uuid.UUID) (*models.Review, error) {
	if db == nil {
		db = r.db
	}
	var review models.Review
	if err := db.First(&review, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &review, nil
}

func (r *reviewRepository) GetByUserAndBook(db *gorm.DB, userID, bookID uuid.UUID) (*models.Review, error) {
	if db == nil {
		db = r.db
	}
	var review models.Review
	err := db.Where("user_id = ? AND book_id = ?", userID, bookID).First(&review).Error
	if err != nil {
		return nil, err
	}
	return &review, nil
}

func (r *reviewRepository) ListByBook(db *gorm.DB, bookID uuid.UUID) ([]models.Review, error) {
	if db == nil {
		db = r.db
	}
	var reviews []models.Review
	err := db.Where("book_id = ?", bookID).
		Order("created_at DESC").
		Find(&reviews).Error
	if err != nil {
		return nil, err
	}
	return reviews, nil
}

func (r *reviewRepository) Delete(db *gorm.DB, id uuid.UUID) error {
	if db == nil {
		db = r.db
	}
	return db.Delete(&models.Review{}, "id = ?", id).Error
}

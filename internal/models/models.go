package models

import (
	"time"

	"github.com/google/uuid"
)

// Book is the catalogue entry plus its copy inventory. The copy counters
// (available_copies, read_count) are owned exclusively by the lending
// service; no other code writes them.
type Book struct {
	ID              uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	Title           string    `gorm:"size:255;not null" json:"title"`
	Author          string    `gorm:"size:255;not null" json:"author"`
	Genre           string    `gorm:"size:100" json:"genre"`
	Description     string    `gorm:"type:text" json:"description"`
	TotalCopies     int       `gorm:"not null;default:1" json:"total_copies"`
	AvailableCopies int       `gorm:"not null;default:1" json:"available_copies"`
	// ReadCount counts completed returns, not active loans.
	ReadCount int       `gorm:"not null;default:0" json:"read_count"`
	CreatedAt time.Time `gorm:"not null;default:now()" json:"created_at"`
}

// BorrowRecord is one loan of a book by a user. ReturnedAt == nil means the
// loan is active; at most one active record may exist per (user, book) pair.
type BorrowRecord struct {
	ID         uuid.UUID  `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	UserID     uuid.UUID  `gorm:"type:uuid;not null;index:idx_borrow_user_book" json:"user_id"`
	BookID     uuid.UUID  `gorm:"type:uuid;not null;index:idx_borrow_user_book" json:"book_id"`
	Book       Book       `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"book"`
	BorrowedAt time.Time  `gorm:"not null" json:"borrowed_at"`
	ReturnedAt *time.Time `gorm:"index:idx_borrow_user_book" json:"returned_at"`
}

// Active reports whether the loan has not been returned yet.
func (r *BorrowRecord) Active() bool {
	return r.ReturnedAt == nil
}

// Review is a user's rating of a book, one per (user, book) pair.
type Review struct {
	ID        uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	UserID    uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:uniq_review_user_book" json:"user_id"`
	BookID    uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:uniq_review_user_book" json:"book_id"`
	Book      Book      `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"-"`
	Rating    int       `gorm:"not null" json:"rating"`
	Comment   string    `gorm:"type:text" json:"comment"`
	CreatedAt time.Time `gorm:"not null;default:now()" json:"created_at"`
}

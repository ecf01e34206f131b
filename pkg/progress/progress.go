// Package progress maintains book reading progress as a side effect of
// session lifecycle events. Creating a session accumulates pages onto the
// owning book and drives its status transitions inside one transaction;
// ending or editing a session never touches the book.
package progress

import (
	"errors"
	"time"

	"booktracker/pkg/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	ErrBookNotFound    = errors.New("book not found")
	ErrSessionNotFound = errors.New("reading session not found")
)

type SessionCreate struct {
	StartTime time.Time
	PagesRead int
	Notes     string
}

// SessionPatch applies only the fields the caller supplied. A nil pointer
// means "not supplied"; EndTimeSet distinguishes an explicit null end_time
// from an absent one.
type SessionPatch struct {
	EndTime    *time.Time
	EndTimeSet bool
	PagesRead  *int
	Notes      *string
}

// CreateSession persists a new session for the book and reconciles the
// book's progress in the same transaction. The page count accumulates
// without clamping; the completion check uses >= so overshoot is harmless
// for status, and both status transitions are evaluated against the
// already-updated page count so a single session can take a book straight
// from want_to_read to completed.
func CreateSession(db *gorm.DB, bookID uint, in SessionCreate) (*models.ReadingSession, error) {
	var created models.ReadingSession
	err := db.Transaction(func(tx *gorm.DB) error {
		var book models.Book
		if err := tx.First(&book, bookID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrBookNotFound
			}
			return err
		}

		created = models.ReadingSession{
			SessionUid: uuid.New().String(),
			BookID:     book.ID,
			StartTime:  in.StartTime,
			PagesRead:  in.PagesRead,
			Notes:      in.Notes,
		}
		if err := tx.Create(&created).Error; err != nil {
			return err
		}

		book.CurrentPage += in.PagesRead

		if book.Status == models.StatusWantToRead {
			book.Status = models.StatusReading
			if book.DateStarted == nil {
				started := in.StartTime
				book.DateStarted = &started
			}
		}
		if book.CurrentPage >= book.TotalPages {
			book.Status = models.StatusCompleted
			if book.DateFinished == nil {
				finished := in.StartTime
				book.DateFinished = &finished
			}
		}

		return tx.Save(&book).Error
	})
	if err != nil {
		return nil, err
	}
	return &created, nil
}

// EndSession sets the session's end time once. A missing session and an
// already-ended one collapse into the same error; callers cannot tell the
// two causes apart.
func EndSession(db *gorm.DB, sessionID uint, endTime *time.Time) (*models.ReadingSession, error) {
	var session models.ReadingSession
	err := db.Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&session, sessionID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrSessionNotFound
			}
			return err
		}
		if session.EndTime != nil {
			return ErrSessionNotFound
		}
		ended := time.Now()
		if endTime != nil {
			ended = *endTime
		}
		session.EndTime = &ended
		return tx.Save(&session).Error
	})
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// UpdateSession applies a sparse patch. Editing pages_read here does not
// re-reconcile the book's current_page; page accounting happens only at
// session creation.
func UpdateSession(db *gorm.DB, sessionID uint, patch SessionPatch) (*models.ReadingSession, error) {
	var session models.ReadingSession
	err := db.Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&session, sessionID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrSessionNotFound
			}
			return err
		}
		if patch.EndTimeSet {
			session.EndTime = patch.EndTime
		}
		if patch.PagesRead != nil {
			session.PagesRead = *patch.PagesRead
		}
		if patch.Notes != nil {
			session.Notes = *patch.Notes
		}
		// Map updates so an explicit null end_time reaches the database.
		return tx.Model(&session).Updates(map[string]interface{}{
			"end_time":   session.EndTime,
			"pages_read": session.PagesRead,
			"notes":      session.Notes,
		}).Error
	})
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// GetSession loads a session with its book for display composition.
func GetSession(db *gorm.DB, sessionID uint) (*models.ReadingSession, error) {
	var session models.ReadingSession
	if err := db.Preload("Book").First(&session, sessionID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	return &session, nil
}

// SessionsForBook lists sessions belonging to one book.
func SessionsForBook(db *gorm.DB, bookID uint, skip, limit int) ([]models.ReadingSession, error) {
	var book models.Book
	if err := db.First(&book, bookID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrBookNotFound
		}
		return nil, err
	}
	var sessions []models.ReadingSession
	err := db.Where("book_id = ?", bookID).Offset(skip).Limit(limit).Find(&sessions).Error
	return sessions, err
}

// AllSessions lists sessions across all books.
func AllSessions(db *gorm.DB, skip, limit int) ([]models.ReadingSession, error) {
	var sessions []models.ReadingSession
	err := db.Preload("Book").Offset(skip).Limit(limit).Find(&sessions).Error
	return sessions, err
}

// ActiveSessions lists ongoing sessions, optionally scoped to one book.
func ActiveSessions(db *gorm.DB, bookID *uint) ([]models.ReadingSession, error) {
	query := db.Preload("Book").Where("end_time IS NULL")
	if bookID != nil {
		query = query.Where("book_id = ?", *bookID)
	}
	var sessions []models.ReadingSession
	err := query.Find(&sessions).Error
	return sessions, err
}

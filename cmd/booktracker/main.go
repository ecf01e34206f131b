package main

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"booktracker/pkg/database"
	"booktracker/pkg/models"
	"booktracker/pkg/progress"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

var db *gorm.DB

func main() {
	log.Println("Starting booktracker service...")

	db = database.InitTrackerDB()

	if database.GetEnv("SEED_DATA", "false") == "true" {
		seedTestData()
	}

	server := gin.Default()
	server.GET("/", welcome)
	server.GET("/health", healthCheck)
	server.GET("/debug", debugInfo)

	server.POST("/api/v1/books", createBook)
	server.GET("/api/v1/books", getBooks)
	server.GET("/api/v1/books/:bookUid", getBook)
	server.PUT("/api/v1/books/:bookUid", updateBook)
	server.DELETE("/api/v1/books/:bookUid", deleteBook)

	server.POST("/api/v1/books/:bookUid/sessions", createReadingSession)
	server.GET("/api/v1/books/:bookUid/sessions", getBookSessions)
	server.GET("/api/v1/sessions", getSessions)
	server.GET("/api/v1/sessions/:sessionUid", getSession)
	server.PUT("/api/v1/sessions/:sessionUid/end", endReadingSession)
	server.PUT("/api/v1/sessions/:sessionUid", updateReadingSession)

	port := database.GetEnv("PORT", "8000")
	log.Printf("Booktracker service starting on :%s", port)
	if err := server.Run(":" + port); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}

type createBookRequest struct {
	Title        string     `json:"title" binding:"required,max=200"`
	Author       string     `json:"author" binding:"required,max=200"`
	ISBN         string     `json:"isbn" binding:"omitempty,max=13"`
	TotalPages   int        `json:"total_pages" binding:"required,gt=0"`
	CurrentPage  int        `json:"current_page" binding:"omitempty,gte=0"`
	Status       string     `json:"status" binding:"omitempty,oneof=want_to_read reading completed"`
	DateStarted  *time.Time `json:"date_started"`
	DateFinished *time.Time `json:"date_finished"`
	Rating       *int       `json:"rating" binding:"omitempty,gte=1,lte=5"`
	Notes        string     `json:"notes"`
}

func createBook(c *gin.Context) {
	var req createBookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}

	status := req.Status
	if status == "" {
		status = models.StatusWantToRead
	}

	book := models.Book{
		BookUid:      uuid.New().String(),
		Title:        req.Title,
		Author:       req.Author,
		ISBN:         req.ISBN,
		TotalPages:   req.TotalPages,
		CurrentPage:  req.CurrentPage,
		Status:       status,
		DateAdded:    time.Now(),
		DateStarted:  req.DateStarted,
		DateFinished: req.DateFinished,
		Rating:       req.Rating,
		Notes:        req.Notes,
	}
	if err := db.Create(&book).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create book"})
		return
	}

	c.JSON(http.StatusCreated, bookResponse(&book))
}

func getBooks(c *gin.Context) {
	skip, limit := parsePagination(c)
	status := c.Query("status")
	if status != "" && !models.ValidStatus(status) {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "invalid status filter"})
		return
	}

	query := db.Model(&models.Book{})
	if status != "" {
		query = query.Where("status = ?", status)
	}

	var books []models.Book
	if err := query.Offset(skip).Limit(limit).Find(&books).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	items := make([]gin.H, len(books))
	for i := range books {
		items[i] = bookResponse(&books[i])
	}
	c.JSON(http.StatusOK, items)
}

func getBook(c *gin.Context) {
	book, ok := findBook(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, bookResponse(book))
}

type updateBookRequest struct {
	Title        *string    `json:"title" binding:"omitempty,max=200"`
	Author       *string    `json:"author" binding:"omitempty,max=200"`
	ISBN         *string    `json:"isbn" binding:"omitempty,max=13"`
	TotalPages   *int       `json:"total_pages" binding:"omitempty,gt=0"`
	CurrentPage  *int       `json:"current_page" binding:"omitempty,gte=0"`
	Status       *string    `json:"status" binding:"omitempty,oneof=want_to_read reading completed"`
	DateStarted  *time.Time `json:"date_started"`
	DateFinished *time.Time `json:"date_finished"`
	Rating       *int       `json:"rating" binding:"omitempty,gte=1,lte=5"`
	Notes        *string    `json:"notes"`
}

func updateBook(c *gin.Context) {
	book, ok := findBook(c)
	if !ok {
		return
	}

	var req updateBookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}

	// Only supplied fields change; omitted ones stay as stored.
	if req.Title != nil {
		book.Title = *req.Title
	}
	if req.Author != nil {
		book.Author = *req.Author
	}
	if req.ISBN != nil {
		book.ISBN = *req.ISBN
	}
	if req.TotalPages != nil {
		book.TotalPages = *req.TotalPages
	}
	if req.CurrentPage != nil {
		book.CurrentPage = *req.CurrentPage
	}
	if req.Status != nil {
		book.Status = *req.Status
	}
	if req.DateStarted != nil {
		book.DateStarted = req.DateStarted
	}
	if req.DateFinished != nil {
		book.DateFinished = req.DateFinished
	}
	if req.Rating != nil {
		book.Rating = req.Rating
	}
	if req.Notes != nil {
		book.Notes = *req.Notes
	}

	if err := db.Save(book).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update book"})
		return
	}
	c.JSON(http.StatusOK, bookResponse(book))
}

func deleteBook(c *gin.Context) {
	book, ok := findBook(c)
	if !ok {
		return
	}

	// Deleting a book removes all of its sessions.
	err := db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("book_id = ?", book.ID).Delete(&models.ReadingSession{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Book{}, book.ID).Error
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete book"})
		return
	}
	c.JSON(http.StatusOK, bookResponse(book))
}

type createSessionRequest struct {
	StartTime time.Time `json:"start_time" binding:"required"`
	PagesRead *int      `json:"pages_read" binding:"required,gte=0"`
	Notes     string    `json:"notes"`
}

func createReadingSession(c *gin.Context) {
	book, ok := findBook(c)
	if !ok {
		return
	}

	var req createSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}

	session, err := progress.CreateSession(db, book.ID, progress.SessionCreate{
		StartTime: req.StartTime,
		PagesRead: *req.PagesRead,
		Notes:     req.Notes,
	})
	if err != nil {
		if errors.Is(err, progress.ErrBookNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Book not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, sessionResponse(session, book.BookUid))
}

func getBookSessions(c *gin.Context) {
	book, ok := findBook(c)
	if !ok {
		return
	}
	skip, limit := parsePagination(c)

	sessions, err := progress.SessionsForBook(db, book.ID, skip, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	items := make([]gin.H, len(sessions))
	for i := range sessions {
		items[i] = sessionResponse(&sessions[i], book.BookUid)
	}
	c.JSON(http.StatusOK, items)
}

func getSessions(c *gin.Context) {
	skip, limit := parsePagination(c)
	activeOnly := c.DefaultQuery("active_only", "false") == "true"

	var sessions []models.ReadingSession
	var err error
	if activeOnly {
		sessions, err = progress.ActiveSessions(db, nil)
	} else {
		sessions, err = progress.AllSessions(db, skip, limit)
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	items := make([]gin.H, len(sessions))
	for i := range sessions {
		items[i] = sessionWithBookResponse(&sessions[i])
	}
	c.JSON(http.StatusOK, items)
}

func getSession(c *gin.Context) {
	session, ok := findSession(c)
	if !ok {
		return
	}
	loaded, err := progress.GetSession(db, session.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, sessionWithBookResponse(loaded))
}

type endSessionRequest struct {
	EndTime *time.Time `json:"end_time"`
}

func endReadingSession(c *gin.Context) {
	session, ok := findSession(c)
	if !ok {
		return
	}

	var endTime *time.Time
	if raw := c.Query("end_time"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "end_time must be RFC3339"})
			return
		}
		endTime = &parsed
	} else if c.Request.Body != nil && c.Request.ContentLength > 0 {
		var req endSessionRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
			return
		}
		endTime = req.EndTime
	}

	ended, err := progress.EndSession(db, session.ID, endTime)
	if err != nil {
		if errors.Is(err, progress.ErrSessionNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Reading session not found or already ended"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, sessionResponse(ended, ""))
}

type updateSessionRequest struct {
	EndTime   json.RawMessage `json:"end_time"`
	PagesRead *int            `json:"pages_read" binding:"omitempty,gte=0"`
	Notes     *string         `json:"notes"`
}

func updateReadingSession(c *gin.Context) {
	session, ok := findSession(c)
	if !ok {
		return
	}

	var req updateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}

	patch := progress.SessionPatch{
		PagesRead: req.PagesRead,
		Notes:     req.Notes,
	}
	// An absent end_time leaves the stored value alone; an explicit null
	// clears it.
	if len(req.EndTime) > 0 {
		patch.EndTimeSet = true
		if string(req.EndTime) != "null" {
			var endTime time.Time
			if err := json.Unmarshal(req.EndTime, &endTime); err != nil {
				c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "end_time must be RFC3339 or null"})
				return
			}
			patch.EndTime = &endTime
		}
	}

	updated, err := progress.UpdateSession(db, session.ID, patch)
	if err != nil {
		if errors.Is(err, progress.ErrSessionNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Reading session not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, sessionResponse(updated, ""))
}

func findBook(c *gin.Context) (*models.Book, bool) {
	bookUid := c.Param("bookUid")

	var book models.Book
	if err := db.Where("book_uid = ?", bookUid).First(&book).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Book not found"})
		return nil, false
	}
	return &book, true
}

func findSession(c *gin.Context) (*models.ReadingSession, bool) {
	sessionUid := c.Param("sessionUid")

	var session models.ReadingSession
	if err := db.Where("session_uid = ?", sessionUid).First(&session).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Reading session not found"})
		return nil, false
	}
	return &session, true
}

func parsePagination(c *gin.Context) (int, int) {
	skip, err := strconv.Atoi(c.DefaultQuery("skip", "0"))
	if err != nil || skip < 0 {
		skip = 0
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "100"))
	if err != nil || limit < 1 || limit > 1000 {
		limit = 100
	}
	return skip, limit
}

func bookResponse(b *models.Book) gin.H {
	var isbn interface{}
	if b.ISBN != "" {
		isbn = b.ISBN
	}
	return gin.H{
		"book_uid":      b.BookUid,
		"title":         b.Title,
		"author":        b.Author,
		"isbn":          isbn,
		"total_pages":   b.TotalPages,
		"current_page":  b.CurrentPage,
		"status":        b.Status,
		"date_added":    b.DateAdded,
		"date_started":  b.DateStarted,
		"date_finished": b.DateFinished,
		"rating":        b.Rating,
		"notes":         b.Notes,
	}
}

func sessionResponse(s *models.ReadingSession, bookUid string) gin.H {
	if bookUid == "" {
		var book models.Book
		if err := db.Select("book_uid").First(&book, s.BookID).Error; err == nil {
			bookUid = book.BookUid
		}
	}
	return gin.H{
		"session_uid":      s.SessionUid,
		"book_uid":         bookUid,
		"start_time":       s.StartTime,
		"end_time":         s.EndTime,
		"pages_read":       s.PagesRead,
		"notes":            s.Notes,
		"created_at":       s.CreatedAt,
		"duration_minutes": s.DurationMinutes(),
		"is_active":        s.IsActive(),
	}
}

func sessionWithBookResponse(s *models.ReadingSession) gin.H {
	resp := sessionResponse(s, s.Book.BookUid)
	resp["book"] = bookResponse(&s.Book)
	return resp
}

func seedTestData() {
	var count int64
	db.Model(&models.Book{}).Count(&count)
	if count > 0 {
		return
	}

	books := []models.Book{
		{Title: "The Go Programming Language", Author: "Donovan & Kernighan", TotalPages: 380, ISBN: "9780134190440"},
		{Title: "Designing Data-Intensive Applications", Author: "Martin Kleppmann", TotalPages: 616},
		{Title: "The Pragmatic Programmer", Author: "Hunt & Thomas", TotalPages: 352},
	}
	for i := range books {
		books[i].BookUid = uuid.New().String()
		books[i].Status = models.StatusWantToRead
		books[i].DateAdded = time.Now()
		if err := db.Create(&books[i]).Error; err != nil {
			log.Printf("Failed to seed book %s: %v", books[i].Title, err)
		}
	}

	if _, err := progress.CreateSession(db, books[0].ID, progress.SessionCreate{
		StartTime: time.Now().Add(-time.Hour),
		PagesRead: 42,
		Notes:     "first sitting",
	}); err != nil {
		log.Printf("Failed to seed reading session: %v", err)
	}
	log.Println("Booktracker test data seeded")
}

func welcome(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "Welcome to Book Tracker API"})
}

func healthCheck(c *gin.Context) {
	sqlDB, err := db.DB()
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":  "DOWN",
			"details": "Database connection failed",
			"error":   err.Error(),
		})
		return
	}
	if err := sqlDB.Ping(); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":  "DOWN",
			"details": "Database ping failed",
			"error":   err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "UP"})
}

func debugInfo(c *gin.Context) {
	tables, err := db.Migrator().GetTables()
	if err != nil {
		c.JSON(http.StatusOK, gin.H{"status": "error", "error": err.Error()})
		return
	}

	var bookCount, sessionCount int64
	db.Model(&models.Book{}).Count(&bookCount)
	db.Model(&models.ReadingSession{}).Count(&sessionCount)

	c.JSON(http.StatusOK, gin.H{
		"database_tables":       tables,
		"book_count":            bookCount,
		"reading_session_count": sessionCount,
		"status":                "connected",
	})
}

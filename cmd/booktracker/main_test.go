package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"booktracker/pkg/models"
	"booktracker/pkg/progress"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupTestDB() *gorm.DB {
	testDB, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		panic("failed to connect test database")
	}
	testDB.AutoMigrate(&models.Book{}, &models.ReadingSession{})
	return testDB
}

func jsonRequest(method, target string, body interface{}) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

func createBookRow(t *testing.T, totalPages int) *models.Book {
	book := models.Book{
		BookUid:    uuid.New().String(),
		Title:      "Test Book",
		Author:     "Test Author",
		TotalPages: totalPages,
		Status:     models.StatusWantToRead,
		DateAdded:  time.Now(),
	}
	if err := db.Create(&book).Error; err != nil {
		t.Fatalf("failed to create test book: %v", err)
	}
	return &book
}

func TestCreateBook(t *testing.T) {
	gin.SetMode(gin.TestMode)
	db = setupTestDB()

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = jsonRequest("POST", "/api/v1/books", gin.H{
		"title":       "Dune",
		"author":      "Frank Herbert",
		"total_pages": 412,
	})

	createBook(c)

	assert.Equal(t, http.StatusCreated, w.Code)
	var response map[string]interface{}
	json.Unmarshal(w.Body.Bytes(), &response)
	assert.Equal(t, "Dune", response["title"])
	assert.Equal(t, "want_to_read", response["status"])
	assert.Equal(t, float64(0), response["current_page"])
	assert.NotEmpty(t, response["book_uid"])
}

func TestCreateBookValidation(t *testing.T) {
	gin.SetMode(gin.TestMode)
	db = setupTestDB()

	cases := []gin.H{
		{"author": "No Title", "total_pages": 100},
		{"title": "No Pages", "author": "A"},
		{"title": "Bad Pages", "author": "A", "total_pages": 0},
		{"title": "Bad Rating", "author": "A", "total_pages": 100, "rating": 6},
		{"title": "Bad Status", "author": "A", "total_pages": 100, "status": "paused"},
	}
	for _, body := range cases {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		c.Request = jsonRequest("POST", "/api/v1/books", body)

		createBook(c)

		assert.Equal(t, http.StatusUnprocessableEntity, w.Code, "body: %v", body)
	}
}

func TestGetBook(t *testing.T) {
	gin.SetMode(gin.TestMode)
	db = setupTestDB()
	book := createBookRow(t, 300)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest("GET", "/api/v1/books/"+book.BookUid, nil)
	c.Params = gin.Params{gin.Param{Key: "bookUid", Value: book.BookUid}}

	getBook(c)

	assert.Equal(t, http.StatusOK, w.Code)
	var response map[string]interface{}
	json.Unmarshal(w.Body.Bytes(), &response)
	assert.Equal(t, book.BookUid, response["book_uid"])
	assert.Equal(t, "Test Book", response["title"])
}

func TestGetBookNotFound(t *testing.T) {
	gin.SetMode(gin.TestMode)
	db = setupTestDB()

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest("GET", "/api/v1/books/missing", nil)
	c.Params = gin.Params{gin.Param{Key: "bookUid", Value: "missing"}}

	getBook(c)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetBooksStatusFilter(t *testing.T) {
	gin.SetMode(gin.TestMode)
	db = setupTestDB()

	createBookRow(t, 300)
	reading := createBookRow(t, 200)
	db.Model(reading).Update("status", models.StatusReading)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest("GET", "/api/v1/books?status=reading", nil)

	getBooks(c)

	assert.Equal(t, http.StatusOK, w.Code)
	var items []map[string]interface{}
	json.Unmarshal(w.Body.Bytes(), &items)
	assert.Len(t, items, 1)
	assert.Equal(t, "reading", items[0]["status"])
}

func TestUpdateBookPartial(t *testing.T) {
	gin.SetMode(gin.TestMode)
	db = setupTestDB()
	book := createBookRow(t, 300)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = jsonRequest("PUT", "/api/v1/books/"+book.BookUid, gin.H{"rating": 4})
	c.Params = gin.Params{gin.Param{Key: "bookUid", Value: book.BookUid}}

	updateBook(c)

	assert.Equal(t, http.StatusOK, w.Code)
	var stored models.Book
	db.First(&stored, book.ID)
	assert.NotNil(t, stored.Rating)
	assert.Equal(t, 4, *stored.Rating)
	// Untouched fields survive the patch.
	assert.Equal(t, "Test Book", stored.Title)
	assert.Equal(t, 300, stored.TotalPages)
}

func TestDeleteBookCascadesSessions(t *testing.T) {
	gin.SetMode(gin.TestMode)
	db = setupTestDB()
	book := createBookRow(t, 300)

	var sessionUids []string
	for i := 0; i < 3; i++ {
		session, err := progress.CreateSession(db, book.ID, progress.SessionCreate{
			StartTime: time.Now(),
			PagesRead: 10,
		})
		assert.NoError(t, err)
		sessionUids = append(sessionUids, session.SessionUid)
	}

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest("DELETE", "/api/v1/books/"+book.BookUid, nil)
	c.Params = gin.Params{gin.Param{Key: "bookUid", Value: book.BookUid}}

	deleteBook(c)

	assert.Equal(t, http.StatusOK, w.Code)

	var count int64
	db.Model(&models.ReadingSession{}).Where("book_id = ?", book.ID).Count(&count)
	assert.Equal(t, int64(0), count)

	for _, uid := range sessionUids {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		c.Request = httptest.NewRequest("GET", "/api/v1/sessions/"+uid, nil)
		c.Params = gin.Params{gin.Param{Key: "sessionUid", Value: uid}}

		getSession(c)

		assert.Equal(t, http.StatusNotFound, w.Code)
	}
}

func TestCreateReadingSessionUpdatesBook(t *testing.T) {
	gin.SetMode(gin.TestMode)
	db = setupTestDB()
	book := createBookRow(t, 300)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = jsonRequest("POST", fmt.Sprintf("/api/v1/books/%s/sessions", book.BookUid), gin.H{
		"start_time": time.Now().Format(time.RFC3339),
		"pages_read": 50,
	})
	c.Params = gin.Params{gin.Param{Key: "bookUid", Value: book.BookUid}}

	createReadingSession(c)

	assert.Equal(t, http.StatusCreated, w.Code)
	var response map[string]interface{}
	json.Unmarshal(w.Body.Bytes(), &response)
	assert.Equal(t, true, response["is_active"])
	assert.Nil(t, response["duration_minutes"])

	var stored models.Book
	db.First(&stored, book.ID)
	assert.Equal(t, 50, stored.CurrentPage)
	assert.Equal(t, models.StatusReading, stored.Status)
}

func TestCreateReadingSessionBookMissing(t *testing.T) {
	gin.SetMode(gin.TestMode)
	db = setupTestDB()

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = jsonRequest("POST", "/api/v1/books/missing/sessions", gin.H{
		"start_time": time.Now().Format(time.RFC3339),
		"pages_read": 50,
	})
	c.Params = gin.Params{gin.Param{Key: "bookUid", Value: "missing"}}

	createReadingSession(c)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCreateReadingSessionValidation(t *testing.T) {
	gin.SetMode(gin.TestMode)
	db = setupTestDB()
	book := createBookRow(t, 300)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = jsonRequest("POST", fmt.Sprintf("/api/v1/books/%s/sessions", book.BookUid), gin.H{
		"start_time": time.Now().Format(time.RFC3339),
		"pages_read": -5,
	})
	c.Params = gin.Params{gin.Param{Key: "bookUid", Value: book.BookUid}}

	createReadingSession(c)

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestEndReadingSessionTwice(t *testing.T) {
	gin.SetMode(gin.TestMode)
	db = setupTestDB()
	book := createBookRow(t, 300)

	session, err := progress.CreateSession(db, book.ID, progress.SessionCreate{
		StartTime: time.Now().Add(-time.Hour),
		PagesRead: 10,
	})
	assert.NoError(t, err)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest("PUT", fmt.Sprintf("/api/v1/sessions/%s/end", session.SessionUid), nil)
	c.Params = gin.Params{gin.Param{Key: "sessionUid", Value: session.SessionUid}}

	endReadingSession(c)
	assert.Equal(t, http.StatusOK, w.Code)

	var response map[string]interface{}
	json.Unmarshal(w.Body.Bytes(), &response)
	assert.Equal(t, false, response["is_active"])

	w = httptest.NewRecorder()
	c, _ = gin.CreateTestContext(w)
	c.Request = httptest.NewRequest("PUT", fmt.Sprintf("/api/v1/sessions/%s/end", session.SessionUid), nil)
	c.Params = gin.Params{gin.Param{Key: "sessionUid", Value: session.SessionUid}}

	endReadingSession(c)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestEndReadingSessionExplicitTime(t *testing.T) {
	gin.SetMode(gin.TestMode)
	db = setupTestDB()
	book := createBookRow(t, 300)

	start := time.Date(2024, 3, 1, 20, 0, 0, 0, time.UTC)
	session, err := progress.CreateSession(db, book.ID, progress.SessionCreate{
		StartTime: start,
		PagesRead: 10,
	})
	assert.NoError(t, err)

	end := start.Add(90 * time.Minute)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	target := fmt.Sprintf("/api/v1/sessions/%s/end?end_time=%s", session.SessionUid, end.Format(time.RFC3339))
	c.Request = httptest.NewRequest("PUT", target, nil)
	c.Params = gin.Params{gin.Param{Key: "sessionUid", Value: session.SessionUid}}

	endReadingSession(c)

	assert.Equal(t, http.StatusOK, w.Code)
	var response map[string]interface{}
	json.Unmarshal(w.Body.Bytes(), &response)
	assert.Equal(t, float64(90), response["duration_minutes"])
}

func TestUpdateReadingSessionPartial(t *testing.T) {
	gin.SetMode(gin.TestMode)
	db = setupTestDB()
	book := createBookRow(t, 300)

	session, err := progress.CreateSession(db, book.ID, progress.SessionCreate{
		StartTime: time.Now(),
		PagesRead: 10,
		Notes:     "before",
	})
	assert.NoError(t, err)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = jsonRequest("PUT", "/api/v1/sessions/"+session.SessionUid, gin.H{"notes": "after"})
	c.Params = gin.Params{gin.Param{Key: "sessionUid", Value: session.SessionUid}}

	updateReadingSession(c)

	assert.Equal(t, http.StatusOK, w.Code)
	var stored models.ReadingSession
	db.First(&stored, session.ID)
	assert.Equal(t, "after", stored.Notes)
	assert.Equal(t, 10, stored.PagesRead)

	// Editing pages_read does not re-reconcile the book.
	w = httptest.NewRecorder()
	c, _ = gin.CreateTestContext(w)
	c.Request = jsonRequest("PUT", "/api/v1/sessions/"+session.SessionUid, gin.H{"pages_read": 200})
	c.Params = gin.Params{gin.Param{Key: "sessionUid", Value: session.SessionUid}}

	updateReadingSession(c)

	assert.Equal(t, http.StatusOK, w.Code)
	var storedBook models.Book
	db.First(&storedBook, book.ID)
	assert.Equal(t, 10, storedBook.CurrentPage)
}

func TestGetSessionsActiveOnly(t *testing.T) {
	gin.SetMode(gin.TestMode)
	db = setupTestDB()
	book := createBookRow(t, 300)

	first, err := progress.CreateSession(db, book.ID, progress.SessionCreate{StartTime: time.Now(), PagesRead: 5})
	assert.NoError(t, err)
	_, err = progress.CreateSession(db, book.ID, progress.SessionCreate{StartTime: time.Now(), PagesRead: 5})
	assert.NoError(t, err)
	_, err = progress.EndSession(db, first.ID, nil)
	assert.NoError(t, err)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest("GET", "/api/v1/sessions?active_only=true", nil)

	getSessions(c)

	assert.Equal(t, http.StatusOK, w.Code)
	var items []map[string]interface{}
	json.Unmarshal(w.Body.Bytes(), &items)
	assert.Len(t, items, 1)
	assert.Equal(t, true, items[0]["is_active"])
	assert.NotNil(t, items[0]["book"])

	w = httptest.NewRecorder()
	c, _ = gin.CreateTestContext(w)
	c.Request = httptest.NewRequest("GET", "/api/v1/sessions", nil)

	getSessions(c)

	assert.Equal(t, http.StatusOK, w.Code)
	json.Unmarshal(w.Body.Bytes(), &items)
	assert.Len(t, items, 2)
}

func TestHealthCheck(t *testing.T) {
	gin.SetMode(gin.TestMode)
	db = setupTestDB()

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest("GET", "/health", nil)

	healthCheck(c)

	assert.Equal(t, http.StatusOK, w.Code)
	var response map[string]interface{}
	json.Unmarshal(w.Body.Bytes(), &response)
	assert.Equal(t, "UP", response["status"])
}

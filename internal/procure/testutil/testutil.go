package testutil

import (
	"bytes"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bitfantasy/nimo-procure/internal/middleware"
	"github.com/bitfantasy/nimo-procure/internal/procure/entity"
	"github.com/bitfantasy/nimo-procure/internal/procure/repository"
	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/golang-jwt/jwt/v5"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const JWTSecret = "nimo-procure-test-secret"

// TestEnv holds test environment resources
type TestEnv struct {
	DB     *gorm.DB
	Router *gin.Engine
	T      *testing.T
}

// SetupTestDB opens an isolated in-memory SQLite database with every table migrated.
func SetupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:                                   logger.Default.LogMode(logger.Silent),
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}

	// :memory: is per connection
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("Failed to get sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := repository.AutoMigrate(db); err != nil {
		t.Fatalf("Failed to migrate test tables: %v", err)
	}

	t.Cleanup(func() {
		sqlDB.Close()
	})
	return db
}

// SetupRouter creates a gin test router
func SetupRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(gin.Recovery())
	return r
}

// AuthGroup creates an API group with JWT auth middleware for testing
func AuthGroup(r *gin.Engine, path string) *gin.RouterGroup {
	return r.Group(path, middleware.JWTAuth(JWTSecret))
}

// GenerateTestToken creates a valid JWT token for testing
func GenerateTestToken(userID, name string, roles, permissions []string) string {
	if roles == nil {
		roles = []string{}
	}
	if permissions == nil {
		permissions = []string{}
	}

	now := time.Now()
	claims := jwt.MapClaims{
		"sub":   userID,
		"uid":   userID,
		"name":  name,
		"email": userID + "@test.com",
		"roles": roles,
		"perms": permissions,
		"iss":   "nimo-procure",
		"iat":   now.Unix(),
		"exp":   now.Add(24 * time.Hour).Unix(),
		"jti":   fmt.Sprintf("test-jti-%d", now.UnixNano()),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, _ := token.SignedString([]byte(JWTSecret))
	return tokenString
}

// DefaultTestToken returns a token for an admin test user holding every permission
func DefaultTestToken() string {
	return GenerateTestToken("test-user-001", "Test Admin", []string{middleware.AdminRole}, []string{"*"})
}

// BuyerToken may select vendors but neither override the lowest price nor approve
func BuyerToken(userID string) string {
	return GenerateTestToken(userID, "Buyer "+userID, []string{"buyer"}, []string{middleware.PermSelectVendor})
}

// DoRequest executes an HTTP request against the test router
func DoRequest(r *gin.Engine, method, path string, body interface{}, token string) *httptest.ResponseRecorder {
	reqBody := bytes.NewBuffer(nil)
	if body != nil {
		jsonBytes, _ := json.Marshal(body)
		reqBody = bytes.NewBuffer(jsonBytes)
	}

	req, _ := http.NewRequest(method, path, reqBody)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

// DoUpload posts a single multipart file field named "file"
func DoUpload(r *gin.Engine, path, filename string, content []byte, token string) *httptest.ResponseRecorder {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, _ := writer.CreateFormFile("file", filename)
	part.Write(content)
	writer.Close()

	req, _ := http.NewRequest("POST", path, body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

// ParseResponse parses the JSON response body into a handler.Response-like map
func ParseResponse(w *httptest.ResponseRecorder) map[string]interface{} {
	var result map[string]interface{}
	json.Unmarshal(w.Body.Bytes(), &result)
	return result
}

// SeedCatalogItem creates a catalog item with the given vendor prices, in entry order.
func SeedCatalogItem(t *testing.T, db *gorm.DB, id, name, unit string, prices ...entity.VendorPrice) *entity.CatalogItem {
	t.Helper()
	item := &entity.CatalogItem{
		ID:   id,
		Code: "CI-" + id,
		Name: name,
		Unit: unit,
	}
	for i := range prices {
		p := prices[i]
		p.ID = fmt.Sprintf("%s-%s", id, p.VendorID)
		p.CatalogItemID = id
		p.SortOrder = i + 1
		item.Prices = append(item.Prices, p)
	}
	if err := db.Create(item).Error; err != nil {
		t.Fatalf("Failed to seed catalog item: %v", err)
	}
	return item
}

// Price is shorthand for an active vendor price.
func Price(vendorID, vendorName string, unitPrice, unitGST float64) entity.VendorPrice {
	return entity.VendorPrice{
		VendorID:   vendorID,
		VendorName: vendorName,
		UnitPrice:  unitPrice,
		UnitGST:    unitGST,
		Active:     true,
	}
}

// SeedRequisition creates a requisition in status with one line per catalog item and quantity.
func SeedRequisition(t *testing.T, db *gorm.DB, id, status string, lines ...entity.RequisitionLine) *entity.Requisition {
	t.Helper()
	req := &entity.Requisition{
		ID:          id,
		Code:        "REQ-TEST-" + id,
		Title:       "Test requisition " + id,
		Status:      status,
		RequestedBy: "test-user-001",
	}
	for i := range lines {
		l := lines[i]
		if l.ID == "" {
			l.ID = fmt.Sprintf("%s-l%d", id, i+1)
		}
		l.RequisitionID = id
		l.SortOrder = i + 1
		req.Lines = append(req.Lines, l)
	}
	if err := db.Create(req).Error; err != nil {
		t.Fatalf("Failed to seed requisition: %v", err)
	}
	return req
}

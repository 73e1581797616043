package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hugh/agencydesk/internal/auth"
	"github.com/hugh/agencydesk/internal/database"
	"github.com/hugh/agencydesk/internal/database/models"
	"github.com/hugh/agencydesk/pkg/config"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// SetupTestDB creates an in-memory SQLite database for testing
func SetupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: database.SQLLogger(DiscardLogger()),
	})
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}

	// Every pooled connection to :memory: would be a separate database.
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to get sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := database.AutoMigrate(db); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}

	return db
}

// CleanupTestDB closes the test database connection
func CleanupTestDB(t *testing.T, db *gorm.DB) {
	t.Helper()
	sqlDB, err := db.DB()
	if err != nil {
		t.Logf("warning: failed to get sql.DB: %v", err)
		return
	}
	sqlDB.Close()
}

func DiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// CreateTestUser creates a user that belongs to no organization yet
func CreateTestUser(t *testing.T, db *gorm.DB) *models.User {
	t.Helper()

	suffix := uuid.New().String()[:8]
	user := &models.User{
		Base:            models.Base{ID: uuid.New()},
		Email:           "test-" + suffix + "@example.com",
		Name:            "Test User",
		Provider:        "google",
		ProviderSubject: "sub-" + suffix,
	}

	if err := db.Create(user).Error; err != nil {
		t.Fatalf("failed to create test user: %v", err)
	}

	return user
}

// CreateTestOrg creates an organization owned by owner, with the owner's
// active membership.
func CreateTestOrg(t *testing.T, db *gorm.DB, owner *models.User) *models.Organization {
	t.Helper()

	org := &models.Organization{
		Base:    models.Base{ID: uuid.New()},
		Name:    "Test Agency",
		Slug:    "test-agency-" + uuid.New().String()[:8],
		OwnerID: owner.ID,
	}
	if err := db.Create(org).Error; err != nil {
		t.Fatalf("failed to create test organization: %v", err)
	}

	AddTestMember(t, db, org.ID, owner, "owner")
	return org
}

// AddTestMember adds an active membership
func AddTestMember(t *testing.T, db *gorm.DB, orgID uuid.UUID, user *models.User, role string) *models.Member {
	t.Helper()

	member := &models.Member{
		OrgID:  orgID,
		UserID: user.ID,
		Email:  user.Email,
		Role:   role,
		Status: models.MemberStatusActive,
	}
	if err := db.Create(member).Error; err != nil {
		t.Fatalf("failed to create test member: %v", err)
	}
	return member
}

func CreateTestClient(t *testing.T, db *gorm.DB, orgID uuid.UUID, name string) *models.Client {
	t.Helper()

	client := &models.Client{
		OrgID:  orgID,
		Name:   name,
		Email:  "hello@" + uuid.New().String()[:8] + ".example.com",
		Status: models.ClientStatusActive,
		Plan:   "retainer",
	}
	if err := db.Create(client).Error; err != nil {
		t.Fatalf("failed to create test client: %v", err)
	}
	return client
}

// LinkTestClient grants a client-role user access to a client
func LinkTestClient(t *testing.T, db *gorm.DB, orgID, clientID, userID uuid.UUID) {
	t.Helper()

	link := &models.ClientAccess{OrgID: orgID, ClientID: clientID, UserID: userID}
	if err := db.Create(link).Error; err != nil {
		t.Fatalf("failed to link test client: %v", err)
	}
}

func CreateTestTask(t *testing.T, db *gorm.DB, orgID, clientID uuid.UUID, title string) *models.Task {
	t.Helper()

	task := &models.Task{
		OrgID:    orgID,
		ClientID: clientID,
		Title:    title,
		Status:   models.TaskStatusPending,
		Urgency:  models.UrgencyNormal,
	}
	if err := db.Create(task).Error; err != nil {
		t.Fatalf("failed to create test task: %v", err)
	}
	return task
}

func CreateTestInvitation(t *testing.T, db *gorm.DB, orgID, invitedBy uuid.UUID, role string, expiresAt time.Time) *models.Invitation {
	t.Helper()

	inv := &models.Invitation{
		OrgID:     orgID,
		Email:     "invitee-" + uuid.New().String()[:8] + "@example.com",
		Token:     uuid.New().String(),
		Role:      role,
		ExpiresAt: expiresAt,
		InvitedBy: invitedBy,
	}
	if err := db.Create(inv).Error; err != nil {
		t.Fatalf("failed to create test invitation: %v", err)
	}
	return inv
}

// CreateTestJWTService creates a JWT service for testing
func CreateTestJWTService() *auth.JWTService {
	return auth.NewJWTService("test-secret-key-for-testing", 24*time.Hour)
}

// GenerateTestToken generates a valid JWT token for the given user
func GenerateTestToken(t *testing.T, jwtService *auth.JWTService, user *models.User) string {
	t.Helper()

	token, err := jwtService.GenerateToken(user.ID, user.Email)
	if err != nil {
		t.Fatalf("failed to generate test token: %v", err)
	}

	return token
}

// OAuthConfig points an OAuth provider at a test server
func OAuthConfig(baseURL string) *config.OAuthConfig {
	return &config.OAuthConfig{
		Provider:     "test",
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		AuthURL:      baseURL + "/authorize",
		TokenURL:     baseURL + "/token",
		UserInfoURL:  baseURL + "/userinfo",
		Scopes:       []string{"openid", "email"},
	}
}

// AuthenticatedRequest creates an HTTP request with authentication
func AuthenticatedRequest(t *testing.T, method, path string, body interface{}, token string) *http.Request {
	t.Helper()

	var reqBody *bytes.Buffer
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to marshal request body: %v", err)
		}
		reqBody = bytes.NewBuffer(jsonData)
	} else {
		reqBody = bytes.NewBuffer(nil)
	}

	req := httptest.NewRequest(method, path, reqBody)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	return req
}

// UnauthenticatedRequest creates an HTTP request without authentication
func UnauthenticatedRequest(t *testing.T, method, path string, body interface{}) *http.Request {
	t.Helper()
	return AuthenticatedRequest(t, method, path, body, "")
}

// AssertStatus checks if the response has the expected status code
func AssertStatus(t *testing.T, rr *httptest.ResponseRecorder, expected int) {
	t.Helper()
	if rr.Code != expected {
		t.Errorf("expected status %d, got %d. Body: %s", expected, rr.Code, rr.Body.String())
	}
}

// ParseJSONResponse parses the response body into the given struct
func ParseJSONResponse(t *testing.T, rr *httptest.ResponseRecorder, v interface{}) {
	t.Helper()

	if err := json.Unmarshal(rr.Body.Bytes(), v); err != nil {
		t.Fatalf("failed to parse response body: %v. Body: %s", err, rr.Body.String())
	}
}

// TestContext creates a context with a timeout for tests
func TestContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// TestSetup holds all the common test dependencies
type TestSetup struct {
	DB         *gorm.DB
	JWTService *auth.JWTService
	Org        *models.Organization
	Owner      *models.User
	Token      string
}

// NewTestContext creates a database with one organization, its owner and a token
func NewTestContext(t *testing.T) *TestSetup {
	t.Helper()

	db := SetupTestDB(t)
	jwtService := CreateTestJWTService()
	owner := CreateTestUser(t, db)
	org := CreateTestOrg(t, db, owner)
	token := GenerateTestToken(t, jwtService, owner)

	return &TestSetup{
		DB:         db,
		JWTService: jwtService,
		Org:        org,
		Owner:      owner,
		Token:      token,
	}
}

// NewMember creates a user with role in the setup's organization and returns
// the user and a token for them.
func (ts *TestSetup) NewMember(t *testing.T, role string) (*models.User, string) {
	t.Helper()
	user := CreateTestUser(t, ts.DB)
	AddTestMember(t, ts.DB, ts.Org.ID, user, role)
	return user, GenerateTestToken(t, ts.JWTService, user)
}

// Cleanup closes the test database
func (ts *TestSetup) Cleanup() {
	if ts.DB != nil {
		sqlDB, err := ts.DB.DB()
		if err == nil {
			sqlDB.Close()
		}
	}
}

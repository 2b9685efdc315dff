package handler

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"golang.org/x/crypto/bcrypt"

	"clouddrive/internal/auth"
	"clouddrive/internal/domain"
	"clouddrive/internal/encryption"
	"clouddrive/internal/middleware"
	"clouddrive/internal/repository"
	"clouddrive/internal/service"
	"clouddrive/internal/storage"
	"clouddrive/internal/testutils"
)

type testServer struct {
	*httptest.Server
	db       *sqlx.DB
	notifier *testutils.RecordingNotifier
}

func newTestServer(t *testing.T, limits RateLimits) *testServer {
	t.Helper()

	db := testutils.InitMemoryDB(t)
	store, err := storage.NewLocalStorage(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	repos := repository.New(db)
	hasher := encryption.NewService(bcrypt.MinCost)
	notifier := &testutils.RecordingNotifier{}
	jwt := auth.NewTokenManager(auth.TokenConfig{
		AccessSecret:  "access",
		RefreshSecret: "refresh",
		AccessTTL:     time.Minute,
		RefreshTTL:    time.Hour,
	})

	tokens := service.NewTokenService(repos, hasher, notifier, service.TokenConfig{
		VerificationTTL: time.Hour,
		ResetTTL:        time.Hour,
		AppURL:          "http://api.test",
		FrontendURL:     "http://app.test",
	})
	perms := service.NewPermissionService(repos)

	router := NewRouter(Services{
		Auth:    service.NewAuthService(repos, tokens, hasher, jwt, notifier),
		Tokens:  tokens,
		Users:   service.NewUserService(repos.Users),
		Items:   service.NewDriveItemService(repos, perms, store),
		Files:   service.NewFileService(repos, perms, store, nil, 1<<20),
		Folders: service.NewFolderService(repos.Items),
		Perms:   perms,
	}, auth.NewMiddleware(jwt, repos.Users, WriteError), db, RouterConfig{
		CORSOrigins:    []string{"*"},
		RequestTimeout: 10 * time.Second,
		RateLimits:     limits,
	})

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return &testServer{Server: srv, db: db, notifier: notifier}
}

type apiResponse struct {
	Success    bool            `json:"success"`
	Message    string          `json:"message"`
	Data       json.RawMessage `json:"data"`
	Error      string          `json:"error"`
	StatusCode int             `json:"statusCode"`
}

func (s *testServer) do(t *testing.T, method, path, token string, body io.Reader, contentType string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequest(method, s.URL+path, body)
	if err != nil {
		t.Fatal(err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer res.Body.Close()
	raw, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatal(err)
	}
	return res, raw
}

// call выполняет JSON-запрос и проверяет код ответа.
func (s *testServer) call(t *testing.T, method, path, token string, payload interface{}, wantStatus int) apiResponse {
	t.Helper()

	var body io.Reader
	contentType := ""
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			t.Fatal(err)
		}
		body = bytes.NewReader(b)
		contentType = "application/json"
	}

	res, raw := s.do(t, method, path, token, body, contentType)
	if res.StatusCode != wantStatus {
		t.Fatalf("%s %s: status %d, want %d: %s", method, path, res.StatusCode, wantStatus, raw)
	}

	var out apiResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("%s %s: invalid JSON %q: %v", method, path, raw, err)
	}
	return out
}

func decodeData(t *testing.T, res apiResponse, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(res.Data, v); err != nil {
		t.Fatalf("failed to decode data %s: %v", res.Data, err)
	}
}

func (s *testServer) signIn(t *testing.T, email string) auth.TokenPair {
	t.Helper()
	res := s.call(t, http.MethodPost, "/auth/sign-in", "", map[string]string{
		"email": email, "password": "password123",
	}, http.StatusOK)

	var pair auth.TokenPair
	decodeData(t, res, &pair)
	return pair
}

func (s *testServer) upload(t *testing.T, token, parentID, name, content string) domain.DriveItem {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if parentID != "" {
		mw.WriteField("parentId", parentID)
	}
	fw, err := mw.CreateFormFile("file", name)
	if err != nil {
		t.Fatal(err)
	}
	fw.Write([]byte(content))
	mw.Close()

	res, raw := s.do(t, http.MethodPost, "/files/upload", token, &buf, mw.FormDataContentType())
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("upload: status %d: %s", res.StatusCode, raw)
	}
	var out apiResponse
	json.Unmarshal(raw, &out)

	var item domain.DriveItem
	decodeData(t, out, &item)
	return item
}

func TestAuthFlow(t *testing.T) {
	s := newTestServer(t, RateLimits{})

	signUp := map[string]string{
		"username":        "alice",
		"email":           "alice@example.com",
		"password":        "password123",
		"confirmPassword": "password123",
	}
	res := s.call(t, http.MethodPost, "/auth/sign-up", "", signUp, http.StatusCreated)
	if !res.Success {
		t.Fatal("sign-up should succeed")
	}

	res = s.call(t, http.MethodPost, "/auth/sign-up", "", signUp, http.StatusConflict)
	testutils.AssertEqual(t, res, apiResponse{
		Success: false, Message: "Email already in use.", Error: "Conflict", StatusCode: http.StatusConflict,
	}, "conflict body")

	res = s.call(t, http.MethodPost, "/auth/sign-in", "", map[string]string{
		"email": "alice@example.com", "password": "password123",
	}, http.StatusForbidden)

	verify, _ := s.notifier.Last("verify_email")
	token := testutils.TokenFromLink(t, verify.Link)
	res = s.call(t, http.MethodGet, "/auth/verify-email?token="+token, "", nil, http.StatusOK)
	var redirect map[string]string
	decodeData(t, res, &redirect)
	testutils.AssertEqual(t, redirect["redirect"], "http://app.test/sign-in", "redirect")

	pair := s.signIn(t, "alice@example.com")

	res = s.call(t, http.MethodGet, "/users/me", pair.AccessToken, nil, http.StatusOK)
	var me domain.User
	decodeData(t, res, &me)
	testutils.AssertEqual(t, me.Username, "alice", "me")
	if strings.Contains(string(res.Data), "password") {
		t.Error("password hash must not be serialized")
	}

	s.call(t, http.MethodGet, "/users/me", pair.RefreshToken, nil, http.StatusUnauthorized)
	s.call(t, http.MethodGet, "/auth/refresh", pair.AccessToken, nil, http.StatusUnauthorized)

	res = s.call(t, http.MethodGet, "/auth/refresh", pair.RefreshToken, nil, http.StatusOK)
	var rotated auth.TokenPair
	decodeData(t, res, &rotated)
	s.call(t, http.MethodGet, "/auth/refresh", pair.RefreshToken, nil, http.StatusForbidden)

	s.call(t, http.MethodGet, "/auth/logout", rotated.AccessToken, nil, http.StatusOK)
	s.call(t, http.MethodGet, "/auth/refresh", rotated.RefreshToken, nil, http.StatusForbidden)

	s.call(t, http.MethodGet, "/users", rotated.AccessToken, nil, http.StatusForbidden)
}

func TestValidationErrors(t *testing.T) {
	s := newTestServer(t, RateLimits{})

	testCases := []struct {
		name    string
		path    string
		payload map[string]string
	}{
		{name: "short username", path: "/auth/sign-up", payload: map[string]string{
			"username": "al", "email": "al@example.com", "password": "password123", "confirmPassword": "password123"}},
		{name: "invalid email", path: "/auth/sign-up", payload: map[string]string{
			"username": "alice", "email": "not-an-email", "password": "password123", "confirmPassword": "password123"}},
		{name: "short password", path: "/auth/sign-up", payload: map[string]string{
			"username": "alice", "email": "alice@example.com", "password": "short", "confirmPassword": "short"}},
		{name: "password mismatch", path: "/auth/sign-up", payload: map[string]string{
			"username": "alice", "email": "alice@example.com", "password": "password123", "confirmPassword": "password124"}},
		{name: "forgot password without email", path: "/auth/forgot-password", payload: map[string]string{}},
		{name: "reset password without token", path: "/auth/reset-password", payload: map[string]string{
			"password": "password123", "confirmPassword": "password123"}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			res := s.call(t, http.MethodPost, tc.path, "", tc.payload, http.StatusBadRequest)
			testutils.AssertEqual(t, res.Error, "Validation Error", "error kind")
			testutils.AssertEqual(t, res.StatusCode, http.StatusBadRequest, "status code in body")
		})
	}

	res, _ := s.do(t, http.MethodPost, "/auth/sign-in", "", strings.NewReader("{"), "application/json")
	testutils.AssertEqual(t, res.StatusCode, http.StatusBadRequest, "malformed JSON")
}

func TestMultibytePasswords(t *testing.T) {
	s := newTestServer(t, RateLimits{})

	signUp := func(username, password string, want int) apiResponse {
		return s.call(t, http.MethodPost, "/auth/sign-up", "", map[string]string{
			"username":        username,
			"email":           username + "@example.com",
			"password":        password,
			"confirmPassword": password,
		}, want)
	}

	// 20 символов, но 80 байт
	emoji := strings.Repeat("😀", 20)
	res := signUp("emoji", emoji, http.StatusBadRequest)
	testutils.AssertEqual(t, res.Error, "Validation Error", "error kind")
	testutils.AssertEqual(t, res.Message, "password must be shorter than or equal to 72 bytes", "message")

	signUp("cyrillic", "пароль1234", http.StatusCreated)
	s.call(t, http.MethodPost, "/auth/sign-in", "", map[string]string{
		"email": "cyrillic@example.com", "password": "пароль1234",
	}, http.StatusForbidden)

	res = s.call(t, http.MethodPost, "/auth/reset-password", "", map[string]string{
		"token": "whatever", "password": emoji, "confirmPassword": emoji,
	}, http.StatusBadRequest)
	testutils.AssertEqual(t, res.Error, "Validation Error", "reset error kind")
}

func TestDriveFlow(t *testing.T) {
	s := newTestServer(t, RateLimits{})
	testutils.SetupUser(t, s.db, "alice")
	bob := testutils.SetupUser(t, s.db, "bob")
	aliceTok := s.signIn(t, "alice@example.com").AccessToken
	bobTok := s.signIn(t, "bob@example.com").AccessToken

	res := s.call(t, http.MethodPost, "/folders", aliceTok, map[string]string{"name": "docs"}, http.StatusCreated)
	var folder domain.DriveItem
	decodeData(t, res, &folder)

	file := s.upload(t, aliceTok, folder.ID, "hello.txt", "hello world")
	testutils.AssertEqual(t, *file.ParentID, folder.ID, "uploaded into folder")

	res = s.call(t, http.MethodGet, "/drive-items", aliceTok, nil, http.StatusOK)
	var root []domain.DriveItem
	decodeData(t, res, &root)
	if len(root) != 1 || len(root[0].Children) != 1 {
		t.Fatalf("unexpected root listing %s", res.Data)
	}

	dl, body := s.do(t, http.MethodGet, "/drive-items/"+file.ID+"/download", aliceTok, nil, "")
	testutils.AssertEqual(t, dl.StatusCode, http.StatusOK, "download status")
	testutils.AssertEqual(t, string(body), "hello world", "download body")
	testutils.AssertEqual(t, dl.Header.Get("Content-Disposition"), `attachment; filename="hello.txt"`, "disposition")

	zipRes, _ := s.do(t, http.MethodGet, "/drive-items/"+folder.ID+"/download", aliceTok, nil, "")
	testutils.AssertEqual(t, zipRes.Header.Get("Content-Type"), "application/zip", "zip content type")
	testutils.AssertEqual(t, zipRes.Header.Get("Content-Disposition"), `attachment; filename="docs.zip"`, "zip disposition")

	req, _ := http.NewRequest(http.MethodGet, s.URL+"/files/"+file.ID+"/preview", nil)
	req.Header.Set("Authorization", "Bearer "+aliceTok)
	req.Header.Set("Range", "bytes=0-4")
	preview, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	partial, _ := io.ReadAll(preview.Body)
	preview.Body.Close()
	testutils.AssertEqual(t, preview.StatusCode, http.StatusPartialContent, "range status")
	testutils.AssertEqual(t, string(partial), "hello", "range body")
	if !strings.HasPrefix(preview.Header.Get("Content-Disposition"), "inline") {
		t.Error("preview should be inline")
	}
	testutils.AssertEqual(t, preview.Header.Get("Content-Security-Policy"), "sandbox", "preview CSP")

	page := s.upload(t, aliceTok, "", "page.html", "<script>alert(1)</script>")
	res2, _ := s.do(t, http.MethodGet, "/files/"+page.ID+"/preview", aliceTok, nil, "")
	testutils.AssertEqual(t, res2.StatusCode, http.StatusOK, "html preview status")
	testutils.AssertEqual(t, res2.Header.Get("Content-Type"), "text/plain; charset=utf-8", "html preview type")
	s.call(t, http.MethodDelete, "/drive-items/"+page.ID, aliceTok, nil, http.StatusOK)
	s.call(t, http.MethodDelete, "/drive-items/"+page.ID+"/permanent", aliceTok, nil, http.StatusOK)

	// чужой пользователь не видит элемент, пока ему не выдан доступ
	s.call(t, http.MethodGet, "/drive-items/"+file.ID, bobTok, nil, http.StatusNotFound)

	s.call(t, http.MethodPost, "/drive-items/"+folder.ID+"/permissions", aliceTok,
		map[string]string{"userId": bob.ID, "permission": "READ"}, http.StatusCreated)
	s.call(t, http.MethodPost, "/drive-items/"+folder.ID+"/permissions", aliceTok,
		map[string]string{"userId": bob.ID, "permission": "READ"}, http.StatusConflict)

	s.call(t, http.MethodGet, "/drive-items/"+file.ID, bobTok, nil, http.StatusOK)
	s.call(t, http.MethodPatch, "/drive-items/"+file.ID, bobTok, map[string]string{"name": "x.txt"}, http.StatusForbidden)

	res = s.call(t, http.MethodGet, "/drive-items/shared", bobTok, nil, http.StatusOK)
	var shared []domain.SharedItem
	decodeData(t, res, &shared)
	testutils.AssertEqual(t, len(shared), 1, "shared with bob")

	res = s.call(t, http.MethodPatch, "/drive-items/"+file.ID, aliceTok,
		map[string]interface{}{"parentId": nil}, http.StatusOK)
	var moved domain.DriveItem
	decodeData(t, res, &moved)
	if moved.ParentID != nil {
		t.Error("parentId null should move the item to the root")
	}

	s.call(t, http.MethodDelete, "/drive-items/"+file.ID+"/permanent", aliceTok, nil, http.StatusForbidden)
	s.call(t, http.MethodDelete, "/drive-items/"+file.ID, aliceTok, nil, http.StatusOK)

	res = s.call(t, http.MethodGet, "/drive-items/trash", aliceTok, nil, http.StatusOK)
	var trash []domain.DriveItem
	decodeData(t, res, &trash)
	testutils.AssertEqual(t, len(trash), 1, "trash")

	s.call(t, http.MethodPatch, "/drive-items/"+file.ID+"/restore", aliceTok, nil, http.StatusOK)
	s.call(t, http.MethodDelete, "/drive-items/"+file.ID, aliceTok, nil, http.StatusOK)
	s.call(t, http.MethodDelete, "/drive-items/"+file.ID+"/permanent", aliceTok, nil, http.StatusOK)
	s.call(t, http.MethodGet, "/drive-items/"+file.ID, aliceTok, nil, http.StatusNotFound)

	s.call(t, http.MethodDelete, "/drive-items/"+folder.ID+"/permissions/"+bob.ID, aliceTok, nil, http.StatusOK)
	s.call(t, http.MethodGet, "/drive-items/"+folder.ID, bobTok, nil, http.StatusNotFound)

}

func TestAdminListUsers(t *testing.T) {
	s := newTestServer(t, RateLimits{})
	testutils.SetupUser(t, s.db, "admin", testutils.WithRole(domain.RoleAdmin))
	testutils.SetupUser(t, s.db, "alice")
	tok := s.signIn(t, "admin@example.com").AccessToken

	res := s.call(t, http.MethodGet, "/users?page=1&limit=1", tok, nil, http.StatusOK)
	var page domain.UserPage
	decodeData(t, res, &page)
	testutils.AssertEqual(t, page.Total, 2, "total")
	testutils.AssertEqual(t, len(page.Users), 1, "page size")

	s.call(t, http.MethodGet, "/users?page=abc", tok, nil, http.StatusBadRequest)
}

func TestSignInRateLimit(t *testing.T) {
	s := newTestServer(t, RateLimits{
		SignIn: 2,
		NewLimiter: func(limit int) middleware.Limiter {
			return middleware.NewMemoryLimiter(limit, time.Minute)
		},
	})
	payload := map[string]string{"email": "nobody@example.com", "password": "password123"}

	for i := 0; i < 2; i++ {
		s.call(t, http.MethodPost, "/auth/sign-in", "", payload, http.StatusBadRequest)
	}
	res := s.call(t, http.MethodPost, "/auth/sign-in", "", payload, http.StatusTooManyRequests)
	testutils.AssertEqual(t, res.Error, "Too Many Requests", "error kind")
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, RateLimits{})
	res := s.call(t, http.MethodGet, "/health", "", nil, http.StatusOK)
	if !res.Success {
		t.Error("health should report success")
	}

	s.db.Close()
	s.call(t, http.MethodGet, "/health", "", nil, http.StatusServiceUnavailable)
}

func TestUnknownRoute(t *testing.T) {
	s := newTestServer(t, RateLimits{})
	res := s.call(t, http.MethodGet, "/nope", "", nil, http.StatusNotFound)
	testutils.AssertEqual(t, res.Error, "Not Found", "error kind")
}

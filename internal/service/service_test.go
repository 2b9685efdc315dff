package service

import (
	"bytes"
	"context"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"golang.org/x/crypto/bcrypt"

	"clouddrive/internal/auth"
	"clouddrive/internal/domain"
	"clouddrive/internal/encryption"
	"clouddrive/internal/repository"
	"clouddrive/internal/storage"
	"clouddrive/internal/testutils"
)

const testMaxUpload = 1 << 10

type testEnv struct {
	db       *sqlx.DB
	repos    *repository.Repositories
	notifier *testutils.RecordingNotifier
	store    *storage.LocalStorage
	root     string
	thumbs   *fakeThumbnailer
	jwt      *auth.TokenManager

	tokens  *TokenService
	auth    *AuthService
	users   *UserService
	perms   *PermissionService
	items   *DriveItemService
	files   *FileService
	folders *FolderService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db := testutils.InitMemoryDB(t)
	root := t.TempDir()
	store, err := storage.NewLocalStorage(root)
	if err != nil {
		t.Fatal(err)
	}

	repos := repository.New(db)
	hasher := encryption.NewService(bcrypt.MinCost)
	notifier := &testutils.RecordingNotifier{}
	thumbs := &fakeThumbnailer{}
	jwt := auth.NewTokenManager(auth.TokenConfig{
		AccessSecret:  "access-secret",
		RefreshSecret: "refresh-secret",
		AccessTTL:     15 * time.Minute,
		RefreshTTL:    24 * time.Hour,
	})

	tokens := NewTokenService(repos, hasher, notifier, TokenConfig{
		VerificationTTL: time.Hour,
		ResetTTL:        time.Hour,
		AppURL:          "http://api.test",
		FrontendURL:     "http://app.test/",
	})
	perms := NewPermissionService(repos)

	return &testEnv{
		db:       db,
		repos:    repos,
		notifier: notifier,
		store:    store,
		root:     root,
		thumbs:   thumbs,
		jwt:      jwt,
		tokens:   tokens,
		auth:     NewAuthService(repos, tokens, hasher, jwt, notifier),
		users:    NewUserService(repos.Users),
		perms:    perms,
		items:    NewDriveItemService(repos, perms, store),
		files:    NewFileService(repos, perms, store, thumbs, testMaxUpload),
		folders:  NewFolderService(repos.Items),
	}
}

// putFile сохраняет содержимое в хранилище и создает строку файла.
func (e *testEnv) putFile(t *testing.T, ownerID, name, content string, parentID *string) domain.DriveItem {
	t.Helper()
	key := storage.NewKey(ownerID, name)
	if _, err := e.store.Save(context.Background(), key, strings.NewReader(content), "text/plain"); err != nil {
		t.Fatal(err)
	}
	return testutils.SetupFile(t, e.db, ownerID, name, "text/plain", key, int64(len(content)), parentID)
}

func (e *testEnv) objectExists(t *testing.T, key string) bool {
	t.Helper()
	obj, err := e.store.Open(context.Background(), key)
	if err != nil {
		return false
	}
	obj.Close()
	return true
}

type fakeThumbnailer struct {
	mu     sync.Mutex
	calls  int
	frames int
	err    error
}

func (f *fakeThumbnailer) Thumbnail(data []byte, width int) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return append([]byte("thumb:"), bytes.ToUpper(data)...), nil
}

func (f *fakeThumbnailer) VideoFrame(_ context.Context, src io.Reader, width int) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frames++
	if f.err != nil {
		return nil, f.err
	}
	data, err := io.ReadAll(src)
	if err != nil {
		return nil, err
	}
	return append([]byte("frame:"), bytes.ToUpper(data)...), nil
}

func (f *fakeThumbnailer) Frames() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.frames
}

func (f *fakeThumbnailer) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func strPtr(s string) *string { return &s }

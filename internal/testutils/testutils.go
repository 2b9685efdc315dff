// Package testutils provides utilities used in tests
package testutils

import (
	"context"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
	"golang.org/x/crypto/bcrypt"

	"clouddrive/internal/domain"
	"clouddrive/migrations"
)

// InitMemoryDB creates an in-memory SQLite database with the migrations applied.
// Each call gets its own database.
func InitMemoryDB(t *testing.T) *sqlx.DB {
	t.Helper()

	dbName := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := sqlx.Open("sqlite3", dbName)
	if err != nil {
		t.Fatalf("failed to open in-memory database: %v", err)
	}
	// одно соединение держит базу в памяти живой и сериализует транзакции
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	if err := applyMigrations(db); err != nil {
		t.Fatalf("failed to migrate in-memory database: %v", err)
	}
	return db
}

func applyMigrations(db *sqlx.DB) error {
	names, err := fs.Glob(migrations.FS, "*.up.sql")
	if err != nil {
		return errors.Wrap(err, "listing migrations")
	}
	sort.Strings(names)

	for _, name := range names {
		body, err := fs.ReadFile(migrations.FS, name)
		if err != nil {
			return errors.Wrapf(err, "reading %s", name)
		}
		for _, stmt := range strings.Split(string(body), ";") {
			if strings.TrimSpace(stmt) == "" {
				continue
			}
			if _, err := db.Exec(stmt); err != nil {
				return errors.Wrapf(err, "executing %s", name)
			}
		}
	}
	return nil
}

// UserOption tweaks a user before it is inserted.
type UserOption func(*domain.User)

// Unverified leaves verified_at empty.
func Unverified() UserOption {
	return func(u *domain.User) { u.VerifiedAt = nil }
}

// WithRole sets the user's role.
func WithRole(role domain.Role) UserOption {
	return func(u *domain.User) { u.Role = role }
}

// SetupUser inserts a verified user whose password is "password123".
func SetupUser(t *testing.T, db *sqlx.DB, username string, opts ...UserOption) domain.User {
	t.Helper()

	hash, err := bcrypt.GenerateFromPassword([]byte("password123"), bcrypt.MinCost)
	if err != nil {
		t.Fatal(errors.Wrap(err, "hashing password"))
	}

	now := time.Now().UTC()
	user := domain.User{
		ID:           uuid.NewString(),
		Username:     username,
		Email:        username + "@example.com",
		PasswordHash: string(hash),
		Role:         domain.RoleUser,
		VerifiedAt:   &now,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	for _, opt := range opts {
		opt(&user)
	}

	_, err = db.NamedExec(`
		INSERT INTO users (id, username, email, password_hash, role, verified_at, created_at, updated_at)
		VALUES (:id, :username, :email, :password_hash, :role, :verified_at, :created_at, :updated_at)`, &user)
	if err != nil {
		t.Fatal(errors.Wrap(err, "preparing user"))
	}
	return user
}

// SetupFolder inserts a folder owned by ownerID.
func SetupFolder(t *testing.T, db *sqlx.DB, ownerID, name string, parentID *string) domain.DriveItem {
	t.Helper()
	return setupItem(t, db, domain.DriveItem{
		Name:     name,
		Type:     domain.DriveItemFolder,
		OwnerID:  ownerID,
		ParentID: parentID,
	})
}

// SetupFile inserts a file row pointing at storage key key.
func SetupFile(t *testing.T, db *sqlx.DB, ownerID, name, mime, key string, size int64, parentID *string) domain.DriveItem {
	t.Helper()
	return setupItem(t, db, domain.DriveItem{
		Name:     name,
		Type:     domain.DriveItemFile,
		OwnerID:  ownerID,
		ParentID: parentID,
		MimeType: &mime,
		Size:     &size,
		URL:      &key,
	})
}

func setupItem(t *testing.T, db *sqlx.DB, item domain.DriveItem) domain.DriveItem {
	now := time.Now().UTC()
	item.ID = uuid.NewString()
	item.CreatedAt, item.UpdatedAt = now, now

	_, err := db.NamedExec(`
		INSERT INTO drive_items (id, name, type, owner_id, parent_id, mime_type, size, url,
			deleted_at, created_at, updated_at)
		VALUES (:id, :name, :type, :owner_id, :parent_id, :mime_type, :size, :url,
			:deleted_at, :created_at, :updated_at)`, &item)
	if err != nil {
		t.Fatal(errors.Wrap(err, "preparing drive item"))
	}
	return item
}

// Trash marks an item as deleted at the given time.
func Trash(t *testing.T, db *sqlx.DB, itemID string, at time.Time) {
	t.Helper()
	if _, err := db.Exec(db.Rebind(`UPDATE drive_items SET deleted_at = ? WHERE id = ?`), at.UTC(), itemID); err != nil {
		t.Fatal(errors.Wrap(err, "trashing drive item"))
	}
}

// SetupPermission grants level on itemID to userID.
func SetupPermission(t *testing.T, db *sqlx.DB, userID, itemID string, level domain.PermissionLevel) {
	t.Helper()
	now := time.Now().UTC()
	_, err := db.Exec(db.Rebind(`
		INSERT INTO drive_item_permissions (id, user_id, drive_item_id, permission, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`), uuid.NewString(), userID, itemID, level, now, now)
	if err != nil {
		t.Fatal(errors.Wrap(err, "preparing permission"))
	}
}

// MustCount returns the result of a COUNT(*) query.
func MustCount(t *testing.T, db *sqlx.DB, query string, args ...interface{}) int {
	t.Helper()
	var n int
	if err := db.Get(&n, db.Rebind(query), args...); err != nil {
		t.Fatal(errors.Wrap(err, "counting rows"))
	}
	return n
}

// AssertEqual fails the test if got and want differ.
func AssertEqual(t *testing.T, got, want interface{}, message string) {
	t.Helper()
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("%s mismatch (-want +got):\n%s", message, diff)
	}
}

// AssertKind fails the test unless err is a domain error of the given kind.
func AssertKind(t *testing.T, err error, kind domain.ErrorKind) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", kind)
	}
	if got := domain.KindOf(err); got != kind {
		t.Fatalf("expected %s error, got %s (%v)", kind, got, err)
	}
}

// Notification is one call recorded by RecordingNotifier.
type Notification struct {
	Event    string
	Email    string
	Username string
	Link     string
}

// RecordingNotifier remembers every notification instead of sending it.
type RecordingNotifier struct {
	mu    sync.Mutex
	calls []Notification
	// Err, when set, is returned from every call.
	Err error
}

func (n *RecordingNotifier) record(event, email, username, link string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, Notification{Event: event, Email: email, Username: username, Link: link})
	return n.Err
}

func (n *RecordingNotifier) Welcome(_ context.Context, email, username string) error {
	return n.record("welcome", email, username, "")
}

func (n *RecordingNotifier) VerifyEmail(_ context.Context, email, username, link string) error {
	return n.record("verify_email", email, username, link)
}

func (n *RecordingNotifier) ResetPassword(_ context.Context, email, username, link string) error {
	return n.record("reset_password", email, username, link)
}

func (n *RecordingNotifier) PasswordChanged(_ context.Context, email, username string) error {
	return n.record("password_changed", email, username, "")
}

// Calls returns a copy of the recorded notifications.
func (n *RecordingNotifier) Calls() []Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Notification(nil), n.calls...)
}

// Last returns the most recent notification of the given event.
func (n *RecordingNotifier) Last(event string) (Notification, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for i := len(n.calls) - 1; i >= 0; i-- {
		if n.calls[i].Event == event {
			return n.calls[i], true
		}
	}
	return Notification{}, false
}

// TokenFromLink extracts the token query parameter from a link.
func TokenFromLink(t *testing.T, link string) string {
	t.Helper()
	idx := strings.Index(link, "token=")
	if idx < 0 {
		t.Fatalf("no token in link %q", link)
	}
	return link[idx+len("token="):]
}

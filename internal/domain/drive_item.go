package domain

import (
	"strings"
	"time"
)

type DriveItemType string

const (
	DriveItemFile   DriveItemType = "FILE"
	DriveItemFolder DriveItemType = "FOLDER"
)

// DriveItem - файл или папка в дереве пользователя. У папки нет
// mime_type, size и url.
type DriveItem struct {
	ID        string        `json:"id" db:"id"`
	Name      string        `json:"name" db:"name"`
	Type      DriveItemType `json:"type" db:"type"`
	OwnerID   string        `json:"owner_id" db:"owner_id"`
	ParentID  *string       `json:"parent_id" db:"parent_id"`
	MimeType  *string       `json:"mime_type,omitempty" db:"mime_type"`
	Size      *int64        `json:"size,omitempty" db:"size"`
	URL       *string       `json:"-" db:"url"`
	DeletedAt *time.Time    `json:"deleted_at,omitempty" db:"deleted_at"`
	CreatedAt time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt time.Time     `json:"updated_at" db:"updated_at"`

	Parent   *DriveItem  `json:"parent,omitempty" db:"-"`
	Children []DriveItem `json:"children,omitempty" db:"-"`
}

func (d *DriveItem) IsFolder() bool { return d.Type == DriveItemFolder }

func (d *DriveItem) IsFile() bool { return d.Type == DriveItemFile }

func (d *DriveItem) IsTrashed() bool { return d.DeletedAt != nil }

// StorageKey возвращает ключ объекта в хранилище или пустую строку.
func (d *DriveItem) StorageKey() string {
	if d.URL == nil {
		return ""
	}
	return *d.URL
}

func (d *DriveItem) Mime() string {
	if d.MimeType == nil {
		return ""
	}
	return *d.MimeType
}

var previewablePrefixes = []string{"image/", "video/", "audio/", "text/"}

// Previewable сообщает, можно ли отдавать файл inline.
func (d *DriveItem) Previewable() bool {
	mime := strings.ToLower(d.Mime())
	if mime == "application/pdf" {
		return true
	}
	for _, prefix := range previewablePrefixes {
		if strings.HasPrefix(mime, prefix) {
			return true
		}
	}
	return false
}

// SharedItem - элемент, доступ к которому выдан текущему пользователю.
type SharedItem struct {
	DriveItem
	Permission PermissionLevel `json:"permission" db:"permission"`
	Owner      PublicUser      `json:"owner" db:"-"`
}

package domain

import "time"

type PermissionLevel string

const (
	PermissionRead  PermissionLevel = "READ"
	PermissionWrite PermissionLevel = "WRITE"
)

func (l PermissionLevel) Valid() bool {
	return l == PermissionRead || l == PermissionWrite
}

// Access возвращает уровень доступа, который дает разрешение.
func (l PermissionLevel) Access() Access {
	switch l {
	case PermissionWrite:
		return AccessWrite
	case PermissionRead:
		return AccessRead
	default:
		return AccessNone
	}
}

// Access - итоговый уровень доступа пользователя к элементу.
type Access int

const (
	AccessNone Access = iota
	AccessRead
	AccessWrite
	AccessOwner
)

func (a Access) String() string {
	switch a {
	case AccessRead:
		return "READ"
	case AccessWrite:
		return "WRITE"
	case AccessOwner:
		return "OWNER"
	default:
		return "NONE"
	}
}

type DriveItemPermission struct {
	ID          string          `json:"id" db:"id"`
	UserID      string          `json:"user_id" db:"user_id"`
	DriveItemID string          `json:"drive_item_id" db:"drive_item_id"`
	Permission  PermissionLevel `json:"permission" db:"permission"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at" db:"updated_at"`

	User *PublicUser `json:"user,omitempty" db:"-"`
}

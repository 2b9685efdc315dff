package repository

import "github.com/jmoiron/sqlx"

// Repositories собирает все репозитории поверх одного подключения.
type Repositories struct {
	Tx          *TxManager
	Users       *UserRepository
	Tokens      *AuthTokenRepository
	Items       *DriveItemRepository
	Permissions *PermissionRepository
}

func New(db *sqlx.DB) *Repositories {
	return &Repositories{
		Tx:          NewTxManager(db),
		Users:       NewUserRepository(db),
		Tokens:      NewAuthTokenRepository(db),
		Items:       NewDriveItemRepository(db),
		Permissions: NewPermissionRepository(db),
	}
}

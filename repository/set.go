package repository

import "github.com/akinalp/pano/database"

// Set, aynı querier'a (DB veya tek bir transaction) bağlı tüm repository'ler.
// Transaction içinde NewSet(tx) ile kurulur; böylece batch'in tüm yazımları
// aynı commit'e girer.
type Set struct {
	Users         UserRepository
	Sessions      SessionRepository
	Targets       TargetRepository
	Ledger        LedgerRepository
	Notifications NotificationRepository
	Conversations ConversationRepository
	Messages      MessageRepository
	DeviceTokens  DeviceTokenRepository
}

// NewSet, q'ya bağlı repository setini oluşturur.
func NewSet(q database.TxQuerier) *Set {
	return &Set{
		Users:         NewSQLiteUserRepo(q),
		Sessions:      NewSQLiteSessionRepo(q),
		Targets:       NewSQLiteTargetRepo(q),
		Ledger:        NewSQLiteLedgerRepo(q),
		Notifications: NewSQLiteNotificationRepo(q),
		Conversations: NewSQLiteConversationRepo(q),
		Messages:      NewSQLiteMessageRepo(q),
		DeviceTokens:  NewSQLiteDeviceTokenRepo(q),
	}
}

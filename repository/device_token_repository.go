package repository

import "context"

// DeviceTokenRepository, push teslimatı için kayıtlı cihaz token'ları.
type DeviceTokenRepository interface {
	// Upsert, token'ı kullanıcıya bağlar. Token başka kullanıcıdaysa sahipliği taşınır.
	Upsert(ctx context.Context, token, userID string) error
	ListByUser(ctx context.Context, userID string) ([]string, error)
	Delete(ctx context.Context, userID, token string) error
	// DeleteTokens, push servisinin başarısız bildirdiği token'ları temizler.
	DeleteTokens(ctx context.Context, tokens []string) (int64, error)
}

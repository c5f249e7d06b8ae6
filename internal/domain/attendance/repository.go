package attendance

import "context"

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY INTERFACES
// Контракт постоянного хранилища снимков.
// Реализации находятся в infrastructure/persistence.
// ══════════════════════════════════════════════════════════════════════════════

// Gateway загружает и сохраняет полный снимок реестра.
type Gateway interface {
	// Load возвращает последний сохранённый снимок.
	// Возвращает (nil, nil), если ничего ещё не сохранено.
	Load(ctx context.Context) (*Snapshot, error)

	// Save атомарно заменяет сохранённое состояние снимком.
	Save(ctx context.Context, snap *Snapshot) error
}

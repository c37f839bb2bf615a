// ABOUTME: Builds the configured RoomStore from the store config section
// ABOUTME: Driver "none" yields a nil store, meaning durable persistence is disabled

package store

import (
	"fmt"

	"github.com/2389/triage-chat/internal/config"
)

// Open returns the RoomStore selected by cfg.Driver. It returns (nil, nil)
// for driver "none" or an empty driver.
func Open(cfg config.StoreConfig) (RoomStore, error) {
	switch cfg.Driver {
	case "", config.StoreNone:
		return nil, nil
	case config.StoreSQLite, config.StoreSQLite3:
		return NewSQLiteStore(cfg.Path, cfg.Driver)
	case config.StoreHTTP:
		return NewHTTPStore(cfg.URL, cfg.APIKey, nil)
	case config.StoreSupabase:
		return NewSupabaseStore(cfg.URL, cfg.APIKey, cfg.Table)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}

// Package endpoint persists the smart-home endpoints the bridge exposes.
//
// An endpoint is the consumer-facing view of one plug or strip outlet:
// a stable id, a display name, a category and the capabilities it
// supports. Endpoints are created once per device and survive restarts;
// their live state always comes from the bridge's in-memory dataset.
//
//	┌──────────────┐      ┌──────────────────┐      ┌─────────────────┐
//	│   Registry   │─────▶│    Repository    │─────▶│ SQLite endpoints│
//	│ cache + lock │      │  parameterised   │      │      table      │
//	└──────────────┘      └──────────────────┘      └─────────────────┘
//
// The package also records power-state history (state_history table) so
// transitions remain auditable when InfluxDB is not configured.
//
// Usage:
//
//	repo := endpoint.NewSQLiteRepository(db.DB)
//	registry := endpoint.NewRegistry(repo)
//	if err := registry.RefreshCache(ctx); err != nil {
//	    return err
//	}
//	created, err := registry.CreateIfNotExists(ctx, ep)
package endpoint

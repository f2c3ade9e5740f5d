package endpoint

import (
	"context"
	"database/sql"
	"testing"

	"github.com/nerrad567/gray-logic-tplink/internal/infrastructure/database"
	_ "github.com/nerrad567/gray-logic-tplink/migrations" // registers the schema
)

// setupTestDB opens an in-memory database with the bridge schema applied.
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	ctx := context.Background()

	db, err := database.Open(ctx, database.Config{Path: ":memory:"})
	if err != nil {
		t.Fatalf("database.Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup

	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	return db.DB
}

func testEndpoint(deviceID string) *Endpoint {
	return &Endpoint{
		ID:           "tplink:plug:" + deviceID,
		Path:         "tplink/plug/" + deviceID,
		DeviceID:     deviceID,
		Name:         "Desk lamp outlet",
		Category:     CategorySmartPlug,
		Capabilities: OutletCapabilities(),
		Manufacturer: "TP-Link",
		Model:        "HS110(EU)",
	}
}

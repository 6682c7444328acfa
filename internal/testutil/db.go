// Package testutil provides the in-memory database fixture shared by the
// package test suites.
package testutil

import (
	"testing"
	"time"

	"github.com/glideapps/fake-discord/internal/model"
	"github.com/glideapps/fake-discord/pkg/config"
	"github.com/glideapps/fake-discord/pkg/database"
	"github.com/glideapps/fake-discord/prometheus"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewDB opens an isolated in-memory database with the full schema and
// points the global handle at it.
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()

	prometheus.InitMetrics(&config.Config{})

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}

	// An in-memory sqlite database exists per connection; keep the pool at
	// one so every session sees the same data.
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("unwrap test database: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(model.AllModels()...); err != nil {
		t.Fatalf("migrate test database: %v", err)
	}

	database.SetDB(db)
	t.Cleanup(func() {
		database.SetDB(nil)
		sqlDB.Close()
	})
	return db
}

// SeedTenant inserts a ready-to-use tenant with one guild and one channel.
func SeedTenant(t *testing.T, db *gorm.DB, id string) *model.Tenant {
	t.Helper()

	tenant := &model.Tenant{
		ID:           id,
		BotToken:     "bot-token-" + id,
		ClientID:     "client-" + id,
		ClientSecret: "secret-" + id,
		PublicKey:    "public-" + id,
		PrivateKey:   "private-" + id,
		NextID:       1,
		CreatedAt:    time.Now().UTC(),
	}
	if err := db.Create(tenant).Error; err != nil {
		t.Fatalf("seed tenant: %v", err)
	}
	guild := &model.Guild{TenantID: id, ID: "guild-" + id, Name: "Guild " + id}
	if err := db.Create(guild).Error; err != nil {
		t.Fatalf("seed guild: %v", err)
	}
	channel := &model.Channel{TenantID: id, ID: "chan-" + id, GuildID: guild.ID, Name: "general"}
	if err := db.Create(channel).Error; err != nil {
		t.Fatalf("seed channel: %v", err)
	}
	return tenant
}

package db

import (
	"collab-docs-server/internal/domain"

	"github.com/rs/zerolog/log"
)

// Migrate runs database migrations
func Migrate() {
	err := AppDb.AutoMigrate(
		&domain.User{},
		&domain.Document{},
		&domain.DocumentCollaborator{},
		&domain.DocumentVersion{},
	)

	if err != nil {
		log.Fatal().Err(err).Msg("database migration failed")
	}

	log.Info().Msg("Database schema migrated successfully")
}

// SeedData seeds the database with initial data (for development only)
func SeedData() {
	testUser := &domain.User{
		Name:     "Test User",
		Email:    "test@example.com",
		IsActive: true,
	}

	var existing domain.User
	err := AppDb.Where("email = ?", testUser.Email).First(&existing).Error
	if err != nil {
		if err := AppDb.Create(testUser).Error; err != nil {
			log.Error().Err(err).Msg("Error creating test user")
		} else {
			log.Info().Str("email", testUser.Email).Msg("Created test user")
		}
	} else {
		log.Info().Str("email", testUser.Email).Msg("Test user already exists")
	}
}

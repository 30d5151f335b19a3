package main

import (
	"encoding/json"
	"fmt"
	"log"

	"github.com/google/uuid"
	"github.com/velmar-soft/recibosgo/internal/config"
	"github.com/velmar-soft/recibosgo/internal/database"
	"github.com/velmar-soft/recibosgo/internal/models"
	"github.com/velmar-soft/recibosgo/internal/utils"
)

func main() {
	fmt.Println("🌱 Recibos Demo Data Seeder")

	// Load config
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("❌ Failed to load config: %v", err)
	}

	// Connect to database
	db, err := database.Connect(cfg.Database)
	if err != nil {
		log.Fatalf("❌ Failed to connect to database: %v", err)
	}
	defer db.Close()

	fmt.Println("✅ Connected to database")

	// Run migrations first
	fmt.Println("🔨 Running database migrations...")
	if err := db.AutoMigrate(&models.UserAuth{}, &models.StoredDocument{}); err != nil {
		log.Fatalf("❌ Migration failed: %v", err)
	}
	fmt.Println("✅ Migrations complete")

	// Demo user
	password, err := utils.HashPassword("demo1234")
	if err != nil {
		log.Fatalf("❌ Failed to hash password: %v", err)
	}
	user := models.UserAuth{
		Email:    "demo@velmar-soft.com",
		Password: password,
		Name:     "Demo",
		Role:     "user",
		IsActive: true,
	}

	var existing models.UserAuth
	if err := db.Where("email = ?", user.Email).First(&existing).Error; err == nil {
		fmt.Printf("⚠️  Demo user already exists (%s), reusing\n", existing.ID)
		user = existing
	} else {
		if err := db.Create(&user).Error; err != nil {
			log.Fatalf("❌ Failed to create demo user: %v", err)
		}
		fmt.Printf("✅ Demo user created: %s / demo1234\n", user.Email)
	}

	seed := map[string][]map[string]interface{}{
		models.CollectionCompanyProfile: {
			{"name": "Velmar Soft Demo", "taxId": "30-11223344-5"},
		},
		models.CollectionCategories: {
			{"name": "Servicios"},
			{"name": "Materiales"},
		},
		models.CollectionClients: {
			{"name": "Acme Corp", "email": "compras@acme.example", "phone": "11-5555-0001"},
			{"name": "Beta LLC", "email": "admin@beta.example", "phone": "11-5555-0002"},
		},
		models.CollectionProducts: {
			{"name": "Consultoría (hora)", "price": 50.0, "category": "Servicios"},
			{"name": "Cable UTP (metro)", "price": 1.2, "category": "Materiales"},
		},
		models.CollectionReceipts: {
			{
				"number": "01/15/01/2024", "date": "2024-01-15", "clientName": "Acme Corp",
				"total": 120.5,
				"items": []map[string]interface{}{
					{"description": "Consultoría", "quantity": 2, "amount": 100.0},
					{"description": "Materiales", "quantity": 1, "amount": 20.5},
				},
			},
		},
	}

	created := 0
	for collection, payloads := range seed {
		for _, payload := range payloads {
			encoded, err := json.Marshal(payload)
			if err != nil {
				log.Fatalf("❌ Failed to encode seed record: %v", err)
			}
			doc := models.StoredDocument{
				ID:         uuid.New().String(),
				Collection: collection,
				OwnerID:    user.ID,
				Data:       encoded,
			}
			if err := db.Create(&doc).Error; err != nil {
				log.Fatalf("❌ Failed to seed %s: %v", collection, err)
			}
			created++
		}
	}
	fmt.Printf("✅ Seeded %d records\n", created)

	// Agent credentials for the offline client
	token, err := utils.GenerateAgentToken(user.ID, cfg.JWTSecret)
	if err != nil {
		log.Fatalf("❌ Failed to generate agent token: %v", err)
	}
	fmt.Println()
	fmt.Println("Agent environment:")
	fmt.Printf("  AGENT_USER_ID=%s\n", user.ID)
	fmt.Printf("  AGENT_API_TOKEN=%s\n", token)
}

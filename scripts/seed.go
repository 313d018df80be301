//go:build ignore

package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/google/uuid"
	"github.com/hugh/medpocket/internal/auth"
	"github.com/hugh/medpocket/internal/cards/types"
	"github.com/hugh/medpocket/internal/database"
	"github.com/hugh/medpocket/internal/database/models"
	"github.com/hugh/medpocket/pkg/config"
	"github.com/hugh/medpocket/pkg/util"
	"github.com/joho/godotenv"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var sectionNames = map[string]string{
	types.SectionConsultations:  "Consultations",
	types.SectionPrescriptions:  "Prescriptions",
	types.SectionInvestigations: "Investigations",
	types.SectionProcedures:     "Procedures",
	types.SectionTemplates:      "Templates",
	types.SectionCalculators:    "Calculators",
	types.SectionUrgences:       "Emergencies",
}

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := util.NewLogger(cfg.Server.Env)

	db, err := database.Connect(&cfg.Database, logger)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}

	// Run migrations
	if err := database.AutoMigrate(db); err != nil {
		log.Fatalf("failed to run migrations: %v", err)
	}

	if err := seedCategories(db); err != nil {
		log.Fatalf("failed to seed categories: %v", err)
	}
	if err := seedLinks(db); err != nil {
		log.Fatalf("failed to seed links: %v", err)
	}

	// Create admin user
	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.Expiry())
	authService := auth.NewService(db, jwtService)

	email := os.Getenv("ADMIN_EMAIL")
	password := os.Getenv("ADMIN_PASSWORD")
	name := os.Getenv("ADMIN_NAME")

	if email == "" {
		email = "admin@example.com"
	}
	if password == "" {
		password = "admin123!"
	}
	if name == "" {
		name = "Admin"
	}

	resp, err := authService.Register(context.Background(), auth.RegisterInput{
		Email:    email,
		Password: password,
		Name:     name,
	})
	if err != nil {
		if errors.Is(err, auth.ErrUserExists) {
			fmt.Printf("Admin user already exists: %s\n", email)
			return
		}
		log.Fatalf("failed to create admin user: %v", err)
	}

	if err := seedTemplate(db, resp.User.ID); err != nil {
		log.Fatalf("failed to seed template: %v", err)
	}

	fmt.Printf("Admin user created successfully!\n")
	fmt.Printf("Email: %s\n", resp.User.Email)
	fmt.Printf("Token: %s\n", resp.Token)
}

func seedCategories(db *gorm.DB) error {
	for i, key := range types.DefaultSections() {
		c := models.Category{Key: key, Name: sectionNames[key], Position: i + 1}
		err := db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			DoUpdates: clause.AssignmentColumns([]string{"name", "position"}),
		}).Create(&c).Error
		if err != nil {
			return fmt.Errorf("category %s: %w", key, err)
		}
	}
	fmt.Printf("Seeded %d categories\n", len(types.DefaultSections()))
	return nil
}

func seedLinks(db *gorm.DB) error {
	var count int64
	if err := db.Model(&models.Link{}).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		fmt.Println("Links already seeded")
		return nil
	}

	var links []models.Link
	for _, sp := range types.DefaultSpecialties() {
		for i, l := range sp.Links {
			links = append(links, models.Link{Name: l.Name, URL: l.URL, Specialty: sp.ID, Position: i + 1})
		}
	}
	if err := db.Create(&links).Error; err != nil {
		return err
	}
	fmt.Printf("Seeded %d links\n", len(links))
	return nil
}

func seedTemplate(db *gorm.DB, owner uuid.UUID) error {
	tmpl := models.Template{
		Name:      "Prenatal visit",
		Specialty: "obstetrics",
		Section:   types.SectionConsultations,
		Content:   "<p><strong>Gestational age:</strong> {{ga}}</p><p><strong>BP:</strong> {{bp}}</p><p><strong>Fundal height:</strong> {{fundal_height}}</p>",
		Fields:    []string{"ga", "bp", "fundal_height"},
		CreatedBy: owner,
	}
	return db.Create(&tmpl).Error
}

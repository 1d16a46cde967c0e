package main

import (
	"context"
	"errors"
	"fmt"
	"log"

	"voicelegal-backend/config"
	"voicelegal-backend/models"
	"voicelegal-backend/repository"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/bcrypt"
)

func main() {
	config.LoadEnvFile()
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer pool.Close()

	users := repository.NewUserRepository(pool)

	// Create a test user that receives both email and SMS notifications
	email := "test@example.com"
	password := "testpassword123"
	phone := "+919876543210"

	existing, err := users.GetByEmail(ctx, email)
	if err == nil {
		log.Printf("User with email %s already exists (ID: %s)", email, existing.ID)
		return
	}
	if !errors.Is(err, repository.ErrNotFound) {
		log.Fatalf("Failed to look up user: %v", err)
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		log.Fatalf("Failed to hash password: %v", err)
	}

	user := &models.User{
		Email:        email,
		PasswordHash: string(hashedPassword),
		Name:         "Test User",
		PhoneNumber:  &phone,
		Language:     "hi",
	}
	if err := users.Create(ctx, user); err != nil {
		log.Fatalf("Failed to create user: %v", err)
	}
	prefs := &models.UserPreferences{UserID: user.ID, EmailNotifications: true, SMSNotifications: true}
	if err := users.UpdatePreferences(ctx, prefs); err != nil {
		log.Fatalf("Failed to save notification preferences: %v", err)
	}

	fmt.Printf("✅ Test user created successfully!\n")
	fmt.Printf("   ID: %s\n", user.ID)
	fmt.Printf("   Email: %s\n", email)
	fmt.Printf("   Password: %s\n", password)
	fmt.Printf("   Phone: %s\n", phone)
	fmt.Printf("   Notifications: email=%t sms=%t\n", prefs.EmailNotifications, prefs.SMSNotifications)
}

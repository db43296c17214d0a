// seed-admin creates or updates the back-office admin user.
//
// Usage (from backend directory):
//   DB_USER=... DB_PASSWORD=... DB_HOST=... DB_PORT=... DB_NAME=... \
//   ADMIN_OWNER_ID=... go run ./cmd/seed-admin
package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/yeboahd24/t-beauty/config"
	"github.com/yeboahd24/t-beauty/models"
	"github.com/yeboahd24/t-beauty/utils"
	"gorm.io/gorm"
)

const (
	adminUsername = "tbeautyAdmin"
	adminPassword = "T@beautyAdmin"
	adminName     = "T-Beauty Admin"
)

func main() {
	ctx := context.Background()
	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil). Set DB_* env vars.")
		os.Exit(1)
	}

	ownerID := strings.TrimSpace(os.Getenv("ADMIN_OWNER_ID"))
	if ownerID == "" {
		// Fall back to the first owner already present in the users table.
		var existing models.User
		if err := db.WithContext(ctx).Model(&models.User{}).Select("owner_id").First(&existing).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				fmt.Fprintln(os.Stderr, "no users found in DB and ADMIN_OWNER_ID not set. Set ADMIN_OWNER_ID and rerun.")
				os.Exit(2)
			}
			fmt.Fprintf(os.Stderr, "failed to lookup owner: %v\n", err)
			os.Exit(1)
		}
		ownerID = existing.OwnerId
	}

	ctx = utils.SetOwnerIdInContext(ctx, ownerID)
	ctx = utils.SetUserIdInContext(ctx, 1)
	ctx = utils.SetUserNameInContext(ctx, "Seed")
	ctx = utils.SetUsernameInContext(ctx, adminUsername)
	ctx = utils.SetIsAdminInContext(ctx, true)

	hashed, err := utils.HashPassword(adminPassword)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to hash password: %v\n", err)
		os.Exit(1)
	}
	hashedStr := string(hashed)

	var existing models.User
	err = db.WithContext(ctx).Model(&models.User{}).Where("username = ?", adminUsername).First(&existing).Error
	if err != nil {
		if err != gorm.ErrRecordNotFound {
			fmt.Fprintf(os.Stderr, "failed to lookup user: %v\n", err)
			os.Exit(1)
		}
		u := models.User{
			Username: adminUsername,
			Name:     adminName,
			Password: hashedStr,
			IsActive: utils.NewTrue(),
			Role:     models.UserRoleAdmin,
			OwnerId:  ownerID,
		}
		if err := db.WithContext(ctx).Create(&u).Error; err != nil {
			fmt.Fprintf(os.Stderr, "failed to create admin user: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Created admin user: username=%q (role=Admin)\n", adminUsername)
		return
	}

	// Ensure password and admin role on the existing user.
	if err := db.WithContext(ctx).Model(&models.User{}).Where("username = ?", adminUsername).Updates(map[string]any{
		"password":  hashedStr,
		"name":      adminName,
		"is_active": utils.NewTrue(),
		"owner_id":  ownerID,
		"role":      models.UserRoleAdmin,
	}).Error; err != nil {
		fmt.Fprintf(os.Stderr, "failed to update admin user: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Updated admin user: username=%q (role=Admin)\n", adminUsername)
}

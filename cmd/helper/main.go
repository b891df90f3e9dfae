package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"golang.org/x/crypto/bcrypt"

	"crou/internal/config"
	"crou/internal/db"
	"crou/internal/models"
	"crou/internal/utils/logger"
)

// Provisioning CLI: creates regional office tenants and their first admin
// account without going through the API.
func main() {
	var log = logger.New("helper")
	log.Info("🏛️ Starting tenant provisioning CLI")

	if err := godotenv.Load(); err != nil {
		log.Warn("No .env file loaded: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		_ = log.Error("❌ Failed to load configuration", err)
		return
	}

	if err := db.Connect(cfg); err != nil {
		_ = log.Error("❌ Failed to connect to database", err)
		return
	}
	defer db.Close()

	dbInstance := db.GetDB()

	if err := models.SeedPermissions(dbInstance); err != nil {
		_ = log.Error("❌ Failed to seed permissions", err)
		return
	}
	root, err := models.SeedRootTenant(dbInstance, cfg)
	if err != nil {
		_ = log.Error("❌ Failed to seed root tenant", err)
		return
	}

	reader := bufio.NewReader(os.Stdin)

	for {
		fmt.Print("Enter 't' to create a tenant, 'u' to create an admin user, or 'q' to quit: ")
		choice, _ := reader.ReadString('\n')
		choice = strings.TrimSpace(choice)

		if choice == "q" {
			log.Info("👋 Exiting provisioning CLI")
			break
		}

		switch choice {
		case "t":
			name := prompt(reader, "Tenant name: ")
			code := strings.ToUpper(prompt(reader, "Tenant code: "))

			tenant := models.Tenant{
				Name:     name,
				Code:     code,
				Type:     models.TenantTypeRegionalOffice,
				ParentID: root.ID,
				Active:   true,
			}
			if err := dbInstance.Create(&tenant).Error; err != nil {
				_ = log.Error("❌ Failed to create tenant", err)
				continue
			}
			log.Success("✅ Created tenant %s (%s)", tenant.Name, tenant.ID)

		case "u":
			email := prompt(reader, "Email: ")
			password := prompt(reader, "Password: ")
			code := strings.ToUpper(prompt(reader, "Tenant code: "))
			roleName := prompt(reader, "Role name (e.g. CROU_ADMIN): ")

			tenant, err := models.GetTenantByCode(code, dbInstance)
			if err != nil {
				_ = log.Error("❌ Tenant not found", err)
				continue
			}

			var role models.Role
			if err := dbInstance.Where("name = ?", roleName).First(&role).Error; err != nil {
				_ = log.Error("❌ Role not found", err)
				continue
			}

			hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
			if err != nil {
				_ = log.Error("❌ Failed to hash password", err)
				continue
			}

			user := models.User{
				Email:    email,
				Password: string(hashed),
				RoleID:   role.ID,
				TenantID: tenant.ID,
				Active:   true,
			}
			if err := dbInstance.Create(&user).Error; err != nil {
				_ = log.Error("❌ Failed to create user", err)
				continue
			}
			log.Success("✅ Created user %s in tenant %s", user.Email, tenant.Code)

		default:
			log.Warn("⚠️ Invalid choice. Please enter 't', 'u', or 'q'.")
		}
	}
}

func prompt(reader *bufio.Reader, label string) string {
	fmt.Print(label)
	value, _ := reader.ReadString('\n')
	return strings.TrimSpace(value)
}

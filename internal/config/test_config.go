package config

func LoadTestConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "localhost",
			Port: 8081,
		},
		Database: DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			Name:     "crou_test",
			User:     "test_user",
			Password: "test_password",
		},
		RBAC: RBACConfig{
			FinancialValidationLimit: 1_000_000,
			RootTenantCode:           "MINISTERE",
			MaxLoginAttempts:         5,
			LockoutMinutes:           15,
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			Password: "",
			DB:       0,
		},
	}
}

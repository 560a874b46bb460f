package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Credential is one seeded account. The stored password is plaintext: the
// system this replaces stored and compared credentials in the clear, and
// changing that would break every existing data file. Flagged, not fixed.
type Credential struct {
	Username string
	Password string
	Name     string
}

type Config struct {
	Port          string
	AllowedOrigin string

	ShopName    string
	ShopTagline string
	ShopAddress string

	DataDir string

	// Remote backend selection. DatabaseURL wins over RedisAddr; both empty
	// means local-only mode.
	DatabaseURL   string
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	SyncIntervalSeconds int

	AuthSecret            string
	AccessTokenTTLMinutes int

	AdminSeed Credential
	StaffSeed Credential
}

func Load() Config {
	// Missing .env is fine; the environment may be set directly.
	_ = godotenv.Load()

	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
	syncInterval, err := strconv.Atoi(getEnv("SYNC_INTERVAL_SECONDS", "30"))
	if err != nil || syncInterval < 1 {
		syncInterval = 30
	}
	tokenTTL, err := strconv.Atoi(getEnv("ACCESS_TOKEN_TTL_MINUTES", "480"))
	if err != nil || tokenTTL < 1 {
		tokenTTL = 480
	}

	return Config{
		Port:          getEnv("PORT", "8080"),
		AllowedOrigin: getEnv("ALLOWED_ORIGIN", "http://127.0.0.1:3000"),

		ShopName:    getEnv("SHOP_NAME", "DROP"),
		ShopTagline: getEnv("SHOP_TAGLINE", "DRESS FOR LESS"),
		ShopAddress: getEnv("SHOP_ADDRESS", "City center, Naikkanal, Thrissur, Kerala 680001"),

		DataDir: getEnv("DATA_DIR", "data"),

		DatabaseURL:   os.Getenv("DATABASE_URL"),
		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       redisDB,

		SyncIntervalSeconds: syncInterval,

		AuthSecret:            os.Getenv("AUTH_SECRET"),
		AccessTokenTTLMinutes: tokenTTL,

		AdminSeed: Credential{
			Username: getEnv("ADMIN_USERNAME", "DROP"),
			Password: getEnv("ADMIN_PASSWORD", "072024"),
			Name:     getEnv("ADMIN_NAME", "Administrator"),
		},
		StaffSeed: Credential{
			Username: getEnv("STAFF_USERNAME", "staff"),
			Password: getEnv("STAFF_PASSWORD", "staff123"),
			Name:     getEnv("STAFF_NAME", "Staff Member"),
		},
	}
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

func getEnv(key string, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}

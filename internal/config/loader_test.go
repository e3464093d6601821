package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/smartystreets/goconvey/convey"

	"github.com/tbourn/go-course-api/internal/config"
)

// layeredKeys are the variables this test touches; each branch starts clean.
var layeredKeys = []string{"CONFIG_FILE", "PORT", "MAX_PER_PAGE", "DEFAULT_PER_PAGE", "CORS_ALLOWED_ORIGINS", "IDEMPOTENCY_TTL", "DB_PATH"}

func TestConfigLayering(t *testing.T) {
	convey.Convey("Given a YAML config file", t, func() {
		clearLayeredEnv()
		path := writeConfigFile(t, `
port: "7070"
db_path: "data/courses.db"
default_per_page: "5"
max_per_page: "40"
idempotency_ttl: "1h"
cors_allowed_origins:
  - "https://one.example"
  - "https://two.example"
`)
		_ = os.Setenv("CONFIG_FILE", path)
		defer clearLayeredEnv()

		convey.Convey("When only the file is present", func() {
			cfg, err := config.Load()

			convey.Convey("Then the file overrides the defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Port, convey.ShouldEqual, "7070")
				convey.So(cfg.DBPath, convey.ShouldEqual, "data/courses.db")
				convey.So(cfg.DefaultPerPage, convey.ShouldEqual, 5)
				convey.So(cfg.MaxPerPage, convey.ShouldEqual, 40)
				convey.So(cfg.IdempotencyTTL, convey.ShouldEqual, time.Hour)
				convey.So(cfg.CORS.AllowedOrigins, convey.ShouldResemble, []string{"https://one.example", "https://two.example"})
			})
		})

		convey.Convey("When the environment sets the same keys", func() {
			_ = os.Setenv("PORT", "9191")
			_ = os.Setenv("MAX_PER_PAGE", "60")
			_ = os.Setenv("CORS_ALLOWED_ORIGINS", "https://env.example")

			cfg, err := config.Load()

			convey.Convey("Then the environment wins", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Port, convey.ShouldEqual, "9191")
				convey.So(cfg.MaxPerPage, convey.ShouldEqual, 60)
				convey.So(cfg.CORS.AllowedOrigins, convey.ShouldResemble, []string{"https://env.example"})
			})

			convey.Convey("And untouched file keys survive", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.DefaultPerPage, convey.ShouldEqual, 5)
				convey.So(cfg.DBPath, convey.ShouldEqual, "data/courses.db")
			})
		})

		convey.Convey("When the file breaks an invariant", func() {
			_ = os.Setenv("MAX_PER_PAGE", "2")

			_, err := config.Load()

			convey.Convey("Then Load reports it", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(err.Error(), convey.ShouldContainSubstring, "MAX_PER_PAGE")
			})
		})
	})
}

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func clearLayeredEnv() {
	for _, k := range layeredKeys {
		_ = os.Unsetenv(k)
	}
}

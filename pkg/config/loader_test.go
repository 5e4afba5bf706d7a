package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func TestMergeMapsNested(t *testing.T) {
	base := map[string]interface{}{
		"db":     map[string]interface{}{"host": "localhost", "port": 5432},
		"server": map[string]interface{}{"port": ":8080"},
	}
	override := map[string]interface{}{
		"db": map[string]interface{}{"host": "db.internal"},
	}

	merged := mergeMaps(base, override)

	db := merged["db"].(map[string]interface{})
	if db["host"] != "db.internal" {
		t.Errorf("host = %v, want db.internal", db["host"])
	}
	if db["port"] != 5432 {
		t.Errorf("port = %v, want 5432 kept from base", db["port"])
	}
	if merged["server"].(map[string]interface{})["port"] != ":8080" {
		t.Errorf("server section lost during merge")
	}
}

func TestLoadIntoWithSecrets(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "base.yaml", `
db:
  host: localhost
  port: 5432
  password: ${DB_PASSWORD}
jwt:
  secret: ${JWT_SECRET}
  ttl: 720h
`)
	writeFile(t, dir, "test.yaml", `
db:
  host: pg.test
`)
	writeFile(t, dir, "secrets.env", "DB_PASSWORD=s3cret\nJWT_SECRET=\"signing-key\"\n")

	var out struct {
		DB  DBConfig  `yaml:"db"`
		JWT JWTConfig `yaml:"jwt"`
	}
	if err := LoadInto("test", dir, &out); err != nil {
		t.Fatalf("LoadInto: %v", err)
	}

	if out.DB.Host != "pg.test" {
		t.Errorf("DB.Host = %q, want pg.test", out.DB.Host)
	}
	if out.DB.Port != 5432 {
		t.Errorf("DB.Port = %d, want 5432", out.DB.Port)
	}
	if out.DB.Password != "s3cret" {
		t.Errorf("DB.Password = %q, want substituted secret", out.DB.Password)
	}
	if out.JWT.Secret != "signing-key" {
		t.Errorf("JWT.Secret = %q, want signing-key", out.JWT.Secret)
	}
	if out.JWT.TTL.Hours() != 720 {
		t.Errorf("JWT.TTL = %v, want 720h", out.JWT.TTL)
	}
}

func TestLoadConfigMissingBase(t *testing.T) {
	if _, err := LoadConfig("local", t.TempDir()); err == nil {
		t.Fatal("expected error when base.yaml is missing")
	}
}

func TestSubstituteStringFallsBackToProcessEnv(t *testing.T) {
	t.Setenv("CF_TEST_HOST", "from-env")

	got := substituteString("${CF_TEST_HOST}:${CF_SECRET}/${CF_MISSING}", map[string]string{"CF_SECRET": "s"})
	if got != "from-env:s/" {
		t.Errorf("substituteString = %q, want from-env:s/", got)
	}
}

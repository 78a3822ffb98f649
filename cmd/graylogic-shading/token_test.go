package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nerrad567/gray-logic-shading/internal/auth"
)

const testSecret = "test-secret-key-at-least-32-characters-long"

func writeConfig(t *testing.T) string {
	t.Helper()
	t.Setenv("GRAYLOGIC_JWT_SECRET", "")
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := "security:\n  jwt:\n    secret: " + testSecret + "\n    access_token_ttl: 60\n"
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

func TestRunToken(t *testing.T) {
	var out bytes.Buffer
	err := runToken([]string{"-config", writeConfig(t), "-subject", "knx-gateway", "-role", "admin"}, &out)
	if err != nil {
		t.Fatalf("runToken() error = %v", err)
	}

	claims, err := auth.ParseToken(strings.TrimSpace(out.String()), testSecret)
	if err != nil {
		t.Fatalf("ParseToken() error = %v", err)
	}
	if claims.Subject != "knx-gateway" || claims.Role != auth.RoleAdmin {
		t.Errorf("claims = %+v", claims)
	}
}

func TestRunToken_Errors(t *testing.T) {
	path := writeConfig(t)

	tests := []struct {
		name string
		args []string
		want error
	}{
		{"missing subject", []string{"-config", path}, nil},
		{"unknown role", []string{"-config", path, "-subject", "x", "-role", "root"}, auth.ErrInvalidRole},
		{"missing config", []string{"-config", filepath.Join(t.TempDir(), "none.yaml"), "-subject", "x"}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := runToken(tt.args, &bytes.Buffer{})
			if err == nil {
				t.Fatal("runToken() should fail")
			}
			if tt.want != nil && !errors.Is(err, tt.want) {
				t.Errorf("error = %v, want %v", err, tt.want)
			}
		})
	}
}

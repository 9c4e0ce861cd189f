package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/ParthasarathiMohanty986/healthcare-security/internal/api/rest"
	"github.com/ParthasarathiMohanty986/healthcare-security/internal/config"
	"github.com/ParthasarathiMohanty986/healthcare-security/internal/emergency"
	"github.com/ParthasarathiMohanty986/healthcare-security/internal/ratelimit"
)

func TestInitLogger(t *testing.T) {
	tests := []struct {
		level string
		want  zapcore.Level
	}{
		{"debug", zapcore.DebugLevel},
		{"info", zapcore.InfoLevel},
		{"warn", zapcore.WarnLevel},
		{"error", zapcore.ErrorLevel},
		{"bogus", zapcore.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			for _, format := range []string{"json", "console"} {
				logger, err := initLogger(tt.level, format)
				require.NoError(t, err)
				assert.True(t, logger.Core().Enabled(tt.want))
				if tt.want > zapcore.DebugLevel {
					assert.False(t, logger.Core().Enabled(tt.want-1))
				}
			}
		})
	}
}

func TestNewTokenStore_Memory(t *testing.T) {
	cfg := config.DefaultConfig()
	store, closeStore, err := newTokenStore(context.Background(), &cfg, nil)
	require.NoError(t, err)
	defer closeStore()
	assert.IsType(t, &emergency.MemoryStore{}, store)
}

func TestNewRateLimiter_Memory(t *testing.T) {
	cfg := config.DefaultConfig()
	limiter, closeLimiter, err := newRateLimiter(context.Background(), &cfg)
	require.NoError(t, err)
	defer closeLimiter()
	assert.IsType(t, &ratelimit.MemoryLimiter{}, limiter)
}

func TestLoadData(t *testing.T) {
	dir, repo, err := loadData("", zap.NewNop())
	require.NoError(t, err)
	_, err = dir.Principal(context.Background(), "anyone")
	assert.ErrorIs(t, err, rest.ErrUnknownPrincipal)
	patients, err := repo.Patients(context.Background())
	require.NoError(t, err)
	assert.Empty(t, patients)

	_, _, err = loadData(filepath.Join(t.TempDir(), "missing.yaml"), zap.NewNop())
	assert.Error(t, err)
}

func TestTokenCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ehr-pdp.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  jwt_secret: cli-secret\n  jwt_issuer: cli-test\n"), 0o600))

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"--config", path, "token", "dr-cardio", "--username", "dr.smith"})
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
	})
	require.NoError(t, rootCmd.Execute())

	claims := &rest.Claims{}
	_, err := jwt.ParseWithClaims(string(bytes.TrimSpace(out.Bytes())), claims, func(*jwt.Token) (interface{}, error) {
		return []byte("cli-secret"), nil
	})
	require.NoError(t, err)
	assert.Equal(t, "dr-cardio", claims.Subject)
	assert.Equal(t, "dr.smith", claims.Username)
	assert.Equal(t, "cli-test", claims.Issuer)
}

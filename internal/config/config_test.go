package config

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestLoadDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", testSecret)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "jwt", cfg.Auth.TokenFormat)
	assert.Equal(t, MaxAccessTokenDuration, cfg.Auth.AccessTokenDuration)
	assert.Equal(t, 24*time.Hour, cfg.Auth.VerificationTokenDuration)
	assert.Equal(t, time.Hour, cfg.Auth.ResetTokenDuration)
	assert.Equal(t, "bcrypt", cfg.Auth.PasswordHashAlgorithm)
	assert.Equal(t, 6, cfg.ShortURL.CodeLength)
	assert.Equal(t, 10, cfg.ShortURL.MaxAttempts)
	assert.True(t, cfg.Server.IsDevelopment())
	assert.Equal(t, "localhost:6379", cfg.Redis.Address())
}

func TestLoadDurationsAreSeconds(t *testing.T) {
	t.Setenv("JWT_SECRET", testSecret)
	t.Setenv("ACCESS_TOKEN_TTL", "900")
	t.Setenv("VERIFICATION_TOKEN_TTL", "7200")
	t.Setenv("RESET_TOKEN_TTL", "0")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 15*time.Minute, cfg.Auth.AccessTokenDuration)
	assert.Equal(t, 2*time.Hour, cfg.Auth.VerificationTokenDuration)
	assert.Zero(t, cfg.Auth.ResetTokenDuration)
}

func TestLoadRejectsInvalidSettings(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{
			name: "short jwt secret",
			env:  map[string]string{"JWT_SECRET": "short"},
			want: "JWT_SECRET",
		},
		{
			name: "paseto key length",
			env:  map[string]string{"ACCESS_TOKEN_FORMAT": "paseto", "PASETO_KEY": "tooshort"},
			want: "PASETO_KEY",
		},
		{
			name: "unknown format",
			env:  map[string]string{"ACCESS_TOKEN_FORMAT": "saml", "JWT_SECRET": testSecret},
			want: "ACCESS_TOKEN_FORMAT",
		},
		{
			name: "access token longer than thirty minutes",
			env:  map[string]string{"JWT_SECRET": testSecret, "ACCESS_TOKEN_TTL": "3600"},
			want: "ACCESS_TOKEN_TTL",
		},
		{
			name: "code does not fit column",
			env:  map[string]string{"JWT_SECRET": testSecret, "SHORT_CODE_LENGTH": "12"},
			want: "SHORT_CODE_LENGTH",
		},
		{
			name: "unknown hash algorithm",
			env:  map[string]string{"JWT_SECRET": testSecret, "PASSWORD_HASH_ALGORITHM": "md5"},
			want: "PASSWORD_HASH_ALGORITHM",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := Load()
			require.Error(t, err)
			assert.True(t, strings.Contains(err.Error(), tt.want), err.Error())
		})
	}
}

func TestConnectionString(t *testing.T) {
	db := DatabaseConfig{Host: "h", Port: "5432", User: "u", Password: "p", DBName: "d", SSLMode: "disable"}
	assert.Equal(t, "host=h port=5432 user=u password=p dbname=d sslmode=disable", db.ConnectionString())

	db.ChannelBinding = "require"
	assert.True(t, strings.HasSuffix(db.ConnectionString(), " channel_binding=require"))
}

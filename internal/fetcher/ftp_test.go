package fetcher

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFTPURL(t *testing.T) {
	tests := []struct {
		name     string
		url      string
		wantHost string
		wantPath string
		wantErr  bool
	}{
		{
			name:     "standard ftp url",
			url:      "ftp://ftp.example.pt/dados/instituicoes.xlsx",
			wantHost: "ftp.example.pt:21",
			wantPath: "/dados/instituicoes.xlsx",
		},
		{
			name:     "ftp url with port",
			url:      "ftp://ftp.example.pt:2121/instituicoes.xlsx",
			wantHost: "ftp.example.pt:2121",
			wantPath: "/instituicoes.xlsx",
		},
		{
			name:     "ftp url with nested path",
			url:      "ftp://files.example.pt/exports/2026/instituicoes.xlsx",
			wantHost: "files.example.pt:21",
			wantPath: "/exports/2026/instituicoes.xlsx",
		},
		{
			name:    "http scheme rejected",
			url:     "http://example.pt/instituicoes.xlsx",
			wantErr: true,
		},
		{
			name:    "empty path",
			url:     "ftp://ftp.example.pt",
			wantErr: true,
		},
		{
			name:    "invalid url",
			url:     "://bad",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			host, path, err := parseFTPURL(tt.url)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantHost, host)
			assert.Equal(t, tt.wantPath, path)
		})
	}
}

func TestNewFTPFetcher_Defaults(t *testing.T) {
	f := NewFTPFetcher(FTPOptions{})
	assert.Equal(t, 30*time.Second, f.opts.Timeout)
	assert.Equal(t, "anonymous", f.opts.User)
	assert.Equal(t, "anonymous@", f.opts.Password)
}

func TestNewFTPFetcher_KeepsCredentials(t *testing.T) {
	f := NewFTPFetcher(FTPOptions{User: "ops", Password: "s3cret"})
	assert.Equal(t, "ops", f.opts.User)
	assert.Equal(t, "s3cret", f.opts.Password)
}

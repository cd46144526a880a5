package upload

import (
	"testing"
	"time"

	"github.com/ethpandaops/dupcheck/pkg/config"
	"github.com/stretchr/testify/assert"
)

func TestResolveKey(t *testing.T) {
	tests := []struct {
		name   string
		prefix string
		branch string
		want   string
	}{
		{
			name:   "default prefix",
			prefix: "",
			branch: "release-42",
			want:   "dupcheck/launches/release-42/1769791126_allure-results.zip",
		},
		{
			name:   "custom prefix",
			prefix: "dwh/quality",
			branch: "feature/orders",
			want:   "dwh/quality/feature/orders/1769791126_allure-results.zip",
		},
		{
			name:   "trailing slash stripped",
			prefix: "my-prefix/",
			branch: "/main/",
			want:   "my-prefix/main/1769791126_allure-results.zip",
		},
		{
			name:   "empty branch",
			prefix: "p",
			branch: "",
			want:   "p/_/1769791126_allure-results.zip",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &s3Mirror{
				cfg: &config.S3ArchiveConfig{Prefix: tt.prefix},
				now: func() time.Time { return time.Unix(1769791126, 0) },
			}
			got := m.resolveKey(tt.branch, "allure-results.zip")
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDetectContentType(t *testing.T) {
	tests := []struct {
		name       string
		path       string
		wantPrefix string
	}{
		{
			name:       "zip bundle",
			path:       "out/allure-results.zip",
			wantPrefix: "application/zip",
		},
		{
			name:       "json file",
			path:       "allure-results/abc-result.json",
			wantPrefix: "application/json",
		},
		{
			name:       "no extension",
			path:       "out/bundle",
			wantPrefix: "application/octet-stream",
		},
		{
			name:       "upper case zip",
			path:       "out/BUNDLE.ZIP",
			wantPrefix: "application/zip",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := detectContentType(tt.path)
			assert.Contains(t, got, tt.wantPrefix)
		})
	}
}

// Package update checks GitHub for a newer flowscope release. Results are
// cached for a day so repeated `version --check` calls stay offline.
package update

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/tmaes/flowscope/internal/version"
)

const (
	releaseURL = "https://api.github.com/repos/tmaes/flowscope/releases/latest"
	cacheTTL   = 24 * time.Hour
)

// Info is the outcome of a release check.
type Info struct {
	LatestVersion   string    `json:"latest_version"`
	CurrentVersion  string    `json:"current_version"`
	CheckedAt       time.Time `json:"checked_at"`
	UpdateAvailable bool      `json:"update_available"`
}

// CheckWithCache returns the latest release info, reusing a cached result
// when it is fresh enough. Cache write failures are ignored; the check
// still works without a writable cache directory.
func CheckWithCache(ctx context.Context) (*Info, error) {
	path, pathErr := cachePath()

	if pathErr == nil {
		if data, err := os.ReadFile(path); err == nil {
			var info Info
			if json.Unmarshal(data, &info) == nil && time.Since(info.CheckedAt) < cacheTTL {
				info.CurrentVersion = version.Version
				info.UpdateAvailable = compareVersions(info.CurrentVersion, info.LatestVersion) < 0
				return &info, nil
			}
		}
	}

	info, err := fetchLatest(ctx)
	if err != nil {
		return nil, err
	}

	if pathErr == nil {
		if data, err := json.MarshalIndent(info, "", "  "); err == nil {
			if os.MkdirAll(filepath.Dir(path), 0o755) == nil {
				_ = os.WriteFile(path, data, 0o644)
			}
		}
	}
	return info, nil
}

func fetchLatest(ctx context.Context) (*Info, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, releaseURL, http.NoBody)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/vnd.github.v3+json")
	req.Header.Set("User-Agent", "flowscope/"+version.Version)

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("GitHub API returned status %d", resp.StatusCode)
	}

	var release struct {
		TagName string `json:"tag_name"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&release); err != nil {
		return nil, err
	}

	latest := strings.TrimPrefix(release.TagName, "v")
	return &Info{
		LatestVersion:   latest,
		CurrentVersion:  version.Version,
		CheckedAt:       time.Now(),
		UpdateAvailable: compareVersions(version.Version, latest) < 0,
	}, nil
}

// cachePath is the cached check result location under the user cache
// directory (XDG_CACHE_HOME on Linux).
func cachePath() (string, error) {
	dir, err := os.UserCacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "flowscope", "update-check.json"), nil
}

// compareVersions orders two release versions: -1 when a < b, 0 when equal,
// 1 when a > b. "dev" builds always count as latest; pre-release suffixes
// are ignored.
func compareVersions(a, b string) int {
	a = strings.TrimPrefix(a, "v")
	b = strings.TrimPrefix(b, "v")

	if a == "dev" {
		return 1
	}
	if b == "dev" {
		return -1
	}

	pa := strings.Split(a, ".")
	pb := strings.Split(b, ".")
	for i := 0; i < len(pa) || i < len(pb); i++ {
		na := versionPart(pa, i)
		nb := versionPart(pb, i)
		switch {
		case na < nb:
			return -1
		case na > nb:
			return 1
		}
	}
	return 0
}

func versionPart(parts []string, i int) int {
	if i >= len(parts) {
		return 0
	}
	n, _ := strconv.Atoi(strings.SplitN(parts[i], "-", 2)[0])
	return n
}

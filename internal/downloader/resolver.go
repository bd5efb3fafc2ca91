package downloader

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// VersionResolver fetches the latest version for a language server.
type VersionResolver interface {
	ResolveLatestVersion(ctx context.Context) (string, error)
}

// GitHubReleaseResolver resolves versions from GitHub releases.
type GitHubReleaseResolver struct {
	owner      string
	repo       string
	tagPrefix  string // prefix like "gopls/" stripped from release tags
	apiBase    string
	httpClient *http.Client
}

// NPMResolver resolves versions from the npm registry.
type NPMResolver struct {
	packageName  string
	registryBase string
	httpClient   *http.Client
}

// NewGitHubResolver creates a resolver for GitHub releases.
func NewGitHubResolver(owner, repo, tagPrefix string) *GitHubReleaseResolver {
	return &GitHubReleaseResolver{
		owner:     owner,
		repo:      repo,
		tagPrefix: tagPrefix,
		apiBase:   "https://api.github.com",
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// NewNPMResolver creates a resolver for npm packages.
func NewNPMResolver(packageName string) *NPMResolver {
	return &NPMResolver{
		packageName:  packageName,
		registryBase: "https://registry.npmjs.org",
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// ResolveLatestVersion fetches the latest GitHub release version.
func (r *GitHubReleaseResolver) ResolveLatestVersion(ctx context.Context) (string, error) {
	url := fmt.Sprintf("%s/repos/%s/%s/releases/latest", r.apiBase, r.owner, r.repo)

	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return "", err
	}

	req.Header.Set("Accept", "application/vnd.github.v3+json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch GitHub release: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("GitHub API returned %d: %s", resp.StatusCode, string(body))
	}

	var release struct {
		TagName string `json:"tag_name"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&release); err != nil {
		return "", fmt.Errorf("failed to decode GitHub response: %w", err)
	}

	// Tags like "gopls/v0.21.1" must lose their prefix before the version
	// is substituted into a URL template.
	tag := release.TagName
	if r.tagPrefix != "" {
		tag = strings.TrimPrefix(tag, r.tagPrefix)
	}
	if tag == "" {
		return "", fmt.Errorf("GitHub release for %s/%s has empty tag", r.owner, r.repo)
	}
	return tag, nil
}

// ResolveLatestVersion fetches the latest npm package version.
func (r *NPMResolver) ResolveLatestVersion(ctx context.Context) (string, error) {
	url := fmt.Sprintf("%s/%s/latest", r.registryBase, r.packageName)

	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return "", err
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch npm package: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("npm registry returned %d: %s", resp.StatusCode, string(body))
	}

	var pkg struct {
		Version string `json:"version"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&pkg); err != nil {
		return "", fmt.Errorf("failed to decode npm response: %w", err)
	}

	return pkg.Version, nil
}

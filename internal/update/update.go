// Package update provides the npm registry update check for durandal-mcp.
// Notifications render on stderr only; nothing is installed unless
// AUTO_UPDATE is set.
package update

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/Wawtawsha/durandal-mcp/internal/config"
	. "github.com/Wawtawsha/durandal-mcp/internal/logging"
	"github.com/Wawtawsha/durandal-mcp/internal/paths"
)

const (
	// NPMPackage is the published package name.
	NPMPackage = "durandal-mcp"

	// RegistryBase is the npm registry base URL.
	RegistryBase = "https://registry.npmjs.org"

	// requestTimeout bounds the registry round-trip.
	requestTimeout = 5 * time.Second
)

// versionSpec validates what may be passed to the installer: a bare
// semantic version or the literal "latest". Anything else is rejected
// before it reaches the install command.
var versionSpec = regexp.MustCompile(`^\d+\.\d+\.\d+$`)

// packumentSlice is the part of the registry response we read.
type packumentSlice struct {
	DistTags struct {
		Latest string `json:"latest"`
	} `json:"dist-tags"`
}

// cacheEntry is persisted at ~/.durandal-mcp/update-cache.json so the
// registry is hit at most once per check interval.
type cacheEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Latest    string    `json:"latest"`
}

// Checker performs the update check.
type Checker struct {
	currentVersion string
	cfg            config.UpdateConfig
	httpClient     *http.Client
}

// NewChecker creates a Checker for the running version.
func NewChecker(currentVersion string, cfg config.UpdateConfig) *Checker {
	return &Checker{
		currentVersion: currentVersion,
		cfg:            cfg,
		httpClient:     &http.Client{Timeout: requestTimeout},
	}
}

// RunInBackground starts the check on its own goroutine. Failures are
// logged at debug and never affect the server.
func (c *Checker) RunInBackground(ctx context.Context) {
	if !c.cfg.Enabled {
		L_debug("update: check disabled")
		return
	}
	go func() {
		if err := c.run(ctx); err != nil {
			L_debug("update: check failed", "error", err)
		}
	}()
}

func (c *Checker) run(ctx context.Context) error {
	latest, err := c.latestVersion(ctx)
	if err != nil {
		return err
	}
	if latest == "" || !isNewerVersion(c.currentVersion, latest) {
		L_debug("update: up to date", "current", c.currentVersion, "latest", latest)
		return nil
	}

	if c.cfg.Notify {
		// Notification goes to stderr only; stdout belongs to the protocol.
		fmt.Fprintf(os.Stderr, "\nA new version of %s is available: %s -> %s\nRun: npm install -g %s@latest\n\n",
			NPMPackage, c.currentVersion, latest, NPMPackage)
	}

	if c.cfg.AutoUpdate {
		return c.Install(ctx, latest)
	}
	return nil
}

// latestVersion returns the newest published version, consulting the
// on-disk cache before the registry.
func (c *Checker) latestVersion(ctx context.Context) (string, error) {
	if entry, ok := c.loadCache(); ok && time.Since(entry.Timestamp) < c.cfg.CheckInterval {
		L_debug("update: using cached version", "latest", entry.Latest)
		return entry.Latest, nil
	}

	latest, err := c.fetchLatest(ctx)
	if err != nil {
		return "", err
	}
	c.saveCache(cacheEntry{Timestamp: time.Now(), Latest: latest})
	return latest, nil
}

func (c *Checker) fetchLatest(ctx context.Context) (string, error) {
	url := fmt.Sprintf("%s/%s", RegistryBase, NPMPackage)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch packument: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("registry returned %s", resp.Status)
	}

	var p packumentSlice
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		return "", fmt.Errorf("decode packument: %w", err)
	}
	return p.DistTags.Latest, nil
}

// Install runs the npm install for a validated specifier. The command is
// executed without shell interpolation.
func (c *Checker) Install(ctx context.Context, version string) error {
	spec := strings.TrimSpace(version)
	if spec != "latest" && !versionSpec.MatchString(spec) {
		return fmt.Errorf("refusing to install invalid version specifier %q", spec)
	}

	L_info("update: installing", "package", NPMPackage, "version", spec)
	cmd := exec.CommandContext(ctx, "npm", "install", "-g", NPMPackage+"@"+spec)
	cmd.Stdout = os.Stderr
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("npm install: %w", err)
	}
	L_info("update: installed", "version", spec)
	return nil
}

func (c *Checker) loadCache() (cacheEntry, bool) {
	var entry cacheEntry
	path, err := paths.UpdateCachePath()
	if err != nil {
		return entry, false
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return entry, false
	}
	if err := json.Unmarshal(data, &entry); err != nil {
		return entry, false
	}
	return entry, entry.Latest != ""
}

func (c *Checker) saveCache(entry cacheEntry) {
	path, err := paths.UpdateCachePath()
	if err != nil {
		return
	}
	if err := paths.EnsureDir(filepath.Dir(path)); err != nil {
		L_debug("update: cache dir unavailable", "error", err)
		return
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return
	}
	if err := os.WriteFile(path, data, 0640); err != nil {
		L_debug("update: cache write failed", "error", err)
	}
}

// isNewerVersion compares dotted numeric versions, ignoring a leading "v"
// and any prerelease suffix. Unparseable versions never trigger updates.
func isNewerVersion(current, candidate string) bool {
	cur := versionParts(current)
	cand := versionParts(candidate)
	if cur == nil || cand == nil {
		return false
	}
	for i := 0; i < 3; i++ {
		if cand[i] > cur[i] {
			return true
		}
		if cand[i] < cur[i] {
			return false
		}
	}
	return false
}

func versionParts(v string) []int {
	v = strings.TrimPrefix(strings.TrimSpace(v), "v")
	if i := strings.IndexAny(v, "-+"); i >= 0 {
		v = v[:i]
	}
	fields := strings.Split(v, ".")
	if len(fields) != 3 {
		return nil
	}
	parts := make([]int, 3)
	for i, f := range fields {
		n, err := strconv.Atoi(f)
		if err != nil {
			return nil
		}
		parts[i] = n
	}
	return parts
}

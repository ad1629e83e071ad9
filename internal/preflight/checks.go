package preflight

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sys/unix"

	"recordsync/internal/config"
	"recordsync/internal/mirror"
	"recordsync/internal/recordstore"
	"recordsync/internal/source"
)

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckGateFile verifies that a gate file can be created or, when present,
// parsed and rewritten. A missing file passes: it reads as "may continue".
func CheckGateFile(name, path, key string) Result {
	dirCheck := CheckDirectoryAccess(name, filepath.Dir(path))
	if !dirCheck.Passed {
		return dirCheck
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (absent, reads as open)", path)}
	}
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: %v)", path, err)}
	}
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: not a JSON object: %v)", path, err)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	state := "open"
	if raw, ok := doc[key]; ok {
		var v bool
		if err := json.Unmarshal(raw, &v); err != nil {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: %s is not a boolean)", path, key)}
		}
		if !v {
			state = "closed"
		}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (%s)", path, state)}
}

// CheckStore loads the record store and runs its self-check.
func CheckStore(cfg *config.Config) Result {
	const name = "Record store"

	store, err := recordstore.Open(cfg.Paths.DataDir)
	if err != nil {
		if errors.Is(err, recordstore.ErrNotInitialized) {
			return Result{Name: name, Detail: "not initialized (run recordsync init)"}
		}
		return Result{Name: name, Detail: err.Error()}
	}
	report, err := store.SelfCheck()
	if err != nil {
		return Result{Name: name, Detail: err.Error()}
	}
	if !report.OK() {
		return Result{Name: name, Detail: report.String()}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%d records consistent", report.Records)}
}

// CheckSource verifies that a job's source resolves to at least one file.
func CheckSource(job config.Job) Result {
	name := fmt.Sprintf("Source (%s)", job.Name)
	files, err := source.NewFileSource(job.Source, job.Format, job.MaxEntities, nil).Files()
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: %v)", job.Source, err)}
	}
	if len(files) == 0 {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: no snapshot files)", job.Source)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (%d files)", job.Source, len(files))}
}

// CheckMirror opens the mirror database and reports its schema version.
func CheckMirror(ctx context.Context, path string) Result {
	const name = "Mirror database"

	checkCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	db, err := mirror.OpenDB(checkCtx, path)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: %v)", path, err)}
	}
	defer db.Close()
	version, err := db.SchemaVersion(checkCtx)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: %v)", path, err)}
	}
	count, err := db.Count(checkCtx)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (schema v%d, %d rows)", path, version, count)}
}

// CheckNtfy verifies that the ntfy server behind topicURL answers its
// health endpoint.
func CheckNtfy(ctx context.Context, topicURL string) Result {
	const name = "ntfy"

	u, err := url.Parse(topicURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return Result{Name: name, Detail: fmt.Sprintf("invalid topic url %q", topicURL)}
	}
	health := url.URL{Scheme: u.Scheme, Host: u.Host, Path: "/v1/health"}

	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	client := &http.Client{Timeout: 5 * time.Second}
	req, err := http.NewRequestWithContext(checkCtx, http.MethodGet, health.String(), nil)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("health check failed (%v)", err)}
	}
	resp, err := client.Do(req)
	if err != nil {
		return Result{Name: name, Detail: summarizeNetError(err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Result{Name: name, Detail: fmt.Sprintf("health check failed (%d)", resp.StatusCode)}
	}
	var body struct {
		Healthy bool `json:"healthy"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil || !body.Healthy {
		return Result{Name: name, Detail: "server reports unhealthy"}
	}
	return Result{Name: name, Passed: true, Detail: "Reachable"}
}

func summarizeNetError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "health check timed out (server unresponsive)"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "health check timed out (server unreachable)"
	}
	return err.Error()
}

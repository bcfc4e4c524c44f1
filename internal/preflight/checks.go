package preflight

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"drowsy/internal/camera"
	"drowsy/internal/config"
	"drowsy/internal/detection"
)

const checkTimeout = 5 * time.Second

// CheckDetectionService verifies the detection service answers a status request.
// A status poll has no side effects on the service, unlike start or stop.
func CheckDetectionService(ctx context.Context, cfg *config.Config) Result {
	const name = "Detection service"

	checkCtx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	client := detection.NewFromConfig(cfg)
	status, err := client.Status(checkCtx)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (%s)", client.BaseURL(), summarizeServiceError(err))}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (status %q)", client.BaseURL(), status.Status)}
}

// CheckCamera verifies the capture device exists and is accessible.
// The device is only checked with stat, never opened.
func CheckCamera(device string) Result {
	const name = "Camera"

	device = strings.TrimSpace(device)
	switch device {
	case "":
		return Result{Name: name, Detail: "no device configured"}
	case camera.VirtualDevice:
		return Result{Name: name, Passed: true, Detail: "virtual camera"}
	}

	info, err := os.Stat(device)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", device)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", device, err)}
	}
	if info.Mode()&os.ModeCharDevice == 0 {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: not a character device)", device)}
	}
	if err := unix.Access(device, unix.R_OK|unix.W_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", device, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", device)}
}

// CheckURL verifies an HTTP endpoint responds. Any response below 500 counts
// as reachable.
func CheckURL(ctx context.Context, name, url string) Result {
	url = strings.TrimSpace(url)
	if url == "" {
		return Result{Name: name, Detail: "missing url"}
	}

	checkCtx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(checkCtx, http.MethodHead, url, nil)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("check failed (%v)", err)}
	}
	client := &http.Client{Timeout: checkTimeout}
	resp, err := client.Do(req)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("check failed (%v)", err)}
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusInternalServerError {
		return Result{Name: name, Detail: fmt.Sprintf("check failed (%d)", resp.StatusCode)}
	}
	return Result{Name: name, Passed: true, Detail: "Reachable"}
}

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

func summarizeServiceError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "status check timed out"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "status check timed out"
	}
	if errors.Is(err, detection.ErrConnectionRefused) {
		return "not running"
	}
	var rejected *detection.RejectedError
	if errors.As(err, &rejected) {
		return fmt.Sprintf("status %d: %s", rejected.StatusCode, rejected.Message)
	}
	return err.Error()
}

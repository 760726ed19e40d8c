// Package sdk is the HTTP client for the lockbox server. One Client
// permits a single in-flight call at a time and retries transient
// transport failures a bounded number of times before reporting the
// attempts as exhausted.
package sdk

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/imroc/req/v3"

	"github.com/vipinj/lockbox/internal/version"
)

const (
	v1Users    = "/api/v1/users"
	v1Devices  = "/api/v1/devices"
	v1TopDirs  = "/api/v1/topdirs"
	v1Share    = "/api/v1/topdirs/share"
	v1Allocate = "/api/v1/relpath/allocate"
	v1Lock     = "/api/v1/relpath/lock"
	v1Packages = "/api/v1/packages"
	v1Updates  = "/api/v1/updates"

	retryCount    = 3
	retryInterval = 2 * time.Second
)

var (
	// ErrExhausted reports that every transport attempt failed.
	ErrExhausted = errors.New("sdk: transport attempts exhausted")

	ErrLockBusy = errors.New("sdk: path lock busy")
)

type Client struct {
	client *req.Client

	// the server transport is exercised one call at a time; callers on
	// other goroutines queue here
	mu sync.Mutex
}

func New(baseURL string) *Client {
	client := req.C().
		SetBaseURL(baseURL).
		SetCommonRetryCount(retryCount).
		SetCommonRetryFixedInterval(retryInterval).
		SetUserAgent("Lockbox/" + version.Version)

	return &Client{client: client}
}

// APIError is a structured failure reported by the server, as opposed
// to a transport failure.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("sdk: api error: status=%d code=%s message=%s", e.Status, e.Code, e.Message)
}

func (c *Client) RegisterUser(ctx context.Context, email string) (int64, error) {
	var out RegisterUserResponse
	err := c.call(ctx, func(r *req.Request) (*req.Response, error) {
		return r.SetBodyJsonMarshal(map[string]string{"email": email}).
			SetSuccessResult(&out).
			Post(v1Users)
	})
	return out.UserID, err
}

func (c *Client) RegisterDevice(ctx context.Context, email string) (int64, error) {
	var out RegisterDeviceResponse
	err := c.call(ctx, func(r *req.Request) (*req.Response, error) {
		return r.SetBodyJsonMarshal(map[string]string{"email": email}).
			SetSuccessResult(&out).
			Post(v1Devices)
	})
	return out.DeviceID, err
}

func (c *Client) RegisterTopDir(ctx context.Context, email string) (int64, error) {
	var out RegisterTopDirResponse
	err := c.call(ctx, func(r *req.Request) (*req.Response, error) {
		return r.SetBodyJsonMarshal(map[string]string{"email": email}).
			SetSuccessResult(&out).
			Post(v1TopDirs)
	})
	return out.TopDirID, err
}

func (c *Client) Share(ctx context.Context, topDir int64, email string) ([]string, error) {
	var out ShareResponse
	err := c.call(ctx, func(r *req.Request) (*req.Response, error) {
		return r.SetBodyJsonMarshal(map[string]any{"topDirId": topDir, "email": email}).
			SetSuccessResult(&out).
			Post(v1Share)
	})
	return out.Editors, err
}

func (c *Client) AllocateRelPath(ctx context.Context, topDir int64) (string, error) {
	var out AllocateResponse
	err := c.call(ctx, func(r *req.Request) (*req.Response, error) {
		return r.SetBodyJsonMarshal(map[string]any{"topDirId": topDir}).
			SetSuccessResult(&out).
			Post(v1Allocate)
	})
	return out.RelPathID, err
}

// AcquirePathLock asks for the advisory lock on (topDir, relPath).
// ErrLockBusy means someone else holds it.
func (c *Client) AcquirePathLock(ctx context.Context, topDir int64, relPath, holder string) ([]string, error) {
	var out LockResponse
	err := c.call(ctx, func(r *req.Request) (*req.Response, error) {
		return r.SetBodyJsonMarshal(map[string]any{"topDirId": topDir, "relPathId": relPath, "holder": holder}).
			SetSuccessResult(&out).
			Post(v1Lock)
	})
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Status == 409 {
			return nil, ErrLockBusy
		}
		return nil, err
	}
	if !out.Granted {
		return nil, ErrLockBusy
	}
	return out.NotifyUsers, nil
}

func (c *Client) ReleasePathLock(ctx context.Context, topDir int64, relPath string) error {
	return c.call(ctx, func(r *req.Request) (*req.Response, error) {
		return r.SetBodyJsonMarshal(map[string]any{"topDirId": topDir, "relPathId": relPath}).
			Delete(v1Lock)
	})
}

func (c *Client) UploadPackage(ctx context.Context, topDir int64, relPath string, payload []byte) (*UploadResponse, error) {
	var out UploadResponse
	err := c.call(ctx, func(r *req.Request) (*req.Response, error) {
		return r.SetQueryParam("topDirId", fmt.Sprintf("%d", topDir)).
			SetQueryParam("relPathId", relPath).
			SetFileBytes("file", "package", payload).
			SetSuccessResult(&out).
			Put(v1Packages)
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// DownloadPackage fetches a version's payload; an empty hash means
// the current head.
func (c *Client) DownloadPackage(ctx context.Context, topDir int64, relPath, hash string) ([]byte, error) {
	var payload []byte
	err := c.call(ctx, func(r *req.Request) (*req.Response, error) {
		res, err := r.SetQueryParam("topDirId", fmt.Sprintf("%d", topDir)).
			SetQueryParam("relPathId", relPath).
			SetQueryParam("hash", hash).
			Get(v1Packages)
		if err == nil && res != nil && res.IsSuccessState() {
			payload, err = res.ToBytes()
		}
		return res, err
	})
	return payload, err
}

func (c *Client) PollForUpdates(ctx context.Context, user string, device int64) ([]*PendingUpdate, error) {
	var out PollResponse
	err := c.call(ctx, func(r *req.Request) (*req.Response, error) {
		return r.SetQueryParam("user", user).
			SetQueryParam("deviceId", fmt.Sprintf("%d", device)).
			SetSuccessResult(&out).
			Get(v1Updates)
	})
	return out.Updates, err
}

// call serializes the request through the client mutex and folds the
// outcome into one of: success, structured API error, or exhausted
// transport attempts.
func (c *Client) call(ctx context.Context, do func(*req.Request) (*req.Response, error)) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var errResp apiError
	res, err := do(c.client.R().SetContext(ctx).SetErrorResult(&errResp))
	if err != nil {
		// req has already retried transient failures with backoff
		return fmt.Errorf("%w: %w", ErrExhausted, err)
	}

	if res.IsErrorState() {
		return &APIError{
			Status:  res.StatusCode,
			Code:    errResp.Code,
			Message: errResp.Message,
		}
	}
	return nil
}

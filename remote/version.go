package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
)

// DefaultVersionConstraint is the backend API range this client speaks.
const DefaultVersionConstraint = ">= 1.0.0, < 2.0.0"

// BackendInfo is the backend's root banner.
type BackendInfo struct {
	Message string `json:"message"`
	Version string `json:"version"`
}

// Version fetches the backend banner from the server root.
func (c *Client) Version(ctx context.Context) (BackendInfo, error) {
	start := time.Now()
	req, err := c.newJSONRequest(ctx, http.MethodGet, c.baseURL+"/", nil)
	if err != nil {
		return BackendInfo{}, err
	}
	resp, err := c.do(ctx, OpVersion, req, nil)
	if err == nil {
		err = c.schemas.validate(OpVersion, rootSchema, resp.body)
	}
	var info BackendInfo
	if err == nil {
		err = json.Unmarshal(resp.body, &info)
	}
	c.observe(OpVersion, start, statusOf(resp), false, err)
	if err != nil {
		return BackendInfo{}, err
	}
	return info, nil
}

// CheckCompatibility reports whether version satisfies constraint. An empty
// constraint uses DefaultVersionConstraint.
func CheckCompatibility(version, constraint string) (bool, error) {
	if constraint == "" {
		constraint = DefaultVersionConstraint
	}
	c, err := semver.NewConstraint(constraint)
	if err != nil {
		return false, fmt.Errorf("invalid version constraint %q: %w", constraint, err)
	}
	v, err := semver.NewVersion(strings.TrimPrefix(strings.TrimSpace(version), "v"))
	if err != nil {
		return false, fmt.Errorf("invalid backend version %q: %w", version, err)
	}
	return c.Check(v), nil
}

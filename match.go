package avrflash

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/sethvargo/go-retry"
)

// Role distinguishes the port used to trigger the reset from the port the
// bootloader enumerates on.
type Role int

const (
	RoleReset Role = iota
	RoleUpload
)

func (r Role) String() string {
	switch r {
	case RoleReset:
		return "reset"
	case RoleUpload:
		return "upload"
	default:
		return fmt.Sprintf("role(%d)", int(r))
	}
}

// Identity is an allow-list entry. An empty ProductID matches any product of
// the vendor. Comparison ignores case.
type Identity struct {
	VendorID  string
	ProductID string
}

// Matches reports whether p is a USB port with this identity.
func (id Identity) Matches(p PortInfo) bool {
	if id.VendorID == "" || !strings.EqualFold(id.VendorID, p.VendorID) {
		return false
	}
	return id.ProductID == "" || strings.EqualFold(id.ProductID, p.ProductID)
}

func (id Identity) String() string {
	if id.ProductID == "" {
		return id.VendorID + ":*"
	}
	return id.VendorID + ":" + id.ProductID
}

// Vendor identifiers of boards running a Caterina bootloader: Arduino,
// SparkFun and OpenMoko (used by community boards such as the N32B).
const (
	VendorArduino  = "2341"
	VendorSparkFun = "1b4f"
	VendorOpenMoko = "1d50"
)

// DefaultResetIdentities returns the allow-list for the port touched at
// 1200 baud.
func DefaultResetIdentities() []Identity {
	return []Identity{
		{VendorID: VendorArduino},
		{VendorID: VendorSparkFun},
		{VendorID: VendorOpenMoko},
	}
}

// DefaultUploadIdentities returns the allow-list for the bootloader port.
func DefaultUploadIdentities() []Identity {
	return []Identity{
		{VendorID: VendorArduino},
		{VendorID: VendorSparkFun},
		{VendorID: VendorOpenMoko},
	}
}

// ParseIdentity parses "vid" or "vid:pid".
func ParseIdentity(s string) (Identity, error) {
	vid, pid, _ := strings.Cut(strings.TrimSpace(s), ":")
	if pid == "*" {
		pid = ""
	}
	if !isHexID(vid) || (pid != "" && !isHexID(pid)) {
		return Identity{}, fmt.Errorf("%w: identity %q", ErrInvalidConfig, s)
	}
	return Identity{VendorID: strings.ToLower(vid), ProductID: strings.ToLower(pid)}, nil
}

func isHexID(s string) bool {
	if len(s) != 4 {
		return false
	}
	for _, c := range s {
		if !strings.ContainsRune("0123456789abcdefABCDEF", c) {
			return false
		}
	}
	return true
}

// PortMatcher finds ports by role, polling enumeration until a match shows
// up or the attempt budget runs out.
type PortMatcher struct {
	List     ListFunc
	Reset    []Identity
	Upload   []Identity
	Attempts int
	Interval time.Duration
	Timeout  time.Duration
	Logger   zerolog.Logger
}

// Identities returns the allow-list for role.
func (m *PortMatcher) Identities(role Role) []Identity {
	if role == RoleReset {
		return m.Reset
	}
	return m.Upload
}

// Match returns the ports that match role's allow-list, in input order.
func (m *PortMatcher) Match(ports []PortInfo, role Role) []PortInfo {
	ids := m.Identities(role)

	var out []PortInfo
	for _, p := range ports {
		for _, id := range ids {
			if id.Matches(p) {
				out = append(out, p)
				break
			}
		}
	}
	return out
}

// FindPort returns the first port matching role.
func (m *PortMatcher) FindPort(ctx context.Context, role Role) (PortInfo, error) {
	return m.find(ctx, role, nil)
}

// FindNewPort is like FindPort but prefers a port that was absent from
// before. If only previously seen ports match by the time the budget is
// spent, the first of those is returned.
func (m *PortMatcher) FindNewPort(ctx context.Context, role Role, before []PortInfo) (PortInfo, error) {
	if before == nil {
		before = []PortInfo{}
	}
	return m.find(ctx, role, before)
}

func (m *PortMatcher) find(ctx context.Context, role Role, before []PortInfo) (PortInfo, error) {
	seen := make(map[string]bool, len(before))
	for _, p := range before {
		seen[p.Path] = true
	}

	var (
		found    PortInfo
		fallback []PortInfo
		attempt  int
	)

	err := retry.Do(ctx, m.backoff(), func(ctx context.Context) error {
		attempt++

		ports, err := m.list()
		if err != nil {
			m.Logger.Debug().Err(err).Int("attempt", attempt).Msg("port enumeration failed")
			return retry.RetryableError(fmt.Errorf("%w: %w", ErrPortNotFound, err))
		}

		matches := m.Match(ports, role)
		for _, p := range matches {
			if before == nil || !seen[p.Path] {
				found = p
				return nil
			}
		}
		fallback = matches

		m.Logger.Debug().
			Stringer("role", role).
			Int("attempt", attempt).
			Int("ports", len(ports)).
			Int("matches", len(matches)).
			Msg("no new matching port yet")
		return retry.RetryableError(fmt.Errorf("%w: no %s device among %d ports",
			ErrPortNotFound, role, len(ports)))
	})

	switch {
	case err == nil:
	case ctx.Err() == nil && len(fallback) > 0:
		found = fallback[0]
	default:
		return PortInfo{}, err
	}

	m.Logger.Info().
		Stringer("role", role).
		Str("port", found.Path).
		Str("vid", found.VendorID).
		Str("pid", found.ProductID).
		Msg("found port")
	return found, nil
}

func (m *PortMatcher) list() ([]PortInfo, error) {
	if m.List == nil {
		return ListPorts()
	}
	return m.List()
}

func (m *PortMatcher) backoff() retry.Backoff {
	attempts := max(m.Attempts, 1)
	interval := m.Interval
	if interval <= 0 {
		interval = DefaultDiscoveryInterval
	}

	b := retry.WithMaxRetries(uint64(attempts-1), retry.NewConstant(interval))
	if m.Timeout > 0 {
		b = retry.WithMaxDuration(m.Timeout, b)
	}
	return b
}

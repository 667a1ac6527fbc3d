package adapt

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"decoynet/internal/logger"
	"decoynet/pkg/models"
)

var bannerLineRegex = regexp.MustCompile(`ssh_version_string\s*=\s*(.+)`)

// fallbackBanners is the static identity pool used when no client-version
// distribution has been observed yet.
var fallbackBanners = []string{
	"SSH-2.0-OpenSSH_8.2p1 Ubuntu-4ubuntu0.1",
	"SSH-2.0-OpenSSH_7.4 Red Hat Enterprise Linux",
	"SSH-2.0-OpenSSH_7.9p1 Debian-10+deb10u2",
	"SSH-2.0-OpenSSH_8.0p1 FreeBSD-20190702",
	"SSH-2.0-OpenSSH_8.4p1 Raspbian-5+deb11u1",
	"SSH-2.0-OpenSSH_7.6p1 Ubuntu-4ubuntu0.5",
}

var opensshVersionRegex = regexp.MustCompile(`openssh[_\s]*([\d.]+)`)

// rotateBanner swaps the service identity string for a different one,
// preferring banners that match what recent attacker clients expect.
func (e *Engine) rotateBanner(ctx context.Context) actionResult {
	res := actionResult{action: models.ActionBannerChange, details: map[string]string{}}
	if e.cfg.BannerConfig == "" {
		res.err = fmt.Errorf("banner config path not configured")
		return res
	}

	content, err := os.ReadFile(e.cfg.BannerConfig)
	if err != nil {
		res.err = fmt.Errorf("read banner config: %w", err)
		return res
	}

	oldBanner := "Unknown"
	if m := bannerLineRegex.FindSubmatch(content); m != nil {
		oldBanner = strings.TrimSpace(string(m[1]))
	}

	candidates := e.candidateBanners(ctx)
	newBanner := e.pickBanner(candidates, oldBanner)

	updated := bannerLineRegex.ReplaceAll(content, []byte("ssh_version_string = "+newBanner))
	if err := os.WriteFile(e.cfg.BannerConfig, updated, 0644); err != nil {
		res.err = fmt.Errorf("write banner config: %w", err)
		return res
	}

	logger.Infof("Banner changed from %q to %q (%d candidates)", oldBanner, newBanner, len(candidates))
	res.details["old_banner"] = oldBanner
	res.details["new_banner"] = newBanner
	res.details["candidates"] = strconv.Itoa(len(candidates))
	return res
}

func (e *Engine) pickBanner(candidates []string, current string) string {
	if len(candidates) == 0 {
		candidates = fallbackBanners
	}
	banner := candidates[e.randIntn(len(candidates))]
	for banner == current && len(candidates) > 1 {
		banner = candidates[e.randIntn(len(candidates))]
	}
	return banner
}

// candidateBanners derives identity strings from the client versions recent
// sessions presented, falling back to the static pool.
func (e *Engine) candidateBanners(ctx context.Context) []string {
	counts, err := e.store.ClientVersionCounts(ctx)
	if err != nil {
		logger.Warnf("Failed to read client-version distribution: %v", err)
		return fallbackBanners
	}
	if len(counts) == 0 {
		return fallbackBanners
	}
	return bannersForClients(counts)
}

// bannersForClients maps observed attacker client versions onto server
// identities those clients are likely probing for.
func bannersForClients(counts map[string]int64) []string {
	versions := make([]string, 0, len(counts))
	for v := range counts {
		versions = append(versions, v)
	}
	sort.Slice(versions, func(i, j int) bool {
		if counts[versions[i]] != counts[versions[j]] {
			return counts[versions[i]] > counts[versions[j]]
		}
		return versions[i] < versions[j]
	})
	if len(versions) > 10 {
		versions = versions[:10]
	}

	var banners []string
	for _, version := range versions {
		client := strings.ToLower(version)
		switch {
		case strings.Contains(client, "ubuntu"):
			banners = append(banners,
				"SSH-2.0-OpenSSH_8.2p1 Ubuntu-4ubuntu0.5",
				"SSH-2.0-OpenSSH_7.6p1 Ubuntu-4ubuntu0.7")
		case strings.Contains(client, "debian"):
			banners = append(banners,
				"SSH-2.0-OpenSSH_7.9p1 Debian-10+deb10u2",
				"SSH-2.0-OpenSSH_8.4p1 Debian-11+deb11u1")
		case strings.Contains(client, "putty"):
			banners = append(banners,
				"SSH-2.0-OpenSSH_for_Windows_8.1",
				"SSH-2.0-OpenSSH_7.7p1 Win32")
		case strings.Contains(client, "libssh"):
			banners = append(banners,
				"SSH-2.0-OpenSSH_7.4p1 Debian-10+deb9u7",
				"SSH-2.0-OpenSSH_6.7p1 Debian-5+deb8u8")
		case strings.Contains(client, "openssh"):
			if m := opensshVersionRegex.FindStringSubmatch(client); m != nil {
				banners = append(banners, "SSH-2.0-OpenSSH_"+m[1]+"p1 Ubuntu-4ubuntu0.1")
			}
		}
	}

	banners = dedupe(banners)
	for _, fb := range fallbackBanners {
		if len(banners) >= 5 {
			break
		}
		banners = append(banners, fb)
		banners = dedupe(banners)
	}
	if len(banners) > 10 {
		banners = banners[:10]
	}
	return banners
}

func dedupe(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := in[:0]
	for _, v := range in {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

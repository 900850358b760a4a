package cloudtrail

import (
	"net/netip"
	"sort"
	"strings"
)

// IngressCIDRs collects every CIDR named by a security group ingress request.
//
// Permissions arrive as a list, as a single object, or wrapped as {"items": [...]}
// (the shape CloudTrail actually records); the per-permission ipRanges and ipv6Ranges
// use the same three shapes. The older API shape carries a flat cidrIp instead. All of
// them collapse into one sorted, de-duplicated list.
func IngressCIDRs(params map[string]any) []string {
	seen := make(map[string]struct{})

	for _, perm := range objects(params["ipPermissions"]) {
		for _, r := range objects(perm["ipRanges"]) {
			addCIDRs(seen, r, "cidrIp", "cidrIpv4")
		}
		for _, r := range objects(perm["ipv6Ranges"]) {
			addCIDRs(seen, r, "cidrIpv6")
		}
	}
	addCIDRs(seen, params, "cidrIp", "cidrIpv4", "cidrIpv6")

	cidrs := make([]string, 0, len(seen))
	for cidr := range seen {
		cidrs = append(cidrs, cidr)
	}
	sort.Strings(cidrs)
	return cidrs
}

// IsWorldOpen reports whether cidr covers every address of its family,
// e.g. 0.0.0.0/0 or ::/0.
func IsWorldOpen(cidr string) bool {
	prefix, err := netip.ParsePrefix(strings.TrimSpace(cidr))
	if err != nil {
		return false
	}
	return prefix.Bits() == 0
}

// AnyWorldOpen reports whether at least one of cidrs is world-open.
func AnyWorldOpen(cidrs []string) bool {
	for _, cidr := range cidrs {
		if IsWorldOpen(cidr) {
			return true
		}
	}
	return false
}

func addCIDRs(seen map[string]struct{}, m map[string]any, keys ...string) {
	for _, key := range keys {
		if v := text(m, key); v != "" {
			seen[v] = struct{}{}
		}
	}
}

// objects normalizes a list, a single object, or an {"items": ...} wrapper into a list
// of objects. Anything else yields nil.
func objects(v any) []map[string]any {
	switch t := v.(type) {
	case []any:
		out := make([]map[string]any, 0, len(t))
		for _, item := range t {
			if m, ok := item.(map[string]any); ok && m != nil {
				out = append(out, m)
			}
		}
		return out
	case []map[string]any:
		return t
	case map[string]any:
		if t == nil {
			return nil
		}
		if items, ok := t["items"]; ok {
			return objects(items)
		}
		return []map[string]any{t}
	}
	return nil
}

package models

import (
	"net/netip"
	"sort"
)

// ServerRecord identifies one virtual server.
//
// Identifier is assigned by the provider and never changes. Nickname is only
// meaningful when HasNickname is set; servers without one (or whose details
// could not be fetched) are addressed by their identifier instead.
type ServerRecord struct {
	Identifier  string
	Nickname    string
	HasNickname bool
	Address     netip.Addr // zero value when unknown
}

// Name returns the key the record is addressed by.
func (r ServerRecord) Name() string {
	if r.HasNickname {
		return r.Nickname
	}
	return r.Identifier
}

// AddressString returns the IPv4 address or "unknown".
func (r ServerRecord) AddressString() string {
	if !r.Address.IsValid() {
		return "unknown"
	}
	return r.Address.String()
}

// IdentityMap maps a server name to its record. A map is built in one go and
// replaced as a whole; it is never patched.
type IdentityMap map[string]ServerRecord

// Sorted returns the records ordered by name.
func (m IdentityMap) Sorted() []ServerRecord {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)

	records := make([]ServerRecord, 0, len(names))
	for _, name := range names {
		records = append(records, m[name])
	}
	return records
}

// ServerDetails holds the fields of a server information lookup the rest of
// the tool cares about.
type ServerDetails struct {
	Identifier string
	Nickname   string // empty when none was assigned
	Status     string
	IPv4       []string
	Uptime     string
}

// PowerAction is a power state change on the control API.
type PowerAction string

// Supported power actions.
const (
	PowerStart     PowerAction = "start"
	PowerStop      PowerAction = "stop"
	PowerHardReset PowerAction = "hardReset"
)

// TrafficPeriod selects the aggregation window of a traffic query.
type TrafficPeriod string

// Supported traffic periods.
const (
	TrafficDay   TrafficPeriod = "day"
	TrafficMonth TrafficPeriod = "month"
)

// TrafficStats holds traffic usage in MiB.
type TrafficStats struct {
	In    int64
	Out   int64
	Total int64
}

// Package l2 implements the remote-store half of the invalidation protocol:
// namespacing, tracking sets, and the server-side Lua scripts that delete
// only the cached pages a modification could actually affect, in one
// round-trip per group.
package l2

import (
	"strconv"
	"strings"
)

// Namespacing:
//
//	"<repo>:dlist:p:" + page_key
//	"<repo>:dlist:g:" + group_key            (the tracking set's own key
//	                                           carries a ":_keys" suffix)
//	"<repo>:dlist_groups"                    (the master set)
const (
	pagePrefix     = ":dlist:p:"
	groupPrefix    = ":dlist:g:"
	trackingSuffix = ":_keys"
	groupsSuffix   = ":dlist_groups"
)

func pageKeyName(repo string, pageKey []byte) string {
	return repo + pagePrefix + string(pageKey)
}

// trackingKeyName is the per-group set of currently cached page keys.
//
// Its members are the *full* redis key of each page (i.e. already run
// through [pageKeyName]), not the bare page key bytes -- that keeps the
// invalidation scripts from having to reconstruct a prefix inside Lua.
func trackingKeyName(repo string, groupKey []byte) string {
	return repo + groupPrefix + string(groupKey) + trackingSuffix
}

func masterSetName(repo string) string {
	return repo + groupsSuffix
}

// masterMember encodes one master-set entry as "<sortField>:<trackingKey>".
// The sort-field index rides along so a selective invalidation knows which
// of a modification's sort values applies to the group; the decimal index
// cannot contain a colon, so the first colon is always the separator.
func masterMember(sortField int, trackingKey string) string {
	return strconv.Itoa(sortField) + ":" + trackingKey
}

func parseMasterMember(m string) (GroupRef, bool) {
	i := strings.IndexByte(m, ':')
	if i < 1 {
		return GroupRef{}, false
	}
	idx, err := strconv.Atoi(m[:i])
	if err != nil {
		return GroupRef{}, false
	}
	return GroupRef{TrackingKey: m[i+1:], SortField: idx}, true
}

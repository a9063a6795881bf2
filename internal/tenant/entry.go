package tenant

// entry is one cached host mapping.  lastSeen is UnixNano and is read by
// the evictor with atomic loads.
type entry struct {
	siteID   int64
	lastSeen int64
}

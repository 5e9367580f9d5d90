package broker

// enumerationCache holds the last known device inventory for one stream
// type, together with a ref count of outstanding provider enumerations.
// The ref count is mutated exclusively through startEnumeration /
// finishEnumeration so the increment/decrement pairing stays locally
// verifiable; like the registry, the cache is confined to the run loop
type enumerationCache struct {
	valid   bool
	devices []StreamDeviceInfo

	// activeEnumerations counts provider EnumerateDevices calls that have
	// not been answered yet. While it is non-zero, new requests for this
	// type coalesce onto the outstanding enumeration instead of issuing
	// another provider call
	activeEnumerations int
}

// enumerating returns true while a provider enumeration is outstanding
func (c *enumerationCache) enumerating() bool {
	return c.activeEnumerations > 0
}

// startEnumeration records a new interest in enumerating. It returns true
// if the caller should issue an actual provider call, false if an
// outstanding enumeration already covers it
func (c *enumerationCache) startEnumeration() bool {
	if c.activeEnumerations > 0 {
		return false
	}

	c.activeEnumerations++
	return true
}

// forceEnumeration records an unconditional provider call, used on hotplug
// events where an in-flight enumeration may predate the device change
func (c *enumerationCache) forceEnumeration() {
	c.activeEnumerations++
}

// finishEnumeration consumes one outstanding enumeration and updates the
// snapshot. It returns true if the snapshot actually changed (or the cache
// was invalid), i.e. whether watchers need to be re-notified
func (c *enumerationCache) finishEnumeration(devices []StreamDeviceInfo, updateSnapshot bool) bool {
	if c.activeEnumerations > 0 {
		c.activeEnumerations--
	}

	if !updateSnapshot {
		return false
	}

	if c.valid && devicesEqual(devices, c.devices) {
		return false
	}

	c.valid = true
	c.devices = append([]StreamDeviceInfo(nil), devices...)

	return true
}

// invalidate clears the snapshot; the ref count is untouched since any
// outstanding provider call will still report back
func (c *enumerationCache) invalidate() {
	c.valid = false
	c.devices = nil
}

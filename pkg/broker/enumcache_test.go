package broker

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCacheCoalescesConcurrentEnumerations(t *testing.T) {
	var cache enumerationCache

	assert.True(t, cache.startEnumeration(), "first interest issues a provider call")
	assert.False(t, cache.startEnumeration(), "second interest coalesces")
	assert.True(t, cache.enumerating())

	devices := []StreamDeviceInfo{audioDevice("mic-1", "Microphone")}

	assert.True(t, cache.finishEnumeration(devices, true))
	assert.False(t, cache.enumerating())
	assert.True(t, cache.valid)

	// the next interest issues a fresh call again
	assert.True(t, cache.startEnumeration())
}

func TestCacheSuppressesIdenticalSnapshots(t *testing.T) {
	var cache enumerationCache

	devices := []StreamDeviceInfo{audioDevice("mic-1", "Microphone")}

	cache.startEnumeration()
	assert.True(t, cache.finishEnumeration(devices, true), "first snapshot always notifies")

	cache.startEnumeration()
	assert.False(t, cache.finishEnumeration(devices, true), "identical snapshot stays silent")

	changed := []StreamDeviceInfo{audioDevice("mic-2", "Other Microphone")}

	cache.startEnumeration()
	assert.True(t, cache.finishEnumeration(changed, true))
}

func TestCacheSkipsSnapshotWithoutWatchers(t *testing.T) {
	var cache enumerationCache

	cache.startEnumeration()
	assert.False(t, cache.finishEnumeration([]StreamDeviceInfo{audioDevice("mic-1", "Microphone")}, false))
	assert.False(t, cache.valid)
}

func TestCacheForceEnumeration(t *testing.T) {
	var cache enumerationCache

	cache.startEnumeration()
	cache.forceEnumeration()
	assert.True(t, cache.enumerating())

	cache.finishEnumeration(nil, true)
	assert.True(t, cache.enumerating(), "one call still outstanding")

	cache.finishEnumeration(nil, true)
	assert.False(t, cache.enumerating())

	// a stray extra result must not underflow
	cache.finishEnumeration(nil, true)
	assert.False(t, cache.enumerating())
}

func TestCacheInvalidateDropsSnapshotOnly(t *testing.T) {
	var cache enumerationCache

	cache.startEnumeration()
	cache.forceEnumeration()
	cache.finishEnumeration([]StreamDeviceInfo{audioDevice("mic-1", "Microphone")}, true)

	cache.invalidate()

	assert.False(t, cache.valid)
	assert.Nil(t, cache.devices)
	assert.True(t, cache.enumerating(), "outstanding provider calls still report back")
}

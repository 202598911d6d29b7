package blockcache

import "time"

// Observer receives cache events.
// Hooks are invoked while the cache lock is held;
// they must be fast and must not call back into the [Cache].
type Observer interface {
	// OnHit is called when a request is served from a slot.
	OnHit(block int64)
	// OnMiss is called when a request needs a slot.
	OnMiss(block int64)
	// OnEviction is called when a resident block loses its slot.
	// dirty reports whether it had to be written back first.
	OnEviction(block int64, dirty bool)
	// OnWriteBack is called after every device write issued by the cache.
	OnWriteBack(duration time.Duration, err error)
	// OnSync is called when [Cache.Sync] completes.
	OnSync(duration time.Duration, writes int, err error)
	// OnFlush is called when [Cache.Flush] completes.
	OnFlush(duration time.Duration, writes int, err error)
}

// NoopObserver ignores every event.
type NoopObserver struct{}

func (NoopObserver) OnHit(int64)                       {}
func (NoopObserver) OnMiss(int64)                      {}
func (NoopObserver) OnEviction(int64, bool)            {}
func (NoopObserver) OnWriteBack(time.Duration, error)  {}
func (NoopObserver) OnSync(time.Duration, int, error)  {}
func (NoopObserver) OnFlush(time.Duration, int, error) {}

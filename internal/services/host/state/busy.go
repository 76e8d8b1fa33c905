package state

import "sync/atomic"

// Indicator toggles the global busy indicator through a Committer.
//
// Suppression is a single enable flag rather than a counter: Disable hides
// every Show until Enable is called again, regardless of how many loads are
// in flight. Hide always commits.
type Indicator struct {
	store    Committer
	disabled atomic.Bool
}

// NewIndicator returns an enabled indicator.
func NewIndicator(store Committer) *Indicator {
	return &Indicator{store: store}
}

// Enable lets Show reach the store again.
func (i *Indicator) Enable() {
	i.disabled.Store(false)
}

// Disable suppresses Show.
func (i *Indicator) Disable() {
	i.disabled.Store(true)
}

// Enabled reports whether Show reaches the store.
func (i *Indicator) Enabled() bool {
	return !i.disabled.Load()
}

// Show displays the indicator unless suppressed.
func (i *Indicator) Show() {
	if i == nil || i.store == nil || i.disabled.Load() {
		return
	}
	i.store.Commit(MutationShowLoader, nil)
}

// Hide removes the indicator.
func (i *Indicator) Hide() {
	if i == nil || i.store == nil {
		return
	}
	i.store.Commit(MutationHideLoader, nil)
}

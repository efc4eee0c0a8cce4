package metrics

// ClientObserver receives the API client and cache events worth counting.
type ClientObserver interface {
	ObserveRequest(method string, status int, seconds float64)
	RecordRefresh(success bool)
	RecordCacheLoad(success bool)
}

type nopObserver struct{}

// Nop discards every event.
func Nop() ClientObserver { return nopObserver{} }

func (nopObserver) ObserveRequest(string, int, float64) {}
func (nopObserver) RecordRefresh(bool)                  {}
func (nopObserver) RecordCacheLoad(bool)                {}

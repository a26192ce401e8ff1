package noise

import (
	"fmt"
	"sync"
	"time"

	"votalinkd/internal/pattern"
)

// CollectionWindow is how long the filter learns background chatter before it
// starts suppressing.
const CollectionWindow = 30 * time.Second

// signatureBytes bounds the payload prefix used for the learned signature, so
// counter bytes deep in long diagnostic reports don't defeat the filter.
const signatureBytes = 8

// Filter learns the idle/status chatter of the connected headset during a
// warm-up window and suppresses it afterwards. Headset models differ in what
// they emit while idle, so the set cannot be enumerated up front; a short
// learning pass adapts to whatever hardware is plugged in. A small static
// denylist covers known spam bursts that may not appear during warm-up.
type Filter struct {
	mu         sync.Mutex
	learned    map[string]struct{}
	collecting bool
}

// NewFilter returns a filter in collecting mode.
func NewFilter() *Filter {
	return &Filter{
		learned:    make(map[string]struct{}),
		collecting: true,
	}
}

// Collecting reports whether the warm-up window is still open.
func (f *Filter) Collecting() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.collecting
}

// Observe records a non-call report's signature during warm-up. After the
// window has closed it is a no-op; the learned set is read-only for the rest
// of the session. Callers must never observe call-button reports.
func (f *Filter) Observe(vendorID, productID uint16, data []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.collecting {
		return
	}
	f.learned[Signature(vendorID, productID, data)] = struct{}{}
}

// EndCollection switches the filter to enforcing mode permanently and returns
// how many signatures were learned.
func (f *Filter) EndCollection() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.collecting = false
	return len(f.learned)
}

// IsNoise reports whether a non-call report should be suppressed. During
// warm-up nothing is suppressed. Call-button reports must not be passed here;
// the call decision is made before noise filtering so a press coinciding with
// the warm-up window can never be blacklisted.
func (f *Filter) IsNoise(vendorID, productID uint16, data []byte) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.collecting {
		return false
	}
	if _, ok := f.learned[Signature(vendorID, productID, data)]; ok {
		return true
	}
	return isSpamBurst(vendorID, productID, data)
}

// Signature is the truncated key a report is learned under:
// "VVVV:PPPP:" plus the normalized hex of at most the first 8 payload bytes.
func Signature(vendorID, productID uint16, data []byte) string {
	prefix := data
	if len(prefix) > signatureBytes {
		prefix = prefix[:signatureBytes]
	}
	return fmt.Sprintf("%04X:%04X:%s", vendorID, productID, pattern.NormalizeBytes(prefix))
}

// Known spam bursts per device, kept static rather than learned. The Yealink
// WH64 base streams C8-xx status frames and long diagnostic reports that can
// outlast the warm-up window.
func isSpamBurst(vendorID, productID uint16, data []byte) bool {
	if vendorID != 0x6993 || productID != 0xB0AE {
		return false
	}
	if len(data) > signatureBytes {
		return true
	}
	if len(data) >= 2 && data[0] == 0xC8 {
		switch data[1] {
		case 0x3B, 0x3A, 0x39, 0x38, 0x03, 0x00:
			return true
		}
	}
	return false
}

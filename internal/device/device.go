// Package device locates the appliance's capture hardware and tracks it
// across hotplug events. Discovery goes by kernel naming convention rather
// than fixed node numbers, since numbering shifts between replugs.
package device

// Kind identifies a media kind the appliance captures.
type Kind int

const (
	KindVideo Kind = iota
	KindAudio
)

// Kinds lists every media kind a monitor sweeps, in sweep order.
var Kinds = []Kind{KindVideo, KindAudio}

func (k Kind) String() string {
	switch k {
	case KindVideo:
		return "video"
	case KindAudio:
		return "audio"
	default:
		return "unknown"
	}
}

// Handle is the current observation of one device slot. There is at most
// one device per media kind; a handle is toggled between connected and
// absent, never discarded.
type Handle struct {
	Kind      Kind
	Path      string
	Connected bool
}

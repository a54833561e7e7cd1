package change

import "strconv"

// Raw video state values reported by the source client.
const (
	VideoIdle       = 0
	VideoReset      = 1
	VideoAway       = 2
	VideoConfirming = 11
	VideoPrivate    = 12
	VideoGroup      = 13
	VideoReserved   = 14
	VideoKillModel  = 15
	VideoC2COn      = 20
	VideoC2COff     = 21
	VideoOnline     = 90
	VideoRxPrivate  = 91
	VideoRxVoyeur   = 92
	VideoRxGroup    = 93
	VideoNull       = 126
	VideoOffline    = 127
)

// VideoStateName renders a raw video state for humans.
func VideoStateName(v int) string {
	switch v {
	case VideoIdle:
		return "FreeChat"
	case VideoAway:
		return "Away"
	case VideoPrivate, VideoRxPrivate:
		return "Private"
	case VideoGroup, VideoRxGroup:
		return "GroupShow"
	case VideoOnline:
		return "Online"
	case VideoOffline:
		return "Offline"
	case VideoRxVoyeur:
		return "Voyeur"
	case VideoC2COn, VideoC2COff:
		return "C2C"
	default:
		return "State" + strconv.Itoa(v)
	}
}

// IsOnlineEdge reports whether a before/after pair crosses the offline
// sentinel in either direction.
func IsOnlineEdge(before, after int) bool {
	return (before == VideoOffline) != (after == VideoOffline)
}

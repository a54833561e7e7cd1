// Package source defines the change-source surface the router subscribes to
// and an in-process Hub that implements it.
package source

// IntHandler receives an integer property change. before is nil on the
// first observation of the entity.
type IntHandler func(entity string, before, after *int)

// TextHandler receives a text property change.
type TextHandler func(entity string, before, after *string)

// Client registers per-entity change callbacks. Registering twice for the
// same entity adds a second handler.
type Client interface {
	OnVideoState(entity string, h IntHandler)
	OnRank(entity string, h IntHandler)
	OnTopic(entity string, h TextHandler)
}

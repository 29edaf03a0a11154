// Package uicap defines the narrow capability interface a user interface —
// local terminal or remote — must satisfy to be driven by this repo's
// client/server machinery. It knows nothing about editing; it only renders
// what it's told and reports keys back.
package uicap

import "github.com/loom-editor/loom/internal/wire"

// UserInterface is the capability set a rendering surface exposes. Method
// names and grouping follow the protocol messages in internal/wire: every
// rendering method here corresponds to exactly one wire.MessageType the
// remote variants serialize or dispatch. Dimensions and SetOnKey have no
// message of their own; their data travels in Connect and Key frames.
type UserInterface interface {
	MenuShow(items []wire.DisplayLine, anchor wire.DisplayCoord, fg, bg wire.Face, style wire.MenuStyle)
	MenuSelect(selected int)
	MenuHide()

	InfoShow(title, content string, anchor wire.DisplayCoord, face wire.Face, style wire.InfoStyle)
	InfoHide()

	Draw(buffer wire.DisplayBuffer, defaultFace, paddingFace wire.Face)
	DrawStatus(statusLine, modeLine wire.DisplayLine, defaultFace wire.Face)

	Refresh(forceClear bool)
	Dimensions() wire.DisplayCoord

	// SetOnKey installs the callback invoked whenever a key arrives. Only
	// one callback is active at a time; installing a new one replaces the
	// last.
	SetOnKey(fn func(wire.Key))

	SetUIOptions(options *wire.StringMap)
}

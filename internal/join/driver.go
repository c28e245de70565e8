// Package join drives an external meeting client through the fixed pre-join
// handshake: open the link, switch to the browser client, set the guest
// name, mute audio, join, then wait for the host to admit.
package join

import "context"

// Driver is one exclusive browser-automation session. A Runner acquires a
// fresh Driver per attempt and owns it until the attempt ends; drivers are
// never shared between attempts.
type Driver interface {
	// Open navigates to the meeting resource.
	Open(ctx context.Context, url string) error
	// ClickJoinFromBrowser selects the "join from this browser" control.
	ClickJoinFromBrowser(ctx context.Context) error
	// FillDisplayName populates the guest display-name field.
	FillDisplayName(ctx context.Context, name string) error
	// SelectNoAudio picks the "don't use audio" input option.
	SelectNoAudio(ctx context.Context) error
	// ClickJoinNow triggers the final join action.
	ClickJoinNow(ctx context.Context) error
	// CurrentURL reports the session's current location, used to detect
	// admission into the meeting stage.
	CurrentURL(ctx context.Context) (string, error)
	// Close tears the session down. Safe to call more than once.
	Close() error
}

// Factory produces a Driver for one attempt.
type Factory func(ctx context.Context) (Driver, error)

// admittedMarker appears in the session URL once the host lets the guest in.
const admittedMarker = "meetingStage"

// ABOUTME: Version constants for the player
// ABOUTME: Reported in logs and the control bridge
package version

const (
	Version = "0.1.0"
	Product = "Clearwave Player"
)

package volume

// Controller is the local volume control boundary. Values are internal-scale
// units. Implementations must report DefaultVolume for users with no custom
// volume set.
type Controller interface {
	// Get returns the current local volume for a user.
	Get(userID string) (float64, error)

	// Set applies a local volume for a user.
	Set(userID string, internal float64) error

	// Known returns a copy of every tracked non-default volume keyed by
	// user ID.
	Known() map[string]float64
}

package env

import (
	"os"
)

// Returns true if tcptap is running inside the official docker release image.
func InDocker() bool {
	_, inDocker := os.LookupEnv("__X_TCPTAP_DOCKER")
	return inDocker
}

package instance

import "os"

// GetID identifies this process in logs and lock ownership. It prefers the
// deploy-assigned POSGRID_INSTANCE_ID, then the container hostname.
func GetID() string {
	if id := os.Getenv("POSGRID_INSTANCE_ID"); id != "" {
		return id
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return "instance-0"
}

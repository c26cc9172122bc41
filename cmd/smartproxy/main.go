// Smartproxy is a transparent TCP proxy that powers a backend server
// on and off based on demand.
//
// It listens on configured ports, holds incoming connections while the
// backend boots via IPMI, forwards them once the backend is reachable,
// and powers the backend down after a period of inactivity.
//
// Usage:
//
//	# Start the proxy
//	smartproxy run -c /etc/smartproxy/config.yaml
//
//	# The bare form works too
//	smartproxy -c /etc/smartproxy/config.yaml
//
//	# Validate a configuration file without starting
//	smartproxy validate -c config.yaml
//
//	# Query or drive backend power directly
//	smartproxy power status -c config.yaml
//	smartproxy power on -c config.yaml
//
//	# Show version information
//	smartproxy version
package main

func main() {
	Execute()
}

// Package main is the linkmeta executable.
//
// linkmeta resolves a display title and description for website links. A
// lookup first consults a persistent TTL cache (memory, local files, Redis, or
// Postgres), then walks an ordered chain of public metadata APIs chosen by
// whether the site is domestic. The rate-limited provider sits behind a
// circuit breaker and a serialized request queue. When every provider fails the
// best partial title or a "visit <domain> website" placeholder is cached
// instead.
//
// Configuration comes from an optional YAML file (--config) overridden by
// LINKMETA_* environment variables, for example LINKMETA_STORE_BACKEND=redis or
// LINKMETA_SERVER_PORT=9090.
package main

import (
	"github.com/JakeFAU/linkmeta/cmd"
)

func main() {
	cmd.Execute()
}

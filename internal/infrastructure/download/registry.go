package download

import (
	"net/http"

	"ReelRelay/internal/resolver"
)

// NewRegistry registers every built-in resolver. endpoints overrides the
// public service URL per resolver name.
func NewRegistry(client *http.Client, endpoints map[string]string) *resolver.Registry {
	reg := resolver.NewRegistry()
	reg.Register(NewTikWM(client, endpoints["tikwm"]))
	reg.Register(NewSnapTik(client, endpoints["snaptik"]))
	reg.Register(NewDouyin(client, endpoints["douyin"]))
	return reg
}

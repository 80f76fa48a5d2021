package endpoints

import (
	"github.com/labstack/echo/v4"
	"github.com/whitekid/goxp/fx"
	"github.com/whitekid/goxp/log"

	"hamboard/pkg/helper"
)

// Endpoint (path, handler) pair
type Endpoint interface {
	PathAndName() (string, string)
	Route(g *echo.Group)
}

// Route route endpoint handlers
func Route(e *helper.Echo, endpoints ...Endpoint) {
	fx.ForEach(endpoints, func(_ int, endpoint Endpoint) {
		path, name := endpoint.PathAndName()
		log.Debugf("%s -> %s", path, name)
		endpoint.Route(e.Group(path))
	})
}

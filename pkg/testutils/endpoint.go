package testutils

import (
	"net/http"

	"hamboard/api/endpoints"
	"hamboard/pkg/helper"
)

func NewEndpointHandler(endpoint endpoints.Endpoint) http.Handler {
	handler := helper.NewEcho()
	endpoint.Route(handler.Group(""))

	return handler
}

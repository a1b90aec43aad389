package rest

import (
	"github.com/gorilla/mux"
	"github.com/inbucket/aliasrelay/pkg/server/web"
)

// SetupRoutes populates the routes for the status API.
func SetupRoutes(r *mux.Router) {
	r.Path("/status").Handler(
		web.Handler(StatusV1)).Name("StatusV1").Methods("GET")
	r.Path("/status/staged").Handler(
		web.Handler(StagedListV1)).Name("StagedListV1").Methods("GET")
	r.Path("/status/staged/{id}").Handler(
		web.Handler(StagedShowV1)).Name("StagedShowV1").Methods("GET")
}

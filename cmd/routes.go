package main

import (
	"net/http"

	"github.com/bmizerany/pat"
	"github.com/justinas/alice"

	riderhttp "deliveryBack/internal/rider/http"
)

func (app *application) routes() http.Handler {
	standardMiddleware := alice.New(app.recoverPanic, app.logRequest, secureHeaders, makeResponseJSON)
	riderMiddleware := standardMiddleware.Append(app.JWTMiddlewareWithRole(riderhttp.RoleRider))
	adminMiddleware := standardMiddleware.Append(app.JWTMiddlewareWithRole(riderhttp.RoleAdmin))

	mux := pat.New()
	mux.Get("/healthz", standardMiddleware.ThenFunc(app.healthz))

	// Riders, delivery requests, ledgers, websockets
	app.rider.Register(mux, riderMiddleware, adminMiddleware)

	return mux
}

func (app *application) healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

package rider

import (
	"deliveryBack/internal/rider/intake"
	"deliveryBack/internal/rider/ledger"
	"deliveryBack/internal/rider/lifecycle"
	"deliveryBack/internal/rider/memstore"
	"deliveryBack/internal/rider/presence"
	"deliveryBack/internal/rider/push"
	"deliveryBack/internal/rider/repo"
	"deliveryBack/internal/rider/roster"
	"deliveryBack/internal/rider/statement"
	"deliveryBack/internal/rider/withdrawal"
)

// Store is everything the rider components need from persistence.
type Store interface {
	intake.Store
	lifecycle.Store
	presence.Store
	ledger.Store
	withdrawal.Store
	roster.Store
	statement.Source
	push.Riders
}

var (
	_ Store = (*repo.Store)(nil)
	_ Store = (*memstore.Store)(nil)
)
